package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vocabot/internal/storage"
	"vocabot/internal/task/scheduler"
	logx "vocabot/pkg/logx"
)

type installed struct {
	hour, minute int
	loc          *time.Location
	opt          scheduler.DailyOptions
	job          scheduler.DailyJob
}

type fakeTrigger struct {
	mu      sync.Mutex
	entries map[string]installed
	ops     []string
	failAdd bool
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{entries: make(map[string]installed)}
}

func (f *fakeTrigger) AddDaily(name string, hour, minute int, loc *time.Location, opt scheduler.DailyOptions, job scheduler.DailyJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return errors.New("trigger unavailable")
	}
	f.ops = append(f.ops, "add:"+name)
	f.entries[name] = installed{hour: hour, minute: minute, loc: loc, opt: opt, job: job}
	return nil
}

func (f *fakeTrigger) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "remove:"+name)
	_, ok := f.entries[name]
	delete(f.entries, name)
	return ok
}

func (f *fakeTrigger) Next(name string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return time.Date(2026, 3, 3, e.hour, e.minute, 0, 0, e.loc), true
}

func (f *fakeTrigger) Running() bool { return true }

func (f *fakeTrigger) entry(name string) (installed, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[name]
	return e, ok
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeTrigger) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

type sent struct {
	user int64
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{user: userID, text: text})
	return nil
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

type fixture struct {
	m     *Manager
	store *storage.Memory
	trig  *fakeTrigger
	send  *fakeSender
}

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storage.NewMemory(), trig: newFakeTrigger(), send: &fakeSender{}}
	m, err := New(Config{Location: time.UTC, HardCeiling: 20}, Deps{
		Store:   f.store,
		Trigger: f.trig,
		Sender:  f.send,
		Log:     logx.Nop(),
		Now:     func() time.Time { return testNow },
		Intn:    func(int) int { return 1 },
	})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	f.m = m
	return f
}

func (f *fixture) put(t *testing.T, userID int64, enabled bool, at string) {
	t.Helper()
	st := storage.DefaultSettings(userID)
	st.ReminderEnabled = enabled
	if at != "" {
		st.ReminderTime = at
	}
	if err := f.store.PutSettings(context.Background(), st); err != nil {
		t.Fatalf("PutSettings() = %v", err)
	}
}
