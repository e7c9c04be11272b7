package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vocabot/internal/eventbus"
	"vocabot/internal/storage"
	logx "vocabot/pkg/logx"
)

type published struct {
	kind    string
	user    int64
	enabled bool
	at      string
}

type fakeBus struct {
	mu  sync.Mutex
	got []published
}

func (b *fakeBus) add(p published) string {
	b.mu.Lock()
	b.got = append(b.got, p)
	b.mu.Unlock()
	return "id"
}

func (b *fakeBus) PublishSettingsUpdated(userID int64, _ map[string]any) string {
	return b.add(published{kind: "settings_updated", user: userID})
}

func (b *fakeBus) PublishReminderChanged(userID int64, enabled bool, at string) string {
	return b.add(published{kind: "reminder_changed", user: userID, enabled: enabled, at: at})
}

func (b *fakeBus) PublishUserDeleted(userID int64) string {
	return b.add(published{kind: "user_deleted", user: userID})
}

func (b *fakeBus) events() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.got...)
}

func newService(t *testing.T) (*Service, *storage.Memory, *fakeBus) {
	t.Helper()
	st := storage.NewMemory()
	bus := &fakeBus{}
	return New(st, bus, logx.Nop()), st, bus
}

func TestSetReminderPersistsThenPublishes(t *testing.T) {
	t.Parallel()

	s, st, bus := newService(t)
	ctx := context.Background()

	got, err := s.SetReminder(ctx, 7, true, "7:05")
	if err != nil {
		t.Fatalf("SetReminder() = %v", err)
	}
	if got.ReminderTime != "07:05" || !got.ReminderEnabled {
		t.Fatalf("settings = %+v", got)
	}
	stored, ok, _ := st.GetSettings(ctx, 7)
	if !ok || stored.ReminderTime != "07:05" || !stored.ReminderEnabled {
		t.Fatalf("stored = %+v, %v", stored, ok)
	}
	ev := bus.events()
	if len(ev) != 1 || ev[0] != (published{kind: "reminder_changed", user: 7, enabled: true, at: "07:05"}) {
		t.Fatalf("events = %+v", ev)
	}

	// Switching off keeps the time.
	if _, err := s.SetReminder(ctx, 7, false, ""); err != nil {
		t.Fatalf("SetReminder(off) = %v", err)
	}
	if ev := bus.events(); ev[1].enabled || ev[1].at != "07:05" {
		t.Fatalf("off event = %+v", ev[1])
	}
}

func TestInvalidTimeRejectedBeforePublish(t *testing.T) {
	t.Parallel()

	s, st, bus := newService(t)
	ctx := context.Background()
	for _, at := range []string{"25:00", "9am", "12:5x", "-1:00"} {
		if _, err := s.SetReminder(ctx, 1, true, at); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("SetReminder(%q) = %v, want ErrInvalidTime", at, err)
		}
		if _, err := s.SetTime(ctx, 1, at); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("SetTime(%q) = %v, want ErrInvalidTime", at, err)
		}
	}
	if ev := bus.events(); len(ev) != 0 {
		t.Fatalf("published %+v for invalid input", ev)
	}
	if _, ok, _ := st.GetSettings(ctx, 1); ok {
		t.Fatal("invalid input persisted")
	}
}

func TestSetTimeKeepsSwitch(t *testing.T) {
	t.Parallel()

	s, _, bus := newService(t)
	ctx := context.Background()
	got, err := s.SetTime(ctx, 2, "22:10")
	if err != nil {
		t.Fatalf("SetTime() = %v", err)
	}
	if got.ReminderEnabled {
		t.Fatal("SetTime enabled the reminder")
	}
	if ev := bus.events(); len(ev) != 1 || ev[0].enabled || ev[0].at != "22:10" {
		t.Fatalf("events = %+v", ev)
	}
}

func TestSetDailyTarget(t *testing.T) {
	t.Parallel()

	s, st, bus := newService(t)
	ctx := context.Background()
	if _, err := s.SetDailyTarget(ctx, 3, 0); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("SetDailyTarget(0) = %v", err)
	}
	if _, err := s.SetDailyTarget(ctx, 3, 35); err != nil {
		t.Fatalf("SetDailyTarget(35) = %v", err)
	}
	stored, _, _ := st.GetSettings(ctx, 3)
	if stored.DailyTarget != 35 {
		t.Fatalf("target = %d", stored.DailyTarget)
	}
	if ev := bus.events(); len(ev) != 1 || ev[0].kind != "settings_updated" {
		t.Fatalf("events = %+v", ev)
	}
}

func TestDeleteUserPublishes(t *testing.T) {
	t.Parallel()

	s, st, bus := newService(t)
	ctx := context.Background()
	_, _ = s.SetReminder(ctx, 4, true, "09:00")
	if err := s.DeleteUser(ctx, 4); err != nil {
		t.Fatalf("DeleteUser() = %v", err)
	}
	if _, ok, _ := st.GetSettings(ctx, 4); ok {
		t.Fatal("settings survived delete")
	}
	if ev := bus.events(); ev[len(ev)-1].kind != "user_deleted" {
		t.Fatalf("events = %+v", ev)
	}
}

func TestServicePublishesOnEventBus(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(logx.Nop(), eventbus.Options{})
	got := make(chan eventbus.Event, 1)
	bus.SubscribeFunc(eventbus.ReminderSettingsChanged, func(_ context.Context, e eventbus.Event) error {
		got <- e
		return nil
	})
	bus.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	})

	s := New(storage.NewMemory(), bus, logx.Nop())
	if _, err := s.SetReminder(context.Background(), 9, true, "06:30"); err != nil {
		t.Fatalf("SetReminder() = %v", err)
	}
	select {
	case e := <-got:
		if e.UserID != 9 || e.Payload[eventbus.KeyReminderTime] != "06:30" || e.Payload[eventbus.KeyReminderEnabled] != true {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reminder change not dispatched")
	}
}
