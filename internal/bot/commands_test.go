package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"vocabot/internal/reminder"
	"vocabot/internal/settings"
	"vocabot/internal/storage"
	kit "vocabot/internal/transport"
	logx "vocabot/pkg/logx"
)

type nopBus struct {
	mu    sync.Mutex
	kinds []string
}

func (b *nopBus) note(kind string) string {
	b.mu.Lock()
	b.kinds = append(b.kinds, kind)
	b.mu.Unlock()
	return kind
}

func (b *nopBus) PublishSettingsUpdated(int64, map[string]any) string { return b.note("settings") }
func (b *nopBus) PublishReminderChanged(int64, bool, string) string { return b.note("reminder") }
func (b *nopBus) PublishUserDeleted(int64) string { return b.note("deleted") }

type fakeReminders struct {
	mu    sync.Mutex
	tests []int64
	st    reminder.Status
}

func (f *fakeReminders) Status(userID int64) reminder.Status {
	s := f.st
	s.UserID = userID
	return s
}

func (f *fakeReminders) SendTest(_ context.Context, userID int64) error {
	f.mu.Lock()
	f.tests = append(f.tests, userID)
	f.mu.Unlock()
	return nil
}

type commandFixture struct {
	store *storage.Memory
	bus   *nopBus
	rem   *fakeReminders
	out   *fakeReplier
	r     *Router
}

func newCommandFixture(t *testing.T) *commandFixture {
	t.Helper()
	f := &commandFixture{
		store: storage.NewMemory(),
		bus:   &nopBus{},
		rem:   &fakeReminders{},
		out:   &fakeReplier{},
	}
	t.Cleanup(func() { _ = f.store.Close() })
	svc := settings.New(f.store, f.bus, logx.Nop())
	f.r = NewRouter(f.out, logx.Nop(), 1)
	f.r.Register(ReminderCommands(svc, f.rem)...)
	return f
}

// say runs one command from user 7 and returns the reply.
func (f *commandFixture) say(t *testing.T, text string) string {
	t.Helper()
	before := len(f.out.all())
	runLoop(t, f.r, kit.Message{ChatID: 7, FromID: 7, Text: text, IsPrivate: true})
	got := f.out.all()
	if len(got) != before+1 {
		t.Fatalf("%s: replies = %d, want %d", text, len(got), before+1)
	}
	return got[len(got)-1].text
}

func TestReminderOnOffFlow(t *testing.T) {
	t.Parallel()

	f := newCommandFixture(t)
	ctx := context.Background()

	if reply := f.say(t, "/reminder on 7:05"); !strings.Contains(reply, "<b>07:05</b>") {
		t.Fatalf("on reply = %q", reply)
	}
	st, ok, err := f.store.GetSettings(ctx, 7)
	if err != nil || !ok || !st.ReminderEnabled || st.ReminderTime != "07:05" {
		t.Fatalf("stored = %+v ok=%v err=%v", st, ok, err)
	}

	if reply := f.say(t, "/reminder off"); !strings.Contains(reply, "off") {
		t.Fatalf("off reply = %q", reply)
	}
	st, _, _ = f.store.GetSettings(ctx, 7)
	if st.ReminderEnabled {
		t.Fatal("still enabled after /reminder off")
	}
	if strings.Join(f.bus.kinds, ",") != "reminder,reminder" {
		t.Fatalf("published = %v", f.bus.kinds)
	}
}

func TestReminderTimeValidation(t *testing.T) {
	t.Parallel()

	f := newCommandFixture(t)
	if reply := f.say(t, "/reminder time 25:00"); !strings.Contains(reply, "HH:MM") {
		t.Fatalf("reply = %q", reply)
	}
	if reply := f.say(t, "/reminder time"); !strings.Contains(reply, "Usage: /reminder time HH:MM") {
		t.Fatalf("reply = %q", reply)
	}
	if len(f.bus.kinds) != 0 {
		t.Fatalf("published on invalid input: %v", f.bus.kinds)
	}
	if reply := f.say(t, "/reminder time 21:30"); !strings.Contains(reply, "21:30") || !strings.Contains(reply, "/reminder on") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestReminderTargetAndStatus(t *testing.T) {
	t.Parallel()

	f := newCommandFixture(t)
	if reply := f.say(t, "/reminder target abc"); !strings.Contains(reply, "Usage") {
		t.Fatalf("reply = %q", reply)
	}
	if reply := f.say(t, "/reminder target 0"); !strings.Contains(reply, "between 1 and") {
		t.Fatalf("reply = %q", reply)
	}
	if reply := f.say(t, "/reminder target 35"); !strings.Contains(reply, "<b>35</b>") {
		t.Fatalf("reply = %q", reply)
	}

	f.say(t, "/reminder on")
	f.rem.st = reminder.Status{
		HasReminder: true,
		Timezone:    "UTC",
		Next:        time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	reply := f.say(t, "/reminder status")
	for _, want := range []string{"✅ on", "09:00", "<b>Daily target:</b> 35", "2026-03-03 09:00 (UTC)"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("status missing %q:\n%s", want, reply)
		}
	}
	if bare := f.say(t, "/reminder"); bare != reply {
		t.Fatalf("/reminder differs from /reminder status:\n%s", bare)
	}
}

func TestReminderTestAndForgetMe(t *testing.T) {
	t.Parallel()

	f := newCommandFixture(t)
	before := len(f.out.all())
	runLoop(t, f.r, kit.Message{ChatID: 7, FromID: 7, Text: "/reminder test", IsPrivate: true})
	if len(f.rem.tests) != 1 || f.rem.tests[0] != 7 {
		t.Fatalf("test sends = %v", f.rem.tests)
	}
	if len(f.out.all()) != before {
		t.Fatal("/reminder test replied besides the reminder itself")
	}

	f.say(t, "/reminder on 10:00")
	if reply := f.say(t, "/forgetme"); !strings.Contains(reply, "/forgetme confirm") {
		t.Fatalf("reply = %q", reply)
	}
	if _, ok, _ := f.store.GetSettings(context.Background(), 7); !ok {
		t.Fatal("deleted without confirmation")
	}
	f.say(t, "/forgetme confirm")
	if _, ok, _ := f.store.GetSettings(context.Background(), 7); ok {
		t.Fatal("settings survive /forgetme confirm")
	}
	if last := f.bus.kinds[len(f.bus.kinds)-1]; last != "deleted" {
		t.Fatalf("last event = %q", last)
	}
}
