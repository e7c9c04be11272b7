package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"vocabot/internal/storage"
)

func day(d int) time.Time { return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC) }

func items(n int) []storage.Item {
	out := make([]storage.Item, 0, n)
	for i := 0; i < n; i++ {
		// Descending input; selection must sort.
		out = append(out, storage.Item{ID: int64(i + 1), Word: fmt.Sprintf("w%02d", n-i), DueDate: day(n - i)})
	}
	return out
}

func TestSelectDue(t *testing.T) {
	t.Parallel()

	today := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		items   []storage.Item
		target  int
		ceiling int
		want    int
	}{
		{"25 due, target 30, ceiling 20", items(25), 30, 20, 20},
		{"target below ceiling", items(25), 5, 20, 5},
		{"target unset uses ceiling", items(25), 0, 20, 20},
		{"fewer than cap", items(3), 30, 20, 3},
		{"none", nil, 30, 20, 0},
		{"ceiling unset uses default", items(25), 100, 0, DefaultHardCeiling},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SelectDue(tc.items, today, tc.target, tc.ceiling)
			if len(got) != tc.want {
				t.Fatalf("len = %d, want %d", len(got), tc.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].DueDate.Before(got[i-1].DueDate) {
					t.Fatalf("not ascending at %d: %v after %v", i, got[i].DueDate, got[i-1].DueDate)
				}
			}
		})
	}
}

func TestSelectDueExcludesFutureAndKeepsTieOrder(t *testing.T) {
	t.Parallel()

	today := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	in := []storage.Item{
		{ID: 1, DueDate: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
		{ID: 2, DueDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{ID: 3, DueDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 4, DueDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{ID: 5},
	}
	got := SelectDue(in, today, 10, 20)
	var ids []int64
	for _, it := range got {
		ids = append(ids, it.ID)
	}
	if fmt.Sprint(ids) != "[3 2 4]" {
		t.Fatalf("ids = %v, want [3 2 4]", ids)
	}
}

func TestReminderText(t *testing.T) {
	t.Parallel()

	in := []storage.Item{{Word: "a<b"}, {Word: "b"}, {Word: "c"}, {Word: "d"}, {Word: "e"}, {Word: "f"}}
	txt := ReminderText(in, 30)
	for _, want := range []string{"Words to review: 6", "Daily target: 30", "• a&lt;b", "• e", "…"} {
		if !strings.Contains(txt, want) {
			t.Fatalf("text missing %q:\n%s", want, txt)
		}
	}
	if strings.Contains(txt, "• f") {
		t.Fatalf("text lists more than five words:\n%s", txt)
	}
	if short := ReminderText(in[:2], 0); strings.Contains(short, "…") {
		t.Fatalf("ellipsis without overflow:\n%s", short)
	}
}

func TestEncouragementUsesRandomIndex(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := range encouragements {
		seen[Encouragement(func(n int) int {
			if n != len(encouragements) {
				t.Fatalf("intn(%d), want %d", n, len(encouragements))
			}
			return i
		})] = true
	}
	if len(seen) != len(encouragements) {
		t.Fatalf("distinct messages = %d", len(seen))
	}
}

func TestFireCapsAndSendsOncePerDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	st := storage.DefaultSettings(7)
	st.ReminderEnabled = true
	st.DailyTarget = 30
	_ = f.store.PutSettings(ctx, st)
	for i := 0; i < 25; i++ {
		_, _ = f.store.AddWord(ctx, storage.Item{UserID: 7, Word: fmt.Sprintf("word%02d", i), DueDate: day(25 - i)})
	}
	_, _ = f.store.AddWord(ctx, storage.Item{UserID: 7, Word: "future", DueDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)})

	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := f.m.Fire(ctx, 7, due); err != nil {
		t.Fatalf("Fire() = %v", err)
	}
	msgs := f.send.all()
	if len(msgs) != 1 || msgs[0].user != 7 {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[0].text, "Words to review: 20") {
		t.Fatalf("text:\n%s", msgs[0].text)
	}
	// Earliest due first: word24 is due on Feb 1.
	if i24, i23 := strings.Index(msgs[0].text, "word24"), strings.Index(msgs[0].text, "word23"); i24 < 0 || i23 < 0 || i24 > i23 {
		t.Fatalf("words not ascending by due date:\n%s", msgs[0].text)
	}
	if strings.Contains(msgs[0].text, "future") {
		t.Fatal("future word listed")
	}

	// A second fire for the same day, e.g. a catch-up run, sends nothing.
	if err := f.m.Fire(ctx, 7, due.Add(2*time.Minute)); err != nil {
		t.Fatalf("second Fire() = %v", err)
	}
	if n := len(f.send.all()); n != 1 {
		t.Fatalf("messages after second fire = %d, want 1", n)
	}
}

func TestFireSkipsDisabledUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.put(t, 4, false, "09:00")
	if err := f.m.Fire(context.Background(), 4, testNow); err != nil {
		t.Fatalf("Fire() = %v", err)
	}
	if err := f.m.Fire(context.Background(), 99, testNow); err != nil {
		t.Fatalf("Fire(absent) = %v", err)
	}
	if n := len(f.send.all()); n != 0 {
		t.Fatalf("messages = %d, want 0", n)
	}
	// The day was not claimed, so enabling later still allows today's send.
	f.put(t, 4, true, "09:00")
	_ = f.m.Fire(context.Background(), 4, testNow)
	if n := len(f.send.all()); n != 1 {
		t.Fatalf("messages after enable = %d, want 1", n)
	}
}

func TestFireWithNothingDueSendsEncouragement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.put(t, 2, true, "09:00")
	if err := f.m.Fire(context.Background(), 2, testNow); err != nil {
		t.Fatalf("Fire() = %v", err)
	}
	msgs := f.send.all()
	if len(msgs) != 1 || msgs[0].text != encouragements[1] {
		t.Fatalf("messages = %+v, want encouragement #1", msgs)
	}
}

func TestFireSendFailureIsNotAnError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.put(t, 2, true, "09:00")
	f.send.err = errors.New("bot was blocked by the user")
	if err := f.m.Fire(context.Background(), 2, testNow); err != nil {
		t.Fatalf("Fire() = %v, want nil on send failure", err)
	}
}

func TestSendTestIgnoresDayMarker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.put(t, 3, true, "09:00")
	_ = f.m.Fire(context.Background(), 3, testNow)
	if err := f.m.SendTest(context.Background(), 3); err != nil {
		t.Fatalf("SendTest() = %v", err)
	}
	if err := f.m.SendTest(context.Background(), 55); err != nil {
		t.Fatalf("SendTest(no settings) = %v", err)
	}
	if n := len(f.send.all()); n != 3 {
		t.Fatalf("messages = %d, want 3", n)
	}
}
