package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "vocabot/pkg/logx"
)

func TestWithinGrace(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		now   time.Time
		grace time.Duration
		want  bool
	}{
		{"on time", due, 5 * time.Minute, true},
		{"four minutes late", due.Add(4 * time.Minute), 5 * time.Minute, true},
		{"exactly at grace", due.Add(5 * time.Minute), 5 * time.Minute, true},
		{"ten minutes late", due.Add(10 * time.Minute), 5 * time.Minute, false},
		{"early", due.Add(-time.Second), 5 * time.Minute, true},
		{"grace disabled", due.Add(24 * time.Hour), 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := WithinGrace(due, tc.now, tc.grace); got != tc.want {
				t.Fatalf("WithinGrace(%v, %v, %v) = %v, want %v", due, tc.now, tc.grace, got, tc.want)
			}
		})
	}
	if !WithinGrace(time.Time{}, due, time.Minute) {
		t.Fatalf("WithinGrace(zero due) = false, want true")
	}
}

func newEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitHistory(t *testing.T, s *Service, n int) []HistoryItem {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h := s.Snapshot().History
		if len(h) >= n {
			return h
		}
		if time.Now().After(deadline) {
			t.Fatalf("history len = %d, want %d", len(h), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMisfireSkipsLateTask(t *testing.T) {
	t.Parallel()

	s := newEngine(t, Config{Workers: 1, MisfireGrace: 5 * time.Minute})
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var ran atomic.Int32
	run := func(context.Context) error { ran.Add(1); return nil }

	// The engine clock is pinned per case; slots stay the same.
	s.mu.Lock()
	s.now = func() time.Time { return due.Add(4 * time.Minute) }
	s.mu.Unlock()
	if err := s.Enqueue(Task{Name: "reminder_1", Due: due, Run: run}); err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}
	waitHistory(t, s, 1)

	s.mu.Lock()
	s.now = func() time.Time { return due.Add(10 * time.Minute) }
	s.mu.Unlock()
	if err := s.Enqueue(Task{Name: "reminder_2", Due: due, Run: run}); err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}
	h := waitHistory(t, s, 2)

	if got := ran.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	if h[0].Error != "" {
		t.Fatalf("first run error = %q, want success", h[0].Error)
	}
	if h[1].Error != ErrMisfire.Error() {
		t.Fatalf("second run error = %q, want misfire", h[1].Error)
	}
	if snap := s.Snapshot(); snap.DroppedMisfire != 1 {
		t.Fatalf("DroppedMisfire = %d, want 1", snap.DroppedMisfire)
	}
}

func TestOverlapSkip(t *testing.T) {
	t.Parallel()

	s := newEngine(t, Config{Workers: 2})
	release := make(chan struct{})
	started := make(chan struct{})
	block := func(context.Context) error {
		close(started)
		<-release
		return nil
	}
	if err := s.Enqueue(Task{Name: "reminder_7", SkipIfRunning: true, Run: block}); err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}
	<-started
	err := s.Enqueue(Task{Name: "reminder_7", SkipIfRunning: true, Run: block})
	if !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue() = %v, want ErrOverlapSkip", err)
	}
	close(release)
	waitHistory(t, s, 1)

	// Once released the name is free again.
	done := make(chan struct{})
	if err := s.Enqueue(Task{Name: "reminder_7", SkipIfRunning: true, Run: func(context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("third Enqueue() = %v", err)
	}
	<-done
}

func TestPanicIsRecorded(t *testing.T) {
	t.Parallel()

	s := newEngine(t, Config{Workers: 1})
	if err := s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("bad") }}); err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}
	h := waitHistory(t, s, 1)
	if h[0].Error == "" {
		t.Fatalf("panic not recorded")
	}
	// The worker survives.
	done := make(chan struct{})
	_ = s.Enqueue(Task{Name: "after", Run: func(context.Context) error { close(done); return nil }})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestEnqueueErrors(t *testing.T) {
	t.Parallel()

	disabled := New(Config{}, logx.Nop(), nil)
	if err := disabled.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Enqueue(disabled) = %v, want ErrDisabled", err)
	}

	stopped := New(Config{Enabled: true}, logx.Nop(), nil)
	if err := stopped.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue(not started) = %v, want ErrStopped", err)
	}

	s := newEngine(t, Config{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	_ = s.Enqueue(Task{Name: "hold", Run: func(context.Context) error { close(started); <-release; return nil }})
	<-started
	_ = s.Enqueue(Task{Name: "fill", Run: func(context.Context) error { return nil }})
	if err := s.Enqueue(Task{Name: "over", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue(full) = %v, want ErrQueueFull", err)
	}
	close(release)

	if err := s.Enqueue(Task{Name: " ", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatalf("Enqueue(blank name) = nil, want error")
	}
}

func TestTimeoutApplies(t *testing.T) {
	t.Parallel()

	s := newEngine(t, Config{Workers: 1, DefaultTimeout: 10 * time.Millisecond})
	_ = s.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	h := waitHistory(t, s, 1)
	if h[0].Error != context.DeadlineExceeded.Error() {
		t.Fatalf("error = %q, want deadline exceeded", h[0].Error)
	}
}
