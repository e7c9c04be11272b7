package engine

import (
	"context"
	"sync"
	"time"
)

// Config controls the task execution engine.
//
// The scheduler only decides when; execution settings belong here.
// The app layer maps config.task_engine and config.reminder into this struct.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// DefaultTimeout is used when Task.Timeout is 0.
	DefaultTimeout time.Duration

	// MisfireGrace is how late a task with a Due time may start and still run.
	// 0 disables the check.
	MisfireGrace time.Duration

	HistorySize int
}

// RunState gates overlap: a task name holds it from enqueue until its run ends.
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

type HistoryItem struct {
	ID         string
	Name       string
	Due        time.Time
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// Task is a unit of work executed by the engine.
//
// Due is the wall-clock slot the task belongs to. When set, the task is
// skipped if it starts more than Config.MisfireGrace after Due.
type Task struct {
	ID            string
	Name          string
	Due           time.Time
	Timeout       time.Duration
	SkipIfRunning bool
	Run           func(ctx context.Context) error
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Enabled  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Dropped          uint64
	DroppedQueueFull uint64
	DroppedMisfire   uint64
	SkippedOverlap   uint64

	DefaultTimeout time.Duration
	MisfireGrace   time.Duration

	History []HistoryItem
}
