package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vocabot/internal/task/engine"
	logx "vocabot/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Enabled bool
	// Timezone is the default IANA zone for triggers registered without one.
	Timezone string
	// CatchUpWindow bounds how far back a catch-up run may reach on install.
	CatchUpWindow time.Duration
}

// Executor runs enqueued tasks. *engine.Service implements it.
type Executor interface {
	Enqueue(t engine.Task) error
}

// DailyJob runs for one firing; due is the slot the firing belongs to.
type DailyJob func(ctx context.Context, due time.Time) error

type DailyOptions struct {
	Timeout time.Duration
	// CatchUp enqueues one run right away when the latest slot is still
	// inside the catch-up window.
	CatchUp bool
}

type dailyDef struct {
	hour, minute int
	loc          *time.Location // nil follows the service default
	job          DailyJob
	catchUp      bool
}

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	daily   *dailyDef
	sched   cron.Schedule
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	loc  *time.Location
	exec Executor
	now  func() time.Time

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*scheduleDef

	// Enqueue error throttling: key is schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name     string
	Spec     string
	Timezone string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
