package reminder

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"vocabot/internal/metrics"
	"vocabot/internal/storage"
	"vocabot/internal/task/scheduler"
	logx "vocabot/pkg/logx"
)

// DefaultHardCeiling bounds the number of words in one reminder regardless
// of the user's daily target.
const DefaultHardCeiling = 20

// Store is the storage subset the manager reads.
type Store interface {
	GetSettings(ctx context.Context, userID int64) (storage.Settings, bool, error)
	EnabledReminderUsers(ctx context.Context) ([]storage.ReminderUser, error)
	DueItems(ctx context.Context, userID int64, today time.Time) ([]storage.Item, error)
	MarkReminded(ctx context.Context, userID int64, day time.Time) (bool, error)
}

// Trigger is the recurring wall-clock primitive. *scheduler.Service
// implements it.
type Trigger interface {
	AddDaily(name string, hour, minute int, loc *time.Location, opt scheduler.DailyOptions, job scheduler.DailyJob) error
	Remove(name string) bool
	Next(name string) (time.Time, bool)
	Running() bool
}

// Sender delivers a message to a user's private chat.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

type Config struct {
	HardCeiling      int
	Location         *time.Location // nil means time.Local
	ReconcileWorkers int
	FireTimeout      time.Duration
}

type Deps struct {
	Store   Store
	Trigger Trigger
	Sender  Sender
	Log     logx.Logger
	Metrics *metrics.Metrics

	Now  func() time.Time
	Intn func(n int) int
}

// JobHandle describes an installed reminder.
type JobHandle struct {
	UserID   int64
	Hour     int
	Minute   int
	Timezone string
	JobID    string
}

// Clock returns the trigger time as "HH:MM".
func (h JobHandle) Clock() string { return scheduler.FormatClock(h.Hour, h.Minute) }

// Status is what /reminder status reports.
type Status struct {
	UserID           int64
	HasReminder      bool
	JobID            string
	Clock            string
	Timezone         string
	Next             time.Time
	SchedulerRunning bool
}

type ReconcileReport struct {
	Installed int
	Removed   int
	Skipped   int
}

// Skipped is a user reconciliation could not install.
type Skipped struct {
	UserID       int64
	ReminderTime string
	Err          error
}

// Plan is the outcome of a reconciliation pass before it is applied.
type Plan struct {
	Install []JobHandle
	Skip    []Skipped
	Remove  []int64
}

// JobID is the trigger name of a user's reminder.
func JobID(userID int64) string {
	return "reminder_" + strconv.FormatInt(userID, 10)
}

func withDefaults(cfg Config) Config {
	if cfg.HardCeiling <= 0 {
		cfg.HardCeiling = DefaultHardCeiling
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ReconcileWorkers <= 0 {
		cfg.ReconcileWorkers = 4
	}
	return cfg
}

func defaultIntn(n int) int { return rand.IntN(n) }
