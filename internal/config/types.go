package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Scheduler controls the cron trigger service.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of trigger firings.
	TaskEngine TaskEngineConfig `json:"task_engine"`

	EventBus EventBusConfig `json:"eventbus"`
	Reminder ReminderConfig `json:"reminder"`
	Notifier NotifierConfig `json:"notifier"`
	HTTP     HTTPConfig     `json:"http"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./vocabot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Default trigger timezone (IANA name). Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`
}

// TaskEngineConfig controls the worker pool that runs trigger firings.
//
// Enabled is a pointer so "omitted" (follow scheduler.enabled) differs from
// an explicit false.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type EventBusConfig struct {
	// HandlerTimeout bounds each handler invocation. "0s" or empty disables it.
	HandlerTimeout string `json:"handler_timeout,omitempty"`
}

// ReminderConfig controls the daily review reminders.
//
// Defaults:
//   - hard_ceiling: 20
//   - misfire_grace: "5m"
//   - timezone: scheduler.timezone
//   - reconcile_workers: 4
//   - reminded_retention_days: 14
//   - fire_timeout: "30s"
//   - prune_schedule: "17 3 * * *" (cron, or an interval like "12h")
type ReminderConfig struct {
	HardCeiling           int    `json:"hard_ceiling,omitempty"`
	MisfireGrace          string `json:"misfire_grace,omitempty"`
	Timezone              string `json:"timezone,omitempty"`
	ReconcileWorkers      int    `json:"reconcile_workers,omitempty"`
	RemindedRetentionDays int    `json:"reminded_retention_days,omitempty"`
	FireTimeout           string `json:"fire_timeout,omitempty"`
	PruneSchedule         string `json:"prune_schedule,omitempty"`
}

// NotifierConfig controls outbound sends.
//
// circuit_trip_failures: consecutive transient send failures before sends
// fail fast (default 5, negative disables). The delays are Go durations.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	Burst       int    `json:"burst,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`

	CircuitTripFailures int    `json:"circuit_trip_failures,omitempty"`
	CircuitBaseDelay    string `json:"circuit_base_delay,omitempty"`
	CircuitMaxDelay     string `json:"circuit_max_delay,omitempty"`
	CircuitResetAfter   string `json:"circuit_reset_after,omitempty"`
}

// HTTPConfig controls the observability server (/metrics, /healthz, pprof).
//
// Prefer binding to localhost. A non-loopback address requires a token.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
	Pprof   bool   `json:"pprof,omitempty"`
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)
}
