package app

import (
	"fmt"
	"strings"
	"time"

	"vocabot/internal/config"
	"vocabot/internal/notifier"
	"vocabot/internal/observability/server"
	"vocabot/internal/reminder"
	"vocabot/internal/storage"
	"vocabot/internal/task/engine"
	"vocabot/internal/task/scheduler"
	logx "vocabot/pkg/logx"
)

const (
	defaultMisfireGrace  = 5 * time.Minute
	defaultFireTimeout   = 30 * time.Second
	defaultRetentionDays = 14
	defaultPruneSchedule = "17 3 * * *"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(cfg.Storage.Path), BusyTimeout: busy}, nil
}

func mapEngine(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	enabled := cfg.Scheduler.Enabled
	if te.Enabled != nil {
		enabled = *te.Enabled
	}
	if cfg.Scheduler.Enabled && !enabled {
		return engine.Config{}, fmt.Errorf("task_engine.enabled cannot be false while scheduler.enabled is true")
	}
	timeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	grace, err := misfireGrace(cfg)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Enabled:        enabled,
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: timeout,
		MisfireGrace:   grace,
		HistorySize:    te.HistorySize,
	}, nil
}

func misfireGrace(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("reminder.misfire_grace", cfg.Reminder.MisfireGrace, defaultMisfireGrace)
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	grace, err := misfireGrace(cfg)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:       cfg.Scheduler.Enabled,
		Timezone:      strings.TrimSpace(cfg.Scheduler.Timezone),
		CatchUpWindow: grace,
	}, nil
}

// reminderLocation resolves reminder.timezone, falling back to
// scheduler.timezone and then the host zone.
func reminderLocation(cfg *config.Config) (*time.Location, error) {
	name := strings.TrimSpace(cfg.Reminder.Timezone)
	if name == "" {
		name = strings.TrimSpace(cfg.Scheduler.Timezone)
	}
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reminder timezone %q: %w", name, err)
	}
	return loc, nil
}

func mapReminder(cfg *config.Config) (reminder.Config, error) {
	loc, err := reminderLocation(cfg)
	if err != nil {
		return reminder.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("reminder.fire_timeout", cfg.Reminder.FireTimeout, defaultFireTimeout)
	if err != nil {
		return reminder.Config{}, err
	}
	return reminder.Config{
		HardCeiling:      cfg.Reminder.HardCeiling,
		Location:         loc,
		ReconcileWorkers: cfg.Reminder.ReconcileWorkers,
		FireTimeout:      timeout,
	}, nil
}

func retentionDays(cfg *config.Config) int {
	if n := cfg.Reminder.RemindedRetentionDays; n > 0 {
		return n
	}
	return defaultRetentionDays
}

// pruneSchedule resolves reminder.prune_schedule to a cron expression.
func pruneSchedule(cfg *config.Config) (string, error) {
	raw := strings.TrimSpace(cfg.Reminder.PruneSchedule)
	if raw == "" {
		raw = defaultPruneSchedule
	}
	ps, err := scheduler.ParseSchedule(raw)
	if err != nil {
		return "", fmt.Errorf("reminder.prune_schedule: %w", err)
	}
	return ps.Cron, nil
}

func mapEventBus(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationField("eventbus.handler_timeout", cfg.EventBus.HandlerTimeout)
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	var durs [4]time.Duration
	for i, f := range []struct{ name, raw string }{
		{"notifier.send_timeout", n.SendTimeout},
		{"notifier.circuit_base_delay", n.CircuitBaseDelay},
		{"notifier.circuit_max_delay", n.CircuitMaxDelay},
		{"notifier.circuit_reset_after", n.CircuitResetAfter},
	} {
		d, err := config.ParseDurationField(f.name, f.raw)
		if err != nil {
			return notifier.Config{}, err
		}
		durs[i] = d
	}
	return notifier.Config{
		RatePerSec:          float64(n.RatePerSec),
		Burst:               n.Burst,
		SendTimeout:         durs[0],
		CircuitTripFailures: n.CircuitTripFailures,
		CircuitBaseDelay:    durs[1],
		CircuitMaxDelay:     durs[2],
		CircuitResetAfter:   durs[3],
	}, nil
}

func mapHTTP(cfg *config.Config) server.Config {
	return server.Config{
		Enabled: cfg.HTTP.Enabled,
		Addr:    strings.TrimSpace(cfg.HTTP.Addr),
		Pprof:   cfg.HTTP.Pprof,
		Token:   strings.TrimSpace(cfg.HTTP.Token),
	}
}

func mapTelegramPoll(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
}

// validate is the reload hook: a config that cannot be mapped is rejected
// before it is committed.
func validate(cfg *config.Config) error {
	if _, err := mapEngine(cfg); err != nil {
		return err
	}
	if _, err := mapReminder(cfg); err != nil {
		return err
	}
	if _, err := mapNotifier(cfg); err != nil {
		return err
	}
	if _, err := pruneSchedule(cfg); err != nil {
		return err
	}
	return nil
}
