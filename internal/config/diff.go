package config

import (
	"sort"
	"strings"

	logx "vocabot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	restart := make([]string, 0, 2)
	attrs := make([]logx.Field, 0, 24)

	// Telegram (never log token)
	tokenChanged := strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token)
	if tokenChanged || strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		restart = append(restart, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_changed", tokenChanged),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage is opened once at startup.
	oldS, newS := oldCfg.Storage, newCfg.Storage
	if strings.TrimSpace(oldS.Driver) != strings.TrimSpace(newS.Driver) ||
		strings.TrimSpace(oldS.Path) != strings.TrimSpace(newS.Path) ||
		strings.TrimSpace(oldS.BusyTimeout) != strings.TrimSpace(newS.BusyTimeout) {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newS.BusyTimeout)),
		)
	}

	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	oTE, nTE := oldCfg.TaskEngine, newCfg.TaskEngine
	if !sameBoolPtr(oTE.Enabled, nTE.Enabled) ||
		oTE.Workers != nTE.Workers ||
		oTE.QueueSize != nTE.QueueSize ||
		strings.TrimSpace(oTE.DefaultTimeout) != strings.TrimSpace(nTE.DefaultTimeout) ||
		oTE.HistorySize != nTE.HistorySize {
		changed = append(changed, "task_engine")

		enabledEffective := newCfg.Scheduler.Enabled
		if nTE.Enabled != nil {
			enabledEffective = *nTE.Enabled
		}
		attrs = append(attrs,
			logx.Bool("task_engine.enabled", enabledEffective),
			logx.Bool("task_engine.enabled_set", nTE.Enabled != nil),
			logx.Int("task_engine.workers", nTE.Workers),
			logx.Int("task_engine.queue_size", nTE.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(nTE.DefaultTimeout)),
			logx.Int("task_engine.history_size", nTE.HistorySize),
		)
	}

	if strings.TrimSpace(oldCfg.EventBus.HandlerTimeout) != strings.TrimSpace(newCfg.EventBus.HandlerTimeout) {
		changed = append(changed, "eventbus")
		attrs = append(attrs, logx.String("eventbus.handler_timeout", strings.TrimSpace(newCfg.EventBus.HandlerTimeout)))
	}

	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
		r := newCfg.Reminder
		attrs = append(attrs,
			logx.Int("reminder.hard_ceiling", r.HardCeiling),
			logx.String("reminder.misfire_grace", strings.TrimSpace(r.MisfireGrace)),
			logx.String("reminder.timezone", strings.TrimSpace(r.Timezone)),
			logx.Int("reminder.reconcile_workers", r.ReconcileWorkers),
			logx.Int("reminder.reminded_retention_days", r.RemindedRetentionDays),
			logx.String("reminder.fire_timeout", strings.TrimSpace(r.FireTimeout)),
			logx.String("reminder.prune_schedule", strings.TrimSpace(r.PruneSchedule)),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.burst", newCfg.Notifier.Burst),
			logx.String("notifier.send_timeout", strings.TrimSpace(newCfg.Notifier.SendTimeout)),
			logx.Int("notifier.circuit_trip_failures", newCfg.Notifier.CircuitTripFailures),
		)
	}

	// HTTP (never log token)
	oH, nH := oldCfg.HTTP, newCfg.HTTP
	if oH.Enabled != nH.Enabled ||
		strings.TrimSpace(oH.Addr) != strings.TrimSpace(nH.Addr) ||
		oH.Pprof != nH.Pprof ||
		strings.TrimSpace(oH.Token) != strings.TrimSpace(nH.Token) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", nH.Enabled),
			logx.String("http.addr", strings.TrimSpace(nH.Addr)),
			logx.Bool("http.pprof", nH.Pprof),
			logx.Bool("http.token_set", strings.TrimSpace(nH.Token) != ""),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}

func sameBoolPtr(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
