package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	logx "vocabot/pkg/logx"
)

// Validate rejects configs that would fail at runtime. It never mutates cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path is required when storage.driver=sqlite"))
		}
	case "memory":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	_, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	add(validTimezone("scheduler.timezone", cfg.Scheduler.Timezone))
	add(validTimezone("reminder.timezone", cfg.Reminder.Timezone))

	_, err = ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)
	_, err = ParseDurationField("task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout)
	add(err)
	_, err = ParseDurationField("eventbus.handler_timeout", cfg.EventBus.HandlerTimeout)
	add(err)
	_, err = ParseDurationField("reminder.misfire_grace", cfg.Reminder.MisfireGrace)
	add(err)
	_, err = ParseDurationField("reminder.fire_timeout", cfg.Reminder.FireTimeout)
	add(err)
	_, err = ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout)
	add(err)
	_, err = ParseDurationField("notifier.circuit_base_delay", cfg.Notifier.CircuitBaseDelay)
	add(err)
	_, err = ParseDurationField("notifier.circuit_max_delay", cfg.Notifier.CircuitMaxDelay)
	add(err)
	_, err = ParseDurationField("notifier.circuit_reset_after", cfg.Notifier.CircuitResetAfter)
	add(err)

	if cfg.TaskEngine.Workers < 0 || cfg.TaskEngine.QueueSize < 0 || cfg.TaskEngine.HistorySize < 0 {
		add(errors.New("task_engine: workers, queue_size and history_size must be >= 0"))
	}
	if cfg.Reminder.HardCeiling < 0 {
		add(errors.New("reminder.hard_ceiling must be >= 0"))
	}
	if cfg.Reminder.ReconcileWorkers < 0 {
		add(errors.New("reminder.reconcile_workers must be >= 0"))
	}
	if cfg.Reminder.RemindedRetentionDays < 0 {
		add(errors.New("reminder.reminded_retention_days must be >= 0"))
	}
	if cfg.Notifier.RatePerSec < 0 || cfg.Notifier.Burst < 0 {
		add(errors.New("notifier: rate_per_sec and burst must be >= 0"))
	}

	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Token) == "" && !loopbackAddr(cfg.HTTP.Addr) {
		add(fmt.Errorf("http.addr %q is not loopback; set http.token", cfg.HTTP.Addr))
	}

	return errors.Join(errs...)
}

func validTimezone(path, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func loopbackAddr(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
