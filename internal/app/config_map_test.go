package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vocabot/internal/config"
	"vocabot/internal/storage"
	logx "vocabot/pkg/logx"
)

func TestReminderLocationFallsBack(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if loc, err := reminderLocation(cfg); err != nil || loc != time.Local {
		t.Fatalf("empty = %v, %v", loc, err)
	}
	cfg.Scheduler.Timezone = "Asia/Tokyo"
	if loc, _ := reminderLocation(cfg); loc.String() != "Asia/Tokyo" {
		t.Fatalf("scheduler fallback = %v", loc)
	}
	cfg.Reminder.Timezone = "Europe/Berlin"
	if loc, _ := reminderLocation(cfg); loc.String() != "Europe/Berlin" {
		t.Fatalf("reminder zone = %v", loc)
	}
	cfg.Reminder.Timezone = "Nowhere/City"
	if _, err := reminderLocation(cfg); err == nil {
		t.Fatal("invalid zone accepted")
	}
}

func TestMisfireGraceFeedsEngineAndScheduler(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: true}}
	ec, err := mapEngine(cfg)
	if err != nil {
		t.Fatalf("mapEngine() = %v", err)
	}
	sc, _ := mapScheduler(cfg)
	if ec.MisfireGrace != 5*time.Minute || sc.CatchUpWindow != 5*time.Minute || !ec.Enabled {
		t.Fatalf("engine = %+v scheduler = %+v", ec, sc)
	}

	cfg.Reminder.MisfireGrace = "90s"
	ec, _ = mapEngine(cfg)
	if ec.MisfireGrace != 90*time.Second {
		t.Fatalf("grace = %v", ec.MisfireGrace)
	}

	off := false
	cfg.TaskEngine.Enabled = &off
	if _, err := mapEngine(cfg); err == nil {
		t.Fatal("disabled engine with enabled scheduler accepted")
	}
	if err := validate(cfg); err == nil {
		t.Fatal("validate() accepted disabled engine")
	}
}

func TestRetentionDaysDefault(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if n := retentionDays(cfg); n != defaultRetentionDays {
		t.Fatalf("default = %d", n)
	}
	cfg.Reminder.RemindedRetentionDays = 3
	if n := retentionDays(cfg); n != 3 {
		t.Fatalf("set = %d", n)
	}
}

func TestPruneSchedule(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if spec, err := pruneSchedule(cfg); err != nil || spec != defaultPruneSchedule {
		t.Fatalf("default = %q, %v", spec, err)
	}
	cfg.Reminder.PruneSchedule = "04:30"
	if spec, _ := pruneSchedule(cfg); spec != "30 4 * * *" {
		t.Fatalf("daily = %q", spec)
	}
	cfg.Reminder.PruneSchedule = "6h"
	if spec, _ := pruneSchedule(cfg); spec != "@every 6h0m0s" {
		t.Fatalf("interval = %q", spec)
	}
	cfg.Reminder.PruneSchedule = "whenever"
	if err := validate(cfg); err == nil {
		t.Fatal("validate() accepted a bad prune schedule")
	}
}

func TestMapNotifierCircuit(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Notifier: config.NotifierConfig{CircuitTripFailures: 3, CircuitBaseDelay: "2s"}}
	nc, err := mapNotifier(cfg)
	if err != nil || nc.CircuitTripFailures != 3 || nc.CircuitBaseDelay != 2*time.Second {
		t.Fatalf("mapNotifier() = %+v, %v", nc, err)
	}
	cfg.Notifier.CircuitMaxDelay = "soon"
	if _, err := mapNotifier(cfg); err == nil {
		t.Fatal("bad circuit_max_delay accepted")
	}
}

func TestPlanRemindersReadsStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vocabot.db")
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: dbPath}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	ctx := context.Background()
	for id, at := range map[int64]string{1: "08:00", 2: "21:15"} {
		s := storage.DefaultSettings(id)
		s.ReminderEnabled = true
		s.ReminderTime = at
		if err := st.PutSettings(ctx, s); err != nil {
			t.Fatalf("PutSettings() = %v", err)
		}
	}
	_ = st.PutSettings(ctx, storage.DefaultSettings(3))
	_ = st.Close()

	cfgPath := filepath.Join(dir, "config.yaml")
	body := "storage:\n  driver: sqlite\n  path: " + dbPath + "\nscheduler:\n  enabled: true\n  timezone: UTC\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := PlanReminders(ctx, cfgPath)
	if err != nil {
		t.Fatalf("PlanReminders() = %v", err)
	}
	if len(p.Install) != 2 || len(p.Skip) != 0 || len(p.Remove) != 0 {
		t.Fatalf("plan = %+v", p)
	}
	for _, h := range p.Install {
		if h.Timezone != "UTC" {
			t.Fatalf("handle = %+v", h)
		}
	}
}
