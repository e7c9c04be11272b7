package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"vocabot/internal/bot"
	"vocabot/internal/config"
	"vocabot/internal/eventbus"
	"vocabot/internal/metrics"
	"vocabot/internal/notifier"
	"vocabot/internal/observability/server"
	"vocabot/internal/reminder"
	rtsup "vocabot/internal/runtime/supervisor"
	"vocabot/internal/settings"
	"vocabot/internal/storage"
	"vocabot/internal/task/engine"
	"vocabot/internal/task/scheduler"
	kit "vocabot/internal/transport"
	telegram "vocabot/internal/transport/telegram/adapter"
	logx "vocabot/pkg/logx"
)

const pruneJobName = "housekeeping.prune_reminded"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	met  *metrics.Metrics

	core *core

	settings *settings.Service
	adapter  *telegram.Adapter
	router   *bot.Router
	http     *server.Server

	updates chan kit.Message
}

// core is the reminder pipeline without any chat transport: storage, the
// trigger stack, the event bus and the manager.
type core struct {
	store    storage.Store
	engine   *engine.Service
	sched    *scheduler.Service
	bus      *eventbus.Bus
	notif    *notifier.Service
	reminder *reminder.Manager
}

func buildCore(cfg *config.Config, out kit.Sender, log logx.Logger, met *metrics.Metrics) (*core, error) {
	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	engCfg, err := mapEngine(cfg)
	if err != nil {
		return nil, err
	}
	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}
	remCfg, err := mapReminder(cfg)
	if err != nil {
		return nil, err
	}
	handlerTimeout, err := mapEventBus(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifier(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, log, met)
	sched := scheduler.New(schedCfg, eng, log)
	bus := eventbus.New(log, eventbus.Options{HandlerTimeout: handlerTimeout, Metrics: met})
	notif := notifier.New(ncfg, out, log, met, notifier.WithPermanentErrors(telegram.IsPermanent))
	mgr, err := reminder.New(remCfg, reminder.Deps{
		Store:   store,
		Trigger: sched,
		Sender:  notif,
		Log:     log,
		Metrics: met,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &core{store: store, engine: eng, sched: sched, bus: bus, notif: notif, reminder: mgr}, nil
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg))
	met := metrics.New(true)

	pollTimeout, err := mapTelegramPoll(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, log)
	if err != nil {
		return nil, err
	}

	c, err := buildCore(cfg, ad, log, met)
	if err != nil {
		return nil, err
	}
	st := settings.New(c.store, c.bus, log)

	router := bot.NewRouter(c.notif, log, 8)
	router.Register(bot.ReminderCommands(st, c.reminder)...)
	router.SetMenu(ad)

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logs,
		met:      met,
		core:     c,
		settings: st,
		adapter:  ad,
		router:   router,
		updates:  make(chan kit.Message, 256),
	}
	a.http = server.New(mapHTTP(cfg), met.Handler(), a.health, log)
	return a, nil
}

// PlanReminders loads cfgPath and computes the startup reconciliation
// without installing anything or contacting Telegram.
func PlanReminders(ctx context.Context, cfgPath string) (reminder.Plan, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return reminder.Plan{}, err
	}
	c, err := buildCore(cfg, nil, logx.Nop(), nil)
	if err != nil {
		return reminder.Plan{}, err
	}
	defer c.store.Close()
	return c.reminder.Plan(ctx)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings the pipeline up in dependency order: workers, reconciled
// jobs, triggers, then the bus so queued events see the installed registry.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.core
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	c.engine.Start(runCtx)

	unsub := c.reminder.Subscribe(c.bus)
	a.sup.Go0("reminder.unsubscribe", func(ctx context.Context) {
		<-ctx.Done()
		// Stop drains the bus first; handlers stay attached until then.
		<-c.bus.Done()
		unsub()
	})

	rep, err := c.reminder.Reconcile(runCtx)
	if err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}
	a.log.Info("reminders reconciled",
		logx.Int("installed", rep.Installed),
		logx.Int("removed", rep.Removed),
		logx.Int("skipped", rep.Skipped),
	)

	if err := a.addHousekeeping(a.cfgm.Get()); err != nil {
		return err
	}
	c.sched.Start(runCtx)
	c.bus.Start()

	a.router.Run(a.sup, a.updates)
	a.sup.Go0("telegram.menu", func(ctx context.Context) {
		mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.router.PublishMenu(mctx); err != nil {
			a.log.Warn("menu commands not updated", logx.Err(err))
		}
	})

	if err := a.http.Start(runCtx); err != nil {
		a.log.Warn("http server not started", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.apply(ctx, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started", logx.Int("reminder_jobs", len(c.reminder.Jobs())))
	return nil
}

func (a *App) addHousekeeping(cfg *config.Config) error {
	c := a.core
	spec, err := pruneSchedule(cfg)
	if err != nil {
		return err
	}
	return c.sched.AddCron(pruneJobName, spec, time.Minute, func(ctx context.Context) error {
		cur := a.cfgm.Get()
		loc, err := reminderLocation(cur)
		if err != nil {
			loc = time.Local
		}
		before := storage.Day(time.Now().In(loc)).AddDate(0, 0, -retentionDays(cur))
		n, err := c.store.PruneReminded(ctx, before)
		if err != nil {
			return fmt.Errorf("prune reminded markers: %w", err)
		}
		a.log.Info("reminded markers pruned", logx.Int64("rows", n), logx.Time("before", before))
		return nil
	})
}

// apply pushes a committed config to every live-reconfigurable component.
func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	c := a.core
	a.logs.Apply(mapLogging(next))

	if d, err := mapEventBus(next); err == nil {
		c.bus.SetHandlerTimeout(d)
	}
	if ec, err := mapEngine(next); err == nil {
		c.engine.Apply(ctx, ec)
	}
	if sc, err := mapScheduler(next); err == nil {
		c.sched.Apply(sc)
	}
	if rc, err := mapReminder(next); err == nil {
		c.reminder.Apply(rc)
	}
	if nc, err := mapNotifier(next); err == nil {
		c.notif.Apply(nc)
	}
	if prev == nil || prev.Reminder.PruneSchedule != next.Reminder.PruneSchedule {
		if err := a.addHousekeeping(next); err != nil {
			a.log.Warn("housekeeping schedule not updated", logx.Err(err))
		}
	}
	if err := a.http.Reconfigure(ctx, mapHTTP(next)); err != nil {
		a.log.Warn("http server reconfigure failed", logx.Err(err))
	}

	changed, attrs, restart := config.SummarizeConfigChange(prev, next)
	for _, section := range restart {
		a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", section))
	}
	if len(changed) == 0 {
		a.log.Debug("config applied (no effective changes)")
		return
	}
	a.log.Info("config applied", append([]logx.Field{logx.Any("changed", changed)}, attrs...)...)
}

func (a *App) health(context.Context) map[string]error {
	c := a.core
	checks := map[string]error{"scheduler": nil, "eventbus": nil}
	if !c.sched.Running() {
		checks["scheduler"] = errors.New("not running")
	}
	if !c.bus.Stats().Running {
		checks["eventbus"] = errors.New("not running")
	}
	return checks
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()
	c := a.core

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Intake first, then drain the bus while the registry can still change,
	// then triggers and in-flight fires.
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("eventbus", 3*time.Second, c.bus.Stop)
	step("scheduler", 2*time.Second, func(ctx context.Context) error { c.sched.Stop(ctx); return nil })
	step("taskengine", 3*time.Second, func(ctx context.Context) error { c.engine.Stop(ctx); return nil })
	step("http", time.Second, a.http.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return c.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
