package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"vocabot/internal/task/engine"
	logx "vocabot/pkg/logx"
)

// AddCron registers (or replaces) a cron trigger. Runs for the same name never overlap.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name: drop the previous trigger first.
	s.removeLocked(name)
	d := &scheduleDef{name: name, spec: spec, timeout: timeout, job: job, sched: sched}
	s.defs[name] = d
	s.registerLocked(d)
	return nil
}

// AddDaily registers (or replaces) a trigger firing every day at hour:minute
// in loc (nil means the service default). Each firing enqueues one task whose
// Due is the slot it belongs to.
func (s *Service) AddDaily(name string, hour, minute int, loc *time.Location, opt DailyOptions, job DailyJob) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("%w: %d:%d", ErrInvalidClock, hour, minute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{
		name:    name,
		timeout: opt.Timeout,
		daily:   &dailyDef{hour: hour, minute: minute, loc: loc, job: job, catchUp: opt.CatchUp},
	}
	if err := s.bindDailyLocked(d); err != nil {
		return err
	}
	s.defs[name] = d
	s.registerLocked(d)
	return nil
}

// bindDailyLocked resolves the zone and builds the cron schedule for d.
func (s *Service) bindDailyLocked(d *scheduleDef) error {
	loc := d.daily.loc
	if loc == nil {
		loc = s.loc
	}
	parsed, err := s.parser.Parse(fmt.Sprintf("%d %d * * *", d.daily.minute, d.daily.hour))
	if err != nil {
		return err
	}
	spec, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		return fmt.Errorf("unexpected schedule type %T", parsed)
	}
	spec.Location = loc
	d.sched = spec
	d.spec = fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc, d.daily.minute, d.daily.hour)
	return nil
}

func (s *Service) dailyLocation(d *scheduleDef) *time.Location {
	if spec, ok := d.sched.(*cron.SpecSchedule); ok && spec.Location != nil {
		return spec.Location
	}
	return s.loc
}

// Remove unregisters the trigger. It reports whether one existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[name]
	return ok
}

// Next returns the next fire time of the named trigger.
func (s *Service) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	d, ok := s.defs[name]
	now := s.now()
	s.mu.Unlock()
	if !ok || d.sched == nil {
		return time.Time{}, false
	}
	return d.sched.Next(now), true
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: s.loc.String()}
	now := s.now()
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Timezone: s.loc.String()}
		if d.daily != nil {
			it.Timezone = s.dailyLocation(d).String()
		}
		if d.sched != nil {
			it.Next = d.sched.Next(now)
		}
		if s.c != nil && d.entryID != 0 {
			it.Prev = s.c.Entry(d.entryID).Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	return snap
}

// removeLocked drops the definition and its cron entry. Call with s.mu held.
func (s *Service) removeLocked(name string) bool {
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	d.entryID = 0
	delete(s.defs, name)
	return true
}

// registerLocked adds d to the running cron (no-op when stopped). Call with s.mu held.
func (s *Service) registerLocked(d *scheduleDef) {
	if s.c == nil {
		return
	}
	if d.daily != nil {
		if d.daily.loc == nil {
			// Rebind so a default-zone change is picked up.
			_ = s.bindDailyLocked(d)
		}
		// The zone is captured here: cron jobs must not take s.mu, since
		// restartLocked waits for running jobs while holding it.
		loc := s.dailyLocation(d)
		d.entryID = s.c.Schedule(d.sched, cron.FuncJob(func() { s.fireDaily(d, loc) }))
		if d.daily.catchUp {
			d.daily.catchUp = false
			s.catchUpLocked(d)
		}
	} else {
		d.entryID = s.c.Schedule(d.sched, cron.FuncJob(func() {
			if err := s.exec.Enqueue(engine.Task{Name: d.name, Timeout: d.timeout, SkipIfRunning: true, Run: d.job}); err != nil {
				s.reportEnqueueError(d.name, err)
			}
		}))
	}
	s.log.Debug("schedule registered", logx.String("name", d.name), logx.String("spec", d.spec), logx.Time("next", d.sched.Next(s.now())))
}

// catchUpLocked enqueues a run for the latest slot if it is recent enough.
func (s *Service) catchUpLocked(d *scheduleDef) {
	window := s.cfg.CatchUpWindow
	if window <= 0 {
		return
	}
	now := s.now()
	slot := LatestSlot(now, d.daily.hour, d.daily.minute, s.dailyLocation(d))
	if now.Sub(slot) > window {
		return
	}
	s.log.Info("catch-up run for recent slot", logx.String("name", d.name), logx.Time("due", slot))
	s.enqueueDaily(d, slot)
}

func (s *Service) fireDaily(d *scheduleDef, loc *time.Location) {
	s.enqueueDaily(d, LatestSlot(s.now(), d.daily.hour, d.daily.minute, loc))
}

func (s *Service) enqueueDaily(d *scheduleDef, due time.Time) {
	job := d.daily.job
	err := s.exec.Enqueue(engine.Task{
		Name:          d.name,
		Due:           due,
		Timeout:       d.timeout,
		SkipIfRunning: true,
		Run:           func(ctx context.Context) error { return job(ctx, due) },
	})
	if err != nil {
		s.reportEnqueueError(d.name, err)
	}
}
