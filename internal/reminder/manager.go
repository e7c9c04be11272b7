package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"vocabot/internal/eventbus"
	"vocabot/internal/metrics"
	"vocabot/internal/task/scheduler"
	logx "vocabot/pkg/logx"
)

// Manager owns the in-memory job registry. Mutations for one user are
// serialized through that user's lane; different users proceed in parallel.
type Manager struct {
	mu   sync.Mutex
	cfg  Config
	jobs map[int64]JobHandle

	laneMu sync.Mutex
	lanes  map[int64]*lane

	store Store
	trig  Trigger
	send  Sender
	log   logx.Logger
	met   *metrics.Metrics
	now   func() time.Time
	intn  func(int) int
}

type lane struct {
	mu   sync.Mutex
	refs int
}

func New(cfg Config, d Deps) (*Manager, error) {
	if d.Store == nil || d.Trigger == nil || d.Sender == nil {
		return nil, errors.New("reminder: store, trigger and sender are required")
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		cfg:   withDefaults(cfg),
		jobs:  make(map[int64]JobHandle),
		lanes: make(map[int64]*lane),
		store: d.Store,
		trig:  d.Trigger,
		send:  d.Sender,
		log:   log.With(logx.String("comp", "reminder")),
		met:   d.Metrics,
		now:   d.Now,
		intn:  d.Intn,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.intn == nil {
		m.intn = defaultIntn
	}
	return m, nil
}

func (m *Manager) config() Config {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()
	return cfg
}

// Apply swaps the config. A timezone change reinstalls every job in the
// new zone.
func (m *Manager) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	m.mu.Lock()
	prev := m.cfg
	m.cfg = cfg
	m.mu.Unlock()

	if prev.Location.String() == cfg.Location.String() {
		return
	}
	for _, h := range m.Jobs() {
		err := m.withUser(h.UserID, func() error {
			if _, ok := m.Job(h.UserID); !ok {
				return nil
			}
			return m.installLocked(h.UserID, h.Clock(), false)
		})
		if err != nil {
			m.log.Warn("reinstall after timezone change failed", logx.Int64("user_id", h.UserID), logx.Err(err))
		}
	}
	m.log.Info("reminder timezone changed", logx.String("from", prev.Location.String()), logx.String("to", cfg.Location.String()))
}

// Subscribe registers the manager's handlers on bus. The returned func
// removes them.
func (m *Manager) Subscribe(bus *eventbus.Bus) (unsubscribe func()) {
	unsubs := []func(){
		bus.SubscribeFunc(eventbus.SettingsUpdated, m.OnSettingsUpdated),
		bus.SubscribeFunc(eventbus.ReminderSettingsChanged, m.OnReminderChanged),
		bus.SubscribeFunc(eventbus.UserDeleted, m.OnUserDeleted),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// OnSettingsUpdated re-derives the user's job from persisted settings.
func (m *Manager) OnSettingsUpdated(ctx context.Context, e eventbus.Event) error {
	return m.syncFromStore(ctx, e.UserID)
}

// OnReminderChanged acts on the payload without a storage read when it
// carries both fields. An omitted time falls back to the stored settings.
func (m *Manager) OnReminderChanged(ctx context.Context, e eventbus.Event) error {
	enabled, ok := e.ReminderEnabled()
	if !ok {
		m.log.Debug("reminder event without switch, re-reading settings", logx.Int64("user_id", e.UserID), logx.String("event_id", e.ID))
		return m.syncFromStore(ctx, e.UserID)
	}
	if !enabled {
		return m.withUser(e.UserID, func() error {
			m.removeLocked(e.UserID)
			return nil
		})
	}
	at, ok := e.ReminderTime()
	if !ok {
		return m.syncFromStore(ctx, e.UserID)
	}
	return m.withUser(e.UserID, func() error {
		return m.installLocked(e.UserID, at, false)
	})
}

func (m *Manager) OnUserDeleted(_ context.Context, e eventbus.Event) error {
	return m.withUser(e.UserID, func() error {
		m.removeLocked(e.UserID)
		return nil
	})
}

func (m *Manager) syncFromStore(ctx context.Context, userID int64) error {
	return m.withUser(userID, func() error {
		st, ok, err := m.store.GetSettings(ctx, userID)
		if err != nil {
			return fmt.Errorf("get settings for user %d: %w", userID, err)
		}
		if !ok || !st.ReminderEnabled {
			m.removeLocked(userID)
			return nil
		}
		return m.installLocked(userID, st.ReminderTime, false)
	})
}

// installLocked replaces the user's trigger. The caller holds the lane.
func (m *Manager) installLocked(userID int64, at string, catchUp bool) error {
	hour, minute, err := scheduler.ParseClock(at)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	cfg := m.config()
	jobID := JobID(userID)

	if _, ok := m.Job(userID); ok {
		m.trig.Remove(jobID)
	}
	opt := scheduler.DailyOptions{Timeout: cfg.FireTimeout, CatchUp: catchUp}
	job := func(ctx context.Context, due time.Time) error { return m.Fire(ctx, userID, due) }
	if err := m.trig.AddDaily(jobID, hour, minute, cfg.Location, opt, job); err != nil {
		m.deleteJob(userID)
		return fmt.Errorf("install %s: %w", jobID, err)
	}

	h := JobHandle{UserID: userID, Hour: hour, Minute: minute, Timezone: cfg.Location.String(), JobID: jobID}
	m.mu.Lock()
	m.jobs[userID] = h
	n := len(m.jobs)
	m.mu.Unlock()
	m.met.SetReminderJobs(n)

	m.log.Info("reminder installed",
		logx.Int64("user_id", userID),
		logx.String("at", h.Clock()),
		logx.String("tz", h.Timezone),
		logx.Bool("catch_up", catchUp),
	)
	return nil
}

// removeLocked cancels the user's trigger. No-op without a job.
func (m *Manager) removeLocked(userID int64) bool {
	if _, ok := m.Job(userID); !ok {
		return false
	}
	m.trig.Remove(JobID(userID))
	m.deleteJob(userID)
	m.log.Info("reminder removed", logx.Int64("user_id", userID))
	return true
}

func (m *Manager) deleteJob(userID int64) {
	m.mu.Lock()
	delete(m.jobs, userID)
	n := len(m.jobs)
	m.mu.Unlock()
	m.met.SetReminderJobs(n)
}

// withUser runs fn in the user's lane.
func (m *Manager) withUser(userID int64, fn func() error) error {
	m.laneMu.Lock()
	l := m.lanes[userID]
	if l == nil {
		l = &lane{}
		m.lanes[userID] = l
	}
	l.refs++
	m.laneMu.Unlock()

	l.mu.Lock()
	err := fn()
	l.mu.Unlock()

	m.laneMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.lanes, userID)
	}
	m.laneMu.Unlock()
	return err
}

func (m *Manager) HasJob(userID int64) bool {
	_, ok := m.Job(userID)
	return ok
}

func (m *Manager) Job(userID int64) (JobHandle, bool) {
	m.mu.Lock()
	h, ok := m.jobs[userID]
	m.mu.Unlock()
	return h, ok
}

// Jobs returns the registry sorted by user id.
func (m *Manager) Jobs() []JobHandle {
	m.mu.Lock()
	out := make([]JobHandle, 0, len(m.jobs))
	for _, h := range m.jobs {
		out = append(out, h)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (m *Manager) Status(userID int64) Status {
	st := Status{UserID: userID, SchedulerRunning: m.trig.Running()}
	h, ok := m.Job(userID)
	if !ok {
		return st
	}
	st.HasReminder = true
	st.JobID = h.JobID
	st.Clock = h.Clock()
	st.Timezone = h.Timezone
	if next, ok := m.trig.Next(h.JobID); ok {
		st.Next = next
	}
	return st
}
