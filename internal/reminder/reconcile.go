package reminder

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"vocabot/internal/task/scheduler"
	logx "vocabot/pkg/logx"
)

// Plan computes what Reconcile would do without touching the registry.
func (m *Manager) Plan(ctx context.Context) (Plan, error) {
	users, err := m.store.EnabledReminderUsers(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("list enabled reminder users: %w", err)
	}
	cfg := m.config()

	var p Plan
	want := make(map[int64]struct{}, len(users))
	for _, u := range users {
		// Enabled users are kept even when skipped: an existing job stays
		// as it is, the same as on the event path.
		want[u.UserID] = struct{}{}
		hour, minute, err := scheduler.ParseClock(u.ReminderTime)
		if err != nil {
			p.Skip = append(p.Skip, Skipped{UserID: u.UserID, ReminderTime: u.ReminderTime, Err: err})
			continue
		}
		p.Install = append(p.Install, JobHandle{
			UserID:   u.UserID,
			Hour:     hour,
			Minute:   minute,
			Timezone: cfg.Location.String(),
			JobID:    JobID(u.UserID),
		})
	}
	for _, h := range m.Jobs() {
		if _, ok := want[h.UserID]; !ok {
			p.Remove = append(p.Remove, h.UserID)
		}
	}
	return p, nil
}

// Reconcile installs a job for every enabled user and removes jobs of users
// that are no longer enabled. Installs run with catch-up so a slot missed
// within the misfire grace still fires once. A failing user is logged and
// skipped.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileReport, error) {
	p, err := m.Plan(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	cfg := m.config()

	var (
		mu  sync.Mutex
		rep ReconcileReport
	)
	for _, s := range p.Skip {
		rep.Skipped++
		m.met.Reconciled("skipped")
		m.log.Warn("reconcile: skipping user with malformed reminder time",
			logx.Int64("user_id", s.UserID),
			logx.String("reminder_time", s.ReminderTime),
			logx.Err(s.Err),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.ReconcileWorkers)
	for _, h := range p.Install {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := m.withUser(h.UserID, func() error {
				return m.installLocked(h.UserID, h.Clock(), true)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Skipped++
				m.met.Reconciled("skipped")
				m.log.Warn("reconcile: install failed", logx.Int64("user_id", h.UserID), logx.Err(err))
				return nil
			}
			rep.Installed++
			m.met.Reconciled("installed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	for _, id := range p.Remove {
		removed := false
		_ = m.withUser(id, func() error {
			removed = m.removeLocked(id)
			return nil
		})
		if removed {
			rep.Removed++
			m.met.Reconciled("removed")
		}
	}

	m.log.Info("reconcile finished",
		logx.Int("installed", rep.Installed),
		logx.Int("removed", rep.Removed),
		logx.Int("skipped", rep.Skipped),
	)
	return rep, nil
}
