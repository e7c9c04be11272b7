package reminder

import (
	"context"
	"fmt"
	"time"

	"vocabot/internal/storage"
	logx "vocabot/pkg/logx"
)

// Fire runs one trigger firing for userID. due is the scheduled slot; the
// reminder day is due's date in the reminder timezone.
//
// A send failure is logged and counted, never retried: the next day's
// trigger is the retry.
func (m *Manager) Fire(ctx context.Context, userID int64, due time.Time) error {
	cfg := m.config()
	if due.IsZero() {
		due = m.now()
	}
	day := due.In(cfg.Location)
	log := m.log.With(logx.Int64("user_id", userID), logx.String("day", day.Format(storage.DateLayout)))

	st, ok, err := m.store.GetSettings(ctx, userID)
	if err != nil {
		m.met.Reminder("error")
		return fmt.Errorf("get settings for user %d: %w", userID, err)
	}
	if !ok || !st.ReminderEnabled {
		// Disabled after the trigger was scheduled.
		m.met.Reminder("disabled")
		log.Debug("reminder fired for disabled user")
		return nil
	}

	claimed, err := m.store.MarkReminded(ctx, userID, day)
	if err != nil {
		m.met.Reminder("error")
		return fmt.Errorf("claim reminder day for user %d: %w", userID, err)
	}
	if !claimed {
		m.met.Reminder("duplicate")
		log.Debug("reminder already sent today")
		return nil
	}

	text, n, err := m.compose(ctx, st, day)
	if err != nil {
		m.met.Reminder("error")
		return err
	}
	if err := m.send.SendMessage(ctx, userID, text); err != nil {
		m.met.Reminder("send_failed")
		log.Warn("reminder send failed", logx.Err(err))
		return nil
	}
	if n == 0 {
		m.met.Reminder("encouraged")
	} else {
		m.met.Reminder("sent")
	}
	log.Info("reminder sent", logx.Int("words", n))
	return nil
}

// SendTest sends the message the user would get right now. It ignores the
// reminder switch and the day marker.
func (m *Manager) SendTest(ctx context.Context, userID int64) error {
	cfg := m.config()
	st, _, err := m.store.GetSettings(ctx, userID)
	if err != nil {
		return fmt.Errorf("get settings for user %d: %w", userID, err)
	}
	st.UserID = userID
	text, _, err := m.compose(ctx, st, m.now().In(cfg.Location))
	if err != nil {
		return err
	}
	return m.send.SendMessage(ctx, userID, text)
}

// compose returns the message text and the number of words it lists.
func (m *Manager) compose(ctx context.Context, st storage.Settings, today time.Time) (string, int, error) {
	cfg := m.config()
	items, err := m.store.DueItems(ctx, st.UserID, today)
	if err != nil {
		return "", 0, fmt.Errorf("due items for user %d: %w", st.UserID, err)
	}
	picked := SelectDue(items, today, st.DailyTarget, cfg.HardCeiling)
	if len(picked) == 0 {
		return Encouragement(m.intn), 0, nil
	}
	return ReminderText(picked, st.DailyTarget), len(picked), nil
}
