// Package settings is the write side of user reminder preferences. Every
// change is validated, persisted and then announced on the event bus.
package settings

import (
	"context"
	"errors"
	"fmt"

	"vocabot/internal/eventbus"
	"vocabot/internal/storage"
	"vocabot/internal/task/scheduler"
	logx "vocabot/pkg/logx"
)

var (
	ErrInvalidTime   = errors.New("invalid reminder time, want HH:MM")
	ErrInvalidTarget = errors.New("invalid daily target")
)

// MaxDailyTarget bounds what a user may ask for.
const MaxDailyTarget = 200

// Store is the storage subset the settings layer needs.
type Store interface {
	GetSettings(ctx context.Context, userID int64) (storage.Settings, bool, error)
	PutSettings(ctx context.Context, s storage.Settings) error
	DeleteUser(ctx context.Context, userID int64) error
}

// Publisher is the event bus side used here. *eventbus.Bus implements it.
type Publisher interface {
	PublishSettingsUpdated(userID int64, payload map[string]any) string
	PublishReminderChanged(userID int64, enabled bool, at string) string
	PublishUserDeleted(userID int64) string
}

var _ Publisher = (*eventbus.Bus)(nil)

type Service struct {
	store Store
	bus   Publisher
	log   logx.Logger
}

func New(store Store, bus Publisher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, bus: bus, log: log.With(logx.String("comp", "settings"))}
}

// Get returns the user's settings, defaults included.
func (s *Service) Get(ctx context.Context, userID int64) (storage.Settings, error) {
	st, _, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return storage.Settings{}, err
	}
	st.UserID = userID
	return st, nil
}

// SetReminder switches the reminder on or off. An empty at keeps the stored
// time.
func (s *Service) SetReminder(ctx context.Context, userID int64, enabled bool, at string) (storage.Settings, error) {
	if at != "" {
		h, m, err := scheduler.ParseClock(at)
		if err != nil {
			return storage.Settings{}, fmt.Errorf("%w: %q", ErrInvalidTime, at)
		}
		at = scheduler.FormatClock(h, m)
	}
	st, err := s.Get(ctx, userID)
	if err != nil {
		return storage.Settings{}, err
	}
	if _, _, err := scheduler.ParseClock(st.ReminderTime); err != nil {
		// Repair a stored time that no longer parses.
		st.ReminderTime = storage.DefaultReminderTime
	}
	st.ReminderEnabled = enabled
	if at != "" {
		st.ReminderTime = at
	}
	if err := s.store.PutSettings(ctx, st); err != nil {
		return storage.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.bus.PublishReminderChanged(userID, st.ReminderEnabled, st.ReminderTime)
	s.log.Info("reminder settings changed",
		logx.Int64("user_id", userID),
		logx.Bool("enabled", st.ReminderEnabled),
		logx.String("at", st.ReminderTime),
	)
	return st, nil
}

// SetTime changes the reminder time and leaves the switch as is.
func (s *Service) SetTime(ctx context.Context, userID int64, at string) (storage.Settings, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return storage.Settings{}, err
	}
	return s.SetReminder(ctx, userID, st.ReminderEnabled, at)
}

// SetDailyTarget stores a new daily review target. Reminders are not
// rescheduled by it, so the general event is published.
func (s *Service) SetDailyTarget(ctx context.Context, userID int64, target int) (storage.Settings, error) {
	if target < 1 || target > MaxDailyTarget {
		return storage.Settings{}, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidTarget, target, MaxDailyTarget)
	}
	st, err := s.Get(ctx, userID)
	if err != nil {
		return storage.Settings{}, err
	}
	st.DailyTarget = target
	if err := s.store.PutSettings(ctx, st); err != nil {
		return storage.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.bus.PublishSettingsUpdated(userID, map[string]any{"daily_review_target": target})
	return st, nil
}

// DeleteUser removes everything stored for the user.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.bus.PublishUserDeleted(userID)
	s.log.Info("user deleted", logx.Int64("user_id", userID))
	return nil
}
