package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "vocabot/pkg/logx"
)

// Store is the persistence API used by the reminder subsystem and the
// settings layer.
type Store interface {
	// GetSettings returns ok=false if the user never saved settings.
	GetSettings(ctx context.Context, userID int64) (s Settings, ok bool, err error)
	PutSettings(ctx context.Context, s Settings) error
	// EnabledReminderUsers lists users with the reminder switched on, by
	// user id. Rows whose preferences cannot be decoded are skipped.
	EnabledReminderUsers(ctx context.Context) ([]ReminderUser, error)
	DeleteUser(ctx context.Context, userID int64) error

	AddWord(ctx context.Context, it Item) (int64, error)
	// DueItems returns the user's items due on or before today, earliest
	// first, ties by insertion order.
	DueItems(ctx context.Context, userID int64, today time.Time) ([]Item, error)

	// MarkReminded claims day for userID. claimed=false means a reminder
	// was already sent for that day.
	MarkReminded(ctx context.Context, userID int64, day time.Time) (claimed bool, err error)
	// PruneReminded deletes markers for days before the given day.
	PruneReminded(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
