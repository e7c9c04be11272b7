package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("storage disabled")
	ErrMalformed = errors.New("malformed settings")
)

// DateLayout is the on-disk format of review and reminder days.
const DateLayout = "2006-01-02"

const (
	DefaultReminderTime = "09:00"
	DefaultDailyTarget  = 20
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (or empty): SQLite database file at Path
//   - "memory": process-local maps, lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Settings is the reminder-related part of a user's preferences.
type Settings struct {
	UserID          int64
	ReminderEnabled bool
	ReminderTime    string // "HH:MM"
	DailyTarget     int
	UpdatedAt       time.Time
}

// DefaultSettings returns the settings of a user who never configured any.
func DefaultSettings(userID int64) Settings {
	return Settings{
		UserID:       userID,
		ReminderTime: DefaultReminderTime,
		DailyTarget:  DefaultDailyTarget,
	}
}

// ReminderUser is one row of the startup reconciliation query.
// ReminderTime is returned as stored and may be malformed.
type ReminderUser struct {
	UserID       int64
	ReminderTime string
	DailyTarget  int
}

// Item is a vocabulary word scheduled for review.
type Item struct {
	ID         int64
	UserID     int64
	Word       string
	Meaning    string
	DueDate    time.Time // date only, midnight UTC
	Interval   int
	Difficulty int
}

// Day truncates t to its calendar date in t's own location and returns it
// as midnight UTC, the representation used for Item.DueDate.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
