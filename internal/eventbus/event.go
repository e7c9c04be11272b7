package eventbus

import (
	"maps"
	"time"
)

// Kind names an event type. The set is closed; handlers subscribe per kind.
type Kind string

const (
	// SettingsUpdated says some settings of a user changed. The payload is
	// advisory; handlers re-read the persisted settings.
	SettingsUpdated Kind = "settings_updated"
	// ReminderSettingsChanged carries the new reminder state in its payload
	// (KeyReminderEnabled, optional KeyReminderTime).
	ReminderSettingsChanged Kind = "reminder_settings_changed"
	// UserDeleted says the user is gone and owns nothing anymore.
	UserDeleted Kind = "user_deleted"
)

const (
	KeyReminderEnabled = "reminder_enabled"
	KeyReminderTime    = "reminder_time"
)

func (k Kind) String() string { return string(k) }

// Event is an immutable notification. ID and Time are assigned by Publish.
type Event struct {
	ID      string
	Kind    Kind
	UserID  int64
	Payload map[string]any
	Time    time.Time
}

// ReminderEnabled reads KeyReminderEnabled. ok is false when absent or not a bool.
func (e Event) ReminderEnabled() (enabled, ok bool) {
	enabled, ok = e.Payload[KeyReminderEnabled].(bool)
	return enabled, ok
}

// ReminderTime reads KeyReminderTime. ok is false when absent, empty or not a string.
func (e Event) ReminderTime() (at string, ok bool) {
	at, ok = e.Payload[KeyReminderTime].(string)
	return at, ok && at != ""
}

// clone copies the payload map so no two holders share it.
func (e Event) clone() Event {
	if e.Payload != nil {
		e.Payload = maps.Clone(e.Payload)
	}
	return e
}
