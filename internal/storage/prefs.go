package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Keys of the learning_preferences document.
const (
	prefReminderEnabled = "review_reminder_enabled"
	prefReminderTime    = "review_reminder_time"
	prefDailyTarget     = "daily_review_target"
)

type learningPrefs struct {
	ReminderEnabled *bool   `json:"review_reminder_enabled"`
	ReminderTime    *string `json:"review_reminder_time"`
	DailyTarget     *int    `json:"daily_review_target"`
}

// decodePrefs maps a learning_preferences document onto Settings. Missing
// keys take their defaults; an empty document is valid.
func decodePrefs(userID int64, raw string) (Settings, error) {
	s := DefaultSettings(userID)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s, nil
	}
	var p learningPrefs
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return s, fmt.Errorf("%w: user %d: %v", ErrMalformed, userID, err)
	}
	if p.ReminderEnabled != nil {
		s.ReminderEnabled = *p.ReminderEnabled
	}
	if p.ReminderTime != nil && strings.TrimSpace(*p.ReminderTime) != "" {
		s.ReminderTime = strings.TrimSpace(*p.ReminderTime)
	}
	if p.DailyTarget != nil {
		s.DailyTarget = *p.DailyTarget
	}
	return s, nil
}

// mergePrefs writes the reminder fields of s into an existing document,
// keeping keys owned by other features. A malformed document is replaced.
func mergePrefs(raw string, s Settings) (string, error) {
	doc := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc == nil {
			doc = map[string]any{}
		}
	}
	doc[prefReminderEnabled] = s.ReminderEnabled
	doc[prefReminderTime] = s.ReminderTime
	doc[prefDailyTarget] = s.DailyTarget
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
