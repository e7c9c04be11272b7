package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock is wrapped by every ParseClock failure.
var ErrInvalidClock = errors.New("invalid time of day")

// ParseClock parses "HH:MM" (24h). One-digit fields are accepted ("9:05").
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || !digits(hs) || !digits(ms) {
		return 0, 0, fmt.Errorf("%w: %q, expected HH:MM", ErrInvalidClock, s)
	}
	hour, _ = strconv.Atoi(hs)
	if hour > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in %q", ErrInvalidClock, s)
	}
	minute, _ = strconv.Atoi(ms)
	if minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in %q", ErrInvalidClock, s)
	}
	return hour, minute, nil
}

func digits(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatClock renders hour and minute as "HH:MM".
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// LatestSlot returns the most recent hour:minute in loc that is not after now.
func LatestSlot(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	slot := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if slot.After(now) {
		y, m, d := local.AddDate(0, 0, -1).Date()
		slot = time.Date(y, m, d, hour, minute, 0, 0, loc)
	}
	return slot
}
