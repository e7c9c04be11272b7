package engine

import "time"

// WithinGrace reports whether a run for slot due may still start at now.
// Early starts always qualify. A grace <= 0 admits any lateness.
//
// With due 09:00 and a 5m grace, 09:04 runs and 09:10 does not.
func WithinGrace(due, now time.Time, grace time.Duration) bool {
	if grace <= 0 || due.IsZero() {
		return true
	}
	return now.Sub(due) <= grace
}
