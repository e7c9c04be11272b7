package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// SpecKind describes the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
	SpecDaily
)

// ParsedSpec is a schedule string normalized to a cron expression that
// AddCron accepts.
//
// Supported forms:
//   - Cron: "17 3 * * *", "@daily", "@every 6h"
//   - Interval duration: "12h", "90m" (becomes "@every 12h0m0s")
//   - Daily clock: "03:17" (becomes "17 3 * * *")
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

// ParseSchedule parses a schedule string. Cron syntax itself is checked by
// AddCron.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			return parseInterval(strings.TrimSpace(s[len(p):]))
		}
	}

	// Any whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	if strings.Contains(s, ":") {
		hour, minute, err := ParseClock(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecDaily, Cron: fmt.Sprintf("%d %d * * *", minute, hour)}, nil
	}
	if _, err := time.ParseDuration(s); err == nil {
		return parseInterval(s)
	}

	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '17 3 * * *', a daily time like '03:17', or a duration like '12h')",
		raw,
	)
}

func parseInterval(v string) (ParsedSpec, error) {
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid interval %q (use a Go duration like '12h')", v)
	}
	if d < time.Minute {
		return ParsedSpec{}, fmt.Errorf("interval must be >= 1m")
	}
	return ParsedSpec{Kind: SpecInterval, Cron: "@every " + d.String(), Every: d}, nil
}
