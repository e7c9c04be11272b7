package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		kind     SpecKind
		cron     string
		wantFail bool
	}{
		{in: "17 3 * * *", kind: SpecCron, cron: "17 3 * * *"},
		{in: "@daily", kind: SpecCron, cron: "@daily"},
		{in: "cron:0 4 * * *", kind: SpecCron, cron: "0 4 * * *"},
		{in: "03:17", kind: SpecDaily, cron: "17 3 * * *"},
		{in: "12h", kind: SpecInterval, cron: "@every 12h0m0s"},
		{in: "every:90m", kind: SpecInterval, cron: "@every 1h30m0s"},
		{in: "interval:30s", wantFail: true},
		{in: "25:00", wantFail: true},
		{in: "cron:", wantFail: true},
		{in: "", wantFail: true},
		{in: "nightly", wantFail: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tc.in)
			if tc.wantFail {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) = %+v, want error", tc.in, got)
				}
				return
			}
			if err != nil || got.Kind != tc.kind || got.Cron != tc.cron {
				t.Fatalf("ParseSchedule(%q) = %+v, %v", tc.in, got, err)
			}
		})
	}
}

func TestParsedScheduleRegisters(t *testing.T) {
	t.Parallel()

	s, _ := newService(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 0)
	for _, raw := range []string{"03:17", "6h", "17 3 * * *"} {
		ps, err := ParseSchedule(raw)
		if err != nil {
			t.Fatalf("ParseSchedule(%q) = %v", raw, err)
		}
		if err := s.AddCron("housekeeping", ps.Cron, time.Minute, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("AddCron(%q) = %v", ps.Cron, err)
		}
		if _, ok := s.Next("housekeeping"); !ok {
			t.Fatalf("no next run for %q", raw)
		}
	}
}
