package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewJSONRecordsFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewJSON(&buf, "info").With(String("comp", "reminder"))
	log.Debug("dropped below level")
	log.Warn("send failed", Int64("user_id", 7), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if rec["level"] != "warn" || rec["message"] != "send failed" || rec["comp"] != "reminder" {
		t.Fatalf("record = %v", rec)
	}
	if rec["user_id"] != float64(7) || !strings.Contains(lines[0], `"boom"`) {
		t.Fatalf("record = %v", rec)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() || Nop().IsZero() {
		t.Fatal("IsZero mismatch")
	}
	l.With(String("k", "v")).Info("ignored")
}
