package config

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	logx "vocabot/pkg/logx"
)

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	prev := &Config{
		Telegram: TelegramConfig{Token: "111:old-secret", PollTimeout: "10s"},
		Storage:  StorageConfig{Driver: "sqlite", Path: "./a.db"},
		Reminder: ReminderConfig{HardCeiling: 20},
		HTTP:     HTTPConfig{Enabled: true, Token: "http-secret"},
	}
	next := *prev
	next.Telegram.Token = "222:new-secret"
	next.Storage.Path = "./b.db"
	next.Reminder.HardCeiling = 15
	next.HTTP.Token = "other-http-secret"

	changed, attrs, restart := SummarizeConfigChange(prev, &next)
	if want := []string{"http", "reminder", "storage", "telegram"}; !slices.Equal(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if want := []string{"storage", "telegram"}; !slices.Equal(restart, want) {
		t.Fatalf("restart = %v, want %v", restart, want)
	}

	var buf bytes.Buffer
	logx.NewJSON(&buf, "info").Info("config applied", attrs...)
	out := buf.String()
	for _, secret := range []string{"secret", "./b.db"} {
		if strings.Contains(out, secret) {
			t.Fatalf("summary leaks %q: %s", secret, out)
		}
	}
	for _, want := range []string{`"telegram.token_changed":true`, `"reminder.hard_ceiling":15`, `"http.token_set":true`} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %s: %s", want, out)
		}
	}
}

func TestSummarizeConfigChangeNoop(t *testing.T) {
	t.Parallel()

	on := true
	a := &Config{TaskEngine: TaskEngineConfig{Enabled: &on, Workers: 2}}
	b := &Config{TaskEngine: TaskEngineConfig{Enabled: new(bool), Workers: 2}}
	*b.TaskEngine.Enabled = true

	changed, attrs, restart := SummarizeConfigChange(a, b)
	if len(changed) != 0 || len(attrs) != 0 || len(restart) != 0 {
		t.Fatalf("changed = %v restart = %v attrs = %d", changed, restart, len(attrs))
	}
	if changed, _, _ := SummarizeConfigChange(nil, b); !slices.Equal(changed, []string{"task_engine"}) {
		t.Fatalf("from nil = %v", changed)
	}
}
