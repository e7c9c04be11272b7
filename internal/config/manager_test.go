package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "telegram": {"token": "x", "poll_timeout": "10s"},
  "logging": {"level": "debug", "console": true},
  "storage": {"driver": "sqlite", "path": "./vocabot.db"},
  "scheduler": {"enabled": true, "timezone": "UTC"},
  "reminder": {"hard_ceiling": 20, "misfire_grace": "5m"},
  "notifier": {"rate_per_sec": 10}
}`

func TestDecodeJSONAndYAML(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("config.json", []byte(validJSON))
	if err != nil {
		t.Fatalf("Decode(json) error: %v", err)
	}
	if cfg.Reminder.MisfireGrace != "5m" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("Decode(json) = %+v", cfg)
	}

	yml := `
telegram:
  token: x
storage:
  driver: memory
reminder:
  hard_ceiling: 15
`
	cfg, err = Decode("config.yaml", []byte(yml))
	if err != nil {
		t.Fatalf("Decode(yaml) error: %v", err)
	}
	if cfg.Reminder.HardCeiling != 15 || cfg.Storage.Driver != "memory" {
		t.Fatalf("Decode(yaml) = %+v", cfg)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		path string
		body string
	}{
		{"unknown json key", "c.json", `{"reminder": {"hard_cieling": 3}}`},
		{"unknown yaml key", "c.yml", "plugins:\n  echo: {}\n"},
		{"trailing data", "c.json", `{} {}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.path, []byte(tc.body)); err == nil {
				t.Fatalf("Decode(%s) error = nil, want error", tc.body)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		cfg, err := Decode("c.json", []byte(validJSON))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		return cfg
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("Validate(valid) = %v, want nil", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "bolt" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad tz", func(c *Config) { c.Reminder.Timezone = "Mars/Olympus" }, "reminder.timezone"},
		{"bad grace", func(c *Config) { c.Reminder.MisfireGrace = "five" }, "reminder.misfire_grace"},
		{"negative ceiling", func(c *Config) { c.Reminder.HardCeiling = -1 }, "hard_ceiling"},
		{"public http without token", func(c *Config) {
			c.HTTP.Enabled = true
			c.HTTP.Addr = "0.0.0.0:9090"
		}, "http.addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("ParseDurationField(\"\") = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("ParseDurationField(-1s) error = nil")
	}
	if d, _ := ParseDurationOrDefault("x", "0s", time.Minute); d != time.Minute {
		t.Fatalf("ParseDurationOrDefault(0s) = %v, want 1m", d)
	}
}

func TestWatchPublishesValidReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(validJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	// An invalid config is rejected and never published.
	bad := strings.Replace(validJSON, `"hard_ceiling": 20`, `"hard_ceiling": -5`, 1)
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg.Reminder)
	case <-time.After(300 * time.Millisecond):
	}

	good := strings.Replace(validJSON, `"hard_ceiling": 20`, `"hard_ceiling": 12`, 1)
	if err := os.WriteFile(path, []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		if cfg.Reminder.HardCeiling != 12 {
			t.Fatalf("published hard_ceiling = %d, want 12", cfg.Reminder.HardCeiling)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
	if got := m.Get().Reminder.HardCeiling; got != 12 {
		t.Fatalf("Get().Reminder.HardCeiling = %d, want 12", got)
	}

	cancel()
	<-done
}
