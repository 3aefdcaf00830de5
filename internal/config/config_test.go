package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "bot.yaml", `
telegram:
  token: "t-123"
  chat_id: -100200300
store:
  driver: memory
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "t-123" || cfg.Telegram.ChatID != -100200300 {
		t.Fatalf("telegram fields not decoded: %+v", cfg.Telegram)
	}
	if cfg.Tracker.Timezone != "Europe/London" {
		t.Fatalf("timezone default not applied: %q", cfg.Tracker.Timezone)
	}
	if cfg.Tracker.MaxScore != 1000 || cfg.Tracker.RetentionDays != 69 {
		t.Fatalf("tracker defaults not applied: %+v", cfg.Tracker)
	}
	if cfg.Tracker.RivalryGap != 25 || cfg.Tracker.RivalryMinPlayers != 5 {
		t.Fatalf("rivalry defaults not applied: %+v", cfg.Tracker)
	}
	if cfg.Store.ScoresPath != "data/maptap_scores.json" {
		t.Fatalf("scores path default not applied: %q", cfg.Store.ScoresPath)
	}
	if cfg.Telegram.Emojis.Recorded == "" {
		t.Fatalf("emoji default not applied")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "bot.yaml", `
telegram:
  chat_id: 1
  chatid_typo: 2
store:
  driver: memory
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown field error, got nil")
	}
}

func TestLoadRejectsTrailingJSON(t *testing.T) {
	path := writeConfig(t, "bot.json", `{"store":{"driver":"memory"}}{"extra":true}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected trailing data error, got nil")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad timezone", func(c *Config) { c.Tracker.Timezone = "Mars/Olympus" }},
		{"zero max score", func(c *Config) { c.Tracker.MaxScore = -1 }},
		{"bad driver", func(c *Config) { c.Store.Driver = "flatfile" }},
		{"bad poll timeout", func(c *Config) { c.Telegram.PollTimeout = "soon" }},
		{"rivalry solo", func(c *Config) { c.Tracker.RivalryMinPlayers = 1 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := Validate(&cfg); err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestEnvSecrets(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("GITHUB_TOKEN", "env-gh")
	cfg := Config{}
	ApplyDefaults(&cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("telegram token not read from env: %q", cfg.Telegram.Token)
	}
	if cfg.Store.Token != "env-gh" {
		t.Fatalf("store token not read from env: %q", cfg.Store.Token)
	}
}

func TestDurationHelper(t *testing.T) {
	if got := Duration("45s", 0); got.Seconds() != 45 {
		t.Fatalf("Duration(45s) = %v", got)
	}
	if got := Duration("", 7); got != 7 {
		t.Fatalf("Duration empty should fall back, got %v", got)
	}
}
