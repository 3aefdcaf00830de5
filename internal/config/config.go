// Package config loads and validates the process configuration.
//
// Files may be YAML or JSON; both pass through the same strict decoder.
// Missing fields are filled from a typed default struct, out-of-range
// values are rejected with a descriptive reason, never coerced.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var errTrailingData = errors.New("invalid config: trailing data")

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{
			PollTimeout: "10s",
			RatePerSec:  1,
			Emojis:      EmojiConfig{Recorded: "🌏", TooHigh: "❌", Rescan: "🔁"},
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		Store: StoreConfig{
			Driver:       "github",
			Timeout:      "20s",
			ScoresPath:   "data/maptap_scores.json",
			UsersPath:    "data/maptap_users.json",
			SchedulePath: "data/maptap_settings.json",
		},
		Tracker: TrackerConfig{
			Timezone:          "Europe/London",
			MaxScore:          1000,
			RetentionDays:     69,
			URL:               "https://www.maptap.gg",
			RivalryGap:        25,
			RivalryMinPlayers: 5,
		},
		Keepalive: KeepaliveConfig{Addr: ":10000"},
	}
}

// Load reads, decodes, defaults and validates the config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}
	cfg := Config{}
	if err := decodeStrict(jb, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills empty fields from Default(). Explicit values,
// valid or not, are left for Validate to judge.
func ApplyDefaults(cfg *Config) {
	def := Default()

	if cfg.Telegram.PollTimeout == "" {
		cfg.Telegram.PollTimeout = def.Telegram.PollTimeout
	}
	if cfg.Telegram.RatePerSec == 0 {
		cfg.Telegram.RatePerSec = def.Telegram.RatePerSec
	}
	if cfg.Telegram.Emojis.Recorded == "" {
		cfg.Telegram.Emojis.Recorded = def.Telegram.Emojis.Recorded
	}
	if cfg.Telegram.Emojis.TooHigh == "" {
		cfg.Telegram.Emojis.TooHigh = def.Telegram.Emojis.TooHigh
	}
	if cfg.Telegram.Emojis.Rescan == "" {
		cfg.Telegram.Emojis.Rescan = def.Telegram.Emojis.Rescan
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
	if cfg.Store.Timeout == "" {
		cfg.Store.Timeout = def.Store.Timeout
	}
	if cfg.Store.ScoresPath == "" {
		cfg.Store.ScoresPath = def.Store.ScoresPath
	}
	if cfg.Store.UsersPath == "" {
		cfg.Store.UsersPath = def.Store.UsersPath
	}
	if cfg.Store.SchedulePath == "" {
		cfg.Store.SchedulePath = def.Store.SchedulePath
	}

	if cfg.Tracker.Timezone == "" {
		cfg.Tracker.Timezone = def.Tracker.Timezone
	}
	if cfg.Tracker.MaxScore == 0 {
		cfg.Tracker.MaxScore = def.Tracker.MaxScore
	}
	if cfg.Tracker.RetentionDays == 0 {
		cfg.Tracker.RetentionDays = def.Tracker.RetentionDays
	}
	if cfg.Tracker.URL == "" {
		cfg.Tracker.URL = def.Tracker.URL
	}
	if cfg.Tracker.RivalryGap == 0 {
		cfg.Tracker.RivalryGap = def.Tracker.RivalryGap
	}
	if cfg.Tracker.RivalryMinPlayers == 0 {
		cfg.Tracker.RivalryMinPlayers = def.Tracker.RivalryMinPlayers
	}

	if cfg.Keepalive.Addr == "" {
		cfg.Keepalive.Addr = def.Keepalive.Addr
	}

	// Secrets can come from the environment instead of the file.
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	}
	if cfg.Store.Token == "" {
		cfg.Store.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Store.Repo == "" {
		cfg.Store.Repo = os.Getenv("GITHUB_REPO")
	}
	if cfg.Store.URI == "" {
		cfg.Store.URI = os.Getenv("MONGO_URI")
	}
}

// Validate rejects out-of-range values.
func Validate(cfg *Config) error {
	if _, err := time.LoadLocation(cfg.Tracker.Timezone); err != nil {
		return fmt.Errorf("tracker.timezone: %w", err)
	}
	if cfg.Tracker.MaxScore < 1 {
		return fmt.Errorf("tracker.max_score must be >= 1, got %d", cfg.Tracker.MaxScore)
	}
	if cfg.Tracker.RetentionDays < 1 {
		return fmt.Errorf("tracker.retention_days must be >= 1, got %d", cfg.Tracker.RetentionDays)
	}
	if cfg.Tracker.RivalryGap < 1 {
		return fmt.Errorf("tracker.rivalry_gap must be >= 1, got %d", cfg.Tracker.RivalryGap)
	}
	if cfg.Tracker.RivalryMinPlayers < 2 {
		return fmt.Errorf("tracker.rivalry_min_players must be >= 2, got %d", cfg.Tracker.RivalryMinPlayers)
	}
	for _, d := range []struct {
		name, val string
	}{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"store.timeout", cfg.Store.Timeout},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	if cfg.Store.BusyTimeout != "" {
		if _, err := time.ParseDuration(cfg.Store.BusyTimeout); err != nil {
			return fmt.Errorf("store.busy_timeout: %w", err)
		}
	}
	switch strings.ToLower(cfg.Store.Driver) {
	case "memory", "github", "sqlite", "sqlite3", "mongo", "mongodb":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", cfg.Store.Driver)
	}
	return nil
}

// Duration parses a Go duration string that Validate already accepted.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
