package config

import (
	"bytes"
	"encoding/json"
	"io"
)

// Config is the process configuration. Schedule times are NOT here: they
// live in the schedule document in the document store, where the
// scheduler loads and persists them per tick.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Tracker   TrackerConfig   `json:"tracker"`
	Keepalive KeepaliveConfig `json:"keepalive,omitempty"`
}

type TelegramConfig struct {
	// Token may be empty here and provided via the TELEGRAM_TOKEN env var.
	Token        string  `json:"token,omitempty"`
	ChatID       int64   `json:"chat_id"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string      `json:"poll_timeout,omitempty"`
	RatePerSec  int         `json:"rate_per_sec,omitempty"`
	Emojis      EmojiConfig `json:"emojis,omitempty"`
}

// EmojiConfig sets the acknowledgement reactions for score submissions.
type EmojiConfig struct {
	Recorded string `json:"recorded,omitempty"`
	TooHigh  string `json:"too_high,omitempty"`
	Rescan   string `json:"rescan,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects and configures the document store backend.
//
// Driver values: "memory", "github", "sqlite", "mongo".
// Secrets (github token, mongo URI) may come from env instead:
// GITHUB_TOKEN, MONGO_URI.
type StoreConfig struct {
	Driver string `json:"driver"`

	Repo  string `json:"repo,omitempty"`
	Token string `json:"token,omitempty"`

	Path string `json:"path,omitempty"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`

	URI        string `json:"uri,omitempty"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`

	// Timeout bounds each store call (Go duration string, default "20s").
	Timeout string `json:"timeout,omitempty"`

	ScoresPath   string `json:"scores_path,omitempty"`
	UsersPath    string `json:"users_path,omitempty"`
	SchedulePath string `json:"schedule_path,omitempty"`
}

type TrackerConfig struct {
	// Timezone is the one fixed IANA zone every day key and job time is
	// resolved in. Never the host zone.
	Timezone          string `json:"timezone"`
	MaxScore          int    `json:"max_score,omitempty"`
	RetentionDays     int    `json:"retention_days,omitempty"`
	URL               string `json:"url,omitempty"`
	RivalryGap        int    `json:"rivalry_gap,omitempty"`
	RivalryMinPlayers int    `json:"rivalry_min_players,omitempty"`
}

type KeepaliveConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// decodeStrict rejects unknown fields and trailing tokens so typos in a
// hand-edited config are caught at load time, not silently ignored.
func decodeStrict(jb []byte, out *Config) error {
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errTrailingData
		}
		return err
	}
	return nil
}
