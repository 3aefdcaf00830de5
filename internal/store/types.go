package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means nothing is stored at the given path.
	ErrNotFound = errors.New("document not found")
	// ErrConflict means the conditional write lost a compare-and-swap race.
	ErrConflict = errors.New("document version conflict")
)

// Version is an opaque snapshot token. The empty value means "absent":
// on load, the document did not exist; on save, the write is a create.
type Version string

// Config configures the document store.
//
// Driver values:
//   - "memory": in-process backend (tests, dry runs)
//   - "github": GitHub contents API (blob sha as version token)
//   - "sqlite": local SQLite file (version counter column)
//   - "mongo":  MongoDB collection (version field)
type Config struct {
	Driver string

	// github
	Repo    string // "owner/repo"
	Token   string
	BaseURL string // override for tests; default https://api.github.com

	// sqlite
	Path        string
	BusyTimeout time.Duration // 0 means default

	// mongo
	URI        string
	Database   string
	Collection string

	// Timeout bounds every store call. 0 means 20s.
	Timeout time.Duration
}

const defaultTimeout = 20 * time.Second

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// Store is the minimal persistence API used by the ledger and scheduler.
type Store interface {
	// Load returns the raw document at path and its current version token.
	// Returns ErrNotFound when nothing exists there yet.
	Load(ctx context.Context, path string) ([]byte, Version, error)

	// Save writes the whole document. With a non-empty version the write is
	// accepted only if the stored snapshot still carries that token, and
	// fails with ErrConflict otherwise. With an empty version the write is
	// a create and fails with ErrConflict if the document already exists.
	// The note is a human-readable reason kept by backends that support it.
	Save(ctx context.Context, path string, data []byte, ver Version, note string) (Version, error)

	Close() error
}
