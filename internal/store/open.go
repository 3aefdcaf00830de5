package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	logx "maptap/pkg/logx"
)

// Open initializes the configured store backend.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "github":
		return openGitHub(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "mongo", "mongodb":
		return openMongo(ctx, cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}

// LoadJSON loads and decodes the document at path into out.
// When the document is absent it leaves out untouched and reports found=false,
// so callers keep whatever default they seeded out with.
func LoadJSON(ctx context.Context, s Store, path string, out any) (Version, bool, error) {
	data, ver, err := s.Load(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(data) == 0 {
		return ver, false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return "", false, fmt.Errorf("decode %s: %w", path, err)
	}
	return ver, true, nil
}

// SaveJSON encodes v and writes it as the whole document at path.
func SaveJSON(ctx context.Context, s Store, path string, v any, ver Version, note string) (Version, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	return s.Save(ctx, path, data, ver, note)
}
