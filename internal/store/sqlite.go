package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "maptap/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps documents in a local SQLite file. The version token is
// a monotonically increasing counter per path; conditional writes compare
// it in the UPDATE's WHERE clause.
type sqliteStore struct {
	db      *sql.DB
	log     logx.Logger
	timeout time.Duration
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, timeout: cfg.timeout()}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load(ctx context.Context, path string) ([]byte, Version, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var data []byte
	var ver int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, version FROM documents WHERE path = ?`, path,
	).Scan(&data, &ver)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("sqlite load %s: %w", path, err)
	}
	return data, Version(strconv.FormatInt(ver, 10)), nil
}

func (s *sqliteStore) Save(ctx context.Context, path string, data []byte, ver Version, note string) (Version, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	if ver == "" {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO documents(path, data, version, note, updated_at) VALUES(?,?,1,?,?)
			 ON CONFLICT(path) DO NOTHING`,
			path, data, note, now,
		)
		if err != nil {
			return "", fmt.Errorf("sqlite save %s: %w", path, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", ErrConflict
		}
		return Version("1"), nil
	}

	want, err := strconv.ParseInt(string(ver), 10, 64)
	if err != nil {
		return "", fmt.Errorf("sqlite save %s: bad version token %q", path, ver)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = ?, version = version + 1, note = ?, updated_at = ?
		 WHERE path = ? AND version = ?`,
		data, note, now, path, want,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite save %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrConflict
	}
	return Version(strconv.FormatInt(want+1, 10)), nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
