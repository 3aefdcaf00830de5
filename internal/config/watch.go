package config

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "maptap/pkg/logx"
)

// Watcher reloads the config file on change and hands validated configs
// to an apply callback. A reload that fails to parse or validate is
// logged and dropped; the running config stays in effect.
type Watcher struct {
	path string
	log  logx.Logger

	mu       sync.Mutex
	lastHash uint64

	apply func(cfg *Config)
}

func NewWatcher(path string, log logx.Logger, apply func(cfg *Config)) *Watcher {
	return &Watcher{path: path, log: log, apply: apply}
}

// Seed records the hash of the initial config so an event that rewrites
// identical content does not trigger a redundant apply.
func (w *Watcher) Seed(cfg *Config) {
	w.mu.Lock()
	w.lastHash = hashConfig(cfg)
	w.mu.Unlock()
}

// Run blocks until ctx is done. The watcher is recreated with backoff
// when fsnotify breaks, so editor rename-and-replace saves keep working.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)

	const (
		backoffBase = 250 * time.Millisecond
		backoffMax  = 5 * time.Second
	)
	backoff := backoffBase

	// debounce to avoid reading partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() { w.reload() })
	}

	wait := func() bool {
		d := backoff
		if backoff < backoffMax {
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			if !wait() {
				return nil
			}
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			w.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			if !wait() {
				return nil
			}
			continue
		}
		backoff = backoffBase
		w.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				w.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = fw.Close()
		if ctx.Err() != nil {
			return nil
		}
		w.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
		if !wait() {
			return nil
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload rejected", logx.String("path", w.path), logx.Err(err))
		return
	}

	h := hashConfig(cfg)
	w.mu.Lock()
	unchanged := h != 0 && h == w.lastHash
	if !unchanged {
		w.lastHash = h
	}
	w.mu.Unlock()
	if unchanged {
		w.log.Debug("config unchanged; skipping apply", logx.String("path", w.path))
		return
	}

	w.apply(cfg)
	w.log.Info("config reloaded", logx.String("path", w.path))
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
