package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"maptap/internal/ledger"
	"maptap/internal/store"
	logx "maptap/pkg/logx"
)

// Engine evaluates job gates against the persisted schedule document.
type Engine struct {
	store store.Store
	log   logx.Logger
	loc   *time.Location
	path  string

	order []string
	jobs  map[string]Action
}

func NewEngine(st store.Store, path string, loc *time.Location, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		store: st,
		log:   log,
		loc:   loc,
		path:  path,
		jobs:  map[string]Action{},
	}
}

// Register binds an action to a job name. Registration order is the
// evaluation order within a tick.
func (e *Engine) Register(name string, fn Action) {
	if _, ok := e.jobs[name]; !ok {
		e.order = append(e.order, name)
	}
	e.jobs[name] = fn
}

// Tick evaluates every registered job against the wall clock. A job
// fires iff it is enabled, the current minute matches its time of day,
// its weekday gate (if any) passes, and its last-run key differs from
// the current period key. The document is saved back only when at least
// one job fired this tick.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	now = now.In(e.loc)
	hhmm := now.Format("15:04")
	today := ledger.DayKey(now)
	weekday := mondayWeekday(now)

	doc := DefaultDocument()
	ver, found, err := store.LoadJSON(ctx, e.store, e.path, &doc)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if found {
		Normalize(&doc)
	}
	if !doc.Enabled {
		return nil
	}

	fired := 0
	for _, name := range e.order {
		jc, ok := doc.Jobs[name]
		if !ok || !jc.Enabled {
			continue
		}
		if jc.At != hhmm {
			continue
		}
		if jc.Weekday != nil && *jc.Weekday != weekday {
			continue
		}
		// Jobs are day- or weekday-gated, so the day key doubles as the
		// period key for all of them.
		if jc.LastRun == today {
			continue
		}

		if err := e.jobs[name](ctx, now); err != nil {
			e.log.Error("job failed", logx.String("job", name), logx.Err(err))
			continue
		}
		jc.LastRun = today
		doc.Jobs[name] = jc
		fired++
		e.log.Info("job fired", logx.String("job", name), logx.String("period", today))
	}

	if fired == 0 {
		return nil
	}
	note := "maptap: last_run " + today + " " + hhmm
	if _, err := store.SaveJSON(ctx, e.store, e.path, doc, ver, note); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost the swap; the markers from this tick are dropped by
			// contract and the jobs may re-fire next matching minute.
			e.log.Warn("schedule save lost a version race", logx.String("path", e.path))
			return nil
		}
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// UpdateJob validates and persists one job's settings, preserving its
// last-run marker. Malformed input is rejected before anything is saved.
func (e *Engine) UpdateJob(ctx context.Context, name string, enabled bool, at string, weekday *int) error {
	doc := DefaultDocument()
	ver, found, err := store.LoadJSON(ctx, e.store, e.path, &doc)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if found {
		Normalize(&doc)
	}

	jc, ok := doc.Jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	jc.Enabled = enabled
	if at != "" {
		jc.At = strings.TrimSpace(at)
	}
	if weekday != nil {
		jc.Weekday = weekday
	}
	doc.Jobs[name] = jc

	if err := Validate(doc); err != nil {
		return err
	}
	if _, err := store.SaveJSON(ctx, e.store, e.path, doc, ver, "maptap: update schedule "+name); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// Snapshot returns the persisted schedule document, normalized, for
// read-only display.
func (e *Engine) Snapshot(ctx context.Context) (Document, error) {
	doc := DefaultDocument()
	_, found, err := store.LoadJSON(ctx, e.store, e.path, &doc)
	if err != nil {
		return Document{}, fmt.Errorf("load schedule: %w", err)
	}
	if found {
		Normalize(&doc)
	}
	return doc, nil
}

// SetEnabled flips the master switch for the whole scheduler.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	doc := DefaultDocument()
	ver, found, err := store.LoadJSON(ctx, e.store, e.path, &doc)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if found {
		Normalize(&doc)
	}
	doc.Enabled = enabled
	if _, err := store.SaveJSON(ctx, e.store, e.path, doc, ver, "maptap: scheduler enabled="+strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// ParseHHMM parses a 24h "HH:MM" time of day.
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// mondayWeekday maps Go's Sunday-first weekday onto the document's
// Monday=0 convention.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
