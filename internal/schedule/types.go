// Package schedule fires calendar-gated jobs at most once per period.
//
// Job times and "last run" markers live in one schedule document in the
// document store, loaded at every tick and saved back only when a job
// fired. A job's last-run key changes only through that job's own
// successful execution; if the process is down or a tick lands late, the
// period is silently skipped, never backfilled.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job names. These are the keys of the schedule document.
const (
	JobDailyPost     = "daily_post"
	JobDailyBoard    = "daily_scoreboard"
	JobWeeklyRoundup = "weekly_roundup"
	JobRivalry       = "rivalry"
)

// lastRunNone marks a job that has never fired.
const lastRunNone = "none"

var (
	ErrBadTime    = errors.New("invalid time of day, expected HH:MM (24h)")
	ErrBadWeekday = errors.New("invalid weekday, expected 0 (Monday) to 6 (Sunday)")
)

// JobConfig is one job's gate state.
//
// Weekday uses the schedule document's convention: 0 = Monday .. 6 =
// Sunday. Nil means the job runs every day.
type JobConfig struct {
	Enabled bool   `json:"enabled"`
	At      string `json:"at"`
	Weekday *int   `json:"weekday,omitempty"`
	LastRun string `json:"last_run"`
}

// Document is the persisted schedule.
type Document struct {
	Enabled bool                 `json:"enabled"`
	Jobs    map[string]JobConfig `json:"jobs"`
}

func weekdayPtr(d int) *int { return &d }

// DefaultDocument returns the schedule the tracker starts with: daily
// post at midnight, scoreboard at 23:30, weekly roundup Sunday 23:45,
// rivalry watch Friday noon.
func DefaultDocument() Document {
	return Document{
		Enabled: true,
		Jobs: map[string]JobConfig{
			JobDailyPost:     {Enabled: true, At: "00:00", LastRun: lastRunNone},
			JobDailyBoard:    {Enabled: true, At: "23:30", LastRun: lastRunNone},
			JobWeeklyRoundup: {Enabled: true, At: "23:45", Weekday: weekdayPtr(6), LastRun: lastRunNone},
			JobRivalry:       {Enabled: true, At: "12:00", Weekday: weekdayPtr(4), LastRun: lastRunNone},
		},
	}
}

// Normalize fills missing jobs and fields from the typed defaults. It
// repairs shape only; value validation stays in Validate so malformed
// administrative input is rejected, not silently coerced.
func Normalize(doc *Document) {
	def := DefaultDocument()
	if doc.Jobs == nil {
		doc.Jobs = map[string]JobConfig{}
	}
	for name, djc := range def.Jobs {
		jc, ok := doc.Jobs[name]
		if !ok {
			doc.Jobs[name] = djc
			continue
		}
		if jc.At == "" {
			jc.At = djc.At
		}
		if jc.Weekday == nil && djc.Weekday != nil {
			jc.Weekday = djc.Weekday
		}
		if jc.LastRun == "" {
			jc.LastRun = lastRunNone
		}
		doc.Jobs[name] = jc
	}
}

// Validate rejects malformed job settings with a descriptive reason.
// Call it before persisting administrative changes.
func Validate(doc Document) error {
	for name, jc := range doc.Jobs {
		if _, _, err := ParseHHMM(jc.At); err != nil {
			return fmt.Errorf("job %s: %w: %q", name, ErrBadTime, jc.At)
		}
		if jc.Weekday != nil && (*jc.Weekday < 0 || *jc.Weekday > 6) {
			return fmt.Errorf("job %s: %w: %d", name, ErrBadWeekday, *jc.Weekday)
		}
	}
	return nil
}

// Payload is what a fired job hands to the delivery collaborator.
// Rendering is entirely the collaborator's business.
type Payload struct {
	Kind        string
	PeriodLabel string
	Rows        []PayloadRow
}

// PayloadRow is one (user, value) line plus a kind-specific extra
// (played days for roundups, point gap for rivalry).
type PayloadRow struct {
	UserID string
	Value  int
	Extra  int
}

// Action is a job body. It runs only when the job's gates pass; returning
// an error leaves the job's last-run marker untouched so the next tick in
// the same period may try again.
type Action func(ctx context.Context, now time.Time) error
