// Package tracker wires the score ledger to the document store: every
// operation is a load-mutate-save over the two independently versioned
// documents (scores, users).
//
// Ingestion is a read-modify-write across two round trips with no lock
// and no retry; two racing submissions can interleave at the store
// boundary and one update may be dropped (last successful writer wins at
// whole-document granularity). Known ceiling, acceptable at the low
// submission rates this tracker serves.
package tracker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"maptap/internal/ledger"
	"maptap/internal/rank"
	"maptap/internal/store"
	logx "maptap/pkg/logx"
)

// Config sets the document paths and ingestion limits.
type Config struct {
	ScoresPath    string
	UsersPath     string
	MaxScore      int
	RetentionDays int
}

type Service struct {
	store store.Store
	log   logx.Logger
	loc   *time.Location

	scoresPath string
	usersPath  string

	mu            sync.RWMutex
	maxScore      int
	retentionDays int
}

func NewService(st store.Store, cfg Config, loc *time.Location, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:         st,
		log:           log,
		loc:           loc,
		scoresPath:    cfg.ScoresPath,
		usersPath:     cfg.UsersPath,
		maxScore:      cfg.MaxScore,
		retentionDays: cfg.RetentionDays,
	}
}

// SetLimits applies reloaded ingestion limits without a restart.
func (s *Service) SetLimits(maxScore, retentionDays int) {
	s.mu.Lock()
	if maxScore > 0 {
		s.maxScore = maxScore
	}
	if retentionDays > 0 {
		s.retentionDays = retentionDays
	}
	s.mu.Unlock()
}

// MaxScore returns the current score ceiling.
func (s *Service) MaxScore() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxScore
}

func (s *Service) retention() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retentionDays
}

// Location returns the tracker's fixed timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the current day key in the tracker timezone.
func (s *Service) Today() string {
	return ledger.DayKey(time.Now().In(s.loc))
}

func (s *Service) loadScores(ctx context.Context) (ledger.Ledger, store.Version, error) {
	l := ledger.Ledger{}
	ver, _, err := store.LoadJSON(ctx, s.store, s.scoresPath, &l)
	if err != nil {
		return nil, "", fmt.Errorf("load scores: %w", err)
	}
	return l, ver, nil
}

func (s *Service) loadUsers(ctx context.Context) (ledger.Aggregates, store.Version, error) {
	a := ledger.Aggregates{}
	ver, _, err := store.LoadJSON(ctx, s.store, s.usersPath, &a)
	if err != nil {
		return nil, "", fmt.Errorf("load users: %w", err)
	}
	return a, ver, nil
}

// Submit records one score. The submission's day is derived from its own
// timestamp in the tracker timezone, so late-night posts land on the
// right calendar day. Validation failures return RejectedTooHigh with no
// store calls at all; store failures abort before anything is committed,
// so the caller must not acknowledge until Submit returns cleanly.
func (s *Service) Submit(ctx context.Context, userID string, at time.Time, score int) (ledger.Outcome, error) {
	if score > s.MaxScore() {
		return ledger.RejectedTooHigh, nil
	}

	at = at.In(s.loc)
	day := ledger.DayKey(at)
	today := s.Today()

	l, sver, err := s.loadScores(ctx)
	if err != nil {
		return 0, err
	}
	aggs, uver, err := s.loadUsers(ctx)
	if err != nil {
		return 0, err
	}

	outcome := ledger.Ingest(l, aggs, userID, day, score, s.MaxScore(), at, today)
	if outcome == ledger.RejectedTooHigh {
		return outcome, nil
	}

	if _, err := store.SaveJSON(ctx, s.store, s.scoresPath, l, sver, "maptap: score "+day); err != nil {
		return 0, fmt.Errorf("save scores: %w", err)
	}
	if _, err := store.SaveJSON(ctx, s.store, s.usersPath, aggs, uver, "maptap: user "+userID); err != nil {
		return 0, fmt.Errorf("save users: %w", err)
	}

	s.log.Info("score recorded",
		logx.String("user", userID),
		logx.String("day", day),
		logx.Int("score", score),
		logx.String("outcome", outcome.String()))
	return outcome, nil
}

// BackfillEntry is one historical submission to re-ingest.
type BackfillEntry struct {
	UserID string
	At     time.Time
	Score  int
}

// BackfillResult summarizes a rescan pass.
type BackfillResult struct {
	Ingested int
	Skipped  int
}

// Backfill ingests entries that were missed, skipping any user who
// already holds an entry for that entry's day. Backfill never overwrites:
// a live submission that raced ahead stays authoritative.
func (s *Service) Backfill(ctx context.Context, entries []BackfillEntry) (BackfillResult, error) {
	var res BackfillResult
	if len(entries) == 0 {
		return res, nil
	}

	l, sver, err := s.loadScores(ctx)
	if err != nil {
		return res, err
	}
	aggs, uver, err := s.loadUsers(ctx)
	if err != nil {
		return res, err
	}

	maxScore := s.MaxScore()
	today := s.Today()
	for _, e := range entries {
		at := e.At.In(s.loc)
		day := ledger.DayKey(at)
		if _, exists := l[day][e.UserID]; exists || e.Score > maxScore {
			res.Skipped++
			continue
		}
		ledger.Ingest(l, aggs, e.UserID, day, e.Score, maxScore, at, today)
		res.Ingested++
	}

	if res.Ingested == 0 {
		return res, nil
	}
	if _, err := store.SaveJSON(ctx, s.store, s.scoresPath, l, sver, fmt.Sprintf("maptap: rescan %d entries", res.Ingested)); err != nil {
		return BackfillResult{}, fmt.Errorf("save scores: %w", err)
	}
	if _, err := store.SaveJSON(ctx, s.store, s.usersPath, aggs, uver, "maptap: rescan user stats"); err != nil {
		return BackfillResult{}, fmt.Errorf("save users: %w", err)
	}
	return res, nil
}

// LoadLedger returns a snapshot of the score ledger for read-only views.
func (s *Service) LoadLedger(ctx context.Context) (ledger.Ledger, error) {
	l, _, err := s.loadScores(ctx)
	return l, err
}

// LoadAggregates returns a snapshot of the per-user rollups.
func (s *Service) LoadAggregates(ctx context.Context) (ledger.Aggregates, error) {
	a, _, err := s.loadUsers(ctx)
	return a, err
}

// Prune drops day buckets past the retention horizon and persists the
// trimmed ledger. Aggregates are untouched.
func (s *Service) Prune(ctx context.Context) (int, error) {
	days := s.retention()
	l, sver, err := s.loadScores(ctx)
	if err != nil {
		return 0, err
	}
	removed := ledger.Prune(l, days, s.Today())
	if removed == 0 {
		return 0, nil
	}
	if _, err := store.SaveJSON(ctx, s.store, s.scoresPath, l, sver, fmt.Sprintf("maptap: cleanup keep %d days", days)); err != nil {
		return 0, fmt.Errorf("save scores: %w", err)
	}
	s.log.Info("ledger pruned", logx.Int("removed_days", removed), logx.Int("keep_days", days))
	return removed, nil
}

// RebuildAggregates recomputes every rollup from the surviving ledger
// and persists the result. Used to repair drift after bulk backfill.
func (s *Service) RebuildAggregates(ctx context.Context) (int, error) {
	l, _, err := s.loadScores(ctx)
	if err != nil {
		return 0, err
	}
	_, uver, err := s.loadUsers(ctx)
	if err != nil {
		return 0, err
	}
	aggs := ledger.Rebuild(l)
	if _, err := store.SaveJSON(ctx, s.store, s.usersPath, aggs, uver, "maptap: rebuild aggregates"); err != nil {
		return 0, fmt.Errorf("save users: %w", err)
	}
	s.log.Info("aggregates rebuilt", logx.Int("users", len(aggs)))
	return len(aggs), nil
}

// ResetAll clears both documents. Privileged; authorization is the
// caller's problem.
func (s *Service) ResetAll(ctx context.Context) error {
	_, sver, err := s.loadScores(ctx)
	if err != nil {
		return err
	}
	_, uver, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}
	if _, err := store.SaveJSON(ctx, s.store, s.scoresPath, ledger.Ledger{}, sver, "maptap: reset scores"); err != nil {
		return fmt.Errorf("save scores: %w", err)
	}
	if _, err := store.SaveJSON(ctx, s.store, s.usersPath, ledger.Aggregates{}, uver, "maptap: reset users"); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	s.log.Warn("tracker reset: scores and aggregates cleared")
	return nil
}

// UserStats is the per-user view behind the stats command.
type UserStats struct {
	Rank          int
	Ranked        int
	TotalPoints   int
	DaysPlayed    int
	Average       int
	CurrentStreak int
	BestStreak    int
	Best          ledger.ScoreMark
}

// Stats assembles one user's standing. Returns nil when the user has
// never recorded a score.
func (s *Service) Stats(ctx context.Context, userID string) (*UserStats, error) {
	aggs, _, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	agg := aggs[userID]
	if agg == nil || agg.DaysPlayed <= 0 {
		return nil, nil
	}

	l, _, err := s.loadScores(ctx)
	if err != nil {
		return nil, err
	}

	pos, total := rank.FindRank(rank.AllTime(aggs), userID)
	return &UserStats{
		Rank:          pos,
		Ranked:        total,
		TotalPoints:   agg.TotalPoints,
		DaysPlayed:    agg.DaysPlayed,
		Average:       int(math.Round(float64(agg.TotalPoints) / float64(agg.DaysPlayed))),
		CurrentStreak: ledger.CurrentStreak(l, userID, s.Today()),
		BestStreak:    agg.BestStreak,
		Best:          agg.Best,
	}, nil
}
