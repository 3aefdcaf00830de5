package tracker

import (
	"context"
	"testing"
	"time"

	"maptap/internal/ledger"
	"maptap/internal/store"
	logx "maptap/pkg/logx"
)

func testService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemory()
	svc := NewService(st, Config{
		ScoresPath:    "data/maptap_scores.json",
		UsersPath:     "data/maptap_users.json",
		MaxScore:      1000,
		RetentionDays: 69,
	}, time.UTC, logx.Nop())
	return svc, st
}

func TestSubmitPersistsBothDocuments(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	out, err := svc.Submit(ctx, "alice", now, 850)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out != ledger.RecordedNew {
		t.Fatalf("expected RecordedNew, got %v", out)
	}

	l := ledger.Ledger{}
	if _, found, err := store.LoadJSON(ctx, st, "data/maptap_scores.json", &l); err != nil || !found {
		t.Fatalf("scores document missing: found=%v err=%v", found, err)
	}
	if l[ledger.DayKey(now)]["alice"].Score != 850 {
		t.Fatalf("score not persisted: %+v", l)
	}

	aggs := ledger.Aggregates{}
	if _, found, err := store.LoadJSON(ctx, st, "data/maptap_users.json", &aggs); err != nil || !found {
		t.Fatalf("users document missing: found=%v err=%v", found, err)
	}
	if aggs["alice"].TotalPoints != 850 {
		t.Fatalf("aggregate not persisted: %+v", aggs["alice"])
	}
}

func TestSubmitTooHighTouchesNothing(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()

	out, err := svc.Submit(ctx, "alice", time.Now().UTC(), 1001)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out != ledger.RejectedTooHigh {
		t.Fatalf("expected RejectedTooHigh, got %v", out)
	}
	if _, _, err := st.Load(ctx, "data/maptap_scores.json"); err == nil {
		t.Fatalf("rejected submission must not create documents")
	}
}

func TestSubmitOverwriteSameDay(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Submit(ctx, "alice", now, 850); err != nil {
		t.Fatalf("submit: %v", err)
	}
	out, err := svc.Submit(ctx, "alice", now, 900)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out != ledger.RecordedOverwrite {
		t.Fatalf("expected RecordedOverwrite, got %v", out)
	}

	stats, err := svc.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPoints != 900 || stats.DaysPlayed != 1 {
		t.Fatalf("unexpected stats after overwrite: %+v", stats)
	}
}

func TestStatsUnknownUser(t *testing.T) {
	svc, _ := testService(t)
	stats, err := svc.Stats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected nil stats for a user with no scores, got %+v", stats)
	}
}

func TestStatsRankAndStreak(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Submit(ctx, "alice", now.AddDate(0, 0, -1), 400); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Submit(ctx, "alice", now, 600); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Submit(ctx, "bob", now, 900); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stats, err := svc.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Rank != 1 || stats.Ranked != 2 {
		t.Fatalf("expected rank 1 of 2 (alice leads on total), got %d of %d", stats.Rank, stats.Ranked)
	}
	if stats.Average != 500 {
		t.Fatalf("expected average 500, got %d", stats.Average)
	}
	if stats.CurrentStreak != 2 || stats.BestStreak != 2 {
		t.Fatalf("unexpected streaks: current=%d best=%d", stats.CurrentStreak, stats.BestStreak)
	}
	if stats.Best.Score != 600 {
		t.Fatalf("unexpected best day: %+v", stats.Best)
	}
}

func TestBackfillSkipsExistingDays(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Submit(ctx, "alice", now, 700); err != nil {
		t.Fatalf("submit: %v", err)
	}

	res, err := svc.Backfill(ctx, []BackfillEntry{
		{UserID: "alice", At: now, Score: 100},                    // day taken: skip, keep 700
		{UserID: "bob", At: now, Score: 2000},                     // too high: skip
		{UserID: "bob", At: now, Score: 500},                      // new
		{UserID: "alice", At: now.AddDate(0, 0, -2), Score: 300},  // older day: new
	})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Ingested != 2 || res.Skipped != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	stats, err := svc.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPoints != 1000 {
		t.Fatalf("backfill must never overwrite a live entry, total=%d", stats.TotalPoints)
	}
}

func TestPruneKeepsAggregates(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Submit(ctx, "alice", now.AddDate(0, 0, -100), 500); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Submit(ctx, "alice", now, 300); err != nil {
		t.Fatalf("submit: %v", err)
	}

	removed, err := svc.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one bucket pruned, got %d", removed)
	}

	stats, err := svc.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPoints != 800 || stats.DaysPlayed != 2 {
		t.Fatalf("pruning must not shrink aggregates: %+v", stats)
	}
}

func TestRebuildAfterPruneSeesOnlySurvivors(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Submit(ctx, "alice", now.AddDate(0, 0, -100), 500); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Submit(ctx, "alice", now, 300); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, err := svc.RebuildAggregates(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	stats, err := svc.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPoints != 300 || stats.DaysPlayed != 1 {
		t.Fatalf("rebuild must only see surviving history: %+v", stats)
	}
}

func TestResetAllClearsBothDocuments(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "alice", time.Now().UTC(), 500); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.ResetAll(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	stats, err := svc.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected no stats after reset, got %+v", stats)
	}
	l, err := svc.LoadLedger(ctx)
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(l) != 0 {
		t.Fatalf("ledger not cleared: %v", l)
	}
}

func TestSetLimits(t *testing.T) {
	svc, _ := testService(t)
	svc.SetLimits(500, 7)
	if svc.MaxScore() != 500 {
		t.Fatalf("max score not applied")
	}
	out, err := svc.Submit(context.Background(), "alice", time.Now().UTC(), 600)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out != ledger.RejectedTooHigh {
		t.Fatalf("reloaded ceiling not enforced, got %v", out)
	}
}
