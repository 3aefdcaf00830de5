package ledger

import (
	"testing"
	"time"
)

func day(t *testing.T, key string) time.Time {
	t.Helper()
	d, err := time.Parse(DayKeyLayout, key)
	if err != nil {
		t.Fatalf("bad day key %q: %v", key, err)
	}
	return d
}

func TestIngestNewAndOverwrite(t *testing.T) {
	l := Ledger{}
	aggs := Aggregates{}
	now := day(t, "2025-06-10")

	out := Ingest(l, aggs, "alice", "2025-06-10", 850, 1000, now, "2025-06-10")
	if out != RecordedNew {
		t.Fatalf("expected RecordedNew, got %v", out)
	}
	a := aggs["alice"]
	if a.TotalPoints != 850 || a.DaysPlayed != 1 {
		t.Fatalf("unexpected aggregate after first ingest: %+v", a)
	}
	if a.Best != (ScoreMark{Score: 850, Date: "2025-06-10"}) {
		t.Fatalf("unexpected best: %+v", a.Best)
	}
	if a.Low != (ScoreMark{Score: 850, Date: "2025-06-10"}) {
		t.Fatalf("first submission must seed the personal low: %+v", a.Low)
	}

	// Same user, same day, higher score: replace, not append.
	out = Ingest(l, aggs, "alice", "2025-06-10", 900, 1000, now, "2025-06-10")
	if out != RecordedOverwrite {
		t.Fatalf("expected RecordedOverwrite, got %v", out)
	}
	if a.TotalPoints != 900 {
		t.Fatalf("total must move by the delta only, got %d", a.TotalPoints)
	}
	if a.DaysPlayed != 1 {
		t.Fatalf("overwrite must not touch days played, got %d", a.DaysPlayed)
	}
	if a.Best != (ScoreMark{Score: 900, Date: "2025-06-10"}) {
		t.Fatalf("unexpected best after overwrite: %+v", a.Best)
	}
	if len(l["2025-06-10"]) != 1 {
		t.Fatalf("bucket must hold one entry per user per day")
	}
}

func TestIngestIdempotent(t *testing.T) {
	l := Ledger{}
	aggs := Aggregates{}
	now := day(t, "2025-06-10")

	Ingest(l, aggs, "alice", "2025-06-10", 700, 1000, now, "2025-06-10")
	before := *aggs["alice"]

	out := Ingest(l, aggs, "alice", "2025-06-10", 700, 1000, now, "2025-06-10")
	if out != RecordedOverwrite {
		t.Fatalf("expected RecordedOverwrite, got %v", out)
	}
	after := *aggs["alice"]
	if after.TotalPoints != before.TotalPoints {
		t.Fatalf("total changed on identical re-ingest: %d -> %d", before.TotalPoints, after.TotalPoints)
	}
	if after.DaysPlayed != before.DaysPlayed {
		t.Fatalf("days played changed on identical re-ingest")
	}
}

func TestIngestBoundary(t *testing.T) {
	l := Ledger{}
	aggs := Aggregates{}
	now := day(t, "2025-06-10")

	if out := Ingest(l, aggs, "alice", "2025-06-10", 1000, 1000, now, "2025-06-10"); out != RecordedNew {
		t.Fatalf("score == maxScore must be accepted, got %v", out)
	}
	if out := Ingest(l, aggs, "bob", "2025-06-10", 1001, 1000, now, "2025-06-10"); out != RejectedTooHigh {
		t.Fatalf("score > maxScore must be rejected, got %v", out)
	}
	if _, ok := aggs["bob"]; ok {
		t.Fatalf("rejected submission must not create an aggregate")
	}
	if _, ok := l["2025-06-10"]["bob"]; ok {
		t.Fatalf("rejected submission must not touch the ledger")
	}
}

func TestConservation(t *testing.T) {
	l := Ledger{}
	aggs := Aggregates{}
	scores := map[string]map[string]int{
		"2025-06-08": {"alice": 500, "bob": 300},
		"2025-06-09": {"alice": 450},
		"2025-06-10": {"alice": 600, "bob": 700, "carol": 200},
	}
	for dk, users := range scores {
		for uid, sc := range users {
			Ingest(l, aggs, uid, dk, sc, 1000, day(t, dk), "2025-06-10")
		}
	}

	for uid, agg := range aggs {
		sum := 0
		for _, bucket := range l {
			if e, ok := bucket[uid]; ok {
				sum += e.Score
			}
		}
		if sum != agg.TotalPoints {
			t.Fatalf("conservation broken for %s: ledger %d vs aggregate %d", uid, sum, agg.TotalPoints)
		}
	}
}

func TestStreakWalksBackFromToday(t *testing.T) {
	l := Ledger{}
	aggs := Aggregates{}
	for _, dk := range []string{"2025-06-06", "2025-06-08", "2025-06-09", "2025-06-10"} {
		Ingest(l, aggs, "alice", dk, 100, 1000, day(t, dk), "2025-06-10")
	}
	if got := CurrentStreak(l, "alice", "2025-06-10"); got != 3 {
		t.Fatalf("expected streak 3 (gap on 06-07), got %d", got)
	}
	if got := CurrentStreak(l, "alice", "2025-06-12"); got != 0 {
		t.Fatalf("expected streak 0 when today has no entry, got %d", got)
	}
	if got := CurrentStreak(l, "nobody", "2025-06-10"); got != 0 {
		t.Fatalf("expected streak 0 for unknown user, got %d", got)
	}
}

func TestBestStreakMonotonic(t *testing.T) {
	l := Ledger{}
	aggs := Aggregates{}

	prev := 0
	days := []string{"2025-06-01", "2025-06-02", "2025-06-03", "2025-06-07", "2025-06-08"}
	for _, dk := range days {
		Ingest(l, aggs, "alice", dk, 100, 1000, day(t, dk), dk)
		bs := aggs["alice"].BestStreak
		if bs < prev {
			t.Fatalf("best streak decreased: %d -> %d at %s", prev, bs, dk)
		}
		prev = bs
	}
	// Three consecutive days, then a gap, then two: high-water mark stays 3.
	if prev != 3 {
		t.Fatalf("expected best streak 3, got %d", prev)
	}
}

func TestPruneLeavesAggregatesAlone(t *testing.T) {
	l := Ledger{}
	aggs := Aggregates{}
	for _, dk := range []string{"2025-06-01", "2025-06-09", "2025-06-10"} {
		Ingest(l, aggs, "alice", dk, 100, 1000, day(t, dk), "2025-06-10")
	}
	total, played := aggs["alice"].TotalPoints, aggs["alice"].DaysPlayed

	removed := Prune(l, 1, "2025-06-10")
	if removed != 1 {
		t.Fatalf("expected 1 bucket pruned, got %d", removed)
	}
	if _, ok := l["2025-06-01"]; ok {
		t.Fatalf("old bucket survived pruning")
	}
	if _, ok := l["2025-06-09"]; !ok {
		t.Fatalf("bucket on the retention boundary must survive")
	}
	if aggs["alice"].TotalPoints != total || aggs["alice"].DaysPlayed != played {
		t.Fatalf("pruning mutated aggregates: %+v", aggs["alice"])
	}
}

func TestPruneDropsUnparseableKeys(t *testing.T) {
	l := Ledger{"garbage": {}, "2025-06-10": {}}
	if removed := Prune(l, 7, "2025-06-10"); removed != 1 {
		t.Fatalf("expected the malformed key to be dropped, got %d", removed)
	}
	if _, ok := l["garbage"]; ok {
		t.Fatalf("malformed day key survived")
	}
}

func TestRebuildFromSurvivingHistory(t *testing.T) {
	l := Ledger{}
	src := Aggregates{}
	for _, in := range []struct {
		dk    string
		uid   string
		score int
	}{
		{"2025-06-07", "alice", 500},
		{"2025-06-08", "alice", 400},
		{"2025-06-09", "alice", 500}, // tie with 06-07: earlier date must win best
		{"2025-06-09", "bob", 300},
	} {
		Ingest(l, src, in.uid, in.dk, in.score, 1000, day(t, in.dk), "2025-06-09")
	}

	aggs := Rebuild(l)
	a := aggs["alice"]
	if a.TotalPoints != 1400 || a.DaysPlayed != 3 {
		t.Fatalf("unexpected rebuilt aggregate: %+v", a)
	}
	if a.Best != (ScoreMark{Score: 500, Date: "2025-06-07"}) {
		t.Fatalf("tie must keep the earlier date: %+v", a.Best)
	}
	if a.Low != (ScoreMark{Score: 400, Date: "2025-06-08"}) {
		t.Fatalf("unexpected rebuilt low: %+v", a.Low)
	}
	if a.BestStreak != 3 {
		t.Fatalf("rebuild must recompute the best run from visible history, got %d", a.BestStreak)
	}
	if aggs["bob"].BestStreak != 1 {
		t.Fatalf("unexpected streak for bob: %d", aggs["bob"].BestStreak)
	}
}
