package rank

import (
	"testing"
	"time"

	"maptap/internal/ledger"
)

func entry(score int) ledger.ScoreEntry {
	return ledger.ScoreEntry{Score: score, RecordedAt: time.Now()}
}

func TestScopedTotalsBounds(t *testing.T) {
	l := ledger.Ledger{
		"2025-06-01": {"alice": entry(100)},
		"2025-06-02": {"alice": entry(200), "bob": entry(50)},
		"2025-06-03": {"alice": entry(300)},
	}

	got := ScopedTotals(l, "2025-06-02", "2025-06-03")
	if got["alice"] != (Totals{Total: 500, Days: 2}) {
		t.Fatalf("unexpected alice totals: %+v", got["alice"])
	}
	if got["bob"] != (Totals{Total: 50, Days: 1}) {
		t.Fatalf("unexpected bob totals: %+v", got["bob"])
	}

	all := ScopedTotals(l, "", "")
	if all["alice"] != (Totals{Total: 600, Days: 3}) {
		t.Fatalf("unbounded scope wrong: %+v", all["alice"])
	}
}

func TestRankOrderingAndFloor(t *testing.T) {
	totals := map[string]Totals{
		"alice": {Total: 900, Days: 3}, // avg 300
		"bob":   {Total: 600, Days: 2}, // avg 300, fewer days
		"carol": {Total: 250, Days: 1}, // below floor
		"dave":  {Total: 800, Days: 4}, // avg 200
	}
	rows := Rank(totals, 2)
	if len(rows) != 3 {
		t.Fatalf("expected 3 ranked users, got %d", len(rows))
	}
	if rows[0].UserID != "alice" || rows[1].UserID != "bob" || rows[2].UserID != "dave" {
		t.Fatalf("unexpected order: %v", rows)
	}
}

func TestRankDeterministicTieBreak(t *testing.T) {
	totals := map[string]Totals{
		"zed": {Total: 300, Days: 1},
		"amy": {Total: 300, Days: 1},
	}
	rows := Rank(totals, 1)
	if rows[0].UserID != "amy" || rows[1].UserID != "zed" {
		t.Fatalf("full ties must fall back to user id: %v", rows)
	}
}

func TestAllTimeEligibility(t *testing.T) {
	aggs := ledger.Aggregates{
		"alice": {TotalPoints: 500, DaysPlayed: 2},
		"ghost": {TotalPoints: 0, DaysPlayed: 0},
		"bob":   {TotalPoints: 700, DaysPlayed: 3},
	}
	rows := AllTime(aggs)
	if len(rows) != 2 {
		t.Fatalf("zero-activity users must not be ranked, got %d rows", len(rows))
	}
	for _, r := range rows {
		if r.UserID == "ghost" {
			t.Fatalf("ghost appeared in the ranking")
		}
	}
	if rows[0].UserID != "bob" {
		t.Fatalf("unexpected leader: %v", rows)
	}
}

func TestFindRankFallback(t *testing.T) {
	aggs := ledger.Aggregates{
		"alice": {TotalPoints: 500, DaysPlayed: 2},
		"bob":   {TotalPoints: 700, DaysPlayed: 3},
	}
	rows := AllTime(aggs)

	pos, total := FindRank(rows, "alice")
	if pos != 2 || total != 2 {
		t.Fatalf("expected (2,2), got (%d,%d)", pos, total)
	}
	// Absent users are tied for last, never unranked.
	pos, total = FindRank(rows, "ghost")
	if pos != 2 || total != 2 {
		t.Fatalf("expected fallback (2,2), got (%d,%d)", pos, total)
	}
}

func TestDetectRivalry(t *testing.T) {
	totals := map[string]Totals{
		"a": {Total: 500, Days: 5},
		"b": {Total: 490, Days: 5},
		"c": {Total: 300, Days: 4},
	}

	rv, ok := DetectRivalry(totals, 15, 3)
	if !ok {
		t.Fatalf("expected a rivalry")
	}
	if rv.LeaderID != "a" || rv.ChaserID != "b" || rv.Gap != 10 {
		t.Fatalf("unexpected rivalry: %+v", rv)
	}

	if _, ok := DetectRivalry(totals, 5, 3); ok {
		t.Fatalf("gap 10 must not match threshold 5")
	}
	if _, ok := DetectRivalry(totals, 15, 5); ok {
		t.Fatalf("population below the floor must report nothing")
	}
}

func TestDetectRivalryPicksSmallestPositiveGap(t *testing.T) {
	totals := map[string]Totals{
		"a": {Total: 500},
		"b": {Total: 480}, // gap 20
		"c": {Total: 475}, // gap 5 <- closest
		"d": {Total: 475}, // zero gap, not a rivalry
		"e": {Total: 100},
	}
	rv, ok := DetectRivalry(totals, 25, 5)
	if !ok {
		t.Fatalf("expected a rivalry")
	}
	if rv.LeaderID != "b" || rv.Gap != 5 {
		t.Fatalf("expected the closest positive pair, got %+v", rv)
	}
}
