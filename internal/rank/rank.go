// Package rank turns ledger and aggregate data into ordered, read-only
// leaderboard views.
package rank

import (
	"sort"

	"maptap/internal/ledger"
)

// Totals is one user's footprint within a day-key scope.
type Totals struct {
	Total int
	Days  int
}

// ScopedTotals sums scores per user over the inclusive [start, end] day
// range in a single pass. An empty bound leaves that side unbounded.
// Day keys sort lexically, so plain string compares bound the range.
func ScopedTotals(l ledger.Ledger, start, end string) map[string]Totals {
	out := make(map[string]Totals)
	for dk, bucket := range l {
		if start != "" && dk < start {
			continue
		}
		if end != "" && dk > end {
			continue
		}
		for uid, e := range bucket {
			t := out[uid]
			t.Total += e.Score
			t.Days++
			out[uid] = t
		}
	}
	return out
}

// Row is one line of a scoped ranking.
type Row struct {
	UserID  string
	Total   int
	Days    int
	Average float64
}

// Rank filters to users with at least minDays played in scope and orders
// them by average descending, ties by days descending, then by user ID
// ascending so the order is deterministic.
func Rank(totals map[string]Totals, minDays int) []Row {
	rows := make([]Row, 0, len(totals))
	for uid, t := range totals {
		if t.Days < minDays {
			continue
		}
		rows = append(rows, Row{
			UserID:  uid,
			Total:   t.Total,
			Days:    t.Days,
			Average: float64(t.Total) / float64(t.Days),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Average != rows[j].Average {
			return rows[i].Average > rows[j].Average
		}
		if rows[i].Days != rows[j].Days {
			return rows[i].Days > rows[j].Days
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

// ByTotal orders a scope by raw total descending (days descending, then
// user ID ascending). Used by the weekly roundup and rivalry views.
func ByTotal(totals map[string]Totals) []Row {
	rows := make([]Row, 0, len(totals))
	for uid, t := range totals {
		rows = append(rows, Row{UserID: uid, Total: t.Total, Days: t.Days})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		if rows[i].Days != rows[j].Days {
			return rows[i].Days > rows[j].Days
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

// AllTime ranks aggregates by total points (days descending, then user
// ID ascending). Users with zero played days are not eligible: they
// never appear in the list and never inflate the population.
func AllTime(aggs ledger.Aggregates) []Row {
	rows := make([]Row, 0, len(aggs))
	for uid, agg := range aggs {
		if agg == nil || agg.DaysPlayed <= 0 {
			continue
		}
		rows = append(rows, Row{
			UserID:  uid,
			Total:   agg.TotalPoints,
			Days:    agg.DaysPlayed,
			Average: float64(agg.TotalPoints) / float64(agg.DaysPlayed),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		if rows[i].Days != rows[j].Days {
			return rows[i].Days > rows[j].Days
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

// FindRank returns the 1-based position of userID in a ranked list and
// the ranked population. A user who failed the eligibility floor comes
// back as (N, N) — tied for last, never absent.
func FindRank(rows []Row, userID string) (pos, total int) {
	total = len(rows)
	for i, r := range rows {
		if r.UserID == userID {
			return i + 1, total
		}
	}
	return total, total
}
