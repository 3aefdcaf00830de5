package ledger

import (
	"sort"
	"time"
)

// Ingest records one score for one user on one day, updating both the
// ledger and the user's aggregate in place.
//
// A second submission for the same (user, day) replaces the earlier one:
// the prior score is subtracted from the total before the new one is
// added, so re-ingesting an identical score leaves the total unchanged.
// DaysPlayed only moves when the day is new for that user.
func Ingest(l Ledger, aggs Aggregates, userID, day string, score, maxScore int, now time.Time, today string) Outcome {
	if score > maxScore {
		return RejectedTooHigh
	}

	bucket, ok := l[day]
	if !ok {
		bucket = DayBucket{}
		l[day] = bucket
	}

	agg, ok := aggs[userID]
	if !ok {
		agg = newAggregate()
		aggs[userID] = agg
	}

	prev, overwrite := bucket[userID]
	if overwrite {
		agg.TotalPoints -= prev.Score
	} else {
		agg.DaysPlayed++
	}

	agg.TotalPoints += score
	bucket[userID] = ScoreEntry{Score: score, RecordedAt: now}

	// Strict inequality: ties keep the earlier date.
	if score > agg.Best.Score || agg.Best.Date == "" {
		agg.Best = ScoreMark{Score: score, Date: day}
	}
	if score < agg.Low.Score {
		agg.Low = ScoreMark{Score: score, Date: day}
	}

	// BestStreak is a high-water mark of the current streak, not a
	// recomputation from full history.
	if cur := CurrentStreak(l, userID, today); cur > agg.BestStreak {
		agg.BestStreak = cur
	}

	if overwrite {
		return RecordedOverwrite
	}
	return RecordedNew
}

// CurrentStreak counts consecutive played days walking backward from
// today. It scans the whole ledger rather than a per-user index; fine at
// the sizes this tracker sees, worth an index if the ledger grows large.
func CurrentStreak(l Ledger, userID, today string) int {
	played := make(map[string]struct{})
	for dk, bucket := range l {
		if _, ok := bucket[userID]; ok {
			played[dk] = struct{}{}
		}
	}
	if len(played) == 0 {
		return 0
	}

	day, err := time.Parse(DayKeyLayout, today)
	if err != nil {
		return 0
	}
	streak := 0
	for {
		if _, ok := played[DayKey(day)]; !ok {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// Prune removes every day bucket older than today-retentionDays and
// reports how many were dropped. Aggregates are left alone on purpose:
// they stay valid historical totals after the day-level detail is gone.
// Buckets under unparseable keys are dropped too.
func Prune(l Ledger, retentionDays int, today string) int {
	td, err := time.Parse(DayKeyLayout, today)
	if err != nil {
		return 0
	}
	cutoff := td.AddDate(0, 0, -retentionDays)

	removed := 0
	for dk := range l {
		dd, err := time.Parse(DayKeyLayout, dk)
		if err != nil || dd.Before(cutoff) {
			delete(l, dk)
			removed++
		}
	}
	return removed
}

// Rebuild recomputes every aggregate purely from the entries the ledger
// still holds. This is the only path that reconstructs aggregates, and it
// can only see non-pruned history, so totals shrink to what remains.
//
// BestStreak is recomputed here as the longest run of consecutive days in
// the surviving history. Normal ingestion only ever forward-updates the
// high-water mark; a rebuild is already lossy past the retention horizon,
// so the best run over visible history is the honest value.
func Rebuild(l Ledger) Aggregates {
	aggs := Aggregates{}

	days := make([]string, 0, len(l))
	for dk := range l {
		if _, err := time.Parse(DayKeyLayout, dk); err != nil {
			continue
		}
		days = append(days, dk)
	}
	// Ascending: on equal scores the earlier date wins best/low.
	sort.Strings(days)

	for _, dk := range days {
		for uid, e := range l[dk] {
			agg, ok := aggs[uid]
			if !ok {
				agg = newAggregate()
				aggs[uid] = agg
			}
			agg.TotalPoints += e.Score
			agg.DaysPlayed++
			if e.Score > agg.Best.Score || agg.Best.Date == "" {
				agg.Best = ScoreMark{Score: e.Score, Date: dk}
			}
			if e.Score < agg.Low.Score {
				agg.Low = ScoreMark{Score: e.Score, Date: dk}
			}
		}
	}

	for uid, agg := range aggs {
		agg.BestStreak = bestRun(l, uid, days)
	}
	return aggs
}

// bestRun finds the longest run of consecutive played days for one user.
// days must be the sorted list of valid ledger day keys.
func bestRun(l Ledger, userID string, days []string) int {
	best, run := 0, 0
	var prev time.Time
	for _, dk := range days {
		if _, ok := l[dk][userID]; !ok {
			continue
		}
		d, err := time.Parse(DayKeyLayout, dk)
		if err != nil {
			continue
		}
		if run > 0 && d.Sub(prev) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = d
	}
	return best
}
