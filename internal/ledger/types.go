package ledger

import "time"

// DayKeyLayout is the calendar-day identifier format used as ledger index.
// Day keys are always derived in the tracker's fixed timezone.
const DayKeyLayout = "2006-01-02"

// DayKey formats t as a day key.
func DayKey(t time.Time) string { return t.Format(DayKeyLayout) }

// lowSentinel seeds a fresh aggregate's personal low above any valid
// score, so the first real submission always sets it.
const lowSentinel = 1 << 30

// ScoreEntry is one user's recorded score for one day.
type ScoreEntry struct {
	Score      int       `json:"score"`
	RecordedAt time.Time `json:"updated_at"`
}

// DayBucket maps userID -> entry. At most one entry per user per day;
// a later submission the same day replaces it.
type DayBucket map[string]ScoreEntry

// Ledger maps dayKey -> bucket. Persisted as one whole document.
type Ledger map[string]DayBucket

// ScoreMark is a score pinned to the day it was achieved.
type ScoreMark struct {
	Score int    `json:"score"`
	Date  string `json:"date"`
}

// UserAggregate is the durable per-user rollup. It is stored separately
// from the ledger and survives retention pruning: once old day buckets
// are gone, TotalPoints and DaysPlayed stay as historical totals and are
// never silently recomputed.
type UserAggregate struct {
	TotalPoints int       `json:"total_points"`
	DaysPlayed  int       `json:"days_played"`
	BestStreak  int       `json:"best_streak"`
	Best        ScoreMark `json:"best"`
	Low         ScoreMark `json:"low"`
}

// Aggregates maps userID -> rollup.
type Aggregates map[string]*UserAggregate

func newAggregate() *UserAggregate {
	return &UserAggregate{Low: ScoreMark{Score: lowSentinel}}
}

// Outcome reports what an ingestion did.
type Outcome int

const (
	RejectedTooHigh Outcome = iota
	RecordedNew
	RecordedOverwrite
)

func (o Outcome) String() string {
	switch o {
	case RejectedTooHigh:
		return "rejected_too_high"
	case RecordedNew:
		return "recorded_new"
	case RecordedOverwrite:
		return "recorded_overwrite"
	default:
		return "unknown"
	}
}
