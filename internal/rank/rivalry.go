package rank

// DefaultRivalryMinPlayers is the population floor below which no
// rivalry is ever reported.
const DefaultRivalryMinPlayers = 5

// Rivalry is the single closest pair within the current period.
type Rivalry struct {
	LeaderID    string
	ChaserID    string
	LeaderTotal int
	ChaserTotal int
	Gap         int
}

// DetectRivalry scans adjacent pairs of the total-ordered scope and
// reports the pair with the smallest positive gap, provided the scope
// has at least minPlayers participants and the gap is within maxGap.
// At most one pair is reported per invocation.
func DetectRivalry(totals map[string]Totals, maxGap, minPlayers int) (Rivalry, bool) {
	if minPlayers <= 0 {
		minPlayers = DefaultRivalryMinPlayers
	}
	if len(totals) < minPlayers {
		return Rivalry{}, false
	}

	rows := ByTotal(totals)
	best := Rivalry{}
	found := false
	for i := 0; i+1 < len(rows); i++ {
		gap := rows[i].Total - rows[i+1].Total
		if gap <= 0 || gap > maxGap {
			continue
		}
		if !found || gap < best.Gap {
			best = Rivalry{
				LeaderID:    rows[i].UserID,
				ChaserID:    rows[i+1].UserID,
				LeaderTotal: rows[i].Total,
				ChaserTotal: rows[i+1].Total,
				Gap:         gap,
			}
			found = true
		}
	}
	return best, found
}
