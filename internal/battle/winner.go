package battle

import "time"

type winnerCandidate struct {
	userID      string
	submittedAt time.Time
	joinSeq     int
}

// pickWinner breaks ties among simultaneous accepted verdicts: earliest
// submission timestamp first, then earliest admission order.
func pickWinner(cands []winnerCandidate) winnerCandidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.submittedAt.Before(best.submittedAt) ||
			(c.submittedAt.Equal(best.submittedAt) && c.joinSeq < best.joinSeq) {
			best = c
		}
	}
	return best
}
