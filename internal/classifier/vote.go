package classifier

import "math"

// SelectByMajority returns the most voted label and its share of the votes.
// Ties go to the more conservative label; no votes yields ND with zero confidence.
func SelectByMajority(votes []Vote) (Label, float64) {
	if len(votes) == 0 {
		return ND, 0
	}
	counts := make(map[Label]int, len(tieBreakOrder))
	for _, v := range votes {
		counts[v.Label]++
	}

	best, top := ND, 0
	for _, l := range tieBreakOrder {
		if counts[l] > top {
			best, top = l, counts[l]
		}
	}
	return best, float64(top) / float64(len(votes))
}

// Representative picks the first vote, in round order, that agrees with the
// majority label. It falls back to the first vote and reports false only when
// there are no votes at all.
func Representative(votes []Vote, majority Label) (Vote, bool) {
	for _, v := range votes {
		if v.Label == majority {
			return v, true
		}
	}
	if len(votes) > 0 {
		return votes[0], true
	}
	return Vote{}, false
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
