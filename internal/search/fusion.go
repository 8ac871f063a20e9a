package search

import "sort"

// rrfK is the reciprocal rank fusion constant.
const rrfK = 60

type fusedHit struct {
	entryID string
	score   float64
}

// fuseRRF combines two ranked lists with reciprocal rank fusion:
// score(d) = sum over lists of 1/(k + rank). Scores are divided by the
// best achievable value 2/(k+1), so a document ranked first in both lists
// scores 1.0. Ties are broken by entry ID for a stable order.
func fuseRRF(keyword []keywordHit, vector []vectorHit) []fusedHit {
	scores := make(map[string]float64, len(keyword)+len(vector))
	for i, h := range keyword {
		scores[h.entry.ID] += 1.0 / float64(rrfK+i+1)
	}
	for i, h := range vector {
		scores[h.entryID] += 1.0 / float64(rrfK+i+1)
	}

	maxScore := 2.0 / float64(rrfK+1)
	fused := make([]fusedHit, 0, len(scores))
	for id, s := range scores {
		fused = append(fused, fusedHit{entryID: id, score: min(s/maxScore, 1)})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].entryID < fused[j].entryID
	})
	return fused
}
