package dock

import (
	"math"
	"sort"
)

// Candidate pairs a ligand patch index with its dissimilarity score against
// one target patch.
type Candidate struct {
	Ligand int
	Score  float64
}

// RankCandidates returns the ligand patches most similar to the target
// descriptor, ascending by score, at most k entries.
//
// A ligand patch is eligible only when its convexity class differs from the
// target's. The score is |curvT - curvL| / max(curvT, curvL), a normalized
// relative curvature difference; lower means more similar. Pairs where both
// curvatures are zero have no defined score and are skipped.
//
// Ties keep ascending ligand-index order. When fewer than k candidates are
// eligible, all of them are returned.
func RankCandidates(target Descriptor, ligand *SurfaceDescriptors, k int) []Candidate {
	if k <= 0 || ligand.Len() == 0 {
		return nil
	}

	var cands []Candidate
	for l, d := range ligand.Descriptors {
		if d.Convexity == target.Convexity {
			continue
		}
		denom := math.Max(target.Curvature, d.Curvature)
		if denom == 0 {
			continue
		}
		score := math.Abs(target.Curvature-d.Curvature) / denom
		cands = append(cands, Candidate{Ligand: l, Score: score})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score < cands[j].Score
	})

	if k < len(cands) {
		cands = cands[:k]
	}
	return cands
}
