package dock

const (
	// DefaultNBestPairs is the default number of ranked ligand candidates
	// kept per target patch.
	DefaultNBestPairs = 4

	// DefaultGeodesicThreshold is the default grouping distance in surface
	// coordinate units.
	DefaultGeodesicThreshold = 10.0
)

// MatchConfig holds the two tunables of the matching core.
type MatchConfig struct {
	// NBestPairs is the number of top-ranked ligand candidates kept per
	// target patch.
	NBestPairs int `json:"nBestPairs"`

	// GeodesicThreshold is the maximum patch-to-patch distance, on both the
	// target and ligand sides, for two pairs to share a group.
	GeodesicThreshold float64 `json:"geodesicThreshold"`
}

// DefaultMatchConfig returns the default matching parameters.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		NBestPairs:        DefaultNBestPairs,
		GeodesicThreshold: DefaultGeodesicThreshold,
	}
}

// GeodesicDistance approximates the along-surface distance between two
// patches as the straight-line distance between their representative
// positions. A true geodesic would be larger across folds; the threshold in
// MatchConfig is calibrated against this approximation.
func GeodesicDistance(a, b Patch) float64 {
	return a.Position.Sub(b.Position).Len()
}

// groupAccepts reports whether the pair is within the geodesic threshold of
// every pair already in the group, on both the target and ligand sides.
func groupAccepts(group MatchingGroup, pair PatchPair, target, ligand *SurfaceDescriptors, thresh float64) bool {
	for _, member := range group {
		if GeodesicDistance(target.Patches[pair.Target], target.Patches[member.Target]) > thresh {
			return false
		}
		if GeodesicDistance(ligand.Patches[pair.Ligand], ligand.Patches[member.Ligand]) > thresh {
			return false
		}
	}
	return true
}

// BuildMatchingGroups clusters complementary target/ligand patch pairs into
// matching groups.
//
// The pass is greedy and order-sensitive; the order is part of the contract.
// Target patches are visited in index order. For each target, its top
// NBestPairs ligand candidates (see RankCandidates) are visited in ranked
// order. Each candidate pair is appended to every existing group whose every
// member is within GeodesicThreshold of the pair on both sides; a pair that
// matches no group starts a new singleton group. A pair may therefore join
// several groups: the result is an overlapping cover, not a partition.
//
// Output is deterministic for identical inputs. Empty input on either side
// yields no groups. No group is ever empty, and appends are atomic per pair.
func BuildMatchingGroups(target, ligand *SurfaceDescriptors, cfg MatchConfig) []MatchingGroup {
	if target.Len() == 0 || ligand.Len() == 0 {
		return nil
	}

	var groups []MatchingGroup
	for t := range target.Descriptors {
		cands := RankCandidates(target.Descriptors[t], ligand, cfg.NBestPairs)
		for _, c := range cands {
			pair := PatchPair{Target: t, Ligand: c.Ligand}

			matched := false
			for gi := range groups {
				if groupAccepts(groups[gi], pair, target, ligand, cfg.GeodesicThreshold) {
					groups[gi] = append(groups[gi], pair)
					matched = true
				}
			}
			if !matched {
				groups = append(groups, MatchingGroup{pair})
			}
		}
	}
	return groups
}
