package dock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// GroupResult is one matching group with its estimated pose, in the JSON
// shape persisted to disk and published over MQTT. The transform is stored
// row-major.
type GroupResult struct {
	Pairs     []PatchPair   `json:"pairs"`
	Transform [4][4]float64 `json:"transform"`
	Size      int           `json:"size"`
}

// ResultStats summarizes a docking run.
type ResultStats struct {
	GroupCount    int     `json:"groupCount"`
	LargestGroup  int     `json:"largestGroup"`
	MeanGroupSize float64 `json:"meanGroupSize"`
	PairCount     int     `json:"pairCount"`
}

// DockingResult is the persisted outcome of matching one ligand against the
// target: every matching group with its transform, plus run metadata.
type DockingResult struct {
	RunID     string        `json:"runId"`
	Timestamp time.Time     `json:"timestamp"`
	TargetID  string        `json:"targetId"`
	LigandID  string        `json:"ligandId"`
	Match     MatchConfig   `json:"match"`
	Groups    []GroupResult `json:"groups"`
	Stats     ResultStats   `json:"stats"`
}

// NewDockingResult assembles a result from aligned group and transform
// slices. The slices must be index-aligned, as produced by
// BuildMatchingGroups and TransformationsFromGroups.
func NewDockingResult(targetID, ligandID string, cfg MatchConfig, groups []MatchingGroup, transforms []mgl64.Mat4) (*DockingResult, error) {
	if len(groups) != len(transforms) {
		return nil, fmt.Errorf("%d groups but %d transforms", len(groups), len(transforms))
	}

	r := &DockingResult{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		TargetID:  targetID,
		LigandID:  ligandID,
		Match:     cfg,
	}

	pairTotal := 0
	for i, g := range groups {
		gr := GroupResult{
			Pairs:     append([]PatchPair(nil), g...),
			Transform: MatrixRows(transforms[i]),
			Size:      len(g),
		}
		r.Groups = append(r.Groups, gr)
		pairTotal += len(g)
		if len(g) > r.Stats.LargestGroup {
			r.Stats.LargestGroup = len(g)
		}
	}
	r.Stats.GroupCount = len(groups)
	// Pairs shared between overlapping groups count once per membership.
	r.Stats.PairCount = pairTotal
	if len(groups) > 0 {
		r.Stats.MeanGroupSize = float64(pairTotal) / float64(len(groups))
	}

	return r, nil
}

// Transforms returns the group transforms as matrices, in group order.
func (r *DockingResult) Transforms() []mgl64.Mat4 {
	out := make([]mgl64.Mat4, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = MatrixFromRows(g.Transform)
	}
	return out
}

// BestGroup returns the index of the largest group, preferring the earlier
// group on ties, or -1 when the result has no groups. Group size is a
// contact-coverage heuristic for previews, not a scored pose ranking.
func (r *DockingResult) BestGroup() int {
	best := -1
	bestSize := 0
	for i, g := range r.Groups {
		if g.Size > bestSize {
			best = i
			bestSize = g.Size
		}
	}
	return best
}

// Summary returns a one-line description for logging.
func (r *DockingResult) Summary() string {
	return fmt.Sprintf("%s vs %s: %d groups, largest %d, %d pair memberships",
		r.TargetID, r.LigandID, r.Stats.GroupCount, r.Stats.LargestGroup, r.Stats.PairCount)
}

// PoseClouds rebuilds the merged point clouds for one stored group: the
// target-side cloud in its own frame and the ligand-side cloud transformed
// into the target frame by the group's pose. Both surfaces must carry mesh
// and descriptor data.
func PoseClouds(g GroupResult, target, ligand *Surface) (targetCloud, posedLigand PointCloud, err error) {
	if target == nil || target.Mesh == nil || target.Descriptors == nil {
		return nil, nil, fmt.Errorf("pose clouds: incomplete target surface")
	}
	if ligand == nil || ligand.Mesh == nil || ligand.Descriptors == nil {
		return nil, nil, fmt.Errorf("pose clouds: incomplete ligand surface")
	}

	group := MatchingGroup(g.Pairs)

	targetCloud, _, err = MergeCloud(group.TargetIndices(), target.Descriptors, target.Mesh)
	if err != nil {
		return nil, nil, fmt.Errorf("target side: %w", err)
	}

	ligandCloud, _, err := MergeCloud(group.LigandIndices(), ligand.Descriptors, ligand.Mesh)
	if err != nil {
		return nil, nil, fmt.Errorf("ligand side: %w", err)
	}

	posedLigand = TransformCloud(MatrixFromRows(g.Transform), ligandCloud)
	return targetCloud, posedLigand, nil
}

// IsStale reports whether the result is older than maxAge. A nil or
// zero-timestamp result is always stale.
func (r *DockingResult) IsStale(maxAge time.Duration) bool {
	if r == nil || r.Timestamp.IsZero() {
		return true
	}
	return time.Since(r.Timestamp) > maxAge
}

// ResultFileName returns the per-ligand result file name used under the data
// directory.
func ResultFileName(ligandID string) string {
	return fmt.Sprintf("DockingResult-%s.json", ligandID)
}

// LoadResults loads a persisted docking result from a JSON file.
func LoadResults(path string) (*DockingResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No result file yet
		}
		return nil, fmt.Errorf("reading results file: %w", err)
	}

	var r DockingResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing results file: %w", err)
	}

	return &r, nil
}

// SaveResults saves a docking result to a JSON file, creating the directory
// if needed.
func SaveResults(path string, r *DockingResult) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing results file: %w", err)
	}

	return nil
}
