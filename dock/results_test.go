package dock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func TestNewDockingResult(t *testing.T) {
	t.Run("mismatched slices", func(t *testing.T) {
		groups := []MatchingGroup{{{0, 0}}, {{1, 0}}}
		transforms := []mgl64.Mat4{mgl64.Ident4()}
		_, err := NewDockingResult("receptor", "probe", DefaultMatchConfig(), groups, transforms)
		if err == nil || !strings.Contains(err.Error(), "2 groups but 1 transforms") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("metadata and stats", func(t *testing.T) {
		groups := []MatchingGroup{
			{{0, 0}, {1, 1}},
			{{2, 0}},
		}
		transforms := []mgl64.Mat4{mgl64.Ident4(), mgl64.Translate3D(1, 2, 3)}

		r, err := NewDockingResult("receptor", "probe", DefaultMatchConfig(), groups, transforms)
		if err != nil {
			t.Fatalf("NewDockingResult() error: %v", err)
		}

		if r.RunID == "" {
			t.Error("RunID is empty")
		}
		if r.Timestamp.IsZero() || r.Timestamp.Location() != time.UTC {
			t.Errorf("Timestamp = %v, want recent UTC", r.Timestamp)
		}
		if r.TargetID != "receptor" || r.LigandID != "probe" {
			t.Errorf("ids = %q/%q", r.TargetID, r.LigandID)
		}
		if r.Stats.GroupCount != 2 || r.Stats.LargestGroup != 2 || r.Stats.PairCount != 3 {
			t.Errorf("stats = %+v, want 2 groups, largest 2, 3 pairs", r.Stats)
		}
		if !almostEqual(r.Stats.MeanGroupSize, 1.5) {
			t.Errorf("MeanGroupSize = %g, want 1.5", r.Stats.MeanGroupSize)
		}
		if r.Groups[1].Transform[0][3] != 1 || r.Groups[1].Transform[1][3] != 2 {
			t.Errorf("transform rows = %v, want translation in last column", r.Groups[1].Transform)
		}
	})

	t.Run("empty run", func(t *testing.T) {
		r, err := NewDockingResult("receptor", "probe", DefaultMatchConfig(), nil, nil)
		if err != nil {
			t.Fatalf("NewDockingResult() error: %v", err)
		}
		if r.Stats.GroupCount != 0 || r.Stats.MeanGroupSize != 0 {
			t.Errorf("stats = %+v, want zeros", r.Stats)
		}
	})

	t.Run("pairs are copied", func(t *testing.T) {
		groups := []MatchingGroup{{{0, 0}}}
		r, err := NewDockingResult("receptor", "probe", DefaultMatchConfig(), groups, []mgl64.Mat4{mgl64.Ident4()})
		if err != nil {
			t.Fatalf("NewDockingResult() error: %v", err)
		}
		groups[0][0] = PatchPair{Target: 9, Ligand: 9}
		if r.Groups[0].Pairs[0].Target != 0 {
			t.Error("result shares pair slice with input group")
		}
	})
}

func TestDockingResultTransforms(t *testing.T) {
	groups := []MatchingGroup{{{0, 0}}, {{1, 0}}}
	want := []mgl64.Mat4{mgl64.Translate3D(4, 5, 6), mgl64.HomogRotate3DZ(0.3)}

	r, err := NewDockingResult("receptor", "probe", DefaultMatchConfig(), groups, want)
	if err != nil {
		t.Fatalf("NewDockingResult() error: %v", err)
	}

	got := r.Transforms()
	if len(got) != 2 {
		t.Fatalf("got %d transforms, want 2", len(got))
	}
	for i := range want {
		if !matsEqual(got[i], want[i]) {
			t.Errorf("transform %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDockingResultBestGroup(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
		want  int
	}{
		{"no groups", nil, -1},
		{"single group", []int{3}, 0},
		{"largest wins", []int{1, 4, 2}, 1},
		{"tie prefers earlier", []int{3, 3, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &DockingResult{}
			for _, size := range tt.sizes {
				r.Groups = append(r.Groups, GroupResult{Size: size})
			}
			if got := r.BestGroup(); got != tt.want {
				t.Errorf("BestGroup() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDockingResultSummary(t *testing.T) {
	r := &DockingResult{
		TargetID: "receptor",
		LigandID: "probe",
		Stats:    ResultStats{GroupCount: 3, LargestGroup: 4, PairCount: 7},
	}
	s := r.Summary()
	for _, want := range []string{"receptor", "probe", "3 groups", "largest 4", "7 pair"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary() = %q, missing %q", s, want)
		}
	}
}

func TestDockingResultIsStale(t *testing.T) {
	t.Run("nil result", func(t *testing.T) {
		var r *DockingResult
		if !r.IsStale(time.Hour) {
			t.Error("nil result should be stale")
		}
	})

	t.Run("zero timestamp", func(t *testing.T) {
		r := &DockingResult{}
		if !r.IsStale(time.Hour) {
			t.Error("zero timestamp should be stale")
		}
	})

	t.Run("fresh result", func(t *testing.T) {
		r := &DockingResult{Timestamp: time.Now().UTC()}
		if r.IsStale(time.Hour) {
			t.Error("fresh result should not be stale")
		}
	})

	t.Run("old result", func(t *testing.T) {
		r := &DockingResult{Timestamp: time.Now().Add(-2 * time.Hour)}
		if !r.IsStale(time.Hour) {
			t.Error("old result should be stale")
		}
	})
}

func TestPoseClouds(t *testing.T) {
	target := buildValidSurface(t)
	ligand := buildValidSurface(t)

	t.Run("incomplete surfaces", func(t *testing.T) {
		g := GroupResult{Pairs: []PatchPair{{0, 0}}, Transform: MatrixRows(mgl64.Ident4())}
		if _, _, err := PoseClouds(g, nil, ligand); err == nil {
			t.Error("expected error for nil target")
		}
		if _, _, err := PoseClouds(g, target, &Surface{}); err == nil {
			t.Error("expected error for bare ligand")
		}
	})

	t.Run("identity pose keeps ligand cloud in place", func(t *testing.T) {
		g := GroupResult{Pairs: []PatchPair{{0, 0}}, Transform: MatrixRows(mgl64.Ident4())}
		targetCloud, posed, err := PoseClouds(g, target, ligand)
		if err != nil {
			t.Fatalf("PoseClouds() error: %v", err)
		}
		// Patch 0 covers vertices 0 and 1 on both sides.
		if len(targetCloud) != 2 || len(posed) != 2 {
			t.Fatalf("cloud sizes = %d/%d, want 2/2", len(targetCloud), len(posed))
		}
		for i := range targetCloud {
			if !vecsEqual(posed[i], targetCloud[i]) {
				t.Errorf("posed[%d] = %v, want %v", i, posed[i], targetCloud[i])
			}
		}
	})

	t.Run("pose transform is applied to the ligand side", func(t *testing.T) {
		g := GroupResult{Pairs: []PatchPair{{0, 0}}, Transform: MatrixRows(mgl64.Translate3D(0, 0, 5))}
		_, posed, err := PoseClouds(g, target, ligand)
		if err != nil {
			t.Fatalf("PoseClouds() error: %v", err)
		}
		for i, p := range posed {
			if !almostEqual(p.Z(), 5) {
				t.Errorf("posed[%d].Z = %g, want 5", i, p.Z())
			}
		}
	})

	t.Run("bad pair index", func(t *testing.T) {
		g := GroupResult{Pairs: []PatchPair{{Target: 9, Ligand: 0}}, Transform: MatrixRows(mgl64.Ident4())}
		_, _, err := PoseClouds(g, target, ligand)
		if err == nil || !strings.Contains(err.Error(), "target side") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestResultFileName(t *testing.T) {
	if got := ResultFileName("probe"); got != "DockingResult-probe.json" {
		t.Errorf("ResultFileName() = %q, want DockingResult-probe.json", got)
	}
}

func TestResultsPersistence(t *testing.T) {
	t.Run("missing file returns nil without error", func(t *testing.T) {
		r, err := LoadResults(filepath.Join(t.TempDir(), "nope.json"))
		if err != nil {
			t.Fatalf("LoadResults() error: %v", err)
		}
		if r != nil {
			t.Errorf("result = %+v, want nil", r)
		}
	})

	t.Run("corrupt file errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := LoadResults(path)
		if err == nil || !strings.Contains(err.Error(), "parsing results file") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("save and reload", func(t *testing.T) {
		groups := []MatchingGroup{{{0, 1}, {1, 0}}}
		transforms := []mgl64.Mat4{mgl64.Translate3D(1, 0, 0)}
		original, err := NewDockingResult("receptor", "probe", DefaultMatchConfig(), groups, transforms)
		if err != nil {
			t.Fatalf("NewDockingResult() error: %v", err)
		}

		// Nested path exercises directory creation.
		path := filepath.Join(t.TempDir(), "results", "deep", ResultFileName("probe"))
		if err := SaveResults(path, original); err != nil {
			t.Fatalf("SaveResults() error: %v", err)
		}

		loaded, err := LoadResults(path)
		if err != nil {
			t.Fatalf("LoadResults() error: %v", err)
		}
		if loaded.RunID != original.RunID {
			t.Errorf("RunID = %q, want %q", loaded.RunID, original.RunID)
		}
		if len(loaded.Groups) != 1 || loaded.Groups[0].Size != 2 {
			t.Errorf("groups = %+v", loaded.Groups)
		}
		if !matsEqual(loaded.Transforms()[0], transforms[0]) {
			t.Errorf("reloaded transform = %v, want %v", loaded.Transforms()[0], transforms[0])
		}
		if !loaded.Timestamp.Equal(original.Timestamp) {
			t.Errorf("Timestamp = %v, want %v", loaded.Timestamp, original.Timestamp)
		}
	})
}
