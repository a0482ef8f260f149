package dock

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SurfaceStats summarizes a parsed surface for logging and the HTTP status
// endpoints. Curvature figures are taken from the patch descriptors, not the
// per-vertex curvature vectors.
type SurfaceStats struct {
	Name           string     `json:"name"`
	VertexCount    int        `json:"vertex_count"`
	FaceCount      int        `json:"face_count"`
	PatchCount     int        `json:"patch_count"`
	ConvexPatches  int        `json:"convex_patches"`
	ConcavePatches int        `json:"concave_patches"`
	FlatPatches    int        `json:"flat_patches"`
	MinCurvature   float64    `json:"min_curvature"`
	MaxCurvature   float64    `json:"max_curvature"`
	MeanCurvature  float64    `json:"mean_curvature"`
	MeanPatchSize  float64    `json:"mean_patch_size"`
	LargestPatch   int        `json:"largest_patch"`
	BoundsMin      [3]float64 `json:"bounds_min"`
	BoundsMax      [3]float64 `json:"bounds_max"`
	Centroid       [3]float64 `json:"centroid"`
}

// ComputeSurfaceStats extracts summary statistics from a surface.
func ComputeSurfaceStats(s *Surface) SurfaceStats {
	st := SurfaceStats{}
	if s == nil {
		return st
	}
	st.Name = s.Name

	if s.Mesh != nil {
		st.VertexCount = s.Mesh.VertexCount()
		st.FaceCount = s.Mesh.FaceCount()
		if st.VertexCount > 0 {
			bmin, bmax := s.Mesh.BoundingBox()
			st.BoundsMin = [3]float64{bmin.X(), bmin.Y(), bmin.Z()}
			st.BoundsMax = [3]float64{bmax.X(), bmax.Y(), bmax.Z()}
			c := s.Mesh.Centroid()
			st.Centroid = [3]float64{c.X(), c.Y(), c.Z()}
		}
	}

	if s.Descriptors == nil || s.Descriptors.Len() == 0 {
		return st
	}
	st.PatchCount = s.Descriptors.Len()

	st.MinCurvature = math.MaxFloat64
	st.MaxCurvature = -math.MaxFloat64
	var curvSum float64
	var nodeSum int
	for i, d := range s.Descriptors.Descriptors {
		switch d.Convexity {
		case Convex:
			st.ConvexPatches++
		case Concave:
			st.ConcavePatches++
		case Flat:
			st.FlatPatches++
		}
		if d.Curvature < st.MinCurvature {
			st.MinCurvature = d.Curvature
		}
		if d.Curvature > st.MaxCurvature {
			st.MaxCurvature = d.Curvature
		}
		curvSum += d.Curvature

		n := len(s.Descriptors.Patches[i].Nodes)
		nodeSum += n
		if n > st.LargestPatch {
			st.LargestPatch = n
		}
	}
	st.MeanCurvature = curvSum / float64(st.PatchCount)
	st.MeanPatchSize = float64(nodeSum) / float64(st.PatchCount)

	return st
}

// EligiblePairCount returns how many (target, ligand) patch pairs pass the
// complementarity filter: differing convexity classes and at least one
// nonzero curvature. This is the candidate pool size before ranking.
func EligiblePairCount(target, ligand *SurfaceDescriptors) int {
	if target == nil || ligand == nil {
		return 0
	}
	count := 0
	for _, td := range target.Descriptors {
		for _, ld := range ligand.Descriptors {
			if td.Convexity == ld.Convexity {
				continue
			}
			if math.Max(td.Curvature, ld.Curvature) == 0 {
				continue
			}
			count++
		}
	}
	return count
}

// curvatureHistogramBins is the fixed bin count for curvature histograms.
const curvatureHistogramBins = 32

// CurvatureHistogram is the distribution of patch curvatures over a surface,
// binned uniformly between the observed minimum and maximum.
type CurvatureHistogram struct {
	Bins       [curvatureHistogramBins]float64 // normalized
	RawCounts  [curvatureHistogramBins]int
	Min, Max   float64
	TotalCount int
}

// ExtractCurvatureHistogram builds a curvature histogram from a surface's
// patch descriptors. A surface whose curvatures are all identical puts every
// patch into the first bin.
func ExtractCurvatureHistogram(desc *SurfaceDescriptors) CurvatureHistogram {
	var hist CurvatureHistogram
	if desc == nil || len(desc.Descriptors) == 0 {
		return hist
	}

	hist.Min = math.MaxFloat64
	hist.Max = -math.MaxFloat64
	for _, d := range desc.Descriptors {
		if d.Curvature < hist.Min {
			hist.Min = d.Curvature
		}
		if d.Curvature > hist.Max {
			hist.Max = d.Curvature
		}
	}

	span := hist.Max - hist.Min
	for _, d := range desc.Descriptors {
		bin := 0
		if span > 0 {
			bin = int((d.Curvature - hist.Min) / span * float64(curvatureHistogramBins))
			if bin >= curvatureHistogramBins {
				bin = curvatureHistogramBins - 1
			}
		}
		hist.RawCounts[bin]++
		hist.TotalCount++
	}

	for i := 0; i < curvatureHistogramBins; i++ {
		hist.Bins[i] = float64(hist.RawCounts[i]) / float64(hist.TotalCount)
	}

	return hist
}

// CompareCurvatureHistograms scores the overlap of two curvature
// distributions, 0 to 1 with 1 for identical shapes. Bin positions are
// compared directly, so the score reflects distribution shape within each
// surface's own curvature range, not absolute curvature scale.
func CompareCurvatureHistograms(h1, h2 CurvatureHistogram) float64 {
	if h1.TotalCount == 0 || h2.TotalCount == 0 {
		return 0
	}
	var similarity float64
	for i := 0; i < curvatureHistogramBins; i++ {
		similarity += math.Sqrt(h1.Bins[i] * h2.Bins[i])
	}
	return similarity
}

// SelectTargetSurface picks the surface to treat as the docking target. A
// non-empty preferred ID wins when it is present; otherwise the surface with
// the most patches is chosen, with vertex count and then ID as tie-breakers
// so the choice is deterministic.
func SelectTargetSurface(surfaces map[string]*Surface, preferred string) string {
	if preferred != "" {
		if _, ok := surfaces[preferred]; ok {
			return preferred
		}
	}

	best := ""
	bestPatches := -1
	bestVertices := -1
	for id, s := range surfaces {
		patches := 0
		if s != nil && s.Descriptors != nil {
			patches = s.Descriptors.Len()
		}
		vertices := 0
		if s != nil && s.Mesh != nil {
			vertices = s.Mesh.VertexCount()
		}
		switch {
		case patches > bestPatches:
		case patches == bestPatches && vertices > bestVertices:
		case patches == bestPatches && vertices == bestVertices && (best == "" || id < best):
		default:
			continue
		}
		best = id
		bestPatches = patches
		bestVertices = vertices
	}
	return best
}
