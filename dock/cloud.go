package dock

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// PointCloud is a set of positions deduplicated by exact coordinate equality
// and held in lexicographic (x, y, z) order, so iteration is deterministic.
type PointCloud []mgl64.Vec3

// lexLess orders positions by x, then y, then z.
func lexLess(a, b mgl64.Vec3) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[2] < b[2]
}

// MergeCloud collects every vertex position reachable from the given patches
// into one deduplicated cloud, and averages the patches' representative
// normals into a unit vector.
//
// A position shared by several patches appears exactly once. Duplicate
// detection is exact coordinate equality; positions that differ by any amount
// are kept as distinct points.
//
// Errors: empty patch list, out-of-range patch or node index, zero-length
// normal sum.
func MergeCloud(patchIndices []int, desc *SurfaceDescriptors, mesh *Mesh) (PointCloud, mgl64.Vec3, error) {
	if len(patchIndices) == 0 {
		return nil, mgl64.Vec3{}, fmt.Errorf("merge cloud: empty patch list")
	}

	var normalSum mgl64.Vec3
	var points []mgl64.Vec3
	for _, pi := range patchIndices {
		if pi < 0 || pi >= desc.Len() {
			return nil, mgl64.Vec3{}, fmt.Errorf("merge cloud: patch index %d out of range [0,%d)", pi, desc.Len())
		}
		patch := &desc.Patches[pi]
		normalSum = normalSum.Add(patch.Normal)
		for _, ni := range patch.Nodes {
			if ni < 0 || ni >= mesh.VertexCount() {
				return nil, mgl64.Vec3{}, fmt.Errorf("merge cloud: patch %d node index %d out of range [0,%d)", pi, ni, mesh.VertexCount())
			}
			points = append(points, mesh.Vertex(ni).Position)
		}
	}

	avg := normalSum.Mul(1 / float64(len(patchIndices)))
	length := avg.Len()
	if length == 0 {
		return nil, mgl64.Vec3{}, fmt.Errorf("merge cloud: average normal is zero")
	}
	avg = avg.Mul(1 / length)

	if len(points) == 0 {
		return nil, avg, nil
	}

	sort.Slice(points, func(i, j int) bool { return lexLess(points[i], points[j]) })
	cloud := points[:1]
	for _, p := range points[1:] {
		if p != cloud[len(cloud)-1] {
			cloud = append(cloud, p)
		}
	}
	return cloud, avg, nil
}

// Centroid returns the arithmetic mean of the cloud's points. An empty cloud
// has no centroid and returns an error.
func (c PointCloud) Centroid() (mgl64.Vec3, error) {
	if len(c) == 0 {
		return mgl64.Vec3{}, fmt.Errorf("centroid: empty point cloud")
	}
	var sum mgl64.Vec3
	for _, p := range c {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(c))), nil
}

// Bounds returns the axis-aligned bounding box of the cloud. Returns zero
// vectors for an empty cloud.
func (c PointCloud) Bounds() (min, max mgl64.Vec3) {
	if len(c) == 0 {
		return mgl64.Vec3{}, mgl64.Vec3{}
	}
	min, max = c[0], c[0]
	for _, p := range c[1:] {
		for axis := 0; axis < 3; axis++ {
			if p[axis] < min[axis] {
				min[axis] = p[axis]
			}
			if p[axis] > max[axis] {
				max[axis] = p[axis]
			}
		}
	}
	return min, max
}
