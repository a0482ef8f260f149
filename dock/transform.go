package dock

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// zeroAxisEpsilon is the axis length below which the rotation axis is treated
// as degenerate (normals parallel or antiparallel).
const zeroAxisEpsilon = 1e-10

// TransformPoint applies a rigid transform to a position (w = 1).
func TransformPoint(t mgl64.Mat4, p mgl64.Vec3) mgl64.Vec3 {
	return t.Mul4x1(p.Vec4(1)).Vec3()
}

// TransformDirection applies only the rotational part of a transform (w = 0).
func TransformDirection(t mgl64.Mat4, d mgl64.Vec3) mgl64.Vec3 {
	return t.Mul4x1(d.Vec4(0)).Vec3()
}

// TransformCloud returns a new cloud with the transform applied to every
// point. The result keeps the input's point order; it is not re-sorted.
func TransformCloud(t mgl64.Mat4, c PointCloud) PointCloud {
	out := make(PointCloud, len(c))
	for i, p := range c {
		out[i] = TransformPoint(t, p)
	}
	return out
}

// rotationBetweenNormals builds the rotation carrying the ligand's average
// normal toward the target's.
//
// The construction is deliberate and preserved exactly: the axis is the raw
// cross product (not normalized), the angle is (acos(dot)+pi)/2 rather than
// the minimal acos(dot), and the quaternion is (cos a, axis*sin a) with the
// angle used directly. When the normals are parallel or antiparallel the
// cross product vanishes and no axis exists; the rotation falls back to
// identity instead of propagating a degenerate matrix.
func rotationBetweenNormals(from, to mgl64.Vec3) mgl64.Mat4 {
	axis := from.Cross(to)
	if axis.Len() < zeroAxisEpsilon {
		return mgl64.Ident4()
	}
	dot := mgl64.Clamp(from.Dot(to), -1, 1)
	angle := (math.Acos(dot) + math.Pi) / 2
	q := mgl64.Quat{W: math.Cos(angle), V: axis.Mul(math.Sin(angle))}
	return q.Mat4()
}

// EstimateTransform computes the rigid transform that carries the ligand
// cloud onto the target cloud: recenter the ligand at its centroid, rotate
// its average normal toward the target's, then translate to the target
// centroid.
//
// This aligns centroids and average normals only; it is a coarse pose, not a
// point-set registration. Empty clouds have no centroid and return an error.
func EstimateTransform(targetCloud PointCloud, targetNormal mgl64.Vec3, ligandCloud PointCloud, ligandNormal mgl64.Vec3) (mgl64.Mat4, error) {
	targetCentroid, err := targetCloud.Centroid()
	if err != nil {
		return mgl64.Ident4(), fmt.Errorf("target cloud: %w", err)
	}
	ligandCentroid, err := ligandCloud.Centroid()
	if err != nil {
		return mgl64.Ident4(), fmt.Errorf("ligand cloud: %w", err)
	}

	rot := rotationBetweenNormals(ligandNormal, targetNormal)

	final := mgl64.Translate3D(targetCentroid.X(), targetCentroid.Y(), targetCentroid.Z()).
		Mul4(rot).
		Mul4(mgl64.Translate3D(-ligandCentroid.X(), -ligandCentroid.Y(), -ligandCentroid.Z()))
	return final, nil
}

// TransformationsFromGroups computes one transform per matching group, in
// group order. Each group is split into its target-side and ligand-side patch
// index lists, both sides are merged into clouds, and the transform is
// estimated from the clouds and average normals.
//
// An empty group list yields an empty result. A group whose clouds cannot be
// merged (empty side, bad index, zero normal) fails the whole call; the
// builder never produces such groups, so this only surfaces on hand-built
// input.
func TransformationsFromGroups(groups []MatchingGroup, target, ligand *Surface) ([]mgl64.Mat4, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	if target == nil || target.Mesh == nil || target.Descriptors == nil {
		return nil, fmt.Errorf("transformations: incomplete target surface")
	}
	if ligand == nil || ligand.Mesh == nil || ligand.Descriptors == nil {
		return nil, fmt.Errorf("transformations: incomplete ligand surface")
	}

	out := make([]mgl64.Mat4, 0, len(groups))
	for gi, group := range groups {
		targetCloud, targetNormal, err := MergeCloud(group.TargetIndices(), target.Descriptors, target.Mesh)
		if err != nil {
			return nil, fmt.Errorf("group %d target side: %w", gi, err)
		}
		ligandCloud, ligandNormal, err := MergeCloud(group.LigandIndices(), ligand.Descriptors, ligand.Mesh)
		if err != nil {
			return nil, fmt.Errorf("group %d ligand side: %w", gi, err)
		}
		t, err := EstimateTransform(targetCloud, targetNormal, ligandCloud, ligandNormal)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", gi, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// MatrixRows converts a column-major mgl64.Mat4 into row-major nested arrays
// for JSON output.
func MatrixRows(m mgl64.Mat4) [4][4]float64 {
	var rows [4][4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			rows[r][c] = m.At(r, c)
		}
	}
	return rows
}

// MatrixFromRows converts row-major nested arrays back into an mgl64.Mat4.
func MatrixFromRows(rows [4][4]float64) mgl64.Mat4 {
	var m mgl64.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, rows[r][c])
		}
	}
	return m
}
