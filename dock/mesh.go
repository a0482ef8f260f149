package dock

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Mesh owns the vertex and face topology of one molecular surface. The
// matching core reads it; construction and adjacency bookkeeping happen here
// during parsing.
type Mesh struct {
	vertices []Vertex
	faces    [][3]int
}

// NewMesh returns an empty mesh.
func NewMesh() *Mesh {
	return &Mesh{}
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v Vertex) int {
	m.vertices = append(m.vertices, v)
	return len(m.vertices) - 1
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.vertices)
}

// Vertex returns the vertex at the given index. The pointer stays valid until
// the next AddVertex call.
func (m *Mesh) Vertex(i int) *Vertex {
	return &m.vertices[i]
}

// FaceCount returns the number of triangular faces.
func (m *Mesh) FaceCount() int {
	return len(m.faces)
}

// Face returns the vertex indices of the face at the given index.
func (m *Mesh) Face(i int) [3]int {
	return m.faces[i]
}

// AddTriangle appends a triangular face and registers it on each corner
// vertex's adjacency list. Returns the new face index.
func (m *Mesh) AddTriangle(a, b, c int) (int, error) {
	for _, vi := range [3]int{a, b, c} {
		if vi < 0 || vi >= len(m.vertices) {
			return 0, fmt.Errorf("triangle (%d,%d,%d): vertex index %d out of range [0,%d)", a, b, c, vi, len(m.vertices))
		}
	}
	face := len(m.faces)
	m.faces = append(m.faces, [3]int{a, b, c})
	for corner, vi := range [3]int{a, b, c} {
		v := &m.vertices[vi]
		v.AdjacentFaces = append(v.AdjacentFaces, FaceRef{Face: face, Corner: corner})
	}
	return face, nil
}

// IncidentFaceCount returns how many faces touch the vertex at the given index.
func (m *Mesh) IncidentFaceCount(i int) int {
	return len(m.vertices[i].AdjacentFaces)
}

// IncidentFace returns the k-th face touching the vertex at the given index.
func (m *Mesh) IncidentFace(i, k int) (FaceRef, error) {
	refs := m.vertices[i].AdjacentFaces
	if k < 0 || k >= len(refs) {
		return FaceRef{}, fmt.Errorf("vertex %d: incident face %d out of range [0,%d)", i, k, len(refs))
	}
	return refs[k], nil
}

// ApplyTransform transforms every vertex in place: positions as points,
// normals as directions (renormalized afterwards). Zero normals stay zero.
func (m *Mesh) ApplyTransform(t mgl64.Mat4) {
	for i := range m.vertices {
		v := &m.vertices[i]
		v.Position = t.Mul4x1(v.Position.Vec4(1)).Vec3()
		n := t.Mul4x1(v.Normal.Vec4(0)).Vec3()
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		v.Normal = n
	}
}

// BoundingBox returns the axis-aligned bounds of the vertex positions.
// Returns zero vectors for an empty mesh.
func (m *Mesh) BoundingBox() (min, max mgl64.Vec3) {
	if len(m.vertices) == 0 {
		return mgl64.Vec3{}, mgl64.Vec3{}
	}
	min = m.vertices[0].Position
	max = m.vertices[0].Position
	for _, v := range m.vertices[1:] {
		for axis := 0; axis < 3; axis++ {
			if v.Position[axis] < min[axis] {
				min[axis] = v.Position[axis]
			}
			if v.Position[axis] > max[axis] {
				max[axis] = v.Position[axis]
			}
		}
	}
	return min, max
}

// Centroid returns the arithmetic mean of the vertex positions, or the zero
// vector for an empty mesh.
func (m *Mesh) Centroid() mgl64.Vec3 {
	if len(m.vertices) == 0 {
		return mgl64.Vec3{}
	}
	var sum mgl64.Vec3
	for _, v := range m.vertices {
		sum = sum.Add(v.Position)
	}
	return sum.Mul(1 / float64(len(m.vertices)))
}
