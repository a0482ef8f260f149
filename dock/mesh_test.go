package dock

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestNewMesh(t *testing.T) {
	m := NewMesh()
	if m == nil {
		t.Fatal("NewMesh returned nil")
	}
	if m.VertexCount() != 0 {
		t.Errorf("VertexCount = %d, want 0", m.VertexCount())
	}
	if m.FaceCount() != 0 {
		t.Errorf("FaceCount = %d, want 0", m.FaceCount())
	}
}

func TestMesh_AddVertex(t *testing.T) {
	m := NewMesh()

	i0 := m.AddVertex(Vertex{Position: mgl64.Vec3{1, 0, 0}})
	i1 := m.AddVertex(Vertex{Position: mgl64.Vec3{0, 1, 0}})

	if i0 != 0 || i1 != 1 {
		t.Errorf("AddVertex indices = %d, %d, want 0, 1", i0, i1)
	}
	if m.VertexCount() != 2 {
		t.Errorf("VertexCount = %d, want 2", m.VertexCount())
	}
	if got := m.Vertex(1).Position; got != (mgl64.Vec3{0, 1, 0}) {
		t.Errorf("Vertex(1).Position = %v, want (0,1,0)", got)
	}
}

func TestMesh_AddTriangle(t *testing.T) {
	m := NewMesh()
	for i := 0; i < 3; i++ {
		m.AddVertex(Vertex{Position: mgl64.Vec3{float64(i), 0, 0}})
	}

	face, err := m.AddTriangle(0, 1, 2)
	if err != nil {
		t.Fatalf("AddTriangle error: %v", err)
	}
	if face != 0 {
		t.Errorf("face index = %d, want 0", face)
	}
	if m.FaceCount() != 1 {
		t.Errorf("FaceCount = %d, want 1", m.FaceCount())
	}
	if got := m.Face(0); got != [3]int{0, 1, 2} {
		t.Errorf("Face(0) = %v, want [0 1 2]", got)
	}
}

func TestMesh_AddTriangle_Adjacency(t *testing.T) {
	m := NewMesh()
	for i := 0; i < 4; i++ {
		m.AddVertex(Vertex{})
	}

	// Two triangles sharing the edge 1-2
	if _, err := m.AddTriangle(0, 1, 2); err != nil {
		t.Fatalf("AddTriangle error: %v", err)
	}
	if _, err := m.AddTriangle(1, 3, 2); err != nil {
		t.Fatalf("AddTriangle error: %v", err)
	}

	tests := []struct {
		vertex    int
		wantCount int
	}{
		{0, 1},
		{1, 2},
		{2, 2},
		{3, 1},
	}
	for _, tt := range tests {
		if got := m.IncidentFaceCount(tt.vertex); got != tt.wantCount {
			t.Errorf("IncidentFaceCount(%d) = %d, want %d", tt.vertex, got, tt.wantCount)
		}
	}

	// Vertex 1 is corner 1 of face 0 and corner 0 of face 1
	ref, err := m.IncidentFace(1, 0)
	if err != nil {
		t.Fatalf("IncidentFace error: %v", err)
	}
	if ref.Face != 0 || ref.Corner != 1 {
		t.Errorf("IncidentFace(1, 0) = %+v, want {Face:0 Corner:1}", ref)
	}
	ref, err = m.IncidentFace(1, 1)
	if err != nil {
		t.Fatalf("IncidentFace error: %v", err)
	}
	if ref.Face != 1 || ref.Corner != 0 {
		t.Errorf("IncidentFace(1, 1) = %+v, want {Face:1 Corner:0}", ref)
	}
}

func TestMesh_AddTriangle_InvalidIndex(t *testing.T) {
	m := NewMesh()
	m.AddVertex(Vertex{})
	m.AddVertex(Vertex{})

	if _, err := m.AddTriangle(0, 1, 2); err == nil {
		t.Error("AddTriangle with out-of-range index should error")
	} else if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := m.AddTriangle(-1, 0, 1); err == nil {
		t.Error("AddTriangle with negative index should error")
	}

	// Failed adds must not leave partial faces behind
	if m.FaceCount() != 0 {
		t.Errorf("FaceCount after failed adds = %d, want 0", m.FaceCount())
	}
}

func TestMesh_IncidentFace_OutOfRange(t *testing.T) {
	m := NewMesh()
	for i := 0; i < 3; i++ {
		m.AddVertex(Vertex{})
	}
	if _, err := m.AddTriangle(0, 1, 2); err != nil {
		t.Fatalf("AddTriangle error: %v", err)
	}

	if _, err := m.IncidentFace(0, 1); err == nil {
		t.Error("IncidentFace past the adjacency list should error")
	}
	if _, err := m.IncidentFace(0, -1); err == nil {
		t.Error("IncidentFace with negative index should error")
	}
}

func TestMesh_ApplyTransform(t *testing.T) {
	t.Run("translation moves positions, not normals", func(t *testing.T) {
		m := NewMesh()
		m.AddVertex(Vertex{
			Position: mgl64.Vec3{1, 2, 3},
			Normal:   mgl64.Vec3{0, 0, 1},
		})

		m.ApplyTransform(mgl64.Translate3D(10, 20, 30))

		v := m.Vertex(0)
		if !vecsEqual(v.Position, mgl64.Vec3{11, 22, 33}) {
			t.Errorf("Position = %v, want (11,22,33)", v.Position)
		}
		if !vecsEqual(v.Normal, mgl64.Vec3{0, 0, 1}) {
			t.Errorf("Normal = %v, want (0,0,1)", v.Normal)
		}
	})

	t.Run("rotation rotates normals and keeps unit length", func(t *testing.T) {
		m := NewMesh()
		m.AddVertex(Vertex{
			Position: mgl64.Vec3{1, 0, 0},
			Normal:   mgl64.Vec3{1, 0, 0},
		})

		m.ApplyTransform(mgl64.HomogRotate3DZ(mgl64.DegToRad(90)))

		v := m.Vertex(0)
		if !vecsEqual(v.Position, mgl64.Vec3{0, 1, 0}) {
			t.Errorf("Position = %v, want (0,1,0)", v.Position)
		}
		if !vecsEqual(v.Normal, mgl64.Vec3{0, 1, 0}) {
			t.Errorf("Normal = %v, want (0,1,0)", v.Normal)
		}
		if !almostEqual(v.Normal.Len(), 1.0) {
			t.Errorf("Normal length = %g, want 1", v.Normal.Len())
		}
	})

	t.Run("zero normal stays zero", func(t *testing.T) {
		m := NewMesh()
		m.AddVertex(Vertex{Position: mgl64.Vec3{1, 1, 1}})

		m.ApplyTransform(mgl64.HomogRotate3DZ(mgl64.DegToRad(45)))

		if got := m.Vertex(0).Normal; got != (mgl64.Vec3{}) {
			t.Errorf("zero Normal became %v", got)
		}
	})
}

func TestMesh_BoundingBox(t *testing.T) {
	t.Run("empty mesh", func(t *testing.T) {
		m := NewMesh()
		min, max := m.BoundingBox()
		if min != (mgl64.Vec3{}) || max != (mgl64.Vec3{}) {
			t.Errorf("empty BoundingBox = %v, %v, want zero vectors", min, max)
		}
	})

	t.Run("spread vertices", func(t *testing.T) {
		m := NewMesh()
		m.AddVertex(Vertex{Position: mgl64.Vec3{-1, 5, 2}})
		m.AddVertex(Vertex{Position: mgl64.Vec3{3, -2, 0}})
		m.AddVertex(Vertex{Position: mgl64.Vec3{0, 0, 7}})

		min, max := m.BoundingBox()
		if !vecsEqual(min, mgl64.Vec3{-1, -2, 0}) {
			t.Errorf("min = %v, want (-1,-2,0)", min)
		}
		if !vecsEqual(max, mgl64.Vec3{3, 5, 7}) {
			t.Errorf("max = %v, want (3,5,7)", max)
		}
	})
}

func TestMesh_Centroid(t *testing.T) {
	t.Run("empty mesh", func(t *testing.T) {
		m := NewMesh()
		if got := m.Centroid(); got != (mgl64.Vec3{}) {
			t.Errorf("empty Centroid = %v, want zero", got)
		}
	})

	t.Run("unit square corners", func(t *testing.T) {
		m := NewMesh()
		m.AddVertex(Vertex{Position: mgl64.Vec3{0, 0, 0}})
		m.AddVertex(Vertex{Position: mgl64.Vec3{1, 0, 0}})
		m.AddVertex(Vertex{Position: mgl64.Vec3{1, 1, 0}})
		m.AddVertex(Vertex{Position: mgl64.Vec3{0, 1, 0}})

		if got := m.Centroid(); !vecsEqual(got, mgl64.Vec3{0.5, 0.5, 0}) {
			t.Errorf("Centroid = %v, want (0.5,0.5,0)", got)
		}
	})
}

func BenchmarkMesh_ApplyTransform(b *testing.B) {
	m := NewMesh()
	for i := 0; i < 1000; i++ {
		m.AddVertex(Vertex{
			Position: mgl64.Vec3{float64(i), float64(i % 7), float64(i % 13)},
			Normal:   mgl64.Vec3{0, 0, 1},
		})
	}
	transform := mgl64.HomogRotate3DZ(0.01)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ApplyTransform(transform)
	}
}
