package dock

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
)

// ParseSurfaceFile reads and parses a surface export JSON file.
func ParseSurfaceFile(path string) (*SurfaceData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseSurfaceJSON(data)
}

// ParseSurfaceJSON parses surface export JSON data.
func ParseSurfaceJSON(data []byte) (*SurfaceData, error) {
	var sd SurfaceData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &sd, nil
}

func vec3(a [3]float64) mgl64.Vec3 {
	return mgl64.Vec3{a[0], a[1], a[2]}
}

// BuildSurface converts a wire-format surface export into an in-memory
// Surface, validating face and patch node indices against the vertex list.
// A vertex without a convexity string defaults to flat.
func BuildSurface(sd *SurfaceData) (*Surface, error) {
	if sd == nil {
		return nil, fmt.Errorf("nil surface data")
	}

	mesh := NewMesh()
	for i, vd := range sd.Vertices {
		v := Vertex{
			Position:  vec3(vd.Position),
			Normal:    vec3(vd.Normal),
			Curvature: vec3(vd.Curvature),
			Convexity: Flat,
		}
		if vd.Convexity != "" {
			conv, err := ParseConvexity(vd.Convexity)
			if err != nil {
				return nil, fmt.Errorf("vertex %d: %w", i, err)
			}
			v.Convexity = conv
		}
		mesh.AddVertex(v)
	}
	for i, f := range sd.Faces {
		if _, err := mesh.AddTriangle(f[0], f[1], f[2]); err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
	}

	if len(sd.Patches) != len(sd.Descriptors) {
		return nil, fmt.Errorf("%d patches but %d descriptors", len(sd.Patches), len(sd.Descriptors))
	}
	descs := &SurfaceDescriptors{
		Patches:     make([]Patch, 0, len(sd.Patches)),
		Descriptors: make([]Descriptor, 0, len(sd.Descriptors)),
	}
	for _, pd := range sd.Patches {
		descs.Patches = append(descs.Patches, Patch{
			Position: vec3(pd.Position),
			Normal:   vec3(pd.Normal),
			Nodes:    append([]int(nil), pd.Nodes...),
		})
	}
	for i, dd := range sd.Descriptors {
		conv, err := ParseConvexity(dd.Convexity)
		if err != nil {
			return nil, fmt.Errorf("descriptor %d: %w", i, err)
		}
		descs.Descriptors = append(descs.Descriptors, Descriptor{
			Curvature: dd.Curvature,
			Convexity: conv,
		})
	}
	if err := descs.Validate(mesh.VertexCount()); err != nil {
		return nil, err
	}

	return &Surface{Name: sd.Name, Mesh: mesh, Descriptors: descs}, nil
}

// LoadSurfaceFile reads, parses, and builds a surface in one step. This is a
// convenience for the CLI paths; the MQTT path goes through DecodeSurfaceData
// instead.
func LoadSurfaceFile(path string) (*Surface, error) {
	sd, err := ParseSurfaceFile(path)
	if err != nil {
		return nil, err
	}
	return BuildSurface(sd)
}
