package dock

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Convexity classifies the local shape of a surface region. Docking pairs
// regions of complementary classes (convex against concave).
type Convexity int

const (
	Convex Convexity = iota
	Concave
	Flat
)

// String returns the lowercase name used in surface exports.
func (c Convexity) String() string {
	switch c {
	case Convex:
		return "convex"
	case Concave:
		return "concave"
	case Flat:
		return "flat"
	default:
		return fmt.Sprintf("convexity(%d)", int(c))
	}
}

// ParseConvexity converts an export string into a Convexity.
func ParseConvexity(s string) (Convexity, error) {
	switch s {
	case "convex":
		return Convex, nil
	case "concave":
		return Concave, nil
	case "flat", "saddle":
		return Flat, nil
	default:
		return Flat, fmt.Errorf("unknown convexity %q", s)
	}
}

// MarshalJSON encodes the convexity as its export string.
func (c Convexity) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the convexity from its export string.
func (c *Convexity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseConvexity(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FaceRef locates one corner of a triangular face: the face index within the
// mesh and which of its three corners refers back to the vertex.
type FaceRef struct {
	Face   int
	Corner int
}

// Vertex is one point of a surface mesh. Vertices are owned by their Mesh;
// external stages mutate them through the setters and through
// Mesh.ApplyTransform.
type Vertex struct {
	Position      mgl64.Vec3
	Normal        mgl64.Vec3
	Curvature     mgl64.Vec3
	Convexity     Convexity
	Color         mgl64.Vec3
	AdjacentFaces []FaceRef
}

// SetCurvature records the principal-curvature vector computed by the
// descriptor stage.
func (v *Vertex) SetCurvature(c mgl64.Vec3) { v.Curvature = c }

// SetConvexity records the convexity class computed by the descriptor stage.
func (v *Vertex) SetConvexity(c Convexity) { v.Convexity = c }

// SetColor records a display color for the vertex.
func (v *Vertex) SetColor(c mgl64.Vec3) { v.Color = c }

// Patch is a contiguous surface region treated as one matching unit. The
// representative position and normal summarize the region; Nodes lists the
// member vertex indices in the owning mesh.
type Patch struct {
	Position mgl64.Vec3
	Normal   mgl64.Vec3
	Nodes    []int
}

// Descriptor is the precomputed geometric summary of a patch.
type Descriptor struct {
	Curvature float64
	Convexity Convexity
}

// SurfaceDescriptors pairs patches with their descriptors. The pairing is
// positional: Descriptors[i] always describes Patches[i].
type SurfaceDescriptors struct {
	Patches     []Patch
	Descriptors []Descriptor
}

// Len returns the number of patch/descriptor entries.
func (sd *SurfaceDescriptors) Len() int {
	if sd == nil {
		return 0
	}
	return len(sd.Patches)
}

// Validate checks patch/descriptor alignment and that every patch node index
// refers to a vertex of a mesh with the given vertex count.
func (sd *SurfaceDescriptors) Validate(vertexCount int) error {
	if sd == nil {
		return fmt.Errorf("nil surface descriptors")
	}
	if len(sd.Patches) != len(sd.Descriptors) {
		return fmt.Errorf("%d patches but %d descriptors", len(sd.Patches), len(sd.Descriptors))
	}
	for i, p := range sd.Patches {
		for _, ni := range p.Nodes {
			if ni < 0 || ni >= vertexCount {
				return fmt.Errorf("patch %d: node index %d out of range [0,%d)", i, ni, vertexCount)
			}
		}
	}
	return nil
}

// PatchPair joins a target patch index with a ligand patch index.
type PatchPair struct {
	Target int `json:"target"`
	Ligand int `json:"ligand"`
}

// MatchingGroup is an ordered list of patch pairs judged spatially coherent:
// every pair satisfies the geodesic threshold against every other pair in the
// group, on both sides. Groups may overlap; the set is not a partition.
type MatchingGroup []PatchPair

// TargetIndices returns the target-side patch indices in pair order.
func (g MatchingGroup) TargetIndices() []int {
	out := make([]int, len(g))
	for i, p := range g {
		out[i] = p.Target
	}
	return out
}

// LigandIndices returns the ligand-side patch indices in pair order.
func (g MatchingGroup) LigandIndices() []int {
	out := make([]int, len(g))
	for i, p := range g {
		out[i] = p.Ligand
	}
	return out
}

// Surface bundles one parsed surface: its mesh topology and its segmentation
// into described patches.
type Surface struct {
	Name        string
	Mesh        *Mesh
	Descriptors *SurfaceDescriptors
}

// SurfaceData is the wire format for surface exports produced by the
// segmentation stage.
type SurfaceData struct {
	Name        string           `json:"name"`
	Vertices    []VertexData     `json:"vertices"`
	Faces       [][3]int         `json:"faces,omitempty"`
	Patches     []PatchData      `json:"patches"`
	Descriptors []DescriptorData `json:"descriptors"`
}

// VertexData is the wire form of a mesh vertex.
type VertexData struct {
	Position  [3]float64 `json:"position"`
	Normal    [3]float64 `json:"normal"`
	Curvature [3]float64 `json:"curvature"`
	Convexity string     `json:"convexity,omitempty"`
}

// PatchData is the wire form of a patch.
type PatchData struct {
	Position [3]float64 `json:"position"`
	Normal   [3]float64 `json:"normal"`
	Nodes    []int      `json:"nodes"`
}

// DescriptorData is the wire form of a patch descriptor.
type DescriptorData struct {
	Curvature float64 `json:"curvature"`
	Convexity string  `json:"convexity"`
}

// Surface roles in a docking run.
const (
	RoleTarget = "target"
	RoleLigand = "ligand"
)

// Config is the top-level service configuration loaded from YAML.
type Config struct {
	Match    MatchSettings   `yaml:"match"`
	Surfaces []SurfaceConfig `yaml:"surfaces"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	HTTP     HTTPConfig      `yaml:"http"`
	Render   RenderConfig    `yaml:"render"`
	Logging  LoggingConfig   `yaml:"logging"`
	DataDir  string          `yaml:"data_dir"`
}

// MatchSettings mirrors MatchConfig with optional fields so an omitted YAML
// value falls back to the default while an explicit zero is honored.
type MatchSettings struct {
	NBestPairs        *int     `yaml:"n_best_pairs"`
	GeodesicThreshold *float64 `yaml:"geodesic_threshold"`
}

// Resolve returns the effective match configuration.
func (m MatchSettings) Resolve() MatchConfig {
	cfg := DefaultMatchConfig()
	if m.NBestPairs != nil {
		cfg.NBestPairs = *m.NBestPairs
	}
	if m.GeodesicThreshold != nil {
		cfg.GeodesicThreshold = *m.GeodesicThreshold
	}
	return cfg
}

// SurfaceConfig describes one surface the service consumes.
type SurfaceConfig struct {
	ID    string  `yaml:"id"`
	Role  string  `yaml:"role"`
	Topic string  `yaml:"topic,omitempty"`
	URL   string  `yaml:"url,omitempty"`
	Color *string `yaml:"color,omitempty"`
}

// GetColor returns the configured hex color, or empty when the palette
// default should be used.
func (s *SurfaceConfig) GetColor() string {
	if s.Color == nil {
		return ""
	}
	return *s.Color
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Publish  PublishConfig `yaml:"publish"`
}

// PublishConfig holds result publishing settings.
type PublishConfig struct {
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// HTTPConfig holds the HTTP server settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// RenderConfig holds render tuning shared by the raster and vector renderers.
type RenderConfig struct {
	Scale             float64 `yaml:"scale"`
	Padding           float64 `yaml:"padding"`
	CellSize          float64 `yaml:"cell_size"`
	SimplifyTolerance float64 `yaml:"simplify_tolerance"`
}

// LoggingConfig holds log level and optional file output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// GetSurfaceByID returns the surface config with the given ID, or nil.
func (c *Config) GetSurfaceByID(id string) *SurfaceConfig {
	for i := range c.Surfaces {
		if c.Surfaces[i].ID == id {
			return &c.Surfaces[i]
		}
	}
	return nil
}

// GetSurfaceByTopic returns the surface config subscribed to the given MQTT
// topic, or nil.
func (c *Config) GetSurfaceByTopic(topic string) *SurfaceConfig {
	for i := range c.Surfaces {
		if c.Surfaces[i].Topic == topic {
			return &c.Surfaces[i]
		}
	}
	return nil
}

// TargetSurface returns the surface config with the target role, or nil.
func (c *Config) TargetSurface() *SurfaceConfig {
	for i := range c.Surfaces {
		if c.Surfaces[i].Role == RoleTarget {
			return &c.Surfaces[i]
		}
	}
	return nil
}

// LigandSurfaces returns the surface configs with the ligand role, in
// configuration order.
func (c *Config) LigandSurfaces() []SurfaceConfig {
	var out []SurfaceConfig
	for _, s := range c.Surfaces {
		if s.Role == RoleLigand {
			out = append(out, s)
		}
	}
	return out
}
