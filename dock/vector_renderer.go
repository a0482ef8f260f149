package dock

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	// Premultiply: multiply RGB by alpha
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// PoseRenderer renders a docking pose as vector graphics. Both clouds are
// projected into the target side's dominant plane, their occupancy outlines
// are traced and simplified, and the contact regions are drawn as filled
// polygons with stroked boundaries. The ligand outline is dashed so the two
// sides stay readable where they overlap.
//
// Ligand points are expected in the target's frame, i.e. already transformed
// by the group's estimated pose.
type PoseRenderer struct {
	Target      PointCloud
	Ligand      PointCloud
	TargetColor SideColor
	LigandColor SideColor
	CellSize    float64           // Occupancy cell size for outline tracing
	Tolerance   float64           // Outline simplification tolerance
	Padding     float64           // Padding in world units
	GridSpacing float64           // Grid line spacing in world units; 0 disables
	Resolution  canvas.Resolution // Resolution for PNG output (default: 300 DPI)
}

// NewPoseRenderer creates a pose renderer with default settings
func NewPoseRenderer(target, ligand PointCloud) *PoseRenderer {
	tc, lc := DefaultSideColors()
	return &PoseRenderer{
		Target:      target,
		Ligand:      ligand,
		TargetColor: tc,
		LigandColor: lc,
		CellSize:    1.0,
		Tolerance:   0.5,
		Padding:     5.0,
		GridSpacing: 10.0,
		Resolution:  canvas.DPI(300), // 300 DPI default for PNG output
	}
}

// SetSideColors applies hex colors to both sides; empty strings keep the
// current colors.
func (r *PoseRenderer) SetSideColors(targetHex, ligandHex string) {
	if targetHex != "" {
		r.TargetColor = sideColorFromHex(targetHex, 150)
	}
	if ligandHex != "" {
		r.LigandColor = sideColorFromHex(ligandHex, 120)
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the pose as an SVG to the provided writer
func (r *PoseRenderer) RenderSVG(w io.Writer) error {
	proj, err := r.fitPlane()
	if err != nil {
		return err
	}
	targetPts := proj.ProjectCloud(r.Target)
	ligandPts := proj.ProjectCloud(r.Ligand)

	// Outline cell centers can sit half a cell beyond the outermost points
	minX, minY, maxX, maxY := planarBounds(r.CellSize, targetPts, ligandPts)

	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)

	r.renderToCanvas(svgRenderer, targetPts, ligandPts, minX, minY, maxX, maxY, width, height)

	return svgRenderer.Close()
}

// RenderPNG writes the pose as a PNG to the provided writer
func (r *PoseRenderer) RenderPNG(w io.Writer) error {
	proj, err := r.fitPlane()
	if err != nil {
		return err
	}
	targetPts := proj.ProjectCloud(r.Target)
	ligandPts := proj.ProjectCloud(r.Ligand)

	minX, minY, maxX, maxY := planarBounds(r.CellSize, targetPts, ligandPts)

	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)

	r.renderToCanvas(rast, targetPts, ligandPts, minX, minY, maxX, maxY, width, height)

	// Rasterizer implements draw.Image interface, which embeds image.Image
	return png.Encode(w, rast)
}

// fitPlane fits the drawing plane: the target side's dominant plane, falling
// back to a fit through both clouds when the target alone is too small.
func (r *PoseRenderer) fitPlane() (*PlaneProjection, error) {
	if proj, err := FitProjection(r.Target); err == nil {
		return proj, nil
	}
	combined := make(PointCloud, 0, len(r.Target)+len(r.Ligand))
	combined = append(combined, r.Target...)
	combined = append(combined, r.Ligand...)
	proj, err := FitProjection(combined)
	if err != nil {
		return nil, fmt.Errorf("pose render: %w", err)
	}
	return proj, nil
}

// renderToCanvas renders the pose to a canvas renderer (shared logic for SVG and PNG)
func (r *PoseRenderer) renderToCanvas(renderer canvasRenderer, targetPts, ligandPts []orb.Point, minX, minY, maxX, maxY, width, height float64) {
	// Draw white background
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// Helper to transform plane points to canvas points
	toCanvas := func(x, y float64) (float64, float64) {
		tx := (x - minX) + r.Padding
		ty := (y - minY) + r.Padding
		return tx, ty
	}

	// Target regions first so the ligand reads as the overlay
	r.drawSide(renderer, targetPts, r.TargetColor, nil, toCanvas)
	r.drawSide(renderer, ligandPts, r.LigandColor, []float64{1.0, 0.5}, toCanvas)

	// Render grid lines
	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.05
		gridStyle.Dashes = []float64{0.5, 0.5}

		// Vertical grid lines
		for x := math.Floor(minX/r.GridSpacing) * r.GridSpacing; x <= maxX; x += r.GridSpacing {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(x, minY)
			x2, y2 := toCanvas(x, maxY)
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}

		// Horizontal grid lines
		for y := math.Floor(minY/r.GridSpacing) * r.GridSpacing; y <= maxY; y += r.GridSpacing {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(minX, y)
			x2, y2 := toCanvas(maxX, y)
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	// Centroid markers
	if len(targetPts) > 0 {
		cx, cy := planarCentroid(targetPts)
		tx, ty := toCanvas(cx, cy)

		markerStyle := canvas.DefaultStyle
		markerStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.TargetColor.Marker)}
		markerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		markerStyle.StrokeWidth = 0.1

		markerPath := canvas.Circle(0.8)
		markerPath = markerPath.Translate(tx, ty)
		renderer.RenderPath(markerPath, markerStyle, canvas.Identity)
	}
	if len(ligandPts) > 0 {
		cx, cy := planarCentroid(ligandPts)
		tx, ty := toCanvas(cx, cy)

		markerStyle := canvas.DefaultStyle
		markerStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.LigandColor.Marker)}
		markerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		markerStyle.StrokeWidth = 0.1

		markerPath := canvas.Circle(0.6)
		markerPath = markerPath.Translate(tx, ty)
		renderer.RenderPath(markerPath, markerStyle, canvas.Identity)
	}
}

// drawSide traces the occupancy outlines of one side's projected points and
// draws them filled plus stroked. A nil dashes slice gives a solid boundary.
func (r *PoseRenderer) drawSide(renderer canvasRenderer, pts []orb.Point, sc SideColor, dashes []float64, toCanvas func(x, y float64) (float64, float64)) {
	outlines := ExtractOutlines(pts, r.CellSize, r.Tolerance)
	if len(outlines) == 0 {
		return
	}

	fillStyle := canvas.DefaultStyle
	fillStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(sc.Points)}
	fillStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	strokeStyle := canvas.DefaultStyle
	strokeStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	strokeStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(sc.Marker)}
	strokeStyle.StrokeWidth = 0.3
	strokeStyle.Dashes = dashes

	for _, ls := range outlines {
		cp := &canvas.Path{}
		for i, pt := range ls {
			cx, cy := toCanvas(pt[0], pt[1])
			if i == 0 {
				cp.MoveTo(cx, cy)
			} else {
				cp.LineTo(cx, cy)
			}
		}
		cp.Close()
		renderer.RenderPath(cp, fillStyle, canvas.Identity)
		renderer.RenderPath(cp, strokeStyle, canvas.Identity)
	}
}
