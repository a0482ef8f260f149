package dock

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SideColor defines the colors for one side of a contact map.
type SideColor struct {
	Points color.NRGBA
	Marker color.NRGBA
}

// DefaultSideColors returns the standard palette: blue for the target side,
// red for the ligand side.
func DefaultSideColors() (target, ligand SideColor) {
	target = SideColor{
		Points: color.NRGBA{100, 149, 237, 180}, // Cornflower blue
		Marker: color.NRGBA{0, 0, 139, 255},     // Dark blue
	}
	ligand = SideColor{
		Points: color.NRGBA{255, 99, 71, 150}, // Tomato
		Marker: color.NRGBA{139, 0, 0, 255},   // Dark red
	}
	return target, ligand
}

// ContactMapRenderer renders a matching group's contact interface as a 2D
// raster image: both merged clouds are projected into the target side's
// dominant plane and drawn as colored discs with centroid markers.
//
// Ligand points are expected in the target's frame, i.e. already transformed
// by the group's estimated pose.
type ContactMapRenderer struct {
	Target      PointCloud
	Ligand      PointCloud
	TargetColor SideColor
	LigandColor SideColor
	TargetLabel string
	LigandLabel string
	Scale       float64 // pixels per coordinate unit
	Padding     int
}

// NewContactMapRenderer creates a renderer with default palette and scaling.
func NewContactMapRenderer(target, ligand PointCloud) *ContactMapRenderer {
	tc, lc := DefaultSideColors()
	return &ContactMapRenderer{
		Target:      target,
		Ligand:      ligand,
		TargetColor: tc,
		LigandColor: lc,
		TargetLabel: "target",
		LigandLabel: "ligand",
		Scale:       4.0,
		Padding:     20,
	}
}

// sideColorFromHex builds a side palette from a hex color: a translucent
// point fill plus a darkened marker.
func sideColorFromHex(hex string, fillAlpha uint8) SideColor {
	c := parseHexColor(hex)
	return SideColor{
		Points: color.NRGBA{c.R, c.G, c.B, fillAlpha},
		Marker: darken(c, 0.5),
	}
}

// SetSideColors applies hex colors to both sides; markers are darkened
// variants. Empty strings keep the current colors.
func (r *ContactMapRenderer) SetSideColors(targetHex, ligandHex string) {
	if targetHex != "" {
		r.TargetColor = sideColorFromHex(targetHex, 180)
	}
	if ligandHex != "" {
		r.LigandColor = sideColorFromHex(ligandHex, 150)
	}
}

// HasDrawableContent returns true if either side has points to draw.
func (r *ContactMapRenderer) HasDrawableContent() bool {
	return len(r.Target) > 0 || len(r.Ligand) > 0
}

// projection returns the plane to draw in: the target side's dominant plane,
// falling back to a fit through both clouds when the target alone is too
// small.
func (r *ContactMapRenderer) projection() *PlaneProjection {
	if proj, err := FitProjection(r.Target); err == nil {
		return proj
	}
	combined := make(PointCloud, 0, len(r.Target)+len(r.Ligand))
	combined = append(combined, r.Target...)
	combined = append(combined, r.Ligand...)
	if proj, err := FitProjection(combined); err == nil {
		return proj
	}
	return nil
}

// Render creates the contact map image. Degenerate input (too few points for
// a plane fit) yields a minimal background-only image rather than an error.
func (r *ContactMapRenderer) Render() *image.RGBA {
	proj := r.projection()

	var targetPts, ligandPts []orb.Point
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	if proj != nil {
		targetPts = proj.ProjectCloud(r.Target)
		ligandPts = proj.ProjectCloud(r.Ligand)
		minX, minY, maxX, maxY = planarBounds(0, targetPts, ligandPts)
	}

	width := int((maxX-minX)*r.Scale) + 2*r.Padding
	height := int((maxY-minY)*r.Scale) + 2*r.Padding

	// Limit size
	if width > 4000 {
		r.Scale *= float64(4000) / float64(width)
		width = 4000
		height = int((maxY-minY)*r.Scale) + 2*r.Padding
	}
	if height > 4000 {
		r.Scale *= float64(4000) / float64(height)
		height = 4000
		width = int((maxX-minX)*r.Scale) + 2*r.Padding
	}

	// If bounds are invalid (e.g. no points), ensure positive dimensions
	if width <= 0 || height <= 0 || proj == nil {
		minSize := 2*r.Padding + 1
		if minSize < 1 {
			minSize = 1
		}
		if width <= 0 {
			width = minSize
		}
		if height <= 0 {
			height = minSize
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}
	if proj == nil {
		return img
	}

	// Plane V points up; image Y grows down, so flip.
	toImage := func(p orb.Point) (int, int) {
		x := int((p[0]-minX)*r.Scale) + r.Padding
		y := height - 1 - (int((p[1]-minY)*r.Scale) + r.Padding)
		return x, y
	}

	// Target side first so the ligand reads as the overlay
	for _, p := range targetPts {
		ix, iy := toImage(p)
		drawBlendedDisc(img, ix, iy, 3, r.TargetColor.Points)
	}
	for _, p := range ligandPts {
		ix, iy := toImage(p)
		drawBlendedDisc(img, ix, iy, 3, r.LigandColor.Points)
	}

	// Centroid markers: square for target, circle for ligand
	if len(targetPts) > 0 {
		cx, cy := planarCentroid(targetPts)
		ix, iy := toImage(orb.Point{cx, cy})
		drawSquare(img, ix, iy, 8, nrgbaToRGBAColor(r.TargetColor.Marker))
	}
	if len(ligandPts) > 0 {
		cx, cy := planarCentroid(ligandPts)
		ix, iy := toImage(orb.Point{cx, cy})
		drawCircle(img, ix, iy, 5, nrgbaToRGBAColor(r.LigandColor.Marker))
	}

	// Plane origin as purple triangle
	ox, oy := toImage(orb.Point{0, 0})
	drawTriangle(img, ox, oy, 10, color.RGBA{128, 0, 128, 255})

	r.drawLegend(img)
	r.drawScaleBar(img, width, height)

	return img
}

// SavePNG renders the contact map and writes it to a file.
func (r *ContactMapRenderer) SavePNG(path string) error {
	img := r.Render()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}

// drawLegend adds side labels with color swatches in the top-left corner.
func (r *ContactMapRenderer) drawLegend(img *image.RGBA) {
	entries := []struct {
		label string
		c     color.NRGBA
	}{
		{r.TargetLabel, r.TargetColor.Marker},
		{r.LigandLabel, r.LigandColor.Marker},
	}

	y := 15
	for _, e := range entries {
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-6, e.c)
			}
		}
		drawText(img, 28, y, e.label, color.RGBA{0, 0, 0, 255})
		y += 18
	}
}

// drawScaleBar draws a bar spanning a round number of coordinate units in
// the bottom-left corner.
func (r *ContactMapRenderer) drawScaleBar(img *image.RGBA, width, height int) {
	if r.Scale <= 0 {
		return
	}
	units := niceRound(80.0 / r.Scale)
	px := int(units * r.Scale)
	if px < 10 || px > width/2 || height < 30 {
		return
	}

	black := color.RGBA{0, 0, 0, 255}
	y := height - 8
	for x := 0; x < px; x++ {
		img.Set(10+x, y, black)
		img.Set(10+x, y-1, black)
	}
	drawText(img, 10, y-6, fmt.Sprintf("%g", units), black)
}

// niceRound rounds v to the nearest 1, 2, or 5 times a power of ten.
func niceRound(v float64) float64 {
	if v <= 0 {
		return 0
	}
	base := math.Pow(10, math.Floor(math.Log10(v)))
	switch m := v / base; {
	case m < 1.5:
		return base
	case m < 3.5:
		return 2 * base
	case m < 7.5:
		return 5 * base
	default:
		return 10 * base
	}
}

// drawBlendedDisc draws a filled circle alpha-blended over the existing image.
func drawBlendedDisc(img *image.RGBA, cx, cy, radius int, c color.NRGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					existing := img.RGBAAt(x, y)
					img.Set(x, y, blendColors(existing, c))
				}
			}
		}
	}
}

// blendColors performs alpha blending of two colors
func blendColors(bg color.RGBA, fg color.NRGBA) color.NRGBA {
	// RGBA is premultiplied; un-premultiply before blending
	var bgNRGBA color.NRGBA
	switch bg.A {
	case 0:
		bgNRGBA = color.NRGBA{0, 0, 0, 0}
	case 255:
		bgNRGBA = color.NRGBA{bg.R, bg.G, bg.B, 255}
	default:
		alpha32 := uint32(bg.A)
		bgNRGBA = color.NRGBA{
			R: uint8((uint32(bg.R) * 255) / alpha32),
			G: uint8((uint32(bg.G) * 255) / alpha32),
			B: uint8((uint32(bg.B) * 255) / alpha32),
			A: bg.A,
		}
	}

	alpha := float64(fg.A) / 255.0
	invAlpha := 1.0 - alpha

	return color.NRGBA{
		R: uint8(float64(fg.R)*alpha + float64(bgNRGBA.R)*invAlpha),
		G: uint8(float64(fg.G)*alpha + float64(bgNRGBA.G)*invAlpha),
		B: uint8(float64(fg.B)*alpha + float64(bgNRGBA.B)*invAlpha),
		A: 255,
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := cx+dx, cy+dy
			if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
				img.Set(x, y, c)
			}
		}
	}
}

// drawTriangle draws a filled triangle pointing up
func drawTriangle(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		progress := float64(dy+half) / float64(size)
		width := int(progress * float64(half))
		for dx := -width; dx <= width; dx++ {
			x, y := cx+dx, cy+dy
			if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
				img.Set(x, y, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func nrgbaToRGBAColor(c color.NRGBA) color.RGBA {
	return color.RGBA{c.R, c.G, c.B, c.A}
}

// darken scales an RGB color toward black by the given factor.
func darken(c color.RGBA, factor float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: 255,
	}
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA
func parseHexColor(hex string) color.RGBA {
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}

	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	_, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
	if err != nil {
		return defaultColor
	}

	return color.RGBA{r, g, b, 255}
}
