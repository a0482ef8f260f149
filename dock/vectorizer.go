package dock

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"gonum.org/v1/gonum/mat"
)

// PlaneProjection is an orthonormal 2D basis fitted through a point cloud.
// U and V span the dominant plane; Normal is the least-variance axis. The
// basis is right-handed: V = Normal x U.
type PlaneProjection struct {
	Origin mgl64.Vec3
	U      mgl64.Vec3
	V      mgl64.Vec3
	Normal mgl64.Vec3
}

// FitProjection fits the dominant plane through a cloud by principal
// component analysis of the 3x3 covariance matrix. A degenerate cloud (all
// points identical or collinear) still yields an orthonormal basis; the
// plane orientation within the degenerate directions is arbitrary.
func FitProjection(cloud PointCloud) (*PlaneProjection, error) {
	if len(cloud) < 3 {
		return nil, fmt.Errorf("plane fit needs at least 3 points, got %d", len(cloud))
	}

	centroid, err := cloud.Centroid()
	if err != nil {
		return nil, err
	}

	var xx, xy, xz, yy, yz, zz float64
	for _, p := range cloud {
		d := p.Sub(centroid)
		xx += d.X() * d.X()
		xy += d.X() * d.Y()
		xz += d.X() * d.Z()
		yy += d.Y() * d.Y()
		yz += d.Y() * d.Z()
		zz += d.Z() * d.Z()
	}
	n := float64(len(cloud))
	cov := mat.NewSymDense(3, []float64{
		xx / n, xy / n, xz / n,
		xy / n, yy / n, yz / n,
		xz / n, yz / n, zz / n,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return nil, fmt.Errorf("plane fit: eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues come back ascending: column 0 is the least-variance axis
	// (the plane normal), column 2 the most-variance in-plane axis.
	col := func(j int) mgl64.Vec3 {
		return mgl64.Vec3{vecs.At(0, j), vecs.At(1, j), vecs.At(2, j)}
	}
	normal := col(0)
	u := col(2)

	return &PlaneProjection{
		Origin: centroid,
		U:      u,
		V:      normal.Cross(u),
		Normal: normal,
	}, nil
}

// Project maps a 3D point into the plane's 2D coordinates.
func (p *PlaneProjection) Project(pt mgl64.Vec3) orb.Point {
	d := pt.Sub(p.Origin)
	return orb.Point{d.Dot(p.U), d.Dot(p.V)}
}

// ProjectCloud maps every point of a cloud into plane coordinates.
func (p *PlaneProjection) ProjectCloud(cloud PointCloud) []orb.Point {
	out := make([]orb.Point, len(cloud))
	for i, pt := range cloud {
		out[i] = p.Project(pt)
	}
	return out
}

// Unproject maps plane coordinates back to 3D space.
func (p *PlaneProjection) Unproject(pt orb.Point) mgl64.Vec3 {
	return p.Origin.Add(p.U.Mul(pt[0])).Add(p.V.Mul(pt[1]))
}

// visitKey uniquely identifies an edge visit during boundary tracing.
type visitKey struct {
	idx int
	dir int
}

// ExtractOutlines converts projected contact points into simplified boundary
// outlines. Points are rasterized into an occupancy grid with the given cell
// size, the boundaries of occupied regions are traced, and each traced
// contour is Douglas-Peucker simplified with the given tolerance. Isolated
// single cells are treated as noise and skipped.
//
// Returned line strings are in plane coordinates at occupied-cell centers.
func ExtractOutlines(points []orb.Point, cellSize, tolerance float64) []orb.LineString {
	if len(points) == 0 || cellSize <= 0 {
		return nil
	}

	grid, minX, minY, width, height := pointsToGrid(points, cellSize)
	contours := traceContours(grid, width, height)

	var result []orb.LineString
	for _, contour := range contours {
		ls := make(orb.LineString, len(contour))
		for i, c := range contour {
			ls[i] = orb.Point{
				(c[0] + float64(minX) + 0.5) * cellSize,
				(c[1] + float64(minY) + 0.5) * cellSize,
			}
		}

		if tolerance > 0 {
			simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone()).(orb.LineString)
			if ok {
				ls = simplified
			}
		}
		if len(ls) >= 2 {
			result = append(result, ls)
		}
	}

	return result
}

// pointsToGrid rasterizes plane points into a dense boolean grid with 1-cell
// padding so boundary tracing never walks off the edge.
func pointsToGrid(points []orb.Point, cellSize float64) (grid []bool, minX, minY, width, height int) {
	minX, minY = math.MaxInt, math.MaxInt
	maxX, maxY := math.MinInt, math.MinInt

	cells := make([][2]int, 0, len(points))
	for _, p := range points {
		gx := int(math.Floor(p[0] / cellSize))
		gy := int(math.Floor(p[1] / cellSize))

		if gx < minX {
			minX = gx
		}
		if gy < minY {
			minY = gy
		}
		if gx > maxX {
			maxX = gx
		}
		if gy > maxY {
			maxY = gy
		}

		cells = append(cells, [2]int{gx, gy})
	}

	pad := 1
	width = maxX - minX + 1 + 2*pad
	height = maxY - minY + 1 + 2*pad
	grid = make([]bool, width*height)

	for _, c := range cells {
		x := c[0] - minX + pad
		y := c[1] - minY + pad
		grid[y*width+x] = true
	}

	return grid, minX - pad, minY - pad, width, height
}

// traceContours finds the boundary contour of every occupied region using
// Moore-neighbor tracing. Contours are returned in grid coordinates.
func traceContours(grid []bool, width, height int) [][][2]float64 {
	var contours [][][2]float64

	seen := make(map[visitKey]bool)

	idx := func(x, y int) int { return y*width + x }
	isSet := func(x, y int) bool {
		if x < 0 || x >= width || y < 0 || y >= height {
			return false
		}
		return grid[idx(x, y)]
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !isSet(x, y) {
				continue
			}

			hasNeighbor := isSet(x-1, y) || isSet(x+1, y) || isSet(x, y-1) || isSet(x, y+1)
			if !hasNeighbor {
				// Isolated cell: noise, not a contact region.
				continue
			}

			// A contour starts at any set cell with an empty neighbor.
			// Direction encoding: 0=N, 1=E, 2=S, 3=W.
			neighbors := []struct {
				dx, dy int
				dir    int // direction we would be FACING when starting
			}{
				{-1, 0, 3},
				{1, 0, 1},
				{0, -1, 0},
				{0, 1, 2},
			}

			for _, n := range neighbors {
				nx, ny := x+n.dx, y+n.dy
				if !isSet(nx, ny) {
					key := visitKey{idx(x, y), n.dir}
					if !seen[key] {
						contour := traceBoundary(x, y, n.dir, grid, width, height, seen)
						if len(contour) > 2 {
							contours = append(contours, contour)
						}
					}
				}
			}
		}
	}
	return contours
}

// traceBoundary follows a region edge with the right-hand rule, starting at
// (startX, startY) facing startFacing (0=N, 1=E, 2=S, 3=W).
func traceBoundary(startX, startY, startFacing int, grid []bool, width, height int, seen map[visitKey]bool) [][2]float64 {
	var contour [][2]float64

	curX, curY := startX, startY
	facing := startFacing

	isSet := func(x, y int) bool {
		if x < 0 || x >= width || y < 0 || y >= height {
			return false
		}
		return grid[y*width+x]
	}

	// Direction vectors: N, E, S, W
	dirs := []struct{ dx, dy int }{
		{0, -1},
		{1, 0},
		{0, 1},
		{-1, 0},
	}

	for {
		key := visitKey{idx: curY*width + curX, dir: facing}

		if seen[key] {
			// Returned to the start state: close the loop.
			if curX == startX && curY == startY && len(contour) > 0 {
				contour = append(contour, [2]float64{float64(curX), float64(curY)})
			}
			break
		}

		seen[key] = true
		contour = append(contour, [2]float64{float64(curX), float64(curY)})

		// Right-hand rule: start scanning one position to the right of the
		// current facing and turn clockwise until a set cell is found.
		startScan := (facing - 1 + 4) % 4
		found := false

		for i := 0; i < 4; i++ {
			scanDir := (startScan + i) % 4
			nx, ny := curX+dirs[scanDir].dx, curY+dirs[scanDir].dy

			if isSet(nx, ny) {
				curX, curY = nx, ny
				facing = scanDir
				found = true
				break
			}
		}

		if !found {
			break
		}

		// Safety break for malformed grids
		if len(contour) > 100000 {
			break
		}
	}

	return contour
}

// planarBounds returns the bounding box of the projected point sets, expanded
// by margin on every side. With no points the min/max sentinels come back
// unchanged; callers treat the resulting negative extent as empty.
func planarBounds(margin float64, sets ...[]orb.Point) (minX, minY, maxX, maxY float64) {
	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY = -math.MaxFloat64, -math.MaxFloat64

	for _, set := range sets {
		for _, p := range set {
			if p[0] < minX {
				minX = p[0]
			}
			if p[1] < minY {
				minY = p[1]
			}
			if p[0] > maxX {
				maxX = p[0]
			}
			if p[1] > maxY {
				maxY = p[1]
			}
		}
	}

	if maxX < minX {
		return
	}

	minX -= margin
	minY -= margin
	maxX += margin
	maxY += margin
	return
}

// planarCentroid returns the mean of the projected points.
func planarCentroid(pts []orb.Point) (x, y float64) {
	if len(pts) == 0 {
		return 0, 0
	}
	for _, p := range pts {
		x += p[0]
		y += p[1]
	}
	n := float64(len(pts))
	return x / n, y / n
}
