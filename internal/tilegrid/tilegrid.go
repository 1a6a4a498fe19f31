package tilegrid

import (
	"fmt"
	"math"

	"github.com/tilemesh/server/internal/proj"
	"github.com/tilemesh/server/pkg/extent"
)

// DefaultTileSize is used when the config names no tile size.
const DefaultTileSize = 256

// Config describes a tile pyramid.
type Config struct {
	// Resolutions lists map units per pixel per zoom level, strictly
	// decreasing. The slice index is the zoom level. Required.
	Resolutions []float64

	// Origin is the grid origin shared by all levels: tile 0/0 has its
	// minimum corner here, columns grow in +x and rows in +y. Exactly
	// one of Origin and Origins must be set.
	Origin *[2]float64

	// Origins gives a per-level origin, one per resolution.
	Origins [][2]float64

	// TileSize is the tile edge in pixels for all levels. Defaults to
	// DefaultTileSize when TileSizes is also empty.
	TileSize int

	// TileSizes gives a per-level tile size, one per resolution.
	TileSizes []int

	// Extent bounds the grid's validity. Optional.
	Extent *extent.Extent

	// Sizes gives per-level grid dimensions in tiles, one per
	// resolution. A negative width or height grows the range into
	// negative indices, on the low side of the origin. Optional.
	Sizes [][2]int

	// MinZoom is the lowest usable level. Defaults to 0.
	MinZoom int
}

// TileGrid maps between map coordinates and tile coordinates for one
// pyramid. Immutable after construction.
type TileGrid struct {
	minZoom     int
	maxZoom     int
	resolutions []float64
	origin      [2]float64
	origins     [][2]float64
	tileSize    int
	tileSizes   []int
	ext         *extent.Extent

	fullTileRanges []TileRange

	// Set when all adjacent resolutions divide by exactly 2 with a
	// shared origin and tile size; enables shift-based parent/child
	// range math.
	zoomFactor2 bool
}

// New validates the config and builds the grid.
func New(cfg Config) (*TileGrid, error) {
	n := len(cfg.Resolutions)
	if n == 0 {
		return nil, fmt.Errorf("tilegrid: resolutions required")
	}
	for i := 1; i < n; i++ {
		if !(cfg.Resolutions[i-1] > cfg.Resolutions[i]) {
			return nil, fmt.Errorf("tilegrid: resolutions must be strictly decreasing (index %d: %v >= %v)",
				i, cfg.Resolutions[i], cfg.Resolutions[i-1])
		}
	}
	for i, r := range cfg.Resolutions {
		if r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
			return nil, fmt.Errorf("tilegrid: resolution at index %d must be finite and positive, got %v", i, r)
		}
	}

	if (cfg.Origin == nil) == (cfg.Origins == nil) {
		return nil, fmt.Errorf("tilegrid: exactly one of origin and origins must be set")
	}
	if cfg.Origins != nil && len(cfg.Origins) != n {
		return nil, fmt.Errorf("tilegrid: got %d origins for %d resolutions", len(cfg.Origins), n)
	}

	if cfg.TileSize != 0 && cfg.TileSizes != nil {
		return nil, fmt.Errorf("tilegrid: tileSize and tileSizes are mutually exclusive")
	}
	if cfg.TileSizes != nil && len(cfg.TileSizes) != n {
		return nil, fmt.Errorf("tilegrid: got %d tile sizes for %d resolutions", len(cfg.TileSizes), n)
	}
	if cfg.TileSize < 0 {
		return nil, fmt.Errorf("tilegrid: tile size must be positive, got %d", cfg.TileSize)
	}
	for i, ts := range cfg.TileSizes {
		if ts <= 0 {
			return nil, fmt.Errorf("tilegrid: tile size at index %d must be positive, got %d", i, ts)
		}
	}

	if cfg.Sizes != nil && len(cfg.Sizes) != n {
		return nil, fmt.Errorf("tilegrid: got %d sizes for %d resolutions", len(cfg.Sizes), n)
	}
	if cfg.MinZoom < 0 || cfg.MinZoom >= n {
		return nil, fmt.Errorf("tilegrid: minZoom %d outside [0, %d]", cfg.MinZoom, n-1)
	}

	g := &TileGrid{
		minZoom:     cfg.MinZoom,
		maxZoom:     n - 1,
		resolutions: append([]float64(nil), cfg.Resolutions...),
		tileSize:    cfg.TileSize,
	}
	if cfg.Origin != nil {
		g.origin = *cfg.Origin
	} else {
		g.origins = append([][2]float64(nil), cfg.Origins...)
	}
	if cfg.TileSizes != nil {
		g.tileSizes = append([]int(nil), cfg.TileSizes...)
	} else if g.tileSize == 0 {
		g.tileSize = DefaultTileSize
	}
	if cfg.Extent != nil {
		e := *cfg.Extent
		g.ext = &e
	}

	if g.origins == nil && g.tileSizes == nil {
		g.zoomFactor2 = true
		for i := 0; i < n-1; i++ {
			if g.resolutions[i] != 2*g.resolutions[i+1] {
				g.zoomFactor2 = false
				break
			}
		}
	}

	switch {
	case cfg.Sizes != nil:
		g.fullTileRanges = make([]TileRange, n)
		for z, size := range cfg.Sizes {
			r := NewTileRange(
				minInt(0, size[0]), maxInt(size[0]-1, -1),
				minInt(0, size[1]), maxInt(size[1]-1, -1),
			)
			if g.ext != nil {
				restricted := g.TileRangeForExtentAndZ(*g.ext, z)
				r.MinX = maxInt(restricted.MinX, r.MinX)
				r.MaxX = minInt(restricted.MaxX, r.MaxX)
				r.MinY = maxInt(restricted.MinY, r.MinY)
				r.MaxY = minInt(restricted.MaxY, r.MaxY)
			}
			g.fullTileRanges[z] = r
		}
	case g.ext != nil:
		g.fullTileRanges = make([]TileRange, n)
		for z := g.minZoom; z < n; z++ {
			g.fullTileRanges[z] = g.TileRangeForExtentAndZ(*g.ext, z)
		}
	}

	return g, nil
}

// XYZ builds a power-of-two pyramid over the extent with its origin at
// the extent's minimum corner, so rows count up from the bottom (the
// TMS arrangement; slippy-map row order is the API layer's concern).
func XYZ(ex extent.Extent, maxZoom, tileSize int) (*TileGrid, error) {
	if maxZoom < 0 {
		return nil, fmt.Errorf("tilegrid: maxZoom must not be negative, got %d", maxZoom)
	}
	if tileSize == 0 {
		tileSize = DefaultTileSize
	}
	maxResolution := math.Max(ex.Width()/float64(tileSize), ex.Height()/float64(tileSize))
	resolutions := make([]float64, maxZoom+1)
	for z := range resolutions {
		resolutions[z] = maxResolution / math.Pow(2, float64(z))
	}
	origin := ex.BottomLeft()
	return New(Config{
		Resolutions: resolutions,
		Origin:      &origin,
		TileSize:    tileSize,
		Extent:      &ex,
	})
}

// ForProjection builds a power-of-two pyramid covering the projection
// extent. The projection must have one.
func ForProjection(p *proj.Projection, maxZoom, tileSize int) (*TileGrid, error) {
	ex := p.Extent()
	if ex.IsEmpty() {
		return nil, fmt.Errorf("tilegrid: projection %s has no extent", p.Code())
	}
	return XYZ(ex, maxZoom, tileSize)
}

// MinZoom returns the lowest usable zoom level.
func (g *TileGrid) MinZoom() int { return g.minZoom }

// MaxZoom returns the highest zoom level.
func (g *TileGrid) MaxZoom() int { return g.maxZoom }

// Resolutions returns the resolution list indexed by zoom level.
func (g *TileGrid) Resolutions() []float64 { return g.resolutions }

// Resolution returns map units per pixel at z.
func (g *TileGrid) Resolution(z int) float64 { return g.resolutions[z] }

// Origin returns the grid origin for z.
func (g *TileGrid) Origin(z int) [2]float64 {
	if g.origins != nil {
		return g.origins[z]
	}
	return g.origin
}

// TileSize returns the tile edge in pixels for z.
func (g *TileGrid) TileSize(z int) int {
	if g.tileSizes != nil {
		return g.tileSizes[z]
	}
	return g.tileSize
}

// Extent returns the grid's validity extent when one is configured.
func (g *TileGrid) Extent() (extent.Extent, bool) {
	if g.ext == nil {
		return extent.Extent{}, false
	}
	return *g.ext, true
}

// FullTileRange returns the full range of valid tiles at z when the
// grid knows its bounds.
func (g *TileGrid) FullTileRange(z int) (TileRange, bool) {
	if g.fullTileRanges == nil || z < g.minZoom || z > g.maxZoom {
		return TileRange{}, false
	}
	return g.fullTileRanges[z], true
}

// ZForResolution returns the zoom level to use for the resolution.
// Direction 0 picks the nearest level, negative prefers the coarser
// candidate and positive the finer one when the resolution falls
// between two levels. The result is clamped to [MinZoom, MaxZoom].
func (g *TileGrid) ZForResolution(resolution float64, direction int) int {
	rs := g.resolutions
	n := len(rs)
	z := n - 1
	switch {
	case rs[0] <= resolution:
		z = 0
	case resolution <= rs[n-1]:
		z = n - 1
	case direction > 0:
		for i := 1; i < n; i++ {
			if rs[i] <= resolution {
				z = i
				break
			}
		}
	case direction < 0:
		for i := 1; i < n; i++ {
			if rs[i] < resolution {
				z = i - 1
				break
			}
		}
	default:
		for i := 1; i < n; i++ {
			if rs[i] == resolution {
				z = i
				break
			}
			if rs[i] < resolution {
				if rs[i-1]-resolution < resolution-rs[i] {
					z = i - 1
				} else {
					z = i
				}
				break
			}
		}
	}
	return clampInt(z, g.minZoom, g.maxZoom)
}

// TileCoordForCoordAndZ returns the tile containing the map coordinate
// at z. Coordinates exactly on a shared edge belong to the higher
// tile coordinate.
func (g *TileGrid) TileCoordForCoordAndZ(coord [2]float64, z int) TileCoord {
	return g.tileCoordForXYAndZ(coord[0], coord[1], z, false)
}

// TileCoordForCoordAndResolution returns the tile containing the map
// coordinate at the level nearest to the resolution.
func (g *TileGrid) TileCoordForCoordAndResolution(coord [2]float64, resolution float64) TileCoord {
	return g.tileCoordForXYAndResolution(coord[0], coord[1], resolution, false)
}

// The reverse intersection policy maps interval maximums: a corner
// exactly on a tile's leading edge must not pull that tile in, so the
// fraction is ceiled and decremented instead of floored.
func (g *TileGrid) tileCoordForXYAndZ(x, y float64, z int, reverse bool) TileCoord {
	origin := g.Origin(z)
	resolution := g.Resolution(z)
	size := float64(g.TileSize(z))

	fx := (x - origin[0]) / (resolution * size)
	fy := (y - origin[1]) / (resolution * size)

	if reverse {
		return TileCoord{Z: z, X: fixedCeil(fx) - 1, Y: fixedCeil(fy) - 1}
	}
	return TileCoord{Z: z, X: fixedFloor(fx), Y: fixedFloor(fy)}
}

func (g *TileGrid) tileCoordForXYAndResolution(x, y, resolution float64, reverse bool) TileCoord {
	z := g.ZForResolution(resolution, 0)
	scale := resolution / g.Resolution(z)
	origin := g.Origin(z)
	size := float64(g.TileSize(z))

	fx := scale * (x - origin[0]) / (resolution * size)
	fy := scale * (y - origin[1]) / (resolution * size)

	if reverse {
		return TileCoord{Z: z, X: fixedCeil(fx) - 1, Y: fixedCeil(fy) - 1}
	}
	return TileCoord{Z: z, X: fixedFloor(fx), Y: fixedFloor(fy)}
}

// TileCoordExtent returns the map extent covered by the tile.
func (g *TileGrid) TileCoordExtent(c TileCoord) extent.Extent {
	origin := g.Origin(c.Z)
	resolution := g.Resolution(c.Z)
	size := float64(g.TileSize(c.Z))

	minX := origin[0] + float64(c.X)*size*resolution
	minY := origin[1] + float64(c.Y)*size*resolution
	return extent.New(minX, minY, minX+size*resolution, minY+size*resolution)
}

// TileCoordCenter returns the map coordinate at the tile's center.
func (g *TileGrid) TileCoordCenter(c TileCoord) [2]float64 {
	origin := g.Origin(c.Z)
	resolution := g.Resolution(c.Z)
	size := float64(g.TileSize(c.Z))

	return [2]float64{
		origin[0] + (float64(c.X)+0.5)*size*resolution,
		origin[1] + (float64(c.Y)+0.5)*size*resolution,
	}
}

// TileRangeForExtentAndZ returns the tiles at z intersecting the
// extent. The minimum corner follows the normal interval policy and
// the maximum corner the reverse policy, so tiles merely touched on
// their leading edge stay out.
func (g *TileGrid) TileRangeForExtentAndZ(ex extent.Extent, z int) TileRange {
	lo := g.tileCoordForXYAndZ(ex.MinX, ex.MinY, z, false)
	hi := g.tileCoordForXYAndZ(ex.MaxX, ex.MaxY, z, true)
	return NewTileRange(lo.X, hi.X, lo.Y, hi.Y)
}

// TileRangeExtent returns the map extent covered by the range at z.
func (g *TileGrid) TileRangeExtent(z int, r TileRange) extent.Extent {
	origin := g.Origin(z)
	resolution := g.Resolution(z)
	size := float64(g.TileSize(z))

	minX := origin[0] + float64(r.MinX)*size*resolution
	maxX := origin[0] + float64(r.MaxX+1)*size*resolution
	minY := origin[1] + float64(r.MinY)*size*resolution
	maxY := origin[1] + float64(r.MaxY+1)*size*resolution
	return extent.New(minX, minY, maxX, maxY)
}

// ForEachTileCoord calls fn for every tile at zoom z intersecting the
// extent, column by column.
func (g *TileGrid) ForEachTileCoord(ex extent.Extent, z int, fn func(TileCoord)) {
	r := g.TileRangeForExtentAndZ(ex, z)
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			fn(TileCoord{Z: z, X: x, Y: y})
		}
	}
}

// TileCoordChildTileRange returns the range of tiles at the finer
// level z covering the tile's extent. The second result is false when
// z is not a finer level within the pyramid.
func (g *TileGrid) TileCoordChildTileRange(c TileCoord, z int) (TileRange, bool) {
	if z <= c.Z || z > g.maxZoom {
		return TileRange{}, false
	}
	if g.zoomFactor2 {
		dz := uint(z - c.Z)
		minX := c.X << dz
		minY := c.Y << dz
		return NewTileRange(minX, minX+(1<<dz)-1, minY, minY+(1<<dz)-1), true
	}
	return g.TileRangeForExtentAndZ(g.TileCoordExtent(c), z), true
}

// TileCoordParentTileRange returns the range of tiles at the coarser
// level z covering the tile's extent. The second result is false when
// z is not a coarser level within the pyramid.
func (g *TileGrid) TileCoordParentTileRange(c TileCoord, z int) (TileRange, bool) {
	if z >= c.Z || z < g.minZoom {
		return TileRange{}, false
	}
	if g.zoomFactor2 {
		dz := uint(c.Z - z)
		// Arithmetic shift floors negative coordinates.
		x := c.X >> dz
		y := c.Y >> dz
		return NewTileRange(x, x, y, y), true
	}
	return g.TileRangeForExtentAndZ(g.TileCoordExtent(c), z), true
}

// ForEachTileCoordParentTileRange walks the covering range at each
// coarser level, nearest first, until fn returns true. It reports
// whether any call did.
func (g *TileGrid) ForEachTileCoordParentTileRange(c TileCoord, fn func(z int, r TileRange) bool) bool {
	for z := c.Z - 1; z >= g.minZoom; z-- {
		r, ok := g.TileCoordParentTileRange(c, z)
		if !ok {
			return false
		}
		if fn(z, r) {
			return true
		}
	}
	return false
}

// ValidateCoord checks that the coordinate addresses a tile this grid
// can contain.
func (g *TileGrid) ValidateCoord(c TileCoord) error {
	if c.Z < g.minZoom || c.Z > g.maxZoom {
		return fmt.Errorf("tilegrid: zoom %d outside [%d, %d]", c.Z, g.minZoom, g.maxZoom)
	}
	if r, ok := g.FullTileRange(c.Z); ok && !r.Contains(c) {
		return fmt.Errorf("tilegrid: tile %s outside grid range %+v", c.Key(), r)
	}
	return nil
}

// WithinExtentAndZ reports whether the coordinate addresses a tile
// this grid can contain.
func (g *TileGrid) WithinExtentAndZ(c TileCoord) bool {
	return g.ValidateCoord(c) == nil
}

func fixedFloor(n float64) int {
	return int(math.Floor(toFixed(n)))
}

func fixedCeil(n float64) int {
	return int(math.Ceil(toFixed(n)))
}

// Tile fractions are rounded to 5 decimals before flooring so that a
// coordinate a hair past a tile edge still lands on the tile it
// visually belongs to.
func toFixed(n float64) float64 {
	const factor = 1e5
	return math.Round(n*factor) / factor
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
