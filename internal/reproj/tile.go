// Package reproj composites tiles across projections. A Triangulation
// approximates the target-to-source transform piecewise linearly, a
// Tile drives loading of the source tiles it depends on, and the
// compositor in render.go warps the loaded rasters into the target
// tile through that mesh.
package reproj

import (
	"errors"
	"image"
	"math"
	"sync"

	"github.com/tilemesh/server/internal/proj"
	"github.com/tilemesh/server/internal/tile"
	"github.com/tilemesh/server/internal/tilegrid"
)

// DefaultErrorThreshold is the reprojection error budget in target
// pixels when the configuration names none.
const DefaultErrorThreshold = 0.5

// ErrNoSources marks a reprojected tile none of whose source tiles
// loaded.
var ErrNoSources = errors.New("reproj: no source tile loaded")

// Options configure a reprojected tile.
type Options struct {
	SourceProj *proj.Projection
	SourceGrid *tilegrid.TileGrid
	TargetProj *proj.Projection
	TargetGrid *tilegrid.TileGrid

	// Coord addresses the tile; WrappedCoord, when non-nil, is the
	// in-world coordinate used for all geometry (Coord may address a
	// wrapped-around copy of the world).
	Coord        tilegrid.TileCoord
	WrappedCoord *tilegrid.TileCoord

	// Gutter is the pixel border to crop from source tiles.
	Gutter int

	// ErrorThresholdPixels bounds the displacement between the true
	// reprojection and its triangulated approximation, in target
	// pixels. Zero means DefaultErrorThreshold.
	ErrorThresholdPixels float64

	// RenderEdges strokes triangle outlines into the output.
	RenderEdges bool

	// GetTile resolves a source tile, or nil when the coordinate is
	// outside the source grid.
	GetTile func(z, x, y int) tile.Tile
}

// Tile is a tile composited from source tiles in another projection.
// Geometric degeneracy settles it Empty at construction; otherwise it
// moves Idle -> Loading -> Loaded or Error like a plain tile, driven
// by the source tiles settling. It has no Abort state: cancellation
// is Dispose, which detaches it from its sources.
type Tile struct {
	tile.Notifier

	coord   tilegrid.TileCoord
	wrapped tilegrid.TileCoord
	key     string

	sourceProj *proj.Projection
	sourceGrid *tilegrid.TileGrid
	targetGrid *tilegrid.TileGrid

	triangulation *Triangulation
	sourceZ       int
	sourceRange   tilegrid.TileRange
	sourceTiles   []tile.Tile
	gutter        int
	renderEdges   bool

	mu         sync.Mutex
	state      tile.State
	img        *image.RGBA
	err        error
	leftToLoad int
	unsubs     []func()
	disposed   bool
}

// NewTile prepares a reprojected tile: it triangulates the target
// tile's extent against the source projection and collects the source
// tiles the composite will need. Degenerate geometry yields a tile
// already settled Empty. The only error case is an unknown
// source/target transform pair.
func NewTile(opts Options) (*Tile, error) {
	wrapped := opts.Coord
	if opts.WrappedCoord != nil {
		wrapped = *opts.WrappedCoord
	}
	threshold := opts.ErrorThresholdPixels
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}

	t := &Tile{
		coord:       opts.Coord,
		wrapped:     wrapped,
		key:         opts.Coord.Key(),
		sourceProj:  opts.SourceProj,
		sourceGrid:  opts.SourceGrid,
		targetGrid:  opts.TargetGrid,
		gutter:      opts.Gutter,
		renderEdges: opts.RenderEdges,
		state:       tile.Idle,
	}

	targetExtent := opts.TargetGrid.TileCoordExtent(wrapped)
	limitedTargetExtent := targetExtent
	if maxTargetExtent, ok := opts.TargetGrid.Extent(); ok {
		limitedTargetExtent = targetExtent.Intersect(maxTargetExtent)
	}
	if limitedTargetExtent.Area() == 0 {
		// Entirely outside the target grid.
		t.state = tile.Empty
		return t, nil
	}

	maxSourceExtent := opts.SourceProj.Extent()
	if gridExtent, ok := opts.SourceGrid.Extent(); ok {
		if maxSourceExtent.IsEmpty() {
			maxSourceExtent = gridExtent
		} else {
			maxSourceExtent = maxSourceExtent.Intersect(gridExtent)
		}
	}

	targetResolution := opts.TargetGrid.Resolution(wrapped.Z)
	sourceResolution := proj.CalculateSourceExtentResolution(
		opts.SourceProj, opts.TargetProj, limitedTargetExtent, targetResolution)
	if math.IsNaN(sourceResolution) || math.IsInf(sourceResolution, 0) || sourceResolution <= 0 {
		// Degenerate scale, typically near a projection singularity.
		t.state = tile.Empty
		return t, nil
	}

	tri, err := NewTriangulation(
		opts.SourceProj, opts.TargetProj, limitedTargetExtent, maxSourceExtent,
		sourceResolution*threshold, targetResolution)
	if err != nil {
		return nil, err
	}
	if len(tri.Triangles()) == 0 {
		t.state = tile.Empty
		return t, nil
	}
	t.triangulation = tri
	t.sourceZ = opts.SourceGrid.ZForResolution(sourceResolution, 0)

	sourceExtent := tri.SourceExtent()
	if !maxSourceExtent.IsEmpty() {
		if opts.SourceProj.CanWrapX() {
			// X may legitimately exceed the world while wrapping;
			// only Y is clamped.
			sourceExtent.MinY = clamp(sourceExtent.MinY, maxSourceExtent.MinY, maxSourceExtent.MaxY)
			sourceExtent.MaxY = clamp(sourceExtent.MaxY, maxSourceExtent.MinY, maxSourceExtent.MaxY)
		} else {
			sourceExtent = sourceExtent.Intersect(maxSourceExtent)
		}
	}
	if sourceExtent.Area() == 0 {
		t.state = tile.Empty
		return t, nil
	}

	t.sourceRange = opts.SourceGrid.TileRangeForExtentAndZ(sourceExtent, t.sourceZ)
	t.collectSourceTiles(opts.GetTile)
	if len(t.sourceTiles) == 0 {
		t.state = tile.Empty
	}
	return t, nil
}

// collectSourceTiles resolves every tile of the source range, wrapping
// X into the grid when the source projection wraps.
func (t *Tile) collectSourceTiles(getTile func(z, x, y int) tile.Tile) {
	full, hasFull := t.sourceGrid.FullTileRange(t.sourceZ)
	wrapX := t.sourceProj.CanWrapX() && hasFull

	seen := make(map[string]struct{})
	for x := t.sourceRange.MinX; x <= t.sourceRange.MaxX; x++ {
		wx := x
		if wrapX && (x < full.MinX || x > full.MaxX) {
			wx = full.MinX + int(modulo(float64(x-full.MinX), float64(full.Width())))
		}
		for y := t.sourceRange.MinY; y <= t.sourceRange.MaxY; y++ {
			st := getTile(t.sourceZ, wx, y)
			if st == nil {
				continue
			}
			if _, ok := seen[st.Key()]; ok {
				continue
			}
			seen[st.Key()] = struct{}{}
			t.sourceTiles = append(t.sourceTiles, st)
		}
	}
}

// Coord returns the tile's coordinate.
func (t *Tile) Coord() tilegrid.TileCoord { return t.coord }

// Key returns the tile's cache key.
func (t *Tile) Key() string { return t.key }

// State returns the current lifecycle state.
func (t *Tile) State() tile.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Image returns the composited raster once Loaded, nil otherwise.
func (t *Tile) Image() image.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != tile.Loaded || t.img == nil {
		return nil
	}
	return t.img
}

// Err returns the cause of an Error state, nil otherwise.
func (t *Tile) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// SourceZ returns the source zoom the composite reads from.
func (t *Tile) SourceZ() int { return t.sourceZ }

// SourceRange returns the range of source tiles the composite reads,
// and whether there is one (an Empty tile has none).
func (t *Tile) SourceRange() (tilegrid.TileRange, bool) {
	return t.sourceRange, len(t.sourceTiles) > 0
}

// Load starts loading every source tile. Only an Idle tile reacts.
// The tile settles once all sources have; if none of them loads, it
// becomes Error.
func (t *Tile) Load() {
	t.mu.Lock()
	if t.state != tile.Idle || t.disposed {
		t.mu.Unlock()
		return
	}
	t.state = tile.Loading
	// Guard count held by this call so no callback can reach zero
	// before all subscriptions are in place.
	t.leftToLoad = 1
	t.mu.Unlock()
	t.Notify()

	var toKick []tile.Tile
	for _, st := range t.sourceTiles {
		if st.State().Settled() {
			continue
		}
		t.mu.Lock()
		t.leftToLoad++
		t.mu.Unlock()

		var once sync.Once
		settled := func() { once.Do(func() { t.sourceSettled() }) }
		cancel := st.Subscribe(func() {
			if st.State().Settled() {
				settled()
			}
		})
		t.mu.Lock()
		if t.disposed {
			t.mu.Unlock()
			cancel()
			return
		}
		t.unsubs = append(t.unsubs, cancel)
		t.mu.Unlock()

		// The source may have settled between the state check and the
		// subscription, in which case its notification already fired.
		if st.State().Settled() {
			settled()
		} else if st.State() == tile.Idle {
			toKick = append(toKick, st)
		}
	}

	for _, st := range toKick {
		st.Load()
	}

	// Release the guard. When every source was already settled this
	// is the transition to the composite, run asynchronously so Load
	// returns before the state flips.
	t.mu.Lock()
	t.leftToLoad--
	done := t.leftToLoad == 0 && t.state == tile.Loading && !t.disposed
	t.mu.Unlock()
	if done {
		t.unsubscribeSources()
		go t.reproject()
	}
}

func (t *Tile) sourceSettled() {
	t.mu.Lock()
	t.leftToLoad--
	done := t.leftToLoad == 0 && t.state == tile.Loading && !t.disposed
	t.mu.Unlock()
	if done {
		t.unsubscribeSources()
		t.reproject()
	}
}

// reproject composites every source tile that reached Loaded. Partial
// failures degrade to a partial composite; only a total failure is an
// Error.
func (t *Tile) reproject() {
	var sources []Source
	for _, st := range t.sourceTiles {
		if st.State() == tile.Loaded {
			sources = append(sources, Source{
				Extent: t.sourceGrid.TileCoordExtent(st.Coord()),
				Image:  st.Image(),
			})
		}
	}

	if len(sources) == 0 {
		t.mu.Lock()
		if !t.disposed {
			t.err = ErrNoSources
			t.state = tile.Error
		}
		t.mu.Unlock()
		t.Notify()
		return
	}

	z := t.wrapped.Z
	size := t.targetGrid.TileSize(z)
	canvas := Render(RenderConfig{
		Width:            size,
		Height:           size,
		SourceResolution: t.sourceGrid.Resolution(t.sourceZ),
		TargetResolution: t.targetGrid.Resolution(z),
		TargetExtent:     t.targetGrid.TileCoordExtent(t.wrapped),
		Triangulation:    t.triangulation,
		Sources:          sources,
		Gutter:           t.gutter,
		RenderEdges:      t.renderEdges,
	})

	t.mu.Lock()
	if !t.disposed {
		t.img = canvas
		t.state = tile.Loaded
	}
	t.mu.Unlock()
	t.Notify()
}

// Dispose detaches the tile from its source tiles and drops the
// composited image. The sources themselves are owned by their cache
// and left untouched.
func (t *Tile) Dispose() {
	t.mu.Lock()
	t.disposed = true
	t.img = nil
	t.mu.Unlock()
	t.unsubscribeSources()
}

func (t *Tile) unsubscribeSources() {
	t.mu.Lock()
	unsubs := t.unsubs
	t.unsubs = nil
	t.mu.Unlock()
	for _, cancel := range unsubs {
		cancel()
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
