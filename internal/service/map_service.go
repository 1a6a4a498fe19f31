// Package service orchestrates tile serving for the configured maps:
// each map owns its live tile caches, its load scheduler, and the
// pipeline that turns tile requests into encoded images.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"sync"

	"github.com/tilemesh/server/internal/cache"
	"github.com/tilemesh/server/internal/proj"
	"github.com/tilemesh/server/internal/queue"
	"github.com/tilemesh/server/internal/render"
	"github.com/tilemesh/server/internal/reproj"
	"github.com/tilemesh/server/internal/source"
	"github.com/tilemesh/server/internal/tile"
	"github.com/tilemesh/server/internal/tilegrid"
	"github.com/tilemesh/server/pkg/extent"
)

// ErrNoTile marks a coordinate that settled Empty: the map has
// nothing to render there. The API layer maps it to 204 No Content.
var ErrNoTile = errors.New("service: no tile data")

// ErrOutOfBounds marks a coordinate outside the map's grid.
var ErrOutOfBounds = errors.New("service: tile outside map grid")

// ErrViewTooLarge rejects view plans that would sweep more tiles than
// maxPlanTiles.
var ErrViewTooLarge = errors.New("service: view covers too many tiles")

// ErrClosed is returned by operations on a closed service.
var ErrClosed = errors.New("service: map service closed")

// maxPlanTiles bounds the tile range a single view plan may cover.
const maxPlanTiles = 1024

const (
	defaultMaxTotalLoading = 16
	defaultMaxNewLoads     = 2
)

// MapServiceConfig assembles one map service.
type MapServiceConfig struct {
	MapID string
	Grid  *tilegrid.TileGrid
	Proj  *proj.Projection

	// Layer is the tile source the map reads from. A nil Layer.Grid
	// or Layer.Proj defaults to the map's own.
	Layer source.Layer

	// Bytes caches encoded tiles and view manifests. It may be shared
	// between maps; keys are namespaced by map ID.
	Bytes *cache.Manager

	// TileHighWaterMark bounds the live tile caches. Non-positive
	// selects cache.DefaultHighWaterMark.
	TileHighWaterMark int

	// MaxTotalLoading and MaxNewLoads cap the scheduler per admission
	// tick. Non-positive values select 16 and 2.
	MaxTotalLoading int
	MaxNewLoads     int

	// ErrorThresholdPixels bounds the reprojection approximation
	// error. Zero selects reproj.DefaultErrorThreshold.
	ErrorThresholdPixels float64

	// RenderEdges strokes triangulation edges into reprojected tiles.
	RenderEdges bool
}

// MapService serves one configured map. Tile bookkeeping is guarded
// by a single mutex; fetching, reprojection, and encoding happen
// outside it on tile goroutines. Load admission runs on a dedicated
// scheduler goroutine woken by enqueues and settles.
type MapService struct {
	mapID        string
	grid         *tilegrid.TileGrid
	projection   *proj.Projection
	layer        source.Layer
	reprojecting bool

	bytes *cache.Manager
	sched *queue.Scheduler

	maxTotalLoading int
	maxNewLoads     int
	errorThreshold  float64
	renderEdges     bool

	mu          sync.Mutex
	tiles       *cache.TileCache // tiles in the map's own grid
	sourceTiles *cache.TileCache // layer-grid tiles feeding reprojection
	closed      bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	png *render.PNGEncoder
}

// NewMapService wires a map service and starts its scheduler loop.
func NewMapService(cfg MapServiceConfig) (*MapService, error) {
	if cfg.MapID == "" {
		return nil, fmt.Errorf("service: map ID is required")
	}
	if cfg.Grid == nil || cfg.Proj == nil {
		return nil, fmt.Errorf("service: map %q needs a grid and a projection", cfg.MapID)
	}
	if cfg.Layer.Fetcher == nil {
		return nil, fmt.Errorf("service: map %q needs a source fetcher", cfg.MapID)
	}
	if cfg.Bytes == nil {
		return nil, fmt.Errorf("service: map %q needs a byte cache", cfg.MapID)
	}
	if cfg.Layer.Grid == nil {
		cfg.Layer.Grid = cfg.Grid
	}
	if cfg.Layer.Proj == nil {
		cfg.Layer.Proj = cfg.Proj
	}
	if cfg.MaxTotalLoading <= 0 {
		cfg.MaxTotalLoading = defaultMaxTotalLoading
	}
	if cfg.MaxNewLoads <= 0 {
		cfg.MaxNewLoads = defaultMaxNewLoads
	}
	if cfg.ErrorThresholdPixels == 0 {
		cfg.ErrorThresholdPixels = reproj.DefaultErrorThreshold
	}

	s := &MapService{
		mapID:           cfg.MapID,
		grid:            cfg.Grid,
		projection:      cfg.Proj,
		layer:           cfg.Layer,
		reprojecting:    !proj.Equivalent(cfg.Layer.Proj, cfg.Proj),
		bytes:           cfg.Bytes,
		maxTotalLoading: cfg.MaxTotalLoading,
		maxNewLoads:     cfg.MaxNewLoads,
		errorThreshold:  cfg.ErrorThresholdPixels,
		renderEdges:     cfg.RenderEdges,
		tiles:           cache.NewTileCache(cfg.TileHighWaterMark),
		sourceTiles:     cache.NewTileCache(cfg.TileHighWaterMark),
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
		png:             render.NewPNGEncoder(),
	}
	s.sched = queue.NewScheduler(s.tileSettled)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)

	return s, nil
}

// ID returns the map identifier.
func (s *MapService) ID() string { return s.mapID }

// Projection returns the map's projection.
func (s *MapService) Projection() *proj.Projection { return s.projection }

// Grid returns the map's tile grid.
func (s *MapService) Grid() *tilegrid.TileGrid { return s.grid }

// run is the scheduler loop: enqueues and settles coalesce into the
// wake channel, and every wake runs one admission tick.
func (s *MapService) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.sched.AdmitLoads(s.maxTotalLoading, s.maxNewLoads)
		}
	}
}

// poke wakes the scheduler loop. Safe from any goroutine; pending
// pokes coalesce.
func (s *MapService) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// tileSettled runs whenever a scheduled tile settles: cached view
// manifests report stale states now, and a load slot opened up.
func (s *MapService) tileSettled() {
	s.bytes.PurgeManifests()
	s.poke()
}

// wrapCoord maps an out-of-range x into the world for maps whose
// projection wraps around the antimeridian. The requested coordinate
// stays the tile's identity; only the geometry uses the wrapped one.
// The second result reports whether the coordinate addresses any tile.
func (s *MapService) wrapCoord(c tilegrid.TileCoord) (tilegrid.TileCoord, bool) {
	if s.grid.WithinExtentAndZ(c) {
		return c, true
	}
	if !s.projection.CanWrapX() || c.Z < s.grid.MinZoom() || c.Z > s.grid.MaxZoom() {
		return tilegrid.TileCoord{}, false
	}
	gridExtent, ok := s.grid.Extent()
	if !ok || gridExtent.Width() < s.projection.Extent().Width() {
		return tilegrid.TileCoord{}, false
	}
	r, ok := s.grid.FullTileRange(c.Z)
	if !ok || c.Y < r.MinY || c.Y > r.MaxY {
		return tilegrid.TileCoord{}, false
	}
	x := (c.X - r.MinX) % r.Width()
	if x < 0 {
		x += r.Width()
	}
	return tilegrid.NewTileCoord(c.Z, x+r.MinX, c.Y), true
}

// getOrCreateTileLocked returns the live tile for c, constructing it
// on first use. Callers hold s.mu. Coordinates outside the grid that
// cannot wrap into it resolve to ErrOutOfBounds.
func (s *MapService) getOrCreateTileLocked(c tilegrid.TileCoord) (tile.Tile, error) {
	key := c.Key()
	if s.tiles.Contains(key) {
		return s.tiles.Get(key), nil
	}

	wrapped, ok := s.wrapCoord(c)
	if !ok {
		return nil, ErrOutOfBounds
	}

	var t tile.Tile
	if s.reprojecting {
		opts := reproj.Options{
			SourceProj:           s.layer.Proj,
			SourceGrid:           s.layer.Grid,
			TargetProj:           s.projection,
			TargetGrid:           s.grid,
			Coord:                c,
			Gutter:               s.layer.Gutter,
			ErrorThresholdPixels: s.errorThreshold,
			RenderEdges:          s.renderEdges,
			GetTile:              s.getOrCreateSourceTileLocked,
		}
		if wrapped != c {
			opts.WrappedCoord = &wrapped
		}
		rt, err := reproj.NewTile(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to construct tile %s: %w", key, err)
		}
		t = rt
	} else {
		load := s.layer.LoadFunc()
		if wrapped != c {
			fetcher := s.layer.Fetcher
			load = func(ctx context.Context, _ tilegrid.TileCoord) (image.Image, error) {
				return fetcher.Fetch(ctx, wrapped)
			}
		}
		t = tile.NewImage(c, load)
	}

	s.tiles.Set(key, t)
	return t, nil
}

// getOrCreateSourceTileLocked resolves a layer-grid tile for the
// reprojection pipeline, or nil outside the layer's grid. Callers
// hold s.mu.
func (s *MapService) getOrCreateSourceTileLocked(z, x, y int) tile.Tile {
	c := tilegrid.NewTileCoord(z, x, y)
	if !s.layer.Grid.WithinExtentAndZ(c) {
		return nil
	}
	key := c.Key()
	if s.sourceTiles.Contains(key) {
		return s.sourceTiles.Get(key)
	}
	t := tile.NewImage(c, s.layer.LoadFunc())
	s.sourceTiles.Set(key, t)
	return t
}

// GetTile returns the encoded PNG for one tile, loading it first when
// needed. The call blocks until the tile settles or ctx expires.
// Empty tiles return ErrNoTile.
func (s *MapService) GetTile(ctx context.Context, z, x, y int) ([]byte, error) {
	c := tilegrid.NewTileCoord(z, x, y)

	byteKey := cache.TileKey(s.mapID, c)
	if data, ok := s.bytes.GetTileBytes(byteKey); ok {
		return data, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	t, err := s.getOrCreateTileLocked(c)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if !t.State().Settled() {
		settled := make(chan struct{}, 1)
		unsubscribe := t.Subscribe(func() {
			if t.State().Settled() {
				select {
				case settled <- struct{}{}:
				default:
				}
			}
		})
		defer unsubscribe()

		// The tile may have settled between the check and the
		// subscription; re-check before waiting.
		if !t.State().Settled() {
			if t.State() == tile.Idle {
				s.sched.Enqueue(t, 0)
				s.poke()
			}
			select {
			case <-settled:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	switch t.State() {
	case tile.Loaded:
		img := t.Image()
		if img == nil {
			return nil, fmt.Errorf("service: tile %s was evicted during load", c.Key())
		}
		data, err := s.png.Encode(img)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tile %s: %w", c.Key(), err)
		}
		if err := s.bytes.SetTileBytes(byteKey, data); err != nil {
			log.Printf("[Service] byte cache rejected tile %s: %v", byteKey, err)
		}
		return data, nil
	case tile.Empty:
		return nil, ErrNoTile
	case tile.Abort:
		return nil, fmt.Errorf("service: tile %s was evicted during load", c.Key())
	default:
		if err := t.Err(); err != nil {
			return nil, fmt.Errorf("failed to load tile %s: %w", c.Key(), err)
		}
		return nil, fmt.Errorf("failed to load tile %s", c.Key())
	}
}

// ViewPlan reports the tiles covering one view of the map: their
// states at plan time and the URLs to fetch them from.
type ViewPlan struct {
	Map        string         `json:"map"`
	Zoom       int            `json:"zoom"`
	Resolution float64        `json:"resolution"`
	Extent     [4]float64     `json:"extent"`
	Tiles      []PlannedTile  `json:"tiles"`
	Counts     map[string]int `json:"counts"`
}

// PlannedTile is one tile of a planned view. Fallback names a loaded
// coarser tile covering the same area, for clients to stretch while
// this tile settles.
type PlannedTile struct {
	Z        int    `json:"z"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	State    string `json:"state"`
	URL      string `json:"url"`
	Fallback string `json:"fallback,omitempty"`
}

type queuedLoad struct {
	t        tile.Tile
	priority float64
}

// PlanView runs one frame of the render loop for the given view: it
// resolves the zoom level nearest the resolution, walks the covered
// tile range, queues loads for tiles that need them (nearest the view
// center first), expires cache entries no recent view uses, and
// returns the manifest as JSON. Manifests are cached until any
// scheduled tile settles.
func (s *MapService) PlanView(viewExtent extent.Extent, resolution float64) ([]byte, error) {
	if viewExtent.IsEmpty() {
		return nil, fmt.Errorf("service: degenerate view extent")
	}
	if resolution <= 0 || math.IsNaN(resolution) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("service: unusable view resolution %g", resolution)
	}

	viewKey := cache.ViewKey(s.mapID, viewExtent, resolution)
	if data, ok := s.bytes.GetManifest(viewKey); ok {
		return data, nil
	}

	// Plans cover the world the grid knows about; wrap-around copies
	// are the client's concern.
	sweep := viewExtent
	if gridExtent, ok := s.grid.Extent(); ok {
		sweep = sweep.Intersect(gridExtent)
	}

	z := s.grid.ZForResolution(resolution, 0)
	plan := &ViewPlan{
		Map:        s.mapID,
		Zoom:       z,
		Resolution: s.grid.Resolution(z),
		Extent:     [4]float64{viewExtent.MinX, viewExtent.MinY, viewExtent.MaxX, viewExtent.MaxY},
		Tiles:      []PlannedTile{},
		Counts:     make(map[string]int),
	}

	var toQueue []queuedLoad
	if !sweep.IsEmpty() {
		targetRange := s.grid.TileRangeForExtentAndZ(sweep, z)
		if targetRange.Size() > maxPlanTiles {
			return nil, fmt.Errorf("%w: %d at z%d", ErrViewTooLarge, targetRange.Size(), z)
		}
		center := viewExtent.Center()

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		used := map[int]tilegrid.TileRange{z: targetRange}
		usedSource := make(map[int]tilegrid.TileRange)
		s.grid.ForEachTileCoord(sweep, z, func(c tilegrid.TileCoord) {
			t, err := s.getOrCreateTileLocked(c)
			if err != nil {
				return
			}
			st := t.State()
			p := PlannedTile{
				Z:     c.Z,
				X:     c.X,
				Y:     c.Y,
				State: st.String(),
				URL:   s.tileURL(c),
			}
			if st != tile.Loaded {
				if fc, ok := s.loadedAncestorLocked(c); ok {
					p.Fallback = s.tileURL(fc)
				}
			}
			plan.Tiles = append(plan.Tiles, p)
			plan.Counts[st.String()]++
			if st == tile.Idle {
				tc := s.grid.TileCoordCenter(c)
				toQueue = append(toQueue, queuedLoad{
					t:        t,
					priority: math.Hypot(tc[0]-center[0], tc[1]-center[1]),
				})
			}
			if rt, ok := t.(*reproj.Tile); ok {
				if r, ok := rt.SourceRange(); ok {
					if prev, ok := usedSource[rt.SourceZ()]; ok {
						usedSource[rt.SourceZ()] = prev.Extend(r)
					} else {
						usedSource[rt.SourceZ()] = r
					}
				}
			}
		})
		s.tiles.ExpireCache(used)
		s.sourceTiles.ExpireCache(usedSource)
		s.mu.Unlock()
	}

	for _, q := range toQueue {
		s.sched.Enqueue(q.t, q.priority)
	}
	if len(toQueue) > 0 {
		s.poke()
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode view plan: %w", err)
	}
	s.bytes.SetManifest(viewKey, data)
	return data, nil
}

func (s *MapService) tileURL(c tilegrid.TileCoord) string {
	return fmt.Sprintf("/maps/%s/tiles/%d/%d/%d.png", s.mapID, c.Z, c.X, c.Y)
}

// loadedAncestorLocked walks coarser levels for a loaded tile covering
// c. Peeking keeps recency intact and never creates tiles.
func (s *MapService) loadedAncestorLocked(c tilegrid.TileCoord) (tilegrid.TileCoord, bool) {
	var found tilegrid.TileCoord
	ok := s.grid.ForEachTileCoordParentTileRange(c, func(z int, r tilegrid.TileRange) bool {
		for x := r.MinX; x <= r.MaxX; x++ {
			for y := r.MinY; y <= r.MaxY; y++ {
				pc := tilegrid.NewTileCoord(z, x, y)
				if t, hit := s.tiles.Peek(pc.Key()); hit && t.State() == tile.Loaded {
					found = pc
					return true
				}
			}
		}
		return false
	})
	return found, ok
}

// Stats is a point-in-time snapshot of one map's caches and queue.
type Stats struct {
	Map             string                 `json:"map"`
	Projection      string                 `json:"projection"`
	Reprojecting    bool                   `json:"reprojecting"`
	LiveTiles       int                    `json:"live_tiles"`
	LiveSourceTiles int                    `json:"live_source_tiles"`
	HighWaterMark   int                    `json:"high_water_mark"`
	Queued          int                    `json:"queued"`
	Loading         int                    `json:"loading"`
	ByteCache       map[string]interface{} `json:"byte_cache"`
}

// Stats reports cache occupancy and queue depth for the map.
func (s *MapService) Stats() Stats {
	s.mu.Lock()
	live := s.tiles.Count()
	liveSource := s.sourceTiles.Count()
	hwm := s.tiles.HighWaterMark()
	s.mu.Unlock()

	return Stats{
		Map:             s.mapID,
		Projection:      s.projection.Code(),
		Reprojecting:    s.reprojecting,
		LiveTiles:       live,
		LiveSourceTiles: liveSource,
		HighWaterMark:   hwm,
		Queued:          s.sched.Count(),
		Loading:         s.sched.InFlight(),
		ByteCache:       s.bytes.Stats(),
	}
}

// PruneLevels drops every live tile off the most recently used zoom
// level, on both the map grid and the source grid.
func (s *MapService) PruneLevels() {
	s.mu.Lock()
	s.tiles.PruneExceptNewestZ()
	s.sourceTiles.PruneExceptNewestZ()
	s.mu.Unlock()
	s.bytes.PurgeManifests()
}

// Close stops the scheduler loop and disposes every live tile. The
// layer's fetcher is owned by the caller and left open.
func (s *MapService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	s.sched.Close()

	s.mu.Lock()
	tiles, sourceTiles := s.tiles, s.sourceTiles
	s.mu.Unlock()
	tiles.DisposeAll()
	sourceTiles.DisposeAll()
	return nil
}
