// Package source provides the tile fetchers maps read from: MBTiles
// archives, remote XYZ endpoints, and in-process image generators.
package source

import (
	"context"
	"image"

	"github.com/tilemesh/server/internal/proj"
	"github.com/tilemesh/server/internal/tile"
	"github.com/tilemesh/server/internal/tilegrid"
)

// Fetcher retrieves and decodes one tile image. Implementations
// report coordinates without data with tile.ErrNoData so callers can
// settle those tiles Empty instead of Error.
type Fetcher interface {
	Fetch(ctx context.Context, c tilegrid.TileCoord) (image.Image, error)
	Close() error
}

// Layer binds a fetcher to the grid and projection its tiles live in.
// When a layer's projection differs from the map's, tiles are pulled
// through the reprojection pipeline instead of served directly.
type Layer struct {
	Grid    *tilegrid.TileGrid
	Proj    *proj.Projection
	Fetcher Fetcher

	// Gutter is the pixel border baked into each source tile that
	// must be cropped before compositing.
	Gutter int
}

// LoadFunc adapts the layer's fetcher to the tile load signature.
func (l Layer) LoadFunc() tile.LoadFunc {
	return func(ctx context.Context, c tilegrid.TileCoord) (image.Image, error) {
		return l.Fetcher.Fetch(ctx, c)
	}
}
