package source

import (
	"context"
	"image"
	"image/color"

	"github.com/tilemesh/server/internal/tilegrid"
)

// Static serves the same image for every coordinate. Used for flat
// background layers and as a deterministic source in tests.
type Static struct {
	img image.Image
}

// NewStatic returns a fetcher that always yields img.
func NewStatic(img image.Image) *Static {
	return &Static{img: img}
}

// NewSolid returns a fetcher serving a solid color at the given tile
// size.
func NewSolid(c color.Color, size int) *Static {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	return &Static{img: img}
}

// Fetch returns the fixed image.
func (s *Static) Fetch(ctx context.Context, c tilegrid.TileCoord) (image.Image, error) {
	return s.img, nil
}

// Close is a no-op.
func (s *Static) Close() error { return nil }
