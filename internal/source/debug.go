package source

import (
	"context"
	"image"
	"math"

	"github.com/fogleman/gg"

	"github.com/tilemesh/server/internal/tilegrid"
	"github.com/tilemesh/server/pkg/colormap"
)

// Debug renders each tile's own coordinate as its image: a labeled,
// outlined square tinted by zoom level. Handy for checking grid
// arithmetic and reprojection warps by eye.
type Debug struct {
	size int
}

// NewDebug returns a debug source rendering size x size tiles.
func NewDebug(size int) *Debug {
	if size <= 0 {
		size = tilegrid.DefaultTileSize
	}
	return &Debug{size: size}
}

// Fetch draws the coordinate label tile.
func (d *Debug) Fetch(ctx context.Context, c tilegrid.TileCoord) (image.Image, error) {
	w := float64(d.size)
	dc := gg.NewContext(d.size, d.size)

	// Dimmed ramp color per zoom so levels are easy to tell apart.
	bg := colormap.Viridis.At(math.Min(float64(c.Z)/18, 1))
	dc.SetRGB(float64(bg.R)/255*0.4, float64(bg.G)/255*0.4, float64(bg.B)/255*0.4)
	dc.Clear()

	dc.SetRGB(0.85, 0.85, 0.85)
	dc.SetLineWidth(1)
	dc.DrawRectangle(0.5, 0.5, w-1, w-1)
	dc.Stroke()

	dc.DrawStringAnchored(c.Key(), w/2, w/2, 0.5, 0.5)

	return dc.Image(), nil
}

// Close is a no-op.
func (d *Debug) Close() error { return nil }
