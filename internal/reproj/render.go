package reproj

import (
	"image"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/tilemesh/server/pkg/extent"
)

// Source is one loaded source tile with its extent in source units.
type Source struct {
	Extent extent.Extent
	Image  image.Image
}

// RenderConfig carries everything the compositor needs for one tile.
type RenderConfig struct {
	Width, Height    int
	SourceResolution float64
	TargetResolution float64
	TargetExtent     extent.Extent
	Triangulation    *Triangulation
	Sources          []Source

	// Gutter is the border of source pixels cropped from each source
	// image before stitching.
	Gutter int

	// RenderEdges keeps the anti-aliased triangle masks and strokes
	// their outlines for debugging; when false, edges hard-clip.
	RenderEdges bool
}

// Render composites the loaded sources into a target-sized canvas.
// The sources are stitched into one source-resolution image, then
// every triangle of the mesh is affine-warped into place, clipped by
// its own rasterized mask.
func Render(cfg RenderConfig) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	if len(cfg.Sources) == 0 {
		return canvas
	}

	stitched, stitchExtent := stitchSources(cfg)

	targetTopLeft := cfg.TargetExtent.TopLeft()
	maskDC := gg.NewContext(cfg.Width, cfg.Height)

	for _, tri := range cfg.Triangulation.Triangles() {
		// Vertices in stitch space (map units right of and below the
		// stitch top left) and in whole target pixels.
		var x, y, u, v [3]float64
		for i := 0; i < 3; i++ {
			x[i] = tri.Source[i][0] - stitchExtent.MinX
			y[i] = stitchExtent.MaxY - tri.Source[i][1]
			u[i] = math.Round((tri.Target[i][0] - targetTopLeft[0]) / cfg.TargetResolution)
			v[i] = math.Round(-(tri.Target[i][1] - targetTopLeft[1]) / cfg.TargetResolution)
		}

		// Solve for the affine mapping shifted source coordinates to
		// shifted target pixels. Shifting everything to the first
		// vertex keeps the system well conditioned.
		x1 := x[1] - x[0]
		y1 := y[1] - y[0]
		x2 := x[2] - x[0]
		y2 := y[2] - y[0]
		coefs := solveLinearSystem([][]float64{
			{x1, y1, 0, 0, u[1] - u[0]},
			{x2, y2, 0, 0, u[2] - u[0]},
			{0, 0, x1, y1, v[1] - v[0]},
			{0, 0, x2, y2, v[2] - v[0]},
		})
		if coefs == nil {
			// Degenerate triangle.
			continue
		}
		a00, a01, a10, a11 := coefs[0], coefs[1], coefs[2], coefs[3]

		// Compose with the stitch-pixel-to-map scaling so the matrix
		// maps stitch pixels straight to target pixels.
		res := cfg.SourceResolution
		m := f64.Aff3{
			a00 * res, a01 * res, u[0] - a00*x[0] - a01*y[0],
			a10 * res, a11 * res, v[0] - a10*x[0] - a11*y[0],
		}

		mask := triangleMask(maskDC, u, v, cfg.RenderEdges)
		draw.BiLinear.Transform(canvas, m, stitched, stitched.Bounds(), draw.Over, &draw.Options{
			DstMask: mask,
		})
	}

	if cfg.RenderEdges {
		strokeTriangles(canvas, cfg.Triangulation.Triangles(), targetTopLeft, cfg.TargetResolution)
	}
	return canvas
}

// stitchSources composites the source images, gutters cropped, into
// one canvas at source resolution covering their combined extent.
func stitchSources(cfg RenderConfig) (*image.RGBA, extent.Extent) {
	combined := extent.Empty()
	for _, src := range cfg.Sources {
		combined = combined.Extend(src.Extent)
	}

	res := cfg.SourceResolution
	w := max(1, int(math.Round(combined.Width()/res)))
	h := max(1, int(math.Round(combined.Height()/res)))
	stitched := image.NewRGBA(image.Rect(0, 0, w, h))

	for _, src := range cfg.Sources {
		if src.Extent.Width() <= 0 || src.Extent.Height() <= 0 {
			continue
		}
		x0 := int(math.Round((src.Extent.MinX - combined.MinX) / res))
		y0 := int(math.Round((combined.MaxY - src.Extent.MaxY) / res))
		dr := image.Rect(x0, y0,
			x0+int(math.Round(src.Extent.Width()/res)),
			y0+int(math.Round(src.Extent.Height()/res)))
		sr := src.Image.Bounds().Inset(cfg.Gutter)
		if dr.Empty() || sr.Empty() {
			continue
		}
		draw.ApproxBiLinear.Scale(stitched, dr, src.Image, sr, draw.Src, nil)
	}
	return stitched, combined
}

// triangleMask rasterizes one triangle into an alpha mask, vertices
// pushed a pixel away from the centroid so adjacent triangles overlap
// instead of seaming.
func triangleMask(dc *gg.Context, u, v [3]float64, antialias bool) *image.Alpha {
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	cx := (u[0] + u[1] + u[2]) / 3
	cy := (v[0] + v[1] + v[2]) / 3
	x1, y1 := enlargeClipPoint(cx, cy, u[1], v[1])
	x0, y0 := enlargeClipPoint(cx, cy, u[0], v[0])
	x2, y2 := enlargeClipPoint(cx, cy, u[2], v[2])

	dc.MoveTo(x1, y1)
	dc.LineTo(x0, y0)
	dc.LineTo(x2, y2)
	dc.ClosePath()
	dc.SetRGBA(1, 1, 1, 1)
	dc.Fill()

	mask := dc.AsMask()
	if !antialias {
		for i, a := range mask.Pix {
			if a >= 128 {
				mask.Pix[i] = 255
			} else {
				mask.Pix[i] = 0
			}
		}
	}
	return mask
}

// enlargeClipPoint moves a vertex one pixel away from the centroid
// and snaps it to the pixel grid.
func enlargeClipPoint(cx, cy, x, y float64) (float64, float64) {
	dx := x - cx
	dy := y - cy
	dist := math.Sqrt(dx*dx + dy*dy)
	if dist == 0 {
		return math.Round(x), math.Round(y)
	}
	return math.Round(x + dx/dist), math.Round(y + dy/dist)
}

func strokeTriangles(canvas *image.RGBA, triangles []Triangle, topLeft [2]float64, res float64) {
	dc := gg.NewContextForRGBA(canvas)
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	for _, tri := range triangles {
		u0 := (tri.Target[0][0] - topLeft[0]) / res
		v0 := -(tri.Target[0][1] - topLeft[1]) / res
		u1 := (tri.Target[1][0] - topLeft[0]) / res
		v1 := -(tri.Target[1][1] - topLeft[1]) / res
		u2 := (tri.Target[2][0] - topLeft[0]) / res
		v2 := -(tri.Target[2][1] - topLeft[1]) / res
		dc.MoveTo(u1, v1)
		dc.LineTo(u0, v0)
		dc.LineTo(u2, v2)
		dc.ClosePath()
		dc.Stroke()
	}
}

// solveLinearSystem solves the n x n system given as rows of n
// coefficients plus the right-hand side, by Gaussian elimination with
// partial pivoting. It returns nil when the matrix is singular. The
// input is clobbered.
func solveLinearSystem(mat [][]float64) []float64 {
	n := len(mat)
	for i := 0; i < n; i++ {
		maxRow := i
		maxEl := math.Abs(mat[i][i])
		for r := i + 1; r < n; r++ {
			if abs := math.Abs(mat[r][i]); abs > maxEl {
				maxEl = abs
				maxRow = r
			}
		}
		if maxEl == 0 {
			return nil
		}
		mat[maxRow], mat[i] = mat[i], mat[maxRow]

		for j := i + 1; j < n; j++ {
			coef := -mat[j][i] / mat[i][i]
			for k := i; k <= n; k++ {
				if k == i {
					mat[j][k] = 0
				} else {
					mat[j][k] += coef * mat[i][k]
				}
			}
		}
	}

	x := make([]float64, n)
	for l := n - 1; l >= 0; l-- {
		x[l] = mat[l][n] / mat[l][l]
		for m := l - 1; m >= 0; m-- {
			mat[m][n] -= mat[m][l] * x[l]
		}
	}
	return x
}
