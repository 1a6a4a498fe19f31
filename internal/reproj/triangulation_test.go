package reproj

import (
	"math"
	"testing"

	"github.com/tilemesh/server/internal/proj"
	"github.com/tilemesh/server/internal/tilegrid"
	"github.com/tilemesh/server/pkg/extent"
)

func TestTriangulation_IdentityIsMinimal(t *testing.T) {
	merc := proj.MustGet("EPSG:3857")
	grid, err := tilegrid.XYZ(merc.Extent(), 5, 256)
	if err != nil {
		t.Fatalf("failed to build grid: %v", err)
	}
	coord := tilegrid.NewTileCoord(3, 2, 5)
	ex := grid.TileCoordExtent(coord)
	res := grid.Resolution(3)

	tri, err := NewTriangulation(merc, merc, ex, merc.Extent(), res*DefaultErrorThreshold, res)
	if err != nil {
		t.Fatalf("failed to triangulate: %v", err)
	}

	// The identity transform has zero approximation error, so the
	// initial diagonal split is all there is.
	if got := len(tri.Triangles()); got != 2 {
		t.Fatalf("unexpected triangle count: got %d want 2", got)
	}
	if tri.WrapsX() {
		t.Fatal("identity triangulation must not wrap")
	}

	se := tri.SourceExtent()
	eps := res / 1000
	if math.Abs(se.MinX-ex.MinX) > eps || math.Abs(se.MaxX-ex.MaxX) > eps ||
		math.Abs(se.MinY-ex.MinY) > eps || math.Abs(se.MaxY-ex.MaxY) > eps {
		t.Fatalf("source extent %+v does not match target extent %+v", se, ex)
	}
}

func TestTriangulation_SubdividesCurvedTransform(t *testing.T) {
	merc := proj.MustGet("EPSG:3857")
	geo := proj.MustGet("EPSG:4326")
	grid, err := tilegrid.XYZ(merc.Extent(), 5, 256)
	if err != nil {
		t.Fatalf("failed to build grid: %v", err)
	}

	// A northern tile, where mercator stretching bends the inverse
	// transform visibly.
	ex := grid.TileCoordExtent(tilegrid.NewTileCoord(2, 1, 3))
	res := grid.Resolution(2)
	sourceRes := proj.CalculateSourceExtentResolution(geo, merc, ex, res)

	tri, err := NewTriangulation(geo, merc, ex, geo.Extent(), sourceRes*DefaultErrorThreshold, res)
	if err != nil {
		t.Fatalf("failed to triangulate: %v", err)
	}
	if got := len(tri.Triangles()); got <= 2 {
		t.Fatalf("expected subdivision beyond the initial split, got %d triangles", got)
	}
	for _, tr := range tri.Triangles() {
		for _, v := range tr.Source {
			if !finiteCoord(v) {
				t.Fatalf("non-finite source vertex %v", v)
			}
		}
	}
}

func TestTriangulation_DisjointSourceYieldsNothing(t *testing.T) {
	merc := proj.MustGet("EPSG:3857")
	geo := proj.MustGet("EPSG:4326")
	grid, err := tilegrid.XYZ(merc.Extent(), 5, 256)
	if err != nil {
		t.Fatalf("failed to build grid: %v", err)
	}

	// Tile over Australia against a source confined to the Alps.
	coord := grid.TileCoordForCoordAndZ([2]float64{1.5e7, -3e6}, 3)
	ex := grid.TileCoordExtent(coord)
	res := grid.Resolution(3)
	alps := extent.New(5, 45, 11, 48)

	tri, err := NewTriangulation(geo, merc, ex, alps, res*DefaultErrorThreshold, res)
	if err != nil {
		t.Fatalf("failed to triangulate: %v", err)
	}
	if got := len(tri.Triangles()); got != 0 {
		t.Fatalf("expected no triangles for disjoint source, got %d", got)
	}
}

func TestTriangulation_WrapNormalization(t *testing.T) {
	merc := proj.MustGet("EPSG:3857")
	world := merc.Extent()
	w := world.Width()

	tr := &Triangulation{
		sourceProj:         merc,
		targetProj:         merc,
		maxSourceExtent:    world,
		hasMaxSourceExtent: true,
		errorThresholdSq:   math.Inf(1),
		canWrapXInSource:   true,
		sourceWorldWidth:   w,
		targetWorldWidth:   w,
	}
	// Inverse transform that wraps X back into the world, the way a
	// projection routed across the antimeridian behaves.
	tr.transformInv = func(c [2]float64) [2]float64 {
		return [2]float64{modulo(c[0]-world.MinX, w) + world.MinX, c[1]}
	}

	// Target quad straddling the antimeridian: the left half maps to
	// the far east, the right half wraps to the far west.
	ex := extent.New(world.MaxX-w/8, -1e6, world.MaxX+w/8, 1e6)
	a := ex.TopLeft()
	b := ex.TopRight()
	c := ex.BottomRight()
	d := ex.BottomLeft()
	tr.addQuad(a, b, c, d,
		tr.transformInv(a), tr.transformInv(b), tr.transformInv(c), tr.transformInv(d),
		maxSubdivisionDepth)

	if !tr.wrapsXInSource {
		t.Fatal("expected the quad to be detected as wrapping")
	}
	if got := len(tr.triangles); got != 2 {
		t.Fatalf("unexpected triangle count: got %d want 2", got)
	}

	tr.normalizeWrappedTriangles()

	se := tr.SourceExtent()
	if se.Width() >= w/2 {
		t.Fatalf("source extent still straddles the wrap: width %g of world %g", se.Width(), w)
	}
	if math.Abs(se.Width()-w/4) > w/1e6 {
		t.Fatalf("unexpected normalized width: got %g want %g", se.Width(), w/4)
	}
}

func TestSolveLinearSystem(t *testing.T) {
	x := solveLinearSystem([][]float64{
		{2, 0, 4},
		{0, 2, 6},
	})
	if x == nil {
		t.Fatal("expected a solution")
	}
	if math.Abs(x[0]-2) > 1e-12 || math.Abs(x[1]-3) > 1e-12 {
		t.Fatalf("unexpected solution: %v", x)
	}

	if got := solveLinearSystem([][]float64{
		{1, 1, 2},
		{2, 2, 4},
	}); got != nil {
		t.Fatalf("expected nil for singular system, got %v", got)
	}
}
