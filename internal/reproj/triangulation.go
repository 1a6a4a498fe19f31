package reproj

import (
	"math"

	"github.com/tilemesh/server/internal/proj"
	"github.com/tilemesh/server/pkg/extent"
)

// maxSubdivisionDepth caps quad recursion so pathological projections
// terminate even when the error threshold alone never converges.
const maxSubdivisionDepth = 10

// maxTriangleWidth is the widest a quad may span, as a fraction of a
// global projection's world width, before it is force-subdivided.
// Wider quads can mistake an antimeridian wrap for a short segment.
const maxTriangleWidth = 0.25

// Triangle maps one triangular patch of the target extent onto the
// source projection. Vertices correspond pairwise.
type Triangle struct {
	Source [3][2]float64
	Target [3][2]float64
}

// Triangulation is a piecewise-affine approximation of the
// target-to-source transform over one target extent, refined until
// the error at each quad center is within the threshold.
type Triangulation struct {
	sourceProj *proj.Projection
	targetProj *proj.Projection

	// transformInv maps target coordinates to source coordinates,
	// memoized per vertex for the duration of the build.
	transformInv func(c [2]float64) [2]float64

	maxSourceExtent    extent.Extent
	hasMaxSourceExtent bool

	errorThresholdSq float64

	triangles []Triangle

	canWrapXInSource bool
	wrapsXInSource   bool
	sourceWorldWidth float64
	targetWorldWidth float64
}

// NewTriangulation triangulates targetExtent against the source
// projection. errorThreshold is the tolerated approximation error in
// source units. An empty (inverted) maxSourceExtent means the source
// is unbounded. targetResolution deepens the subdivision budget for
// extents spanning many tiles.
func NewTriangulation(sourceProj, targetProj *proj.Projection, targetExtent, maxSourceExtent extent.Extent, errorThreshold, targetResolution float64) (*Triangulation, error) {
	inv, err := proj.TransformFunc(targetProj, sourceProj)
	if err != nil {
		return nil, err
	}

	tr := &Triangulation{
		sourceProj:         sourceProj,
		targetProj:         targetProj,
		maxSourceExtent:    maxSourceExtent,
		hasMaxSourceExtent: !maxSourceExtent.IsEmpty(),
		errorThresholdSq:   errorThreshold * errorThreshold,
	}

	cache := make(map[[2]float64][2]float64)
	tr.transformInv = func(c [2]float64) [2]float64 {
		if v, ok := cache[c]; ok {
			return v
		}
		x, y := inv(c[0], c[1])
		v := [2]float64{x, y}
		cache[c] = v
		return v
	}

	if se := sourceProj.Extent(); !se.IsEmpty() {
		tr.sourceWorldWidth = se.Width()
		tr.canWrapXInSource = sourceProj.CanWrapX() &&
			tr.hasMaxSourceExtent &&
			maxSourceExtent.Width() >= se.Width()
	}
	if te := targetProj.Extent(); !te.IsEmpty() {
		tr.targetWorldWidth = te.Width()
	}

	// Extents much larger than one tile need proportionally more
	// subdivision before quads shrink to tile scale.
	depth := maxSubdivisionDepth
	if area := targetExtent.Area(); targetResolution > 0 && area > 0 {
		extra := math.Ceil(math.Log2(area / (targetResolution * targetResolution * 256 * 256)))
		if extra > 0 && !math.IsInf(extra, 0) {
			depth += int(extra)
		}
	}

	a := targetExtent.TopLeft()
	b := targetExtent.TopRight()
	c := targetExtent.BottomRight()
	d := targetExtent.BottomLeft()
	tr.addQuad(a, b, c, d,
		tr.transformInv(a), tr.transformInv(b), tr.transformInv(c), tr.transformInv(d),
		depth)

	if tr.wrapsXInSource {
		tr.normalizeWrappedTriangles()
	}
	return tr, nil
}

// Triangles returns the triangle mesh.
func (tr *Triangulation) Triangles() []Triangle { return tr.triangles }

// WrapsX reports whether any triangle crosses the source antimeridian.
func (tr *Triangulation) WrapsX() bool { return tr.wrapsXInSource }

// SourceExtent returns the bounding extent of all source vertices.
func (tr *Triangulation) SourceExtent() extent.Extent {
	e := extent.Empty()
	for _, t := range tr.triangles {
		e = e.ExtendCoord(t.Source[0]).ExtendCoord(t.Source[1]).ExtendCoord(t.Source[2])
	}
	return e
}

func (tr *Triangulation) addTriangle(a, b, c, aSrc, bSrc, cSrc [2]float64) {
	tr.triangles = append(tr.triangles, Triangle{
		Source: [3][2]float64{aSrc, bSrc, cSrc},
		Target: [3][2]float64{a, b, c},
	})
}

// addQuad covers the target quad a-b-c-d (clockwise from the top
// left) with triangles, subdividing while the approximation error at
// the quad center exceeds the threshold and depth remains.
func (tr *Triangulation) addQuad(a, b, c, d, aSrc, bSrc, cSrc, dSrc [2]float64, depth int) {
	srcQuad := extent.FromCoords(aSrc, bSrc, cSrc, dSrc)
	var sourceCoverageX float64
	if tr.sourceWorldWidth > 0 {
		sourceCoverageX = srcQuad.Width() / tr.sourceWorldWidth
	}

	// A quad spanning more than half the source world, but not all of
	// it, actually crosses the antimeridian.
	wrapsX := tr.sourceProj.CanWrapX() && sourceCoverageX > 0.5 && sourceCoverageX < 1

	needsSubdivision := false
	if depth > 0 {
		if tr.targetProj.Global() && tr.targetWorldWidth > 0 {
			tgtQuad := extent.FromCoords(a, b, c, d)
			if tgtQuad.Width()/tr.targetWorldWidth > maxTriangleWidth {
				needsSubdivision = true
			}
		}
		if !wrapsX && tr.sourceProj.Global() && sourceCoverageX > maxTriangleWidth {
			needsSubdivision = true
		}
	}

	if !needsSubdivision && tr.hasMaxSourceExtent && srcQuad.IsFinite() {
		if !srcQuad.Intersects(tr.maxSourceExtent) {
			return
		}
	}

	// Bit per corner, a..d high to low. Set bits mark corners whose
	// source image is not finite.
	badCorners := 0
	if !needsSubdivision {
		if !finiteCoord(aSrc) || !finiteCoord(bSrc) || !finiteCoord(cSrc) || !finiteCoord(dSrc) {
			if depth > 0 {
				needsSubdivision = true
			} else {
				if !finiteCoord(aSrc) {
					badCorners |= 0b1000
				}
				if !finiteCoord(bSrc) {
					badCorners |= 0b0100
				}
				if !finiteCoord(cSrc) {
					badCorners |= 0b0010
				}
				if !finiteCoord(dSrc) {
					badCorners |= 0b0001
				}
				// With two or more unusable corners no triangle of
				// finite vertices remains.
				if badCorners != 1 && badCorners != 2 && badCorners != 4 && badCorners != 8 {
					return
				}
			}
		}
	}

	if depth > 0 {
		if !needsSubdivision {
			center := [2]float64{(a[0] + c[0]) / 2, (a[1] + c[1]) / 2}
			centerSrc := tr.transformInv(center)

			var dx float64
			if wrapsX {
				estim := (modulo(aSrc[0], tr.sourceWorldWidth) + modulo(cSrc[0], tr.sourceWorldWidth)) / 2
				dx = estim - modulo(centerSrc[0], tr.sourceWorldWidth)
			} else {
				dx = (aSrc[0]+cSrc[0])/2 - centerSrc[0]
			}
			dy := (aSrc[1]+cSrc[1])/2 - centerSrc[1]
			needsSubdivision = dx*dx+dy*dy > tr.errorThresholdSq
		}
		if needsSubdivision {
			if math.Abs(a[0]-c[0]) <= math.Abs(a[1]-c[1]) {
				// Taller than wide: split into top and bottom halves.
				bc := midpoint(b, c)
				da := midpoint(d, a)
				bcSrc := tr.transformInv(bc)
				daSrc := tr.transformInv(da)
				tr.addQuad(a, b, bc, da, aSrc, bSrc, bcSrc, daSrc, depth-1)
				tr.addQuad(da, bc, c, d, daSrc, bcSrc, cSrc, dSrc, depth-1)
			} else {
				// Wider than tall: split into left and right halves.
				ab := midpoint(a, b)
				cd := midpoint(c, d)
				abSrc := tr.transformInv(ab)
				cdSrc := tr.transformInv(cd)
				tr.addQuad(a, ab, cd, d, aSrc, abSrc, cdSrc, dSrc, depth-1)
				tr.addQuad(ab, b, c, cd, abSrc, bSrc, cSrc, cdSrc, depth-1)
			}
			return
		}
	}

	if wrapsX {
		if !tr.canWrapXInSource {
			return
		}
		tr.wrapsXInSource = true
	}

	if badCorners&0b1011 == 0 {
		tr.addTriangle(a, c, d, aSrc, cSrc, dSrc)
	}
	if badCorners&0b1110 == 0 {
		tr.addTriangle(a, c, b, aSrc, cSrc, bSrc)
	}
	if badCorners != 0 {
		// One corner is unusable; the other diagonal still yields one
		// triangle of the three good corners.
		if badCorners&0b1101 == 0 {
			tr.addTriangle(b, d, a, bSrc, dSrc, aSrc)
		}
		if badCorners&0b0111 == 0 {
			tr.addTriangle(b, d, c, bSrc, dSrc, cSrc)
		}
	}
}

// normalizeWrappedTriangles shifts triangles east of the wrap line a
// world width west so all source coordinates are continuous. Shifts
// that would themselves straddle the wrap line are discarded.
func (tr *Triangulation) normalizeWrappedTriangles() {
	leftBound := math.Inf(1)
	for _, t := range tr.triangles {
		leftBound = math.Min(leftBound, min3(t.Source[0][0], t.Source[1][0], t.Source[2][0]))
	}

	half := tr.sourceWorldWidth / 2
	for i := range tr.triangles {
		t := &tr.triangles[i]
		if max3(t.Source[0][0], t.Source[1][0], t.Source[2][0])-leftBound <= half {
			continue
		}
		shifted := t.Source
		for j := range shifted {
			if shifted[j][0]-leftBound > half {
				shifted[j][0] -= tr.sourceWorldWidth
			}
		}
		if max3(shifted[0][0], shifted[1][0], shifted[2][0])-min3(shifted[0][0], shifted[1][0], shifted[2][0]) < half {
			t.Source = shifted
		}
	}
}

func finiteCoord(c [2]float64) bool {
	return !math.IsInf(c[0], 0) && !math.IsNaN(c[0]) &&
		!math.IsInf(c[1], 0) && !math.IsNaN(c[1])
}

func midpoint(p, q [2]float64) [2]float64 {
	return [2]float64{(p[0] + q[0]) / 2, (p[1] + q[1]) / 2}
}

// modulo is the floored modulo, non-negative for positive divisors.
func modulo(a, b float64) float64 {
	return math.Mod(math.Mod(a, b)+b, b)
}

func min3(a, b, c float64) float64 { return math.Min(a, math.Min(b, c)) }

func max3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }
