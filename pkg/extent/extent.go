// Package extent provides bounding-box arithmetic in map units.
package extent

import "math"

// Extent is an axis-aligned bounding box.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// New returns the extent spanning the given corners.
func New(minX, minY, maxX, maxY float64) Extent {
	return Extent{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Empty returns an inverted extent that extends to nothing.
func Empty() Extent {
	return Extent{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// FromCoords returns the smallest extent covering all points.
func FromCoords(coords ...[2]float64) Extent {
	e := Empty()
	for _, c := range coords {
		e = e.ExtendCoord(c)
	}
	return e
}

// Width returns the horizontal span.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns the vertical span.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Area returns width*height, or 0 when the extent is inverted.
func (e Extent) Area() float64 {
	w := e.Width()
	h := e.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IsEmpty reports whether the extent spans no area.
func (e Extent) IsEmpty() bool { return e.MaxX < e.MinX || e.MaxY < e.MinY }

// Center returns the midpoint.
func (e Extent) Center() [2]float64 {
	return [2]float64{(e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2}
}

// TopLeft returns the min-x/max-y corner.
func (e Extent) TopLeft() [2]float64 { return [2]float64{e.MinX, e.MaxY} }

// TopRight returns the max-x/max-y corner.
func (e Extent) TopRight() [2]float64 { return [2]float64{e.MaxX, e.MaxY} }

// BottomLeft returns the min-x/min-y corner.
func (e Extent) BottomLeft() [2]float64 { return [2]float64{e.MinX, e.MinY} }

// BottomRight returns the max-x/min-y corner.
func (e Extent) BottomRight() [2]float64 { return [2]float64{e.MaxX, e.MinY} }

// Contains reports whether the point lies inside or on the boundary.
func (e Extent) Contains(x, y float64) bool {
	return e.MinX <= x && x <= e.MaxX && e.MinY <= y && y <= e.MaxY
}

// ContainsCoord reports whether the coordinate lies inside or on the boundary.
func (e Extent) ContainsCoord(c [2]float64) bool { return e.Contains(c[0], c[1]) }

// ContainsExtent reports whether other lies fully inside e.
func (e Extent) ContainsExtent(other Extent) bool {
	return e.MinX <= other.MinX && other.MaxX <= e.MaxX &&
		e.MinY <= other.MinY && other.MaxY <= e.MaxY
}

// Intersects reports whether the two extents share any point.
func (e Extent) Intersects(other Extent) bool {
	return e.MinX <= other.MaxX && e.MaxX >= other.MinX &&
		e.MinY <= other.MaxY && e.MaxY >= other.MinY
}

// Intersect returns the overlap of the two extents. The result is
// inverted (IsEmpty) when they do not intersect.
func (e Extent) Intersect(other Extent) Extent {
	out := Empty()
	if !e.Intersects(other) {
		return out
	}
	out.MinX = math.Max(e.MinX, other.MinX)
	out.MinY = math.Max(e.MinY, other.MinY)
	out.MaxX = math.Min(e.MaxX, other.MaxX)
	out.MaxY = math.Min(e.MaxY, other.MaxY)
	return out
}

// Extend returns the smallest extent covering both e and other.
func (e Extent) Extend(other Extent) Extent {
	return Extent{
		MinX: math.Min(e.MinX, other.MinX),
		MinY: math.Min(e.MinY, other.MinY),
		MaxX: math.Max(e.MaxX, other.MaxX),
		MaxY: math.Max(e.MaxY, other.MaxY),
	}
}

// ExtendCoord returns e grown to cover the coordinate.
func (e Extent) ExtendCoord(c [2]float64) Extent {
	return Extent{
		MinX: math.Min(e.MinX, c[0]),
		MinY: math.Min(e.MinY, c[1]),
		MaxX: math.Max(e.MaxX, c[0]),
		MaxY: math.Max(e.MaxY, c[1]),
	}
}

// Buffer returns e grown by d on every side.
func (e Extent) Buffer(d float64) Extent {
	return Extent{MinX: e.MinX - d, MinY: e.MinY - d, MaxX: e.MaxX + d, MaxY: e.MaxY + d}
}

// IsFinite reports whether all four corners are finite numbers.
func (e Extent) IsFinite() bool {
	return !math.IsInf(e.MinX, 0) && !math.IsInf(e.MinY, 0) &&
		!math.IsInf(e.MaxX, 0) && !math.IsInf(e.MaxY, 0) &&
		!math.IsNaN(e.MinX) && !math.IsNaN(e.MinY) &&
		!math.IsNaN(e.MaxX) && !math.IsNaN(e.MaxY)
}
