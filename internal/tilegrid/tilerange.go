package tilegrid

// TileRange is an inclusive rectangle of tile columns and rows at a
// single zoom level.
type TileRange struct {
	MinX, MaxX, MinY, MaxY int
}

// NewTileRange returns the range [minX..maxX] x [minY..maxY].
func NewTileRange(minX, maxX, minY, maxY int) TileRange {
	return TileRange{MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY}
}

// Contains reports whether the coordinate's column and row lie inside
// the range. The coordinate's zoom is not inspected.
func (r TileRange) Contains(c TileCoord) bool {
	return r.ContainsXY(c.X, c.Y)
}

// ContainsXY reports whether the column x and row y lie inside the range.
func (r TileRange) ContainsXY(x, y int) bool {
	return r.MinX <= x && x <= r.MaxX && r.MinY <= y && y <= r.MaxY
}

// ContainsRange reports whether other lies fully inside r.
func (r TileRange) ContainsRange(other TileRange) bool {
	return r.MinX <= other.MinX && other.MaxX <= r.MaxX &&
		r.MinY <= other.MinY && other.MaxY <= r.MaxY
}

// Intersects reports whether the two ranges share any tile.
func (r TileRange) Intersects(other TileRange) bool {
	return r.MinX <= other.MaxX && r.MaxX >= other.MinX &&
		r.MinY <= other.MaxY && r.MaxY >= other.MinY
}

// Equals reports exact equality.
func (r TileRange) Equals(other TileRange) bool { return r == other }

// Width returns the number of columns.
func (r TileRange) Width() int { return r.MaxX - r.MinX + 1 }

// Height returns the number of rows.
func (r TileRange) Height() int { return r.MaxY - r.MinY + 1 }

// Size returns the number of tiles in the range.
func (r TileRange) Size() int { return r.Width() * r.Height() }

// Extend returns r grown to cover other.
func (r TileRange) Extend(other TileRange) TileRange {
	if other.MinX < r.MinX {
		r.MinX = other.MinX
	}
	if other.MaxX > r.MaxX {
		r.MaxX = other.MaxX
	}
	if other.MinY < r.MinY {
		r.MinY = other.MinY
	}
	if other.MaxY > r.MaxY {
		r.MaxY = other.MaxY
	}
	return r
}
