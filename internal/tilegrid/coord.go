// Package tilegrid models tile pyramids: tile coordinates, tile
// ranges, and the grid that maps between map space and tile space.
package tilegrid

import (
	"fmt"
	"strconv"
	"strings"
)

// TileCoord addresses one tile in a pyramid. Z is the zoom level
// (0 is coarsest), X counts columns in the +x direction from the grid
// origin and Y counts rows in the +y direction. X and Y may be
// negative for grids whose origin lies inside or above the extent.
type TileCoord struct {
	Z, X, Y int
}

// NewTileCoord returns the coordinate z/x/y.
func NewTileCoord(z, x, y int) TileCoord {
	return TileCoord{Z: z, X: x, Y: y}
}

// Key returns the canonical "z/x/y" cache key.
func (c TileCoord) Key() string {
	return strconv.Itoa(c.Z) + "/" + strconv.Itoa(c.X) + "/" + strconv.Itoa(c.Y)
}

// String implements fmt.Stringer.
func (c TileCoord) String() string { return c.Key() }

// Hash returns a level-aware integer hash, (x << z) + y.
func (c TileCoord) Hash() int {
	return (c.X << uint(c.Z)) + c.Y
}

// Quadkey returns the base-4 quadtree key of length Z. Each digit
// combines one bit of X (1) and Y (2), most significant bit first.
// Coordinates outside [0, 2^Z) have no quadkey and yield "".
func (c TileCoord) Quadkey() string {
	if c.Z < 0 || c.X < 0 || c.Y < 0 || c.X >= 1<<uint(c.Z) || c.Y >= 1<<uint(c.Z) {
		return ""
	}
	b := make([]byte, c.Z)
	for i := c.Z; i > 0; i-- {
		d := byte('0')
		mask := 1 << uint(i-1)
		if c.X&mask != 0 {
			d++
		}
		if c.Y&mask != 0 {
			d += 2
		}
		b[c.Z-i] = d
	}
	return string(b)
}

// ParseKey parses a "z/x/y" key produced by Key.
func ParseKey(key string) (TileCoord, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return TileCoord{}, fmt.Errorf("invalid tile key %q", key)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return TileCoord{}, fmt.Errorf("invalid tile key %q: %w", key, err)
		}
		vals[i] = v
	}
	return TileCoord{Z: vals[0], X: vals[1], Y: vals[2]}, nil
}
