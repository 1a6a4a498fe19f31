package tilegrid

import "testing"

func TestTileCoordKeyRoundTrip(t *testing.T) {
	t.Parallel()

	coords := []TileCoord{
		{Z: 0, X: 0, Y: 0},
		{Z: 2, X: 0, Y: -1},
		{Z: 5, X: 17, Y: 22},
		{Z: 3, X: -4, Y: -8},
	}
	for _, c := range coords {
		got, err := ParseKey(c.Key())
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", c.Key(), err)
		}
		if got != c {
			t.Errorf("round trip of %v: got %v", c, got)
		}
	}
}

func TestParseKeyErrors(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", "1/2", "1/2/3/4", "a/2/3", "1/2/x"} {
		if _, err := ParseKey(key); err == nil {
			t.Errorf("ParseKey(%q): expected error", key)
		}
	}
}

func TestTileCoordHash(t *testing.T) {
	t.Parallel()

	cases := []struct {
		c    TileCoord
		want int
	}{
		{TileCoord{Z: 2, X: 0, Y: -1}, -1},
		{TileCoord{Z: 3, X: 5, Y: 2}, 42},
		{TileCoord{Z: 0, X: 0, Y: 0}, 0},
		{TileCoord{Z: 1, X: 1, Y: 1}, 3},
	}
	for _, c := range cases {
		if got := c.c.Hash(); got != c.want {
			t.Errorf("%v.Hash(): got %d, want %d", c.c, got, c.want)
		}
	}
}

func TestQuadkey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		c    TileCoord
		want string
	}{
		{TileCoord{Z: 0, X: 0, Y: 0}, ""},
		{TileCoord{Z: 1, X: 0, Y: 0}, "0"},
		{TileCoord{Z: 1, X: 1, Y: 1}, "3"},
		{TileCoord{Z: 2, X: 1, Y: 0}, "01"},
		{TileCoord{Z: 3, X: 5, Y: 3}, "123"},
		{TileCoord{Z: 1, X: 2, Y: 0}, ""}, // out of level range
		{TileCoord{Z: 2, X: -1, Y: 0}, ""},
	}
	for _, c := range cases {
		if got := c.c.Quadkey(); got != c.want {
			t.Errorf("%v.Quadkey(): got %q, want %q", c.c, got, c.want)
		}
	}
}

func TestTileRange(t *testing.T) {
	t.Parallel()

	r := NewTileRange(-2, 1, 0, 3)

	if got := r.Width(); got != 4 {
		t.Errorf("Width: got %d, want 4", got)
	}
	if got := r.Height(); got != 4 {
		t.Errorf("Height: got %d, want 4", got)
	}
	if got := r.Size(); got != 16 {
		t.Errorf("Size: got %d, want 16", got)
	}

	if !r.ContainsXY(-2, 3) || !r.ContainsXY(1, 0) {
		t.Errorf("range should contain its corners")
	}
	if r.ContainsXY(2, 0) || r.ContainsXY(0, 4) {
		t.Errorf("range should not contain neighbors")
	}
	if !r.Contains(TileCoord{Z: 9, X: 0, Y: 2}) {
		t.Errorf("Contains should ignore zoom")
	}

	if !r.Intersects(NewTileRange(1, 5, 3, 9)) {
		t.Errorf("ranges sharing a corner tile should intersect")
	}
	if r.Intersects(NewTileRange(2, 5, 0, 3)) {
		t.Errorf("disjoint ranges should not intersect")
	}

	if !r.ContainsRange(NewTileRange(-1, 0, 1, 2)) {
		t.Errorf("inner range should be contained")
	}
	if r.ContainsRange(NewTileRange(-3, 0, 1, 2)) {
		t.Errorf("overhanging range should not be contained")
	}

	ext := r.Extend(NewTileRange(5, 6, -1, 0))
	if ext != NewTileRange(-2, 6, -1, 3) {
		t.Errorf("Extend: got %+v", ext)
	}
}
