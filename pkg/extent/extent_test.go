package extent

import (
	"math"
	"testing"
)

func TestIntersect(t *testing.T) {
	t.Parallel()

	a := New(0, 0, 10, 10)
	b := New(5, 5, 20, 20)

	got := a.Intersect(b)
	want := New(5, 5, 10, 10)
	if got != want {
		t.Fatalf("Intersect: got %+v, want %+v", got, want)
	}
	if got.Area() != 25 {
		t.Fatalf("Area: got %v, want 25", got.Area())
	}

	disjoint := New(100, 100, 200, 200)
	if !a.Intersect(disjoint).IsEmpty() {
		t.Fatalf("expected empty intersection for disjoint extents")
	}
	if a.Intersect(disjoint).Area() != 0 {
		t.Fatalf("expected zero area for disjoint intersection")
	}
}

func TestIntersectTouching(t *testing.T) {
	t.Parallel()

	a := New(0, 0, 10, 10)
	b := New(10, 0, 20, 10)
	got := a.Intersect(b)
	if got.IsEmpty() {
		t.Fatalf("touching extents should intersect in a degenerate line")
	}
	if got.Area() != 0 {
		t.Fatalf("touching extents should intersect with zero area, got %v", got.Area())
	}
}

func TestContains(t *testing.T) {
	t.Parallel()

	e := New(-10, -10, 10, 10)
	cases := []struct {
		x, y float64
		want bool
	}{
		{0, 0, true},
		{-10, 10, true}, // boundary counts
		{10.0001, 0, false},
		{0, -11, false},
	}
	for _, c := range cases {
		if got := e.Contains(c.x, c.y); got != c.want {
			t.Errorf("Contains(%v,%v): got %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestFromCoordsAndExtend(t *testing.T) {
	t.Parallel()

	e := FromCoords([2]float64{3, -2}, [2]float64{-1, 7}, [2]float64{0, 0})
	want := New(-1, -2, 3, 7)
	if e != want {
		t.Fatalf("FromCoords: got %+v, want %+v", e, want)
	}

	grown := e.Extend(New(10, 10, 11, 11))
	if grown != New(-1, -2, 11, 11) {
		t.Fatalf("Extend: got %+v", grown)
	}
}

func TestEmptyAndFinite(t *testing.T) {
	t.Parallel()

	e := Empty()
	if !e.IsEmpty() {
		t.Fatalf("Empty() should be empty")
	}
	if e.IsFinite() {
		t.Fatalf("Empty() should not be finite")
	}

	e = e.ExtendCoord([2]float64{1, 2})
	if e.IsEmpty() {
		t.Fatalf("extent with one point should not be inverted")
	}
	if e.Area() != 0 {
		t.Fatalf("single point extent should have zero area")
	}

	nan := New(0, 0, math.NaN(), 1)
	if nan.IsFinite() {
		t.Fatalf("NaN corner should not be finite")
	}
}

func TestCenterAndCorners(t *testing.T) {
	t.Parallel()

	e := New(0, -512, 512, 0)
	if c := e.Center(); c != [2]float64{256, -256} {
		t.Fatalf("Center: got %v", c)
	}
	if tl := e.TopLeft(); tl != [2]float64{0, 0} {
		t.Fatalf("TopLeft: got %v", tl)
	}
	if br := e.BottomRight(); br != [2]float64{512, -512} {
		t.Fatalf("BottomRight: got %v", br)
	}
}
