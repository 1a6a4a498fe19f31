package proj

import (
	"math"
	"testing"

	"github.com/tilemesh/server/pkg/extent"
)

func within(t *testing.T, got, want, tolerance float64, what string) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tolerance {
		t.Errorf("%s = %v, want %v (tolerance %v)", what, got, want, tolerance)
	}
}

func TestGetKnownProjections(t *testing.T) {
	cases := []struct {
		code      string
		canonical string
		units     string
		global    bool
	}{
		{"EPSG:3857", "EPSG:3857", UnitMeters, true},
		{"EPSG:900913", "EPSG:3857", UnitMeters, true},
		{"EPSG:4326", "EPSG:4326", UnitDegrees, true},
		{"CRS:84", "EPSG:4326", UnitDegrees, true},
		{"EPSG:2056", "EPSG:2056", UnitMeters, false},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			p, err := Get(tc.code)
			if err != nil {
				t.Fatalf("Get(%q): %v", tc.code, err)
			}
			if p.Code() != tc.canonical {
				t.Errorf("Code() = %q, want %q", p.Code(), tc.canonical)
			}
			if p.Units() != tc.units {
				t.Errorf("Units() = %q, want %q", p.Units(), tc.units)
			}
			if p.Global() != tc.global {
				t.Errorf("Global() = %v, want %v", p.Global(), tc.global)
			}
		})
	}
}

func TestGetUnknownProjection(t *testing.T) {
	if _, err := Get("EPSG:99999"); err == nil {
		t.Fatal("Get of unknown code succeeded, want error")
	}
}

func TestCanWrapX(t *testing.T) {
	if !MustGet("EPSG:3857").CanWrapX() {
		t.Error("EPSG:3857 CanWrapX() = false, want true")
	}
	if !MustGet("EPSG:4326").CanWrapX() {
		t.Error("EPSG:4326 CanWrapX() = false, want true")
	}
	if MustGet("EPSG:2056").CanWrapX() {
		t.Error("EPSG:2056 CanWrapX() = true, want false")
	}
}

func TestEquivalent(t *testing.T) {
	if !Equivalent(MustGet("CRS:84"), MustGet("EPSG:4326")) {
		t.Error("CRS:84 and EPSG:4326 not equivalent")
	}
	if Equivalent(MustGet("EPSG:3857"), MustGet("EPSG:4326")) {
		t.Error("EPSG:3857 and EPSG:4326 reported equivalent")
	}
}

func TestMercatorTransformRoundTrip(t *testing.T) {
	merc := MustGet("EPSG:3857")
	geo := MustGet("EPSG:4326")

	forward, err := TransformFunc(geo, merc)
	if err != nil {
		t.Fatalf("TransformFunc(4326,3857): %v", err)
	}
	inverse, err := TransformFunc(merc, geo)
	if err != nil {
		t.Fatalf("TransformFunc(3857,4326): %v", err)
	}

	x, y := forward(0, 0)
	within(t, x, 0, 1e-9, "x at origin")
	within(t, y, 0, 1e-9, "y at origin")

	x, _ = forward(180, 0)
	within(t, x, originShift, 1e-6, "x at antimeridian")

	lon, lat := inverse(forward(7.45, 46.95))
	within(t, lon, 7.45, 1e-9, "lon round trip")
	within(t, lat, 46.95, 1e-9, "lat round trip")
}

func TestMercatorClampsPoles(t *testing.T) {
	merc := MustGet("EPSG:3857")
	forward, err := TransformFunc(MustGet("EPSG:4326"), merc)
	if err != nil {
		t.Fatalf("TransformFunc: %v", err)
	}
	_, y := forward(0, 90)
	if math.IsInf(y, 0) || math.IsNaN(y) {
		t.Fatalf("north pole projected to %v, want finite", y)
	}
	_, ys := forward(0, -90)
	within(t, ys, -y, 1e-3, "south pole symmetry")
}

func TestSwissTransform(t *testing.T) {
	// The LV95 reference point (old Bern observatory).
	lon, lat := lv95ToWGS84(2600000, 1200000)
	within(t, lon, 7.438637, 1e-5, "Bern lon")
	within(t, lat, 46.951081, 1e-5, "Bern lat")

	e, n := lv95FromWGS84(lon, lat)
	within(t, e, 2600000, 1.0, "round trip easting")
	within(t, n, 1200000, 1.0, "round trip northing")
}

func TestSwissMercatorComposition(t *testing.T) {
	lv95 := MustGet("EPSG:2056")
	merc := MustGet("EPSG:3857")

	fn, err := TransformFunc(lv95, merc)
	if err != nil {
		t.Fatalf("TransformFunc(2056,3857): %v", err)
	}
	back, err := TransformFunc(merc, lv95)
	if err != nil {
		t.Fatalf("TransformFunc(3857,2056): %v", err)
	}

	e, n := back(fn(2600000, 1200000))
	within(t, e, 2600000, 1.5, "easting via mercator")
	within(t, n, 1200000, 1.5, "northing via mercator")
}

func TestTransformFuncIdentity(t *testing.T) {
	merc := MustGet("EPSG:3857")
	fn, err := TransformFunc(merc, MustGet("EPSG:900913"))
	if err != nil {
		t.Fatalf("TransformFunc between aliases: %v", err)
	}
	x, y := fn(123.5, -42.25)
	if x != 123.5 || y != -42.25 {
		t.Errorf("alias transform moved the point to (%v, %v)", x, y)
	}
}

func TestTransformFuncRoutesThroughWGS84(t *testing.T) {
	// A projection that only declares transforms to and from WGS84
	// must still reach every other registered system.
	offset := &Projection{
		code:          "TEST:offset",
		units:         UnitDegrees,
		extent:        extent.New(-170, -80, 190, 100),
		metersPerUnit: metersPerDegree,
	}
	register(offset, "TEST:offset")
	registerTransform("TEST:offset", "EPSG:4326",
		func(x, y float64) (float64, float64) { return x - 10, y - 10 },
		func(x, y float64) (float64, float64) { return x + 10, y + 10 })

	fn, err := TransformFunc(offset, MustGet("EPSG:3857"))
	if err != nil {
		t.Fatalf("TransformFunc(TEST:offset,3857): %v", err)
	}
	x, y := fn(10, 10)
	within(t, x, 0, 1e-9, "routed x")
	within(t, y, 0, 1e-9, "routed y")
}

func TestPointResolutionMercator(t *testing.T) {
	merc := MustGet("EPSG:3857")

	within(t, PointResolution(merc, 100, [2]float64{0, 0}), 100, 1e-9, "equator point resolution")

	// At 60 degrees north the mercator ground resolution halves.
	toMerc, err := TransformFunc(MustGet("EPSG:4326"), merc)
	if err != nil {
		t.Fatalf("TransformFunc: %v", err)
	}
	_, y := toMerc(0, 60)
	got := PointResolution(merc, 100, [2]float64{0, y})
	within(t, got, 50, 0.05, "point resolution at 60N")
}

func TestPointResolutionDegrees(t *testing.T) {
	geo := MustGet("EPSG:4326")
	within(t, PointResolution(geo, 0.5, [2]float64{8, 47}), 0.5, 1e-12, "degree point resolution")
}

func TestPointResolutionEmpirical(t *testing.T) {
	// LV95 has no closed-form getter, so the resolution is measured on
	// the sphere. The projection is close to true scale over
	// Switzerland; expect ~1m/unit within one percent.
	lv95 := MustGet("EPSG:2056")
	got := PointResolution(lv95, 1, [2]float64{2600000, 1200000})
	within(t, got, 1, 0.01, "LV95 point resolution")
}

func TestCalculateSourceResolutionSameProjection(t *testing.T) {
	merc := MustGet("EPSG:3857")
	toMerc, _ := TransformFunc(MustGet("EPSG:4326"), merc)
	_, y := toMerc(0, 60)

	got := CalculateSourceResolution(merc, merc, [2]float64{0, y}, 100)
	within(t, got, 100, 1e-6, "same-projection source resolution")
}

func TestCalculateSourceResolutionAcrossUnits(t *testing.T) {
	merc := MustGet("EPSG:3857")
	geo := MustGet("EPSG:4326")

	// One degree of ground at the equator, asked for in meters.
	got := CalculateSourceResolution(geo, merc, [2]float64{0, 0}, metersPerDegree)
	within(t, got, 1, 1e-6, "meters to degrees source resolution")
}

func TestCalculateSourceExtentResolution(t *testing.T) {
	merc := MustGet("EPSG:3857")
	geo := MustGet("EPSG:4326")

	ex := extent.New(-1000, -1000, 1000, 1000)
	got := CalculateSourceExtentResolution(geo, merc, ex, metersPerDegree)
	within(t, got, 1, 1e-4, "extent-center source resolution")

	if r := CalculateSourceExtentResolution(merc, merc, ex, 10); !usableResolution(r) {
		t.Errorf("same-projection extent resolution unusable: %v", r)
	}
}
