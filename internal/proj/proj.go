// Package proj holds the projection definitions and coordinate
// transforms the reprojection pipeline runs on. Projections are
// registered under their EPSG-style codes; transforms between any two
// registered projections route through WGS84 when no direct function
// exists.
package proj

import (
	"fmt"
	"math"
	"sync"

	"github.com/tilemesh/server/pkg/extent"
)

// Units a projection's coordinates are expressed in.
const (
	UnitMeters  = "m"
	UnitDegrees = "degrees"
)

// sphereRadius is the normal sphere radius in meters used for
// distance measurement on WGS84 coordinates.
const sphereRadius = 6371008.8

// metersPerDegree converts angular degrees on the normal sphere to
// meters at the equator.
const metersPerDegree = math.Pi * sphereRadius / 180

// Projection describes one coordinate reference system: its validity
// extent, units, and how ground resolution varies across it.
type Projection struct {
	code          string
	units         string
	extent        extent.Extent
	worldExtent   extent.Extent
	global        bool
	metersPerUnit float64

	// pointRes computes the ground resolution at a point for
	// projections with a closed form. When nil the resolution is
	// estimated by measuring a projected cross on the sphere.
	pointRes func(resolution float64, point [2]float64) float64
}

// Code returns the canonical identifier, e.g. "EPSG:3857".
func (p *Projection) Code() string { return p.code }

// Units returns the coordinate units, UnitMeters or UnitDegrees.
func (p *Projection) Units() string { return p.units }

// Extent returns the validity extent in projected coordinates.
func (p *Projection) Extent() extent.Extent { return p.extent }

// WorldExtent returns the validity extent in WGS84 lon/lat.
func (p *Projection) WorldExtent() extent.Extent { return p.worldExtent }

// Global reports whether the projection covers the whole world.
func (p *Projection) Global() bool { return p.global }

// MetersPerUnit returns the meters in one projected unit.
func (p *Projection) MetersPerUnit() float64 { return p.metersPerUnit }

// CanWrapX reports whether the x axis wraps around the antimeridian,
// which holds for global projections with a defined extent.
func (p *Projection) CanWrapX() bool { return p.global && !p.extent.IsEmpty() }

var (
	regMu    sync.RWMutex
	registry = make(map[string]*Projection)
)

// register makes the projection available under every alias. The
// first alias is conventionally the canonical code.
func register(p *Projection, aliases ...string) {
	regMu.Lock()
	defer regMu.Unlock()
	for _, alias := range aliases {
		registry[alias] = p
	}
}

// Get looks up a projection by code or alias.
func Get(code string) (*Projection, error) {
	regMu.RLock()
	p, ok := registry[code]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("proj: unknown projection %q", code)
	}
	return p, nil
}

// MustGet is Get for codes known at compile time. It panics on
// unknown codes.
func MustGet(code string) *Projection {
	p, err := Get(code)
	if err != nil {
		panic(err)
	}
	return p
}

// PointResolution returns the ground resolution at the point, in the
// projection's own units. Projections without a closed form are
// measured empirically: a cross of half the nominal resolution is
// projected to WGS84 and measured on the normal sphere.
func PointResolution(p *Projection, resolution float64, point [2]float64) float64 {
	if p.pointRes != nil {
		return p.pointRes(resolution, point)
	}
	if p.units == UnitDegrees {
		return resolution
	}

	toWGS84, err := TransformFunc(p, MustGet("EPSG:4326"))
	if err != nil {
		return resolution
	}
	wx, wy := toWGS84(point[0]-resolution/2, point[1])
	ex, ey := toWGS84(point[0]+resolution/2, point[1])
	sx, sy := toWGS84(point[0], point[1]-resolution/2)
	nx, ny := toWGS84(point[0], point[1]+resolution/2)
	width := haversine(wx, wy, ex, ey)
	height := haversine(sx, sy, nx, ny)

	pointResolution := (width + height) / 2
	if p.metersPerUnit != 0 {
		pointResolution /= p.metersPerUnit
	}
	return pointResolution
}

// haversine returns the great-circle distance in meters between two
// WGS84 coordinates.
func haversine(lon1, lat1, lon2, lat2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * sphereRadius * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
