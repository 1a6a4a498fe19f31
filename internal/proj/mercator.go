package proj

import (
	"math"

	"github.com/tilemesh/server/pkg/extent"
)

const (
	// earthRadius is the WGS84 semi-major axis used by the spherical
	// mercator projection.
	earthRadius = 6378137.0

	// EarthCircumference is the equatorial circumference in meters.
	EarthCircumference = 2 * math.Pi * earthRadius

	// originShift is half the circumference; web mercator coordinates
	// run from -originShift to +originShift on both axes.
	originShift = EarthCircumference / 2
)

// maxSafeY caps the mercator y so poles stay finite.
var maxSafeY = earthRadius * math.Log(math.Tan(math.Pi/2))

func init() {
	mercator := &Projection{
		code:          "EPSG:3857",
		units:         UnitMeters,
		extent:        extent.New(-originShift, -originShift, originShift, originShift),
		worldExtent:   extent.New(-180, -85, 180, 85),
		global:        true,
		metersPerUnit: 1,
		pointRes: func(resolution float64, point [2]float64) float64 {
			return resolution / math.Cosh(point[1]/earthRadius)
		},
	}
	register(mercator, "EPSG:3857", "EPSG:102100", "EPSG:102113", "EPSG:900913")

	geographic := &Projection{
		code:          "EPSG:4326",
		units:         UnitDegrees,
		extent:        extent.New(-180, -90, 180, 90),
		worldExtent:   extent.New(-180, -90, 180, 90),
		global:        true,
		metersPerUnit: metersPerDegree,
	}
	register(geographic, "EPSG:4326", "CRS:84", "urn:ogc:def:crs:OGC:1.3:CRS84")

	registerTransform("EPSG:4326", "EPSG:3857", mercatorFromWGS84, mercatorToWGS84)
}

// mercatorFromWGS84 converts WGS84 lon/lat to web mercator meters.
func mercatorFromWGS84(lon, lat float64) (float64, float64) {
	x := lon * originShift / 180
	y := math.Log(math.Tan((90+lat)*math.Pi/360)) * earthRadius
	if y > maxSafeY {
		y = maxSafeY
	} else if y < -maxSafeY {
		y = -maxSafeY
	}
	return x, y
}

// mercatorToWGS84 converts web mercator meters to WGS84 lon/lat.
func mercatorToWGS84(x, y float64) (float64, float64) {
	lon := (x / originShift) * 180
	lat := (y / originShift) * 180
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180)) - math.Pi/2)
	return lon, lat
}
