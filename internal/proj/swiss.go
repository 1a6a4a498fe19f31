package proj

import (
	"github.com/tilemesh/server/pkg/extent"
)

func init() {
	// CH1903+ / LV95. The extent matches the swisstopo national tile
	// grid rather than the tighter data bounds so standard Swiss
	// layers line up without per-layer overrides.
	lv95 := &Projection{
		code:          "EPSG:2056",
		units:         UnitMeters,
		extent:        extent.New(2420000, 1030000, 2900000, 1350000),
		worldExtent:   extent.New(5.14, 45.4, 11.47, 48.23),
		global:        false,
		metersPerUnit: 1,
	}
	register(lv95, "EPSG:2056")

	registerTransform("EPSG:4326", "EPSG:2056", lv95FromWGS84, lv95ToWGS84)
	registerTransform("EPSG:3857", "EPSG:2056",
		compose(mercatorToWGS84, lv95FromWGS84),
		compose(lv95ToWGS84, mercatorFromWGS84))
}

// lv95ToWGS84 converts LV95 easting/northing to WGS84 lon/lat using
// swisstopo's polynomial approximation (accurate to about a meter,
// plenty for tile boundaries).
func lv95ToWGS84(easting, northing float64) (float64, float64) {
	// Offsets from the Bern reference meridian in 1000 km units.
	y := (easting - 2_600_000) / 1_000_000
	x := (northing - 1_200_000) / 1_000_000

	// Longitude and latitude in 10000" units.
	lonSec := 2.6779094 +
		4.728982*y +
		0.791484*y*x +
		0.1306*y*x*x -
		0.0436*y*y*y
	latSec := 16.9023892 +
		3.238272*x -
		0.270978*y*y -
		0.002528*x*x -
		0.0447*y*y*x -
		0.0140*x*x*x

	return lonSec * 100.0 / 36.0, latSec * 100.0 / 36.0
}

// lv95FromWGS84 converts WGS84 lon/lat to LV95 easting/northing.
func lv95FromWGS84(lon, lat float64) (float64, float64) {
	phiAux := (lat*3600 - 169028.66) / 10000
	lambdaAux := (lon*3600 - 26782.5) / 10000

	easting := 2_600_072.37 +
		211_455.93*lambdaAux -
		10_938.51*lambdaAux*phiAux -
		0.36*lambdaAux*phiAux*phiAux -
		44.54*lambdaAux*lambdaAux*lambdaAux
	northing := 1_200_147.07 +
		308_807.95*phiAux +
		3_745.25*lambdaAux*lambdaAux +
		76.63*phiAux*phiAux -
		194.56*lambdaAux*lambdaAux*phiAux +
		119.79*phiAux*phiAux*phiAux

	return easting, northing
}
