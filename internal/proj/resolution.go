package proj

import (
	"math"

	"github.com/tilemesh/server/pkg/extent"
)

// CalculateSourceResolution returns the resolution of source data, in
// source units, that matches the target resolution at the given target
// point. The nominal conversion through meters is compensated by the
// source projection's own point resolution so the source pyramid level
// picked for reprojection carries roughly one source pixel per target
// pixel.
func CalculateSourceResolution(src, dst *Projection, targetPoint [2]float64, targetResolution float64) float64 {
	toSource, err := TransformFunc(dst, src)
	if err != nil {
		return math.NaN()
	}
	sx, sy := toSource(targetPoint[0], targetPoint[1])

	sourceResolution := PointResolution(dst, targetResolution, targetPoint)
	if dst.MetersPerUnit() != 0 {
		sourceResolution *= dst.MetersPerUnit()
	}
	if src.MetersPerUnit() != 0 {
		sourceResolution /= src.MetersPerUnit()
	}

	// Reverse-compensate the source projection's local distortion, but
	// only where the source point is inside its validity extent.
	srcExtent := src.Extent()
	if srcExtent.IsEmpty() || srcExtent.Contains(sx, sy) {
		compensation := PointResolution(src, sourceResolution, [2]float64{sx, sy}) / sourceResolution
		if compensation > 0 && !math.IsInf(compensation, 0) {
			sourceResolution /= compensation
		}
	}
	return sourceResolution
}

// CalculateSourceExtentResolution is CalculateSourceResolution
// evaluated at the extent center, retrying at the corners when the
// center does not transform to a usable value (which happens at
// projection edges).
func CalculateSourceExtentResolution(src, dst *Projection, targetExtent extent.Extent, targetResolution float64) float64 {
	center := targetExtent.Center()
	resolution := CalculateSourceResolution(src, dst, center, targetResolution)
	if usableResolution(resolution) {
		return resolution
	}
	corners := [][2]float64{
		targetExtent.BottomLeft(),
		targetExtent.BottomRight(),
		targetExtent.TopRight(),
		targetExtent.TopLeft(),
	}
	for _, corner := range corners {
		resolution = CalculateSourceResolution(src, dst, corner, targetResolution)
		if usableResolution(resolution) {
			return resolution
		}
	}
	return resolution
}

func usableResolution(r float64) bool {
	return r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}
