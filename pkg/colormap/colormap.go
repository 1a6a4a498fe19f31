// Package colormap provides color ramps for generated tiles.
package colormap

import (
	"image/color"
)

// Colormap linearly interpolates a ramp of anchor colors over [0, 1].
type Colormap struct {
	anchors []color.NRGBA
}

// New builds a colormap from at least two anchor colors.
func New(anchors ...color.NRGBA) Colormap {
	if len(anchors) < 2 {
		panic("colormap: need at least two anchors")
	}
	return Colormap{anchors: anchors}
}

// At returns the ramp color at position t, clamped to [0, 1].
func (c Colormap) At(t float64) color.NRGBA {
	if t <= 0 {
		return c.anchors[0]
	}
	if t >= 1 {
		return c.anchors[len(c.anchors)-1]
	}

	pos := t * float64(len(c.anchors)-1)
	lower := int(pos)
	frac := pos - float64(lower)
	return lerp(c.anchors[lower], c.anchors[lower+1], frac)
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(float64(a.R) + t*(float64(b.R)-float64(a.R))),
		G: uint8(float64(a.G) + t*(float64(b.G)-float64(a.G))),
		B: uint8(float64(a.B) + t*(float64(b.B)-float64(a.B))),
		A: 255,
	}
}

// Viridis is the matplotlib viridis ramp, dark violet to yellow.
var Viridis = New(
	color.NRGBA{R: 68, G: 1, B: 84, A: 255},
	color.NRGBA{R: 59, G: 82, B: 139, A: 255},
	color.NRGBA{R: 33, G: 145, B: 140, A: 255},
	color.NRGBA{R: 94, G: 201, B: 98, A: 255},
	color.NRGBA{R: 253, G: 231, B: 37, A: 255},
)
