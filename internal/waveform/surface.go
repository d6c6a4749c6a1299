// Package waveform paints analyzer amplitudes onto a 2D surface in a
// cancellable frame loop.
package waveform

import "image/color"

// DefaultHeight is the drawing surface height in units.
const DefaultHeight = 80

var (
	// DefaultStroke is the waveform line color.
	DefaultStroke = color.NRGBA{R: 0xf2, G: 0x6b, B: 0x8c, A: 0xff}
	// DefaultFade is painted over the previous frame before each stroke,
	// leaving a short trail.
	DefaultFade = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 38}
)

type Point struct {
	X, Y float64
}

// Surface is a 2D raster target. Implementations must be safe for use by
// the renderer goroutine and a concurrent Clear.
type Surface interface {
	Size() (width, height int)
	// Fill composites c over the whole surface.
	Fill(c color.Color)
	// Clear resets every pixel to transparent.
	Clear()
	// Stroke draws a polyline through points.
	Stroke(points []Point, c color.Color, width float64)
}
