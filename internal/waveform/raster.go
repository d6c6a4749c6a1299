package waveform

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync"
)

// Raster is an in-memory RGBA surface.
type Raster struct {
	mu  sync.Mutex
	img *image.RGBA
}

func NewRaster(width, height int) *Raster {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = DefaultHeight
	}
	return &Raster{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (r *Raster) Size() (int, int) {
	b := r.img.Bounds()
	return b.Dx(), b.Dy()
}

func (r *Raster) Fill(c color.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Over)
}

func (r *Raster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	draw.Draw(r.img, r.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// Stroke draws each segment by stamping a square brush along it.
func (r *Raster) Stroke(points []Point, c color.Color, width float64) {
	if len(points) == 0 {
		return
	}
	brush := image.NewUniform(c)
	half := math.Max(width/2, 0.5)

	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := func(x, y float64) {
		rect := image.Rect(
			int(math.Floor(x-half)), int(math.Floor(y-half)),
			int(math.Ceil(x+half)), int(math.Ceil(y+half)),
		)
		draw.Draw(r.img, rect.Intersect(r.img.Bounds()), brush, image.Point{}, draw.Src)
	}

	if len(points) == 1 {
		stamp(points[0].X, points[0].Y)
		return
	}
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		steps := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))))
		if steps == 0 {
			stamp(a.X, a.Y)
			continue
		}
		for s := 0; s <= steps; s++ {
			t := float64(s) / float64(steps)
			stamp(a.X+(b.X-a.X)*t, a.Y+(b.Y-a.Y)*t)
		}
	}
}

// At returns the pixel at (x, y).
func (r *Raster) At(x, y int) color.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.img.RGBAAt(x, y)
}

// Blank reports whether every pixel is transparent.
func (r *Raster) Blank() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.img.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// Snapshot copies the current frame.
func (r *Raster) Snapshot() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := image.NewRGBA(r.img.Bounds())
	copy(out.Pix, r.img.Pix)
	return out
}

// WritePNG encodes the current frame.
func (r *Raster) WritePNG(w io.Writer) error {
	return png.Encode(w, r.Snapshot())
}
