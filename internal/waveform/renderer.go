package waveform

import (
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFrameInterval approximates a 60Hz display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// Source yields the latest amplitude buffer, one byte per sample with
// silence at 128. *audio.Analyzer satisfies it.
type Source interface {
	Refresh() []byte
}

type Options struct {
	FrameInterval time.Duration
	Stroke        color.Color
	Fade          color.Color
	LineWidth     float64
}

// Renderer runs the draw loop for one source at a time.
type Renderer struct {
	surface Surface
	opts    Options

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	frames atomic.Uint64
}

func NewRenderer(surface Surface, opts Options) *Renderer {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Stroke == nil {
		opts.Stroke = DefaultStroke
	}
	if opts.Fade == nil {
		opts.Fade = DefaultFade
	}
	if opts.LineWidth <= 0 {
		opts.LineWidth = 2
	}
	return &Renderer{surface: surface, opts: opts}
}

func (r *Renderer) Surface() Surface { return r.surface }

// Start begins drawing src every frame, replacing any running loop.
func (r *Renderer) Start(src Source) {
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(src, r.stop, r.done)
}

func (r *Renderer) loop(src Source, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.opts.FrameInterval)
	defer ticker.Stop()

	for {
		r.drawFrame(src)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (r *Renderer) drawFrame(src Source) {
	DrawFrame(r.surface, src.Refresh(), r.opts)
	r.frames.Add(1)
}

// Stop cancels the pending frame and waits for the loop to exit; no draw
// happens after Stop returns. Idempotent.
func (r *Renderer) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	slog.Debug("Waveform loop stopped", "frames", r.frames.Load())
}

func (r *Renderer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

// Frames is the number of frames drawn since creation.
func (r *Renderer) Frames() uint64 { return r.frames.Load() }

// Clear stops the loop and wipes the surface.
func (r *Renderer) Clear() {
	r.Stop()
	r.surface.Clear()
}

// DrawFrame fades the surface and strokes data across its width, centered
// on the vertical midline.
func DrawFrame(s Surface, data []byte, opts Options) {
	width, height := s.Size()
	s.Fill(opts.Fade)
	if len(data) == 0 {
		return
	}

	points := make([]Point, 0, len(data)+1)
	slice := float64(width) / float64(len(data))
	x := 0.0
	for _, b := range data {
		v := float64(b) / 128.0
		points = append(points, Point{X: x, Y: v * float64(height) / 2})
		x += slice
	}
	points = append(points, Point{X: float64(width), Y: float64(height) / 2})

	s.Stroke(points, opts.Stroke, opts.LineWidth)
}
