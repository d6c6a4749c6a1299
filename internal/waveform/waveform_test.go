package waveform

import (
	"bytes"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSurface struct {
	mu      sync.Mutex
	width   int
	height  int
	fills   int
	clears  int
	strokes [][]Point
}

func (s *recordingSurface) Size() (int, int) { return s.width, s.height }

func (s *recordingSurface) Fill(color.Color) {
	s.mu.Lock()
	s.fills++
	s.mu.Unlock()
}

func (s *recordingSurface) Clear() {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
}

func (s *recordingSurface) Stroke(points []Point, _ color.Color, _ float64) {
	s.mu.Lock()
	s.strokes = append(s.strokes, points)
	s.mu.Unlock()
}

func (s *recordingSurface) strokeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.strokes)
}

type flatSource struct{ buf []byte }

func (f flatSource) Refresh() []byte { return f.buf }

func TestDrawFrameGeometry(t *testing.T) {
	s := &recordingSurface{width: 100, height: 80}
	DrawFrame(s, []byte{128, 0, 255, 128}, Options{})

	require.Len(t, s.strokes, 1)
	assert.Equal(t, 1, s.fills)
	assert.Equal(t, []Point{
		{X: 0, Y: 40},
		{X: 25, Y: 0},
		{X: 50, Y: 255.0 / 128.0 * 40},
		{X: 75, Y: 40},
		{X: 100, Y: 40},
	}, s.strokes[0])
}

func TestRendererStopHaltsDrawing(t *testing.T) {
	s := &recordingSurface{width: 10, height: 10}
	r := NewRenderer(s, Options{FrameInterval: time.Millisecond})

	r.Start(flatSource{buf: []byte{128, 128}})
	require.Eventually(t, func() bool { return s.strokeCount() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, r.Running())

	r.Stop()
	r.Stop()
	assert.False(t, r.Running())
	drawn := s.strokeCount()
	assert.Equal(t, uint64(drawn), r.Frames())

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, drawn, s.strokeCount(), "no frame may be drawn after Stop returns")
}

func TestRendererClear(t *testing.T) {
	s := &recordingSurface{width: 10, height: 10}
	r := NewRenderer(s, Options{FrameInterval: time.Millisecond})
	r.Start(flatSource{buf: []byte{128}})
	r.Clear()

	assert.False(t, r.Running())
	assert.Equal(t, 1, s.clears)
}

func TestRasterStrokeAndClear(t *testing.T) {
	r := NewRaster(50, 80)
	assert.True(t, r.Blank())

	DrawFrame(r, []byte{128, 128, 128, 128}, Options{Stroke: DefaultStroke, Fade: DefaultFade, LineWidth: 2})
	assert.False(t, r.Blank())
	px := r.At(10, 40)
	assert.Equal(t, DefaultStroke.R, px.R)
	assert.Equal(t, DefaultStroke.G, px.G)

	var buf bytes.Buffer
	require.NoError(t, r.WritePNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())

	r.Clear()
	assert.True(t, r.Blank())
}

func TestTerminalRender(t *testing.T) {
	term := NewTerminal(8, 3, 80, 30)
	DrawFrame(term, []byte{128, 128, 128, 128}, Options{Stroke: DefaultStroke, Fade: DefaultFade, LineWidth: 2})

	lines := strings.Split(term.Render(), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "█")

	term.Clear()
	assert.NotContains(t, term.Render(), "█")
}
