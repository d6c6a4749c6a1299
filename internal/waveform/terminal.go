package waveform

import (
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Terminal is a character-cell surface for live display in a terminal.
// Each cell keeps an intensity that Fill decays, giving the same trail the
// raster surface shows.
type Terminal struct {
	mu     sync.Mutex
	cols   int
	rows   int
	width  int
	height int
	cells  []float64
	style  lipgloss.Style
}

// NewTerminal maps a width×height drawing space onto cols×rows cells.
func NewTerminal(cols, rows, width, height int) *Terminal {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &Terminal{
		cols:   cols,
		rows:   rows,
		width:  width,
		height: height,
		cells:  make([]float64, cols*rows),
		style:  lipgloss.NewStyle().Foreground(lipgloss.Color(hexColor(DefaultStroke))),
	}
}

func (t *Terminal) Size() (int, int) { return t.width, t.height }

func (t *Terminal) Fill(c color.Color) {
	_, _, _, a := c.RGBA()
	keep := 1 - float64(a)/0xffff
	t.mu.Lock()
	for i := range t.cells {
		t.cells[i] *= keep
	}
	t.mu.Unlock()
}

func (t *Terminal) Clear() {
	t.mu.Lock()
	clear(t.cells)
	t.mu.Unlock()
}

func (t *Terminal) Stroke(points []Point, c color.Color, _ float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.style = t.style.Foreground(lipgloss.Color(hexColor(c)))
	for _, p := range points {
		col := int(p.X / float64(t.width) * float64(t.cols))
		row := int(p.Y / float64(t.height) * float64(t.rows))
		if col >= t.cols {
			col = t.cols - 1
		}
		if row >= t.rows {
			row = t.rows - 1
		}
		if col < 0 || row < 0 {
			continue
		}
		t.cells[row*t.cols+col] = 1
	}
}

// Render returns the current frame as styled text, one line per row.
func (t *Terminal) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	for row := 0; row < t.rows; row++ {
		var line strings.Builder
		for col := 0; col < t.cols; col++ {
			line.WriteRune(shade(t.cells[row*t.cols+col]))
		}
		b.WriteString(t.style.Render(line.String()))
		if row < t.rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func shade(v float64) rune {
	switch {
	case v > 0.66:
		return '█'
	case v > 0.33:
		return '▓'
	case v > 0.05:
		return '░'
	default:
		return ' '
	}
}

func hexColor(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}
