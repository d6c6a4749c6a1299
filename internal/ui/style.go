package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Out receives all messages. Tests swap it for a buffer.
var Out io.Writer = os.Stderr

var (
	brand    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	success  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	key      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	val      = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	rec      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	timer    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
)

func Brand(s string) string { return brand.Render(s) }
func Dim(s string) string   { return dim.Render(s) }
func Key(s string) string   { return key.Render(s) }
func Val(s string) string   { return val.Render(s) }

func Success(format string, a ...any) {
	fmt.Fprintln(Out, success.Render("✓ "+fmt.Sprintf(format, a...)))
}

func Warn(format string, a ...any) {
	fmt.Fprintln(Out, warn.Render("! "+fmt.Sprintf(format, a...)))
}

func Error(format string, a ...any) {
	fmt.Fprintln(Out, errStyle.Render("✗ "+fmt.Sprintf(format, a...)))
}

func Info(format string, a ...any) {
	fmt.Fprintln(Out, fmt.Sprintf(format, a...))
}

func KV(k, v string) {
	fmt.Fprintf(Out, "  %s  %s\n", key.Render(k), val.Render(v))
}

// StatusLine renders one line of recorder status, e.g. "● REC  0:04 / 0:30".
func StatusLine(label string, active bool, display string) string {
	marker := dim.Render("○")
	if active {
		marker = rec.Render("●")
	}
	return fmt.Sprintf("%s %s  %s", marker, key.Render(label), timer.Render(display))
}
