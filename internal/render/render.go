// Package render prints views for a terminal or as JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

const rule = "================================================================================"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type Renderer struct {
	W     io.Writer
	Color bool
	Now   func() time.Time
}

func New(w io.Writer, color bool) *Renderer {
	return &Renderer{W: w, Color: color, Now: time.Now}
}

// ColorEnabled reports whether f is a terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.Color {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.W, format, args...)
}

func (r *Renderer) println(args ...any) {
	fmt.Fprintln(r.W, args...)
}

func (r *Renderer) section(title string) {
	r.println()
	r.println(r.style(titleStyle, title))
}

func (r *Renderer) banner(title string) {
	r.println(rule)
	r.println(r.style(titleStyle, title))
	r.println(rule)
}

func (r *Renderer) level(level string) string {
	return r.levelAs(level, fmt.Sprintf("%-8s", level))
}

// levelAs styles text with the color of level.
func (r *Renderer) levelAs(level, text string) string {
	switch strings.ToUpper(level) {
	case "ERROR", "CRITICAL":
		return r.style(errStyle, text)
	case "WARNING", "WARN":
		return r.style(warnStyle, text)
	case "DEBUG":
		return r.style(mutedStyle, text)
	}
	return r.style(infoStyle, text)
}

func (r *Renderer) status(status string) string {
	switch status {
	case "Complete":
		return r.style(okStyle, status)
	case "Failed", "Cancelled":
		return r.style(errStyle, status)
	case "In Progress":
		return r.style(warnStyle, status)
	}
	return status
}

// truncate cuts s to max runes, appending suffix when it was cut.
func truncate(s string, max int, suffix string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + suffix
}

// clock returns the HH:MM:SS part of a timestamp.
func clock(ts string) string {
	if len(ts) >= 19 {
		return ts[11:19]
	}
	return ts
}

func short(id string, n int) string {
	return truncate(id, n, "...")
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
