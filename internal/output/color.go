package output

import (
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ColorMode determines when to use colored output.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Auto-detect based on TTY
	ColorAlways                  // Always use colors
	ColorNever                   // Never use colors
)

// ParseColorMode converts "auto", "always" or "never" to a ColorMode,
// defaulting to auto.
func ParseColorMode(s string) ColorMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "always":
		return ColorAlways
	case "never":
		return ColorNever
	default:
		return ColorAuto
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// shouldColorize determines if output should be colorized based on mode and TTY detection.
func shouldColorize(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return IsTerminal(w) && os.Getenv("NO_COLOR") == ""
	}
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 20 {
			return width
		}
	}
	return 80
}

// palette holds the colours used by the text renderers.
type palette struct {
	header *color.Color
	label  *color.Color
	cause  *color.Color
	dim    *color.Color
	fail   *color.Color
}

func newPalette(colorize bool) palette {
	return palette{
		header: paint(colorize, color.FgCyan, color.Bold),
		label:  paint(colorize, color.Bold),
		cause:  paint(colorize, color.FgRed, color.Bold),
		dim:    paint(colorize, color.FgHiBlack),
		fail:   paint(colorize, color.FgRed),
	}
}

// paint returns a color with its output forced on or off, independent of
// the package-level color.NoColor detection.
func paint(colorize bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if colorize {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// confidenceColor picks the colour for a confidence grade.
func confidenceColor(confidence string, colorize bool) *color.Color {
	switch strings.ToLower(confidence) {
	case "high":
		return paint(colorize, color.FgGreen, color.Bold)
	case "medium":
		return paint(colorize, color.FgYellow)
	default:
		return paint(colorize, color.FgHiBlack)
	}
}
