package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title    *color.Color
	Heading  *color.Color
	Workload *color.Color
	Op       *color.Color
	Value    *color.Color
	Dim      *color.Color
	Success  *color.Color
	Warn     *color.Color
	Error    *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:    color.New(color.FgCyan, color.Bold),
		Heading:  color.New(color.Bold),
		Workload: color.New(color.FgMagenta, color.Bold),
		Op:       color.New(color.FgBlue),
		Value:    color.New(color.FgWhite),
		Dim:      color.New(color.Faint),
		Success:  color.New(color.FgGreen),
		Warn:     color.New(color.FgYellow, color.Bold),
		Error:    color.New(color.FgRed, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// ForceColorScheme returns the default scheme with colors enabled even when
// the output is not a terminal.
func ForceColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Heading, s.Workload, s.Op, s.Value, s.Dim, s.Success, s.Warn, s.Error}
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return color.New(color.FgRed).Sprint("✗")
}

// WarningIcon returns a warning symbol with appropriate color
func WarningIcon(noColor bool) string {
	if noColor {
		return "⚠"
	}
	return color.New(color.FgYellow).Sprint("⚠")
}
