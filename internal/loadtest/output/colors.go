package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used by the console output.
type ColorScheme struct {
	Title    *color.Color
	Rule     *color.Color
	Label    *color.Color
	Value    *color.Color
	Phase    *color.Color
	Latency  *color.Color
	Progress *color.Color
	Success  *color.Color
	Warn     *color.Color
	Error    *color.Color
	Dim      *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:    color.New(color.Bold),
		Rule:     color.New(color.FgCyan),
		Label:    color.New(color.Bold),
		Value:    color.New(color.FgCyan),
		Phase:    color.New(color.FgMagenta),
		Latency:  color.New(color.FgBlue),
		Progress: color.New(color.FgGreen),
		Success:  color.New(color.FgGreen, color.Bold),
		Warn:     color.New(color.FgYellow, color.Bold),
		Error:    color.New(color.FgRed, color.Bold),
		Dim:      color.New(color.Faint),
	}
}

// SetEnabled forces colors on or off for every color of the scheme,
// regardless of the global color.NoColor setting.
func (s *ColorScheme) SetEnabled(enabled bool) {
	for _, c := range s.all() {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Rule, s.Label, s.Value, s.Phase, s.Latency,
		s.Progress, s.Success, s.Warn, s.Error, s.Dim,
	}
}

// rateColor picks a color for an error rate.
func (s *ColorScheme) rateColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Error
	case rate > 0.01:
		return s.Warn
	default:
		return s.Success
	}
}
