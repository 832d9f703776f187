// Package ui provides the styled text helpers used by the chat REPL.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across all commands
var (
	Red   = lipgloss.Color("9")  // errors
	Grey  = lipgloss.Color("8")  // muted text, status
	Blue  = lipgloss.Color("4")  // prompt, headers
	Cyan  = lipgloss.Color("6")  // assistant label (dark theme)
	White = lipgloss.Color("15") // header text
)

// Theme names persisted as user preference.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Styles returns styled text helpers bound to a renderer
type Styles struct {
	renderer *lipgloss.Renderer

	Prompt    lipgloss.Style
	Assistant lipgloss.Style
	Status    lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Bold      lipgloss.Style

	TableHeader lipgloss.Style
}

// NewStyles creates a new Styles instance for the given output and theme.
// Unknown themes render as dark.
func NewStyles(output *os.File, theme string) *Styles {
	r := lipgloss.NewRenderer(output)

	assistant := Cyan
	if theme == ThemeLight {
		assistant = Blue
	}

	return &Styles{
		renderer: r,

		Prompt: r.NewStyle().
			Bold(true).
			Foreground(Blue),

		Assistant: r.NewStyle().
			Bold(true).
			Foreground(assistant),

		Status: r.NewStyle().
			Foreground(Grey).
			Italic(true),

		Error: r.NewStyle().
			Foreground(Red),

		Muted: r.NewStyle().
			Foreground(Grey),

		Bold: r.NewStyle().
			Bold(true),

		TableHeader: r.NewStyle().
			Bold(true).
			Foreground(White).
			Padding(0, 1),
	}
}

// DefaultStyles returns styles for stdout with the dark theme.
func DefaultStyles() *Styles {
	return NewStyles(os.Stdout, ThemeDark)
}

// Truncate shortens a string to maxLen runes with an ellipsis.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
