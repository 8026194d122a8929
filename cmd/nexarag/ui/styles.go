// Package ui provides styling and small view helpers for the nexarag
// terminal interface.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	DarkBackground = lipgloss.Color("#10141f")
	DarkForeground = lipgloss.Color("#e6e9ef")
	DarkMuted      = lipgloss.Color("#5c6784")
	DarkBorder     = lipgloss.Color("#2b3350")

	LightBackground = lipgloss.Color("#f6f7f9")
	LightForeground = lipgloss.Color("#1b2335")
	LightMuted      = lipgloss.Color("#8a93a8")
	LightBorder     = lipgloss.Color("#d4d9e3")

	Accent  = lipgloss.Color("#7aa2f7") // links, selection
	Success = lipgloss.Color("#9ece6a")
	Warning = lipgloss.Color("#e0af68")
	Danger  = lipgloss.Color("#f7768e")
)

// Theme is one resolved color scheme.
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// DarkTheme returns the dark scheme.
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// LightTheme returns the light scheme.
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Muted:      LightMuted,
		Border:     LightBorder,
		IsDark:     false,
	}
}

// Styles bundles every lipgloss style the interface renders with.
type Styles struct {
	Theme Theme

	Header    lipgloss.Style
	StatusBar lipgloss.Style
	Online    lipgloss.Style
	Offline   lipgloss.Style

	ToastInfo  lipgloss.Style
	ToastError lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Thinking       lipgloss.Style
	Prompt         lipgloss.Style
	Spinner        lipgloss.Style

	Pane         lipgloss.Style
	PaneTitle    lipgloss.Style
	NodeSelected lipgloss.Style
	NodeMuted    lipgloss.Style
	Help         lipgloss.Style
}

// NewStyles builds the style set for a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Theme: t,

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(Accent).
			Padding(0, 1),
		StatusBar: lipgloss.NewStyle().
			Foreground(t.Muted),
		Online:  lipgloss.NewStyle().Foreground(Success).Bold(true),
		Offline: lipgloss.NewStyle().Foreground(Danger).Bold(true),

		ToastInfo:  lipgloss.NewStyle().Foreground(Success),
		ToastError: lipgloss.NewStyle().Foreground(Danger).Bold(true),

		UserLabel:      lipgloss.NewStyle().Foreground(Accent).Bold(true),
		AssistantLabel: lipgloss.NewStyle().Foreground(Success).Bold(true),
		Thinking:       lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		Prompt:         lipgloss.NewStyle().Foreground(Accent),
		Spinner:        lipgloss.NewStyle().Foreground(Accent),

		Pane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		PaneTitle:    lipgloss.NewStyle().Bold(true).Foreground(t.Foreground),
		NodeSelected: lipgloss.NewStyle().Foreground(Accent).Bold(true),
		NodeMuted:    lipgloss.NewStyle().Foreground(t.Muted),
		Help:         lipgloss.NewStyle().Foreground(t.Muted),
	}
}

// DefaultStyles returns the dark style set.
func DefaultStyles() Styles {
	return NewStyles(DarkTheme())
}
