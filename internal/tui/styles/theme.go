// Package styles provides colour themes and styling for the TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"secondbrain/internal/api"
)

// Theme defines the colour palette for the TUI.
type Theme struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Info       lipgloss.Color
	Border     lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:    lipgloss.Color("#7C3AED"), // Purple
		Secondary:  lipgloss.Color("#06B6D4"), // Cyan
		Foreground: lipgloss.Color("#CDD6F4"), // Light gray
		Muted:      lipgloss.Color("#6C7086"), // Medium gray
		Success:    lipgloss.Color("#A6E3A1"), // Green
		Warning:    lipgloss.Color("#F9E2AF"), // Yellow
		Error:      lipgloss.Color("#F38BA8"), // Red
		Info:       lipgloss.Color("#89B4FA"), // Blue
		Border:     lipgloss.Color("#45475A"), // Border gray
	}
}

// Styles contains pre-configured lipgloss styles.
type Styles struct {
	theme *Theme

	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	Muted     lipgloss.Style
	Selected  lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Help      lipgloss.Style
	ActiveTab lipgloss.Style
	Tab       lipgloss.Style

	// Pane borders; the focused pane uses the accent colour.
	Pane        lipgloss.Style
	FocusedPane lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Citation       lipgloss.Style

	badges map[api.Status]lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	badge := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#1E1E2E")).Background(c).Padding(0, 1)
	}

	return &Styles{
		theme: theme,

		Title:    lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Subtitle: lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary),
		Normal:   lipgloss.NewStyle().Foreground(theme.Foreground),
		Muted:    lipgloss.NewStyle().Foreground(theme.Muted),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(theme.Foreground).Background(theme.Primary),
		Error:    lipgloss.NewStyle().Foreground(theme.Error),
		Success:  lipgloss.NewStyle().Foreground(theme.Success),
		Warning:  lipgloss.NewStyle().Foreground(theme.Warning),
		Help:     lipgloss.NewStyle().Foreground(theme.Muted).Italic(true),

		ActiveTab: lipgloss.NewStyle().Bold(true).Foreground(theme.Foreground).Background(theme.Primary).Padding(0, 2),
		Tab:       lipgloss.NewStyle().Foreground(theme.Muted).Padding(0, 2),

		Pane:        lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(theme.Border),
		FocusedPane: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(theme.Primary),

		UserLabel:      lipgloss.NewStyle().Bold(true).Foreground(theme.Success),
		AssistantLabel: lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary),
		Citation:       lipgloss.NewStyle().Foreground(theme.Muted).BorderLeft(true).BorderStyle(lipgloss.NormalBorder()).BorderForeground(theme.Secondary).PaddingLeft(1),

		badges: map[api.Status]lipgloss.Style{
			api.StatusQueued:    badge(theme.Warning),
			api.StatusRunning:   badge(theme.Info),
			api.StatusCompleted: badge(theme.Success),
			api.StatusFailed:    badge(theme.Error),
		},
	}
}

// DefaultStyles returns styles using the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the underlying theme.
func (s *Styles) Theme() *Theme {
	return s.theme
}

// StatusBadge renders an ingestion status as a coloured label.
func (s *Styles) StatusBadge(status api.Status) string {
	style, ok := s.badges[status]
	if !ok {
		style = s.Muted
	}
	return style.Render(string(status))
}
