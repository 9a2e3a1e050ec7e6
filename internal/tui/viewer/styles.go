package viewer

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette of the viewer
type Theme struct {
	Primary     lipgloss.Color // progress bar fill
	Error       lipgloss.Color
	Muted       lipgloss.Color // placeholders and footer
	Text        lipgloss.Color
	Spinner     lipgloss.Color
	Border      lipgloss.Color // header background
	Placeholder lipgloss.Color
}

// DefaultTheme returns the default color theme (gruvbox)
func DefaultTheme() *Theme {
	return &Theme{
		Primary:     lipgloss.Color("#b8bb26"), // gruvbox green
		Error:       lipgloss.Color("#fb4934"), // gruvbox red
		Muted:       lipgloss.Color("#928374"), // gruvbox gray
		Text:        lipgloss.Color("#ebdbb2"), // gruvbox foreground
		Spinner:     lipgloss.Color("#d3869b"), // gruvbox purple
		Border:      lipgloss.Color("#504945"), // gruvbox bg2
		Placeholder: lipgloss.Color("#665c54"), // gruvbox bg3
	}
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	theme *Theme

	Header      lipgloss.Style
	Footer      lipgloss.Style
	Placeholder lipgloss.Style
	Error       lipgloss.Style
	Spinner     lipgloss.Style
	BarFull     lipgloss.Style
	BarEmpty    lipgloss.Style
}

// NewStyles builds styles for theme. A nil theme uses DefaultTheme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}
	return &Styles{
		theme: theme,
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Text).
			Background(theme.Border).
			Padding(0, 1),
		Footer:      lipgloss.NewStyle().Foreground(theme.Muted),
		Placeholder: lipgloss.NewStyle().Foreground(theme.Placeholder).Italic(true),
		Error:       lipgloss.NewStyle().Foreground(theme.Error).Bold(true),
		Spinner:     lipgloss.NewStyle().Foreground(theme.Spinner),
		BarFull:     lipgloss.NewStyle().Foreground(theme.Primary),
		BarEmpty:    lipgloss.NewStyle().Foreground(theme.Muted),
	}
}

// Theme returns the palette the styles were built from.
func (s *Styles) Theme() *Theme {
	return s.theme
}
