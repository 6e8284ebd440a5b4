package playground

import "github.com/charmbracelet/lipgloss"

// Theme defines all colors used by the playground.
// Use DarkTheme() or LightTheme() to get a pre-built theme,
// or construct a custom Theme.
type Theme struct {
	Primary   lipgloss.Color // title, focused field label
	Secondary lipgloss.Color // selected rubric
	Accent    lipgloss.Color // result panel border
	Error     lipgloss.Color // errors, low scores
	Warning   lipgloss.Color // middling scores, missing context hint
	Success   lipgloss.Color // high scores
	Info      lipgloss.Color // improvement labels
	Text      lipgloss.Color // primary text
	TextMuted lipgloss.Color // hints, unselected rubrics
	Border    lipgloss.Color // separators
}

// DarkTheme returns the default dark theme.
func DarkTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#fab283"),
		Secondary: lipgloss.Color("#5c9cf5"),
		Accent:    lipgloss.Color("#9d7cd8"),
		Error:     lipgloss.Color("#e06c75"),
		Warning:   lipgloss.Color("#f5a742"),
		Success:   lipgloss.Color("#7fd88f"),
		Info:      lipgloss.Color("#56b6c2"),
		Text:      lipgloss.Color("#eeeeee"),
		TextMuted: lipgloss.Color("#808080"),
		Border:    lipgloss.Color("#484848"),
	}
}

// LightTheme returns a light theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#b35c00"),
		Secondary: lipgloss.Color("#0550ae"),
		Accent:    lipgloss.Color("#6639ba"),
		Error:     lipgloss.Color("#cf222e"),
		Warning:   lipgloss.Color("#bf8700"),
		Success:   lipgloss.Color("#116329"),
		Info:      lipgloss.Color("#0969da"),
		Text:      lipgloss.Color("#1f2328"),
		TextMuted: lipgloss.Color("#656d76"),
		Border:    lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds all lipgloss styles derived from a Theme.
type styles struct {
	title    lipgloss.Style
	label    lipgloss.Style
	focused  lipgloss.Style
	selected lipgloss.Style
	dim      lipgloss.Style
	text     lipgloss.Style
	err      lipgloss.Style
	warn     lipgloss.Style
	info     lipgloss.Style
	panel    lipgloss.Style

	scoreLow  lipgloss.Style
	scoreMid  lipgloss.Style
	scoreHigh lipgloss.Style

	hintKey  lipgloss.Style
	hintDesc lipgloss.Style
}

// newStyles builds all styles from a theme.
func newStyles(t Theme) styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		label:    lipgloss.NewStyle().Foreground(t.TextMuted),
		focused:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		selected: lipgloss.NewStyle().Bold(true).Foreground(t.Secondary).Underline(true),
		dim:      lipgloss.NewStyle().Foreground(t.TextMuted),
		text:     lipgloss.NewStyle().Foreground(t.Text),
		err:      lipgloss.NewStyle().Foreground(t.Error),
		warn:     lipgloss.NewStyle().Foreground(t.Warning),
		info:     lipgloss.NewStyle().Bold(true).Foreground(t.Info),
		panel:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Accent).Padding(0, 1),

		scoreLow:  lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		scoreMid:  lipgloss.NewStyle().Bold(true).Foreground(t.Warning),
		scoreHigh: lipgloss.NewStyle().Bold(true).Foreground(t.Success),

		hintKey:  lipgloss.NewStyle().Foreground(t.Text),
		hintDesc: lipgloss.NewStyle().Foreground(t.TextMuted),
	}
}
