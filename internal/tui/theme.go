package tui

import (
	"github.com/charmbracelet/lipgloss"

	"greetui/internal/config"
)

type theme struct {
	Title        lipgloss.Style
	Clock        lipgloss.Style
	Date         lipgloss.Style
	Field        lipgloss.Style
	FieldFocused lipgloss.Style
	Label        lipgloss.Style
	Input        lipgloss.Style
	Muted        lipgloss.Style
	Danger       lipgloss.Style
	Banner       lipgloss.Style
}

func pick(override, fallback string) lipgloss.Color {
	if override != "" {
		return lipgloss.Color(override)
	}
	return lipgloss.Color(fallback)
}

func newTheme(c config.Colors) theme {
	title := pick(c.Title, "#00FFFF")
	border := pick(c.Border, "#7D7D7D")
	focus := pick(c.Focus, "#FFBF00")
	text := pick(c.Text, "#FFFFFF")
	danger := pick(c.Error, "#FF0055")
	muted := pick(c.Muted, "#7D7D7D")

	return theme{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(title),
		Clock: lipgloss.NewStyle().
			Bold(true).
			Foreground(text),
		Date: lipgloss.NewStyle().
			Foreground(muted),
		Field: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		FieldFocused: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(focus).
			Padding(0, 1),
		Label: lipgloss.NewStyle().
			Foreground(muted),
		Input: lipgloss.NewStyle().
			Foreground(text),
		Muted: lipgloss.NewStyle().
			Foreground(muted),
		Danger: lipgloss.NewStyle().
			Foreground(danger),
		Banner: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(danger).
			Foreground(text).
			Padding(1, 3),
	}
}
