package render

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	online     lipgloss.Style
	offline    lipgloss.Style
	hint       lipgloss.Style
	info       lipgloss.Style
	danger     lipgloss.Style
	success    lipgloss.Style
	link       lipgloss.Style
	quotaLabel lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
	barText    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		online:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		offline:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		hint:       lipgloss.NewStyle().Faint(true),
		info:       lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		danger:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		success:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		link:       lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("33")),
		quotaLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		barText:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
}
