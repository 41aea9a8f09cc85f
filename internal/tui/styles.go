package tui

import "github.com/charmbracelet/lipgloss"

var (
	columnStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.HiddenBorder())
	focusedStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))
	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
	resourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("36"))
)
