package ui

import "github.com/charmbracelet/lipgloss"

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	titleStyle      = lipgloss.NewStyle().Bold(true)
	breadcrumbStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	badgeStyle      = lipgloss.NewStyle().
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("252")).
			Padding(0, 1)
	outlineBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Padding(0, 1)
	actionOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	actionOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	skeletonStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	linkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	scoreStyle     = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("238")).
			Padding(0, 1)
	searchMatchStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("220"))
)

func cardStyle(active bool) lipgloss.Style {
	border := lipgloss.RoundedBorder()
	if active {
		return lipgloss.NewStyle().
			Border(border, true).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
	}
	return lipgloss.NewStyle().
		Border(border, true).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
}
