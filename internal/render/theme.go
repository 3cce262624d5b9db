// Package render draws docdesk data for the terminal with lipgloss.
package render

import "github.com/charmbracelet/lipgloss"

var (
	Text     = lipgloss.Color("#cdd6f4")
	Subtext  = lipgloss.Color("#a6adc8")
	Surface  = lipgloss.Color("#45475a")
	Lavender = lipgloss.Color("#b4befe")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")

	Title  = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Muted  = lipgloss.NewStyle().Foreground(Subtext)
	Header = lipgloss.NewStyle().Foreground(Lavender).Bold(true).Padding(0, 1)
	Cell   = lipgloss.NewStyle().Foreground(Text).Padding(0, 1)

	Card = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Surface).
		Padding(0, 1).
		Width(cardWidth)
)

// statusColor maps a book status to its badge colour.
func statusColor(status string) lipgloss.Color {
	switch status {
	case "Indexing", "Processing":
		return Peach
	case "Classified", "Analyzed", "Processed", "Assigned":
		return Green
	case "Pending":
		return Red
	default:
		return Subtext
	}
}

func statusBadge(status string) string {
	return lipgloss.NewStyle().Foreground(statusColor(status)).Render(status)
}

// Notice renders a notification line: a coloured level tag and the message.
func Notice(level, msg string) string {
	color := Sapphire
	switch level {
	case "success":
		color = Green
	case "warning":
		color = Peach
	case "error":
		color = Red
	}
	tag := lipgloss.NewStyle().Foreground(color).Bold(true).Render(level)
	return tag + " " + msg
}
