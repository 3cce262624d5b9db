package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/state"
)

const (
	cardWidth = 34
	barWidth  = 20
)

// ProgressBar draws a fixed-width bar for percent (clamped to 0..100).
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		width = barWidth
	}
	percent = min(100, max(0, percent))
	filled := int(percent / 100 * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %3.0f%%", lipgloss.NewStyle().Foreground(Green).Render(bar), percent)
}

// progressLine describes one tracker, e.g. "classification 40% (4/10)".
func progressLine(p books.Progress) string {
	line := fmt.Sprintf("%-14s %s", p.Kind, ProgressBar(p.Percent, barWidth))
	if p.Total != nil && p.Done != nil {
		line += fmt.Sprintf(" (%d/%d)", *p.Done, *p.Total)
	}
	return line
}

func byBook(progress []books.Progress) map[string][]books.Progress {
	out := make(map[string][]books.Progress)
	for _, p := range progress {
		out[p.BookID] = append(out[p.BookID], p)
	}
	return out
}

// Books renders the book list in the given view (state.ViewTable or
// state.ViewGrid). Unknown views fall back to the grid.
func Books(view string, list []books.Book, progress []books.Progress, width int) string {
	if len(list) == 0 {
		return Muted.Render("No books yet. Upload one with `docdesk books upload`.")
	}
	if view == state.ViewTable {
		return BookTable(list, progress)
	}
	return BookGrid(list, progress, width)
}

// BookTable renders books as rows with an inline progress column.
func BookTable(list []books.Book, progress []books.Progress) string {
	active := byBook(progress)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Surface)).
		Headers("ID", "NAME", "AUTHOR", "CATEGORY", "STATUS", "PROGRESS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Header
			}
			return Cell
		})

	for _, b := range list {
		var lines []string
		for _, p := range active[b.ID] {
			lines = append(lines, progressLine(p))
		}
		t.Row(b.ID, b.DocName, b.Author, b.Category, statusBadge(string(b.Status)), strings.Join(lines, "\n"))
	}
	return t.Render()
}

// BookGrid renders books as cards, as many per row as fit in width.
func BookGrid(list []books.Book, progress []books.Progress, width int) string {
	active := byBook(progress)

	perRow := 1
	if width > 0 {
		perRow = max(1, width/(cardWidth+2))
	}

	var rows []string
	var cards []string
	for i, b := range list {
		cards = append(cards, bookCard(b, active[b.ID]))
		if len(cards) == perRow || i == len(list)-1 {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
			cards = nil
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func bookCard(b books.Book, progress []books.Progress) string {
	lines := []string{
		Title.Render(b.DocName),
		Muted.Render(b.Author + " · " + b.Category),
		statusBadge(string(b.Status)),
	}
	if len(b.AssignedDepartments) > 0 {
		lines = append(lines, Muted.Render("→ "+strings.Join(b.AssignedDepartments, ", ")))
	}
	for _, p := range progress {
		lines = append(lines, string(p.Kind), ProgressBar(p.Percent, cardWidth-8))
	}
	lines = append(lines, Muted.Render(b.ID))
	return Card.Render(strings.Join(lines, "\n"))
}

// ProgressList renders every active tracker, one per line.
func ProgressList(progress []books.Progress, names map[string]string) string {
	if len(progress) == 0 {
		return Muted.Render("No jobs running.")
	}
	var b strings.Builder
	for _, p := range progress {
		name := names[p.BookID]
		if name == "" {
			name = p.BookID
		}
		fmt.Fprintf(&b, "%-24s %s\n", truncate(name, 24), progressLine(p))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
