package render

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jackzampolin/docdesk/internal/agents"
	"github.com/jackzampolin/docdesk/internal/reviews"
	"github.com/jackzampolin/docdesk/internal/session"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Surface)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Header
			}
			return Cell
		})
}

// ReviewTable renders filtered review rows.
func ReviewTable(rows []reviews.Row) string {
	if len(rows) == 0 {
		return Muted.Render("No reviews match.")
	}
	t := newTable("CHUNK", "PAGE", "REVIEW", "CONF", "HUMAN", "ISSUE", "OBSERVATION")
	for _, r := range rows {
		t.Row(
			fmt.Sprint(r.ChunkNo),
			fmt.Sprint(r.PageNumber),
			r.Title,
			fmt.Sprintf("%.0f", r.Review.Confidence),
			yesNo(r.Review.HumanReview),
			yesNo(r.Review.IssueFound),
			truncate(r.Review.Observation, 60),
		)
	}
	return t.Render()
}

// AgentTable renders agent configurations.
func AgentTable(list []agents.Agent) string {
	if len(list) == 0 {
		return Muted.Render("No agents configured.")
	}
	t := newTable("ID", "NAME", "TYPE", "ENABLED", "KNOWLEDGE")
	for _, a := range list {
		t.Row(a.ID, a.Name, string(a.Type), yesNo(a.Status), fmt.Sprint(len(a.KnowledgeBase)))
	}
	return t.Render()
}

// UserTable renders accounts.
func UserTable(users []session.User) string {
	if len(users) == 0 {
		return Muted.Render("No users.")
	}
	t := newTable("ID", "USERNAME", "ROLE", "DEPARTMENT")
	for _, u := range users {
		t.Row(u.ID, u.Username, u.Role, u.Department)
	}
	return t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
