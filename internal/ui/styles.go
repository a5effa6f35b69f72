// Package ui renders sitebook data for the terminal and collects input
// through interactive forms.
package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sitebook/sitebook/internal/notify"
	"github.com/sitebook/sitebook/internal/types"
)

var (
	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	MutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	HeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	CellStyle   = lipgloss.NewStyle().Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	InfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

const dateLayout = "2006-01-02"

// LevelStyle returns the style for a notification level.
func LevelStyle(level notify.Level) lipgloss.Style {
	switch level {
	case notify.LevelSuccess:
		return SuccessStyle
	case notify.LevelWarning:
		return WarningStyle
	case notify.LevelError:
		return ErrorStyle
	default:
		return InfoStyle
	}
}

// SyncBadge renders a sync state. Clean and synced entities render empty.
func SyncBadge(s types.SyncState) string {
	switch s {
	case types.SyncPending:
		return WarningStyle.Render("pending")
	case types.SyncError:
		return ErrorStyle.Render("error")
	}
	return ""
}

// ProgressBar renders pct as a fixed-width bar followed by the percentage.
func ProgressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	style := InfoStyle
	if pct == 100 {
		style = SuccessStyle
	}
	return style.Render(bar) + " " + strconv.Itoa(pct) + "%"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			return CellStyle
		})
}

// RenderProjects writes a table of projects to w.
func RenderProjects(w io.Writer, projects []types.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No projects."))
		return
	}
	t := newTable("ID", "Name", "Status", "Role", "Progress", "Finish", "Cost", "Sync")
	for _, p := range projects {
		t.Row(
			p.ID,
			p.Name,
			string(p.Status),
			string(p.UserRole),
			ProgressBar(p.Progress(), 10),
			p.FinishDate.Format(dateLayout),
			strconv.FormatFloat(p.Cost, 'f', 2, 64),
			SyncBadge(p.Sync),
		)
	}
	fmt.Fprintln(w, t.String())
}

// RenderProject writes one project's details and its todos to w.
func RenderProject(w io.Writer, p types.Project) {
	fmt.Fprintln(w, TitleStyle.Render(p.Name)+" "+MutedStyle.Render(p.ID))
	if p.Description != "" {
		fmt.Fprintln(w, p.Description)
	}
	fmt.Fprintf(w, "%s · %s · finish %s · cost %.2f\n",
		p.Status, p.UserRole, p.FinishDate.Format(dateLayout), p.Cost)
	fmt.Fprintln(w, ProgressBar(p.Progress(), 20))
	todos := make([]types.Todo, 0, len(p.Todos))
	for _, t := range p.Todos {
		todos = append(todos, *t)
	}
	RenderTodos(w, todos)
}

// RenderTodos writes a table of todos to w.
func RenderTodos(w io.Writer, todos []types.Todo) {
	if len(todos) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No tasks."))
		return
	}
	t := newTable("ID", "Title", "Type", "Status", "Done", "Finish", "Sync")
	for _, td := range todos {
		finish := ""
		if td.FinishDate != nil {
			finish = td.FinishDate.Format(dateLayout)
		}
		done := ""
		if td.Done {
			done = SuccessStyle.Render("✓")
		}
		t.Row(td.ID, td.Title, string(td.Type), string(td.Status), done, finish, SyncBadge(td.Sync))
	}
	fmt.Fprintln(w, t.String())
}
