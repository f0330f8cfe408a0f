// ABOUTME: TUI runs table with the schedule header
// ABOUTME: Lists recent sync cycles newest first and navigates to run details
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/models"
)

const maxRunsShown = 100

var (
	gateOpenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	gateClosedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func (m *Model) loadRuns() {
	if m.db == nil {
		return
	}
	runs, err := db.ListRuns(m.db, maxRunsShown)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.runs = runs
	if m.selectedRow >= len(m.runs) {
		m.selectedRow = 0
	}
}

func (m Model) renderRunsView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("LEADSYNC"))
	s.WriteString("\n\n")

	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	s.WriteString(m.renderScheduleLine())
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(fmt.Sprintf("Error: %v", m.err))
	} else {
		s.WriteString(m.renderRunsTable())
	}
	s.WriteString("\n\n")

	s.WriteString(m.renderRunsHelp())

	return s.String()
}

func (m Model) renderTabs() string {
	tabs := []struct {
		name string
		mode ViewMode
	}{
		{"Runs", ViewRuns},
		{"Sync", ViewSync},
	}

	var rendered []string
	for _, tab := range tabs {
		if tab.mode == m.viewMode {
			rendered = append(rendered, tabActiveStyle.Render(tab.name))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(tab.name))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) renderScheduleLine() string {
	now := m.now()

	var line string
	if m.gate.ShouldRun(now) {
		line = gateOpenStyle.Render("● Window open")
	} else {
		line = gateClosedStyle.Render("○ Window closed")
	}

	week := "off-week"
	if m.gate.IsOnWeek(now) {
		week = "on-week"
	}
	line += gateClosedStyle.Render(fmt.Sprintf("  %s • %s", week, m.gate.String()))

	if next := m.gate.NextRun(now); !next.IsZero() {
		line += gateClosedStyle.Render(fmt.Sprintf(" • next %s (%s)",
			next.Format("Mon Jan 2 15:04"), formatTimeUntil(next.Sub(now))))
	}
	return line
}

func (m Model) renderRunsTable() string {
	columns := []table.Column{
		{Title: "Started", Width: 17},
		{Title: "Trigger", Width: 9},
		{Title: "Status", Width: 9},
		{Title: "Msgs", Width: 5},
		{Title: "Records", Width: 8},
		{Title: "Skipped", Width: 8},
		{Title: "Appended", Width: 9},
		{Title: "Dupes", Width: 6},
	}

	rows := make([]table.Row, 0, len(m.runs))
	for _, r := range m.runs {
		rows = append(rows, table.Row{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Trigger,
			statusLabel(r.Status),
			strconv.Itoa(r.MessagesSeen),
			strconv.Itoa(r.RecordsIngested),
			strconv.Itoa(r.RowsSkipped),
			strconv.Itoa(r.RowsAppended),
			strconv.Itoa(r.Duplicates),
		})
	}

	height := m.height - 12
	if height < 3 {
		height = 3
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	if len(rows) == 0 {
		return t.View() + "\n" + helpStyle.Render("No sync runs recorded yet.")
	}
	return t.View()
}

func statusLabel(status string) string {
	switch status {
	case models.RunStatusOK:
		return "✓ ok"
	case models.RunStatusNoop:
		return "· noop"
	case models.RunStatusFallback:
		return "! export"
	case models.RunStatusFailed:
		return "✗ failed"
	case models.RunStatusRunning:
		return "⟳ running"
	}
	return status
}

func (m Model) renderRunsHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Enter: View",
		"Tab: Sync",
		"r: Refresh",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleRunsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.runs)-1 {
			m.selectedRow++
		}
	case "enter":
		if m.selectedRow < len(m.runs) {
			m.selectedID = m.runs[m.selectedRow].ID
			m.viewMode = ViewDetail
		}
	case "tab":
		m.viewMode = ViewSync
		m.loadSyncStates()
	case "r":
		m.loadRuns()
	}
	return m, nil
}

func formatTimeUntil(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "in under a minute"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("in %dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("in %d days", int(d.Hours()/24))
	}
}
