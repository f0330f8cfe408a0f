// ABOUTME: TUI detail view for a single sync run
// ABOUTME: Shows counts, timing, and each recorded error
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/leadsync/db"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("RUN DETAIL"))
	s.WriteString("\n\n")

	s.WriteString(m.renderRunDetail())
	s.WriteString("\n\n")

	s.WriteString(m.renderDetailHelp())

	return s.String()
}

func (m Model) renderRunDetail() string {
	run, err := db.GetRun(m.db, m.selectedID)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if run == nil {
		return fmt.Sprintf("Run %s not found", m.selectedID)
	}

	var s strings.Builder

	s.WriteString(m.renderField("ID", run.ID))
	s.WriteString(m.renderField("Trigger", run.Trigger))
	s.WriteString(m.renderField("Status", statusLabel(run.Status)))
	s.WriteString(m.renderField("Started", run.StartedAt.Local().Format(time.RFC1123)))
	if run.FinishedAt != nil {
		s.WriteString(m.renderField("Finished", run.FinishedAt.Local().Format(time.RFC1123)))
		s.WriteString(m.renderField("Duration", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()))
	}

	s.WriteString("\n")
	s.WriteString(m.renderField("Messages", strconv.Itoa(run.MessagesSeen)))
	s.WriteString(m.renderField("Records ingested", strconv.Itoa(run.RecordsIngested)))
	s.WriteString(m.renderField("Rows skipped", strconv.Itoa(run.RowsSkipped)))
	s.WriteString(m.renderField("Rows appended", strconv.Itoa(run.RowsAppended)))
	s.WriteString(m.renderField("Duplicates", strconv.Itoa(run.Duplicates)))

	if run.ErrorMessage != "" {
		s.WriteString("\n")
		s.WriteString(m.renderField("Errors", ""))
		for _, e := range strings.Split(run.ErrorMessage, "; ") {
			s.WriteString(syncErrorStyle.Render("  • " + e))
			s.WriteString("\n")
		}
	}

	return s.String()
}

func (m Model) renderField(label, value string) string {
	if value == "" {
		value = "-"
	}
	return fieldLabelStyle.Render(label+":") + " " + fieldValueStyle.Render(value) + "\n"
}

func (m Model) renderDetailHelp() string {
	return helpStyle.Render("Esc: Back • q: Quit")
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.viewMode = ViewRuns
		m.selectedID = ""
	}
	return m, nil
}
