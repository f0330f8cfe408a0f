// ABOUTME: TUI view for sync state and the run-now control
// ABOUTME: Shows the mail and schedule services and triggers an out-of-schedule cycle
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/pipeline"
)

var (
	syncHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	syncServiceStyle = lipgloss.NewStyle().
				Bold(true).
				Width(12)

	syncIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncSyncingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	syncErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	syncMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// cycleTimeout bounds a cycle started from the dashboard.
const cycleTimeout = 10 * time.Minute

// CycleCompleteMsg is sent when a cycle started from the TUI finishes.
type CycleCompleteMsg struct {
	Summary pipeline.Summary
	Error   error
}

func (m Model) renderSyncView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("LEADSYNC"))
	s.WriteString("\n\n")

	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	s.WriteString(syncHeaderStyle.Render("Service Status"))
	s.WriteString("\n\n")

	if len(m.syncStates) == 0 {
		s.WriteString(syncMessageStyle.Render("  No sync state yet. The daemon records it after the first window fires."))
		s.WriteString("\n")
	}
	for _, state := range m.syncStates {
		s.WriteString(renderSyncState(state, m.syncInProgress))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	processed, err := db.CountSyncLogs(m.db, db.ServiceMail)
	if err == nil {
		s.WriteString(syncMessageStyle.Render(fmt.Sprintf("  %d messages processed", processed)))
		s.WriteString("\n\n")
	}

	if len(m.syncMessages) > 0 {
		s.WriteString(syncHeaderStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		start := 0
		if len(m.syncMessages) > 5 {
			start = len(m.syncMessages) - 5
		}
		for i := start; i < len(m.syncMessages); i++ {
			s.WriteString(syncMessageStyle.Render("  " + m.syncMessages[i]))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderSyncHelp())

	return s.String()
}

func renderSyncState(state SyncStateDisplay, inProgress bool) string {
	var row strings.Builder

	name := strings.ToUpper(state.Service[:1]) + state.Service[1:]
	row.WriteString("  ")
	row.WriteString(syncServiceStyle.Render(name))

	switch {
	case state.Status == models.SyncStatusSyncing || (inProgress && state.Service == db.ServiceMail):
		row.WriteString(syncSyncingStyle.Render("  ⟳ Syncing..."))
	case state.Status == models.SyncStatusError:
		row.WriteString(syncErrorStyle.Render("  ✗ Error"))
		if state.ErrorMessage != "" {
			row.WriteString(syncErrorStyle.Render(": " + state.ErrorMessage))
		}
	default:
		row.WriteString(syncIdleStyle.Render("  ✓ Idle"))
		if state.LastSyncTime != "" {
			row.WriteString(syncMessageStyle.Render(" • Last synced " + state.LastSyncTime))
		}
	}
	if state.LastSlot != "" {
		row.WriteString(syncMessageStyle.Render(" • slot " + state.LastSlot))
	}
	return row.String()
}

func (m Model) renderSyncHelp() string {
	help := []string{"Enter: Run now", "r: Refresh", "Tab/Esc: Runs", "q: Quit"}
	if m.cycler == nil {
		help[0] = "Run now unavailable (no sheet configured)"
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m *Model) loadSyncStates() {
	states, err := db.GetAllSyncStates(m.db)
	if err != nil {
		m.syncStates = []SyncStateDisplay{}
		return
	}

	m.syncStates = []SyncStateDisplay{}
	for _, state := range states {
		display := SyncStateDisplay{
			Service: state.Service,
			Status:  state.Status,
		}
		if state.LastSyncTime != nil {
			display.LastSyncTime = formatTimeSince(*state.LastSyncTime)
		}
		if state.LastSyncToken != nil {
			display.LastSlot = *state.LastSyncToken
		}
		if state.ErrorMessage != nil {
			display.ErrorMessage = *state.ErrorMessage
		}
		m.syncStates = append(m.syncStates, display)
	}
}

func (m Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if m.cycler == nil || m.syncInProgress {
			return m, nil
		}
		// State changes happen here, before the Cmd runs off the update loop.
		m.syncInProgress = true
		m.addSyncMessage("Starting sync cycle...")
		return m, m.runCycle()
	case "r":
		m.loadSyncStates()
	case "tab", "esc":
		m.viewMode = ViewRuns
		m.loadRuns()
	}

	return m, nil
}

// runCycle runs one forced cycle off the update loop.
func (m Model) runCycle() tea.Cmd {
	cycler := m.cycler
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()

		summary, err := cycler.RunCycle(ctx, models.TriggerTUI)
		return CycleCompleteMsg{Summary: summary, Error: err}
	}
}

func (m *Model) addSyncMessage(msg string) {
	timestamp := m.now().Format("15:04:05")
	m.syncMessages = append(m.syncMessages, fmt.Sprintf("[%s] %s", timestamp, msg))
}

func (m *Model) handleCycleComplete(msg CycleCompleteMsg) {
	m.syncInProgress = false

	if msg.Error != nil {
		m.addSyncMessage(fmt.Sprintf("✗ sync failed: %v", msg.Error))
	} else {
		s := msg.Summary
		m.addSyncMessage(fmt.Sprintf("✓ %s: %d messages, %d records, %d appended, %d duplicates",
			s.Status, s.MessagesSeen, s.RecordsIngested, s.RowsAppended, s.Duplicates))
	}

	m.loadSyncStates()
	m.loadRuns()
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
