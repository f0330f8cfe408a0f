// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Full-screen dashboard of sync runs, schedule state, and a run-now control
package tui

import (
	"context"
	"database/sql"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/pipeline"
	"github.com/harperreed/leadsync/schedule"
)

// refreshInterval is how often the dashboard reloads from the database.
const refreshInterval = 5 * time.Second

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewRuns ViewMode = iota
	ViewDetail
	ViewSync
)

// Model is the main bubbletea model
type Model struct {
	db     *sql.DB
	cycler pipeline.Cycler
	gate   schedule.Gate
	now    func() time.Time

	viewMode ViewMode

	// Runs view state
	runs        []models.Run
	selectedRow int

	// Detail view state
	selectedID string

	// Sync view state
	syncStates     []SyncStateDisplay
	syncInProgress bool
	syncMessages   []string

	// UI state
	width  int
	height int
	err    error
}

// SyncStateDisplay is one sync_state row prepared for rendering.
type SyncStateDisplay struct {
	Service      string
	Status       string
	LastSyncTime string
	LastSlot     string
	ErrorMessage string
}

// NewModel creates a new TUI model. cycler may be nil, which disables run-now.
func NewModel(db *sql.DB, cycler pipeline.Cycler, gate schedule.Gate) Model {
	m := Model{
		db:       db,
		cycler:   cycler,
		gate:     gate,
		now:      time.Now,
		viewMode: ViewRuns,
		width:    80,
		height:   24,
	}
	m.loadRuns()
	return m
}

// refreshMsg asks the model to reload runs and sync state.
type refreshMsg time.Time

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return refreshTick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case refreshMsg:
		m.loadRuns()
		m.loadSyncStates()
		return m, refreshTick()
	case CycleCompleteMsg:
		m.handleCycleComplete(msg)
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewRuns:
		return m.renderRunsView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewSync:
		return m.renderSyncView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}

	// Delegate to view-specific handlers
	switch m.viewMode {
	case ViewRuns:
		return m.handleRunsKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewSync:
		return m.handleSyncKeys(msg)
	}

	return m, nil
}

// Run starts the dashboard on the terminal's alternate screen.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)
