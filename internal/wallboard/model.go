package wallboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dennisdiepolder/monti/portalwatch/internal/view"
)

// Model renders the live agent view in a terminal
type Model struct {
	view      *view.View
	connected bool
	lastErr   error
	table     table.Model
	updates   <-chan Update
	noColor   bool
	height    int
}

// NewModel constructs a wallboard model fed by updates
func NewModel(updates <-chan Update, noColor bool) Model {
	t := table.New(
		table.WithColumns([]table.Column{}),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
	)
	t.SetStyles(tableStyles(noColor))
	return Model{
		table:   t,
		updates: updates,
		noColor: noColor,
	}
}

// UpdateMsg wraps a feed update for Bubble Tea
type UpdateMsg struct {
	Update Update
}

// Init waits for the first feed update
func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

// Update applies feed updates, resizes and key presses
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		switch typed.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.height = typed.Height
		m.table.SetWidth(typed.Width)
		m.table.SetHeight(max(typed.Height-4, 1))
		return m, nil
	case UpdateMsg:
		m = m.apply(typed.Update)
		return m, waitForUpdate(m.updates)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) apply(u Update) Model {
	m.connected = u.Connected
	m.lastErr = u.Err
	if u.View == nil {
		return m
	}
	m.view = u.View
	// Rows must be cleared before the column count changes
	m.table.SetRows(nil)
	m.table.SetColumns(columnsFor(u.View))
	m.table.SetRows(rowsFor(u.View))
	return m
}

// View renders the wallboard
func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.table.View(),
		m.footer(),
	)
}

func (m Model) header() string {
	title := "Ignite agents"
	if m.view != nil {
		title = fmt.Sprintf("Ignite agents  %d shown / %d total", len(m.view.Rows), m.view.TotalAgents)
		if n := len(m.view.SelectedNames); n > 0 {
			title += fmt.Sprintf("  (filter: %d names)", n)
		}
	}
	if m.noColor {
		return title
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render(title)
}

func (m Model) footer() string {
	var parts []string
	if m.connected {
		parts = append(parts, "connected")
	} else if m.lastErr != nil {
		parts = append(parts, "reconnecting: "+m.lastErr.Error())
	} else {
		parts = append(parts, "connecting")
	}
	if m.view != nil {
		s := m.view.Status
		parts = append(parts, string(s.Phase))
		if s.Message != "" {
			parts = append(parts, s.Message)
		}
		if s.Progress != "" {
			parts = append(parts, s.Progress)
		}
	}
	parts = append(parts, "q to quit")

	line := strings.Join(parts, " | ")
	if m.noColor {
		return line
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(line)
}

func waitForUpdate(updates <-chan Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return tea.Quit()
		}
		return UpdateMsg{Update: u}
	}
}
