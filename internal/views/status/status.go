package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/collexa/console/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Team      string
	Plan      string
	Running   int
	Queued    int
	Done      int
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// SetCounts updates the run counts.
func (m *Model) SetCounts(running, queued, done int) {
	m.Running = running
	m.Queued = queued
	m.Done = done
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	counts := fmt.Sprintf("%d running  %d queued  %d done",
		m.Running, m.Queued, m.Done)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts

	if m.Team != "" {
		team := lipgloss.NewStyle().Foreground(theme.ColorBright).Render(m.Team)
		content += sep + team
		if m.Plan != "" {
			content += " " + lipgloss.NewStyle().
				Foreground(theme.PlanColor(m.Plan)).
				Render(fmt.Sprintf("[%s]", m.Plan))
		}
	}

	bar := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)

	return bar
}
