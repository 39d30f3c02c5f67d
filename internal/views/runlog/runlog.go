// Package runlog renders the run detail overlay: run metadata above a
// log tail that fills from the live stream while the run executes, or
// from stored logs once it has finished.
package runlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/livelog"
	"github.com/collexa/console/internal/theme"
)

const (
	labelWidth  = 12
	minPanelW   = 60
	headerLines = 10
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleError = lipgloss.NewStyle().
			Foreground(theme.ColorDanger)
)

// LogsLoadedMsg carries stored logs fetched for a finished run.
type LogsLoadedMsg struct {
	RunID string
	Logs  []api.LogEntry
	Err   error
}

// KeyMap holds the runlog-specific key bindings.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Follow key.Binding
}

// DefaultKeyMap returns the default runlog key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Follow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "follow tail"),
		),
	}
}

// Model holds the run detail overlay state.
type Model struct {
	sub  *livelog.Subscriber
	keys KeyMap

	run     api.Run
	stored  []api.LogEntry
	loadErr string

	// offset scrolls back from the tail. 0 means following.
	offset int

	width  int
	height int
}

// New creates a runlog model reading live events from sub.
func New(sub *livelog.Subscriber) Model {
	return Model{
		sub:  sub,
		keys: DefaultKeyMap(),
	}
}

// SetRun points the overlay at a run and resets scroll state. Stored
// logs from a previously shown run are discarded.
func (m *Model) SetRun(run api.Run) {
	m.run = run
	m.stored = nil
	m.loadErr = ""
	m.offset = 0
}

// Run returns the run currently shown.
func (m Model) Run() api.Run {
	return m.run
}

// SetStatus updates the run metadata in place, preserving scroll state.
func (m *Model) SetStatus(run api.Run) {
	if run.ID == m.run.ID {
		m.run = run
	}
}

// SetSize updates the available rendering area.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Update handles messages for the runlog overlay.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LogsLoadedMsg:
		if msg.RunID != m.run.ID {
			return m, nil
		}
		if msg.Err != nil {
			m.loadErr = msg.Err.Error()
			return m, nil
		}
		m.stored = msg.Logs
		return m, nil

	case livelog.EventMsg:
		// Stay glued to the tail unless the user scrolled away.
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.offset++
		if max := m.lineCount() - 1; m.offset > max {
			m.offset = max
		}
		if m.offset < 0 {
			m.offset = 0
		}

	case key.Matches(msg, m.keys.Down):
		m.offset--
		if m.offset < 0 {
			m.offset = 0
		}

	case key.Matches(msg, m.keys.Follow):
		m.offset = 0
	}

	return m, nil
}

// lines returns the log entries to render: stored logs for finished
// runs, the live buffer otherwise.
func (m Model) lines() []livelog.Event {
	if m.stored != nil {
		out := make([]livelog.Event, len(m.stored))
		for i, e := range m.stored {
			out[i] = livelog.Event{TS: e.TS, Level: e.Level, Message: e.Message}
		}
		return out
	}
	if m.sub == nil || m.sub.RunID() != m.run.ID {
		return nil
	}
	return m.sub.Events()
}

func (m Model) lineCount() int {
	if m.stored != nil {
		return len(m.stored)
	}
	if m.sub == nil || m.sub.RunID() != m.run.ID {
		return 0
	}
	return m.sub.Len()
}

// View renders the run detail panel.
func (m Model) View() string {
	if m.run.ID == "" {
		return ""
	}

	panelW := m.width - 4
	if panelW < minPanelW {
		panelW = minPanelW
	}

	var b strings.Builder

	name := m.run.AgentName
	if name == "" {
		name = m.run.AgentID
	}
	b.WriteString(styleTitle.Render("Run: "+name) + "\n")
	b.WriteString(strings.Repeat("─", panelW-4) + "\n")

	writeRow(&b, "ID", m.run.ID)
	statusStr := lipgloss.NewStyle().
		Foreground(theme.StatusColor(string(m.run.Status))).
		Render(theme.StatusGlyph(string(m.run.Status)) + " " + string(m.run.Status))
	writeRow(&b, "Status", statusStr)
	if m.run.Trigger != "" {
		writeRow(&b, "Trigger", m.run.Trigger)
	}
	if m.run.TokensUsed > 0 {
		writeRow(&b, "Tokens", fmt.Sprintf("%d", m.run.TokensUsed))
	}
	if !m.run.StartedAt.IsZero() {
		writeRow(&b, "Started", formatAge(m.run.StartedAt))
	}
	if m.run.Error != "" {
		b.WriteString(styleError.Render("Error: "+m.run.Error) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderStreamStatus() + "\n")
	b.WriteString(m.renderLog(panelW) + "\n")

	footer := "[j/k] scroll  [f] follow  [r] reload  [esc] close"
	if m.offset > 0 {
		footer = fmt.Sprintf("↑ %d behind  %s", m.offset, footer)
	}
	b.WriteString(styleFooter.Render(footer))

	return stylePanel.Width(panelW).Render(b.String())
}

// renderStreamStatus shows where the log lines are coming from.
func (m Model) renderStreamStatus() string {
	if m.loadErr != "" {
		return styleError.Render("✗ logs unavailable: " + m.loadErr)
	}
	if m.stored != nil {
		return theme.StyleDimmed.Render(fmt.Sprintf("◌ stored logs (%d lines)", len(m.stored)))
	}
	if m.sub == nil || m.sub.RunID() != m.run.ID {
		return theme.StyleDimmed.Render("◌ no stream")
	}

	switch m.sub.State() {
	case livelog.StateConnecting:
		return lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ connecting...")
	case livelog.StateOpen:
		return lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● streaming")
	case livelog.StateClosed:
		return theme.StyleDimmed.Render("◌ stream ended")
	case livelog.StateErrored:
		return styleError.Render("✗ stream lost (logs kept)")
	default:
		return theme.StyleDimmed.Render("◌ idle")
	}
}

// renderLog renders the bottom-anchored log window.
func (m Model) renderLog(panelW int) string {
	events := m.lines()
	if len(events) == 0 {
		return theme.StyleDimmed.Render("  No log lines yet.")
	}

	visible := m.height - headerLines
	if visible < 3 {
		visible = 3
	}

	end := len(events) - m.offset
	if end > len(events) {
		end = len(events)
	}
	if end < 0 {
		end = 0
	}
	start := end - visible
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, end-start)
	for _, e := range events[start:end] {
		lines = append(lines, renderLine(e, panelW-4))
	}
	return strings.Join(lines, "\n")
}

// renderLine formats one log entry: timestamp, level, message.
func renderLine(e livelog.Event, width int) string {
	ts := e.TS
	if len(ts) > 23 {
		ts = ts[:23]
	}
	tsStr := theme.StyleDimmed.Render(ts)

	level := e.Level
	if level == "" {
		level = "info"
	}
	levelStr := lipgloss.NewStyle().
		Foreground(theme.LevelColor(level)).
		Width(6).
		Render(level)

	msg := e.Message
	if maxMsg := width - len(ts) - 8; maxMsg > 10 && len(msg) > maxMsg {
		msg = msg[:maxMsg-1] + "…"
	}

	return fmt.Sprintf("%s %s %s", tsStr, levelStr, msg)
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		h := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm ago", h, mins)
	}
}

// FetchLogs loads stored logs for a finished run.
func FetchLogs(c *api.Client, runID string) tea.Cmd {
	return func() tea.Msg {
		logs, err := c.GetRunLogs(context.Background(), runID)
		if err != nil {
			return LogsLoadedMsg{RunID: runID, Err: err}
		}
		return LogsLoadedMsg{RunID: runID, Logs: logs}
	}
}
