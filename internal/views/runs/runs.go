// Package runs provides a stats summary row and live run table for
// the Collexa console.
package runs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/theme"
)

// LoadedMsg is returned after fetching the run list from the platform.
type LoadedMsg struct {
	Runs []api.Run
	Err  error
}

// OpenMsg asks the parent app to open the run log overlay.
type OpenMsg struct {
	Run api.Run
}

// KeyMap holds the runs-view key bindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Refresh key.Binding
}

// DefaultKeyMap returns the default runs-view key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev run"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next run"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open run"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

// Model holds the runs view state.
type Model struct {
	client *api.Client
	keys   KeyMap

	runs    []api.Run
	cursor  int
	loading bool
	errMsg  string

	Width int
}

// New creates a runs model. It begins in the loading state.
func New(client *api.Client) Model {
	return Model{
		client:  client,
		keys:    DefaultKeyMap(),
		loading: true,
	}
}

// Init fetches the initial run list.
func (m Model) Init() tea.Cmd {
	return fetchRuns(m.client)
}

// SetRuns replaces the run list. The view keeps its own copy sorted
// newest first so callers need not pre-sort.
func (m *Model) SetRuns(runs []api.Run) {
	m.runs = make([]api.Run, len(runs))
	copy(m.runs, runs)
	m.sortRuns()
	m.clampCursor()
}

// ApplyRun upserts a single run, as delivered by the events feed.
func (m *Model) ApplyRun(run api.Run) {
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			m.sortRuns()
			return
		}
	}
	m.runs = append(m.runs, run)
	m.sortRuns()
}

// Runs returns the current run list, newest first.
func (m Model) Runs() []api.Run {
	return m.runs
}

// Selected returns the run under the cursor.
func (m Model) Selected() (api.Run, bool) {
	if m.cursor < 0 || m.cursor >= len(m.runs) {
		return api.Run{}, false
	}
	return m.runs[m.cursor], true
}

// Counts returns the number of running, queued, and finished runs.
func (m Model) Counts() (running, queued, done int) {
	for _, r := range m.runs {
		switch r.Status {
		case api.RunRunning:
			running++
		case api.RunQueued:
			queued++
		default:
			done++
		}
	}
	return running, queued, done
}

func (m *Model) sortRuns() {
	sort.Slice(m.runs, func(i, j int) bool {
		return m.runs[i].StartedAt.After(m.runs[j].StartedAt)
	})
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.runs) {
		m.cursor = len(m.runs) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Update handles messages for the runs view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.errMsg = msg.Err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.SetRuns(msg.Runs)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.runs)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Open):
		if run, ok := m.Selected(); ok {
			return m, func() tea.Msg { return OpenMsg{Run: run} }
		}

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, fetchRuns(m.client)
	}

	return m, nil
}

// View renders the full runs view: stats row + run table.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	sections := []string{
		m.renderStatsRow(width),
		m.renderTable(width),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderStatsRow shows aggregate counts in a single row.
func (m Model) renderStatsRow(width int) string {
	var running, queued, succeeded, failed int
	var totalTokens int

	for _, r := range m.runs {
		switch r.Status {
		case api.RunRunning:
			running++
		case api.RunQueued:
			queued++
		case api.RunSucceeded:
			succeeded++
		case api.RunFailed:
			failed++
		}
		totalTokens += r.TokensUsed
	}

	statStyle := lipgloss.NewStyle().Padding(0, 1)

	stats := []string{
		statStyle.Foreground(theme.ColorRunning).Render(
			fmt.Sprintf("Running: %d", running)),
		statStyle.Foreground(theme.ColorQueued).Render(
			fmt.Sprintf("Queued: %d", queued)),
		statStyle.Foreground(theme.ColorSucceeded).Render(
			fmt.Sprintf("Succeeded: %d", succeeded)),
		statStyle.Foreground(theme.ColorFailed).Render(
			fmt.Sprintf("Failed: %d", failed)),
		statStyle.Foreground(theme.ColorBright).Render(
			fmt.Sprintf("Tokens: %s", formatCount(totalTokens))),
	}

	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// renderTable renders the run table, newest first.
func (m Model) renderTable(width int) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).
		Render("  Runs")

	if m.loading {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  Loading runs..."),
		)
	}
	if m.errMsg != "" {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  "+m.errMsg),
		)
	}
	if len(m.runs) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No runs yet"),
		)
	}

	// Column widths (fixed layout).
	colStatus := 12
	colID := 10
	colAgent := 24
	colTrigger := 10
	colTokens := 8
	colDur := 9
	colAge := 10

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	brightStyle := lipgloss.NewStyle().Foreground(theme.ColorBright)

	tableHeader := fmt.Sprintf("    %-*s %-*s %-*s %-*s %*s %*s %*s",
		colStatus, "Status",
		colID, "Run",
		colAgent, "Agent",
		colTrigger, "Trigger",
		colTokens, "Tokens",
		colDur, "Duration",
		colAge, "Started",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", min(width-4, colStatus+colID+colAgent+colTrigger+colTokens+colDur+colAge+9))),
	}

	for i, r := range m.runs {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}

		statusStr := lipgloss.NewStyle().
			Foreground(theme.StatusColor(string(r.Status))).
			Width(colStatus).
			Render(theme.StatusGlyph(string(r.Status)) + " " + string(r.Status))

		idStr := dimStyle.Width(colID).Render(shortID(r.ID))

		agent := r.AgentName
		if agent == "" {
			agent = shortID(r.AgentID)
		}
		if len(agent) > colAgent-1 {
			agent = agent[:colAgent-2] + "…"
		}
		agentStyle := brightStyle
		if i == m.cursor {
			agentStyle = theme.StyleSelected
		}
		agentStr := agentStyle.Width(colAgent).Render(agent)

		trigStr := dimStyle.Width(colTrigger).Render(r.Trigger)

		tokStr := brightStyle.Width(colTokens).Align(lipgloss.Right).
			Render(formatCount(r.TokensUsed))

		durStr := dimStyle.Width(colDur).Align(lipgloss.Right).
			Render(formatDuration(r))

		ageStr := dimStyle.Width(colAge).Align(lipgloss.Right).
			Render(formatAge(r.StartedAt))

		line := fmt.Sprintf("%s  %s %s %s %s %s %s %s",
			cursor, statusStr, idStr, agentStr, trigStr, tokStr, durStr, ageStr)
		lines = append(lines, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// shortID returns a compact id label.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration formats the run's elapsed time. Runs still in flight
// measure against the wall clock.
func formatDuration(r api.Run) string {
	if r.StartedAt.IsZero() {
		return "-"
	}
	end := time.Now()
	if r.EndedAt != nil {
		end = *r.EndedAt
	} else if r.Status.Terminal() {
		return "-"
	}
	d := end.Sub(r.StartedAt)
	if d < 0 {
		d = 0
	}
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	case d >= time.Minute:
		return fmt.Sprintf("%.1fm", d.Minutes())
	default:
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
}

// formatAge formats how long ago a timestamp was.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return "just now"
	}
}

// formatCount formats large numbers with K/M suffixes.
func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func fetchRuns(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		list, err := c.ListRuns(context.Background(), "")
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{Runs: list.Runs}
	}
}
