// Package agents provides the agent roster and the instructions
// detail overlay.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/theme"
)

// LoadedMsg is returned after fetching the agent roster.
type LoadedMsg struct {
	Agents []api.Agent
	Err    error
}

// DeletedMsg is returned after a delete call.
type DeletedMsg struct {
	ID  string
	Err error
}

// KeyMap holds the agents-view key bindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Detail  key.Binding
	Delete  key.Binding
	Refresh key.Binding
	Escape  key.Binding
}

// DefaultKeyMap returns the default agents-view key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev agent"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next agent"),
		),
		Detail: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "instructions"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "delete agent"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close detail"),
		),
	}
}

// Model holds the agents view state.
type Model struct {
	client *api.Client
	keys   KeyMap

	agents  []api.Agent
	cursor  int
	loading bool
	errMsg  string

	// showDetail renders the instructions overlay for the selected agent.
	showDetail bool

	// rendered caches glamour output per agent so scrolling the roster
	// does not re-render markdown.
	rendered map[string]string

	width  int
	height int
}

// New creates an agents model. It begins in the loading state.
func New(client *api.Client) Model {
	return Model{
		client:   client,
		keys:     DefaultKeyMap(),
		loading:  true,
		rendered: make(map[string]string),
	}
}

// Init fetches the initial roster.
func (m Model) Init() tea.Cmd {
	return fetchAgents(m.client)
}

// SetSize updates the available rendering area.
func (m *Model) SetSize(width, height int) {
	if width != m.width {
		m.rendered = make(map[string]string)
	}
	m.width = width
	m.height = height
}

// Agents returns the current roster.
func (m Model) Agents() []api.Agent {
	return m.agents
}

// Selected returns the agent under the cursor.
func (m Model) Selected() (api.Agent, bool) {
	if m.cursor < 0 || m.cursor >= len(m.agents) {
		return api.Agent{}, false
	}
	return m.agents[m.cursor], true
}

// DetailOpen reports whether the instructions overlay is showing.
func (m Model) DetailOpen() bool {
	return m.showDetail
}

// ApplyAgent upserts or removes an agent, as delivered by the events feed.
func (m *Model) ApplyAgent(agent api.Agent, removed bool) {
	delete(m.rendered, agent.ID)
	for i := range m.agents {
		if m.agents[i].ID == agent.ID {
			if removed {
				m.agents = append(m.agents[:i], m.agents[i+1:]...)
				m.clampCursor()
			} else {
				m.agents[i] = agent
			}
			return
		}
	}
	if !removed {
		m.agents = append(m.agents, agent)
	}
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.agents) {
		m.cursor = len(m.agents) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Update handles messages for the agents view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.errMsg = msg.Err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.agents = msg.Agents
		m.rendered = make(map[string]string)
		m.clampCursor()
		return m, nil

	case DeletedMsg:
		if msg.Err != nil {
			m.errMsg = msg.Err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.ApplyAgent(api.Agent{ID: msg.ID}, true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.showDetail {
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Detail) {
			m.showDetail = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.agents)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Detail):
		if _, ok := m.Selected(); ok {
			m.showDetail = true
		}

	case key.Matches(msg, m.keys.Delete):
		if ag, ok := m.Selected(); ok {
			return m, deleteAgent(m.client, ag.ID)
		}

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, fetchAgents(m.client)
	}

	return m, nil
}

// View renders the roster, or the instructions overlay when open.
func (m Model) View() string {
	if m.showDetail {
		if ag, ok := m.Selected(); ok {
			return m.renderDetail(ag)
		}
	}
	return m.renderRoster()
}

func (m Model) renderRoster() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).
		Render("  Agents")

	if m.loading {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  Loading agents..."),
		)
	}
	if m.errMsg != "" {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  "+m.errMsg),
		)
	}
	if len(m.agents) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No agents configured"),
		)
	}

	colName := 24
	colModel := 20
	colStatus := 10
	colRuns := 6
	colLast := 10

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)

	tableHeader := fmt.Sprintf("    %-*s %-*s %-*s %*s %*s  %s",
		colName, "Name",
		colModel, "Model",
		colStatus, "Status",
		colRuns, "Runs",
		colLast, "Last Run",
		"Description",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
	}

	for i, ag := range m.agents {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}

		name := ag.Name
		if len(name) > colName-1 {
			name = name[:colName-2] + "…"
		}
		nameStyle := lipgloss.NewStyle().Foreground(theme.ColorBright)
		if i == m.cursor {
			nameStyle = theme.StyleSelected
		}
		nameStr := nameStyle.Width(colName).Render(name)

		modelStr := lipgloss.NewStyle().
			Foreground(theme.ModelColor(ag.Model)).
			Width(colModel).
			Render(api.ModelLabel(ag.Model))

		statusStr := lipgloss.NewStyle().
			Foreground(agentStatusColor(ag.Status)).
			Width(colStatus).
			Render(agentStatusGlyph(ag.Status) + " " + string(ag.Status))

		runsStr := dimStyle.Width(colRuns).Align(lipgloss.Right).
			Render(fmt.Sprintf("%d", ag.RunCount))

		lastStr := dimStyle.Width(colLast).Align(lipgloss.Right).
			Render(lastRunAge(ag.LastRunAt))

		desc := ag.Description
		if maxDesc := m.width - 85; maxDesc > 10 && len(desc) > maxDesc {
			desc = desc[:maxDesc-1] + "…"
		}
		descStr := dimStyle.Render(desc)

		lines = append(lines, fmt.Sprintf("%s  %s %s %s %s %s  %s",
			cursor, nameStr, modelStr, statusStr, runsStr, lastStr, descStr))
	}

	lines = append(lines, "",
		theme.StyleDimmed.Render("  enter: instructions  x: delete  r: refresh"))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderDetail shows the agent's instructions as rendered markdown.
func (m Model) renderDetail(ag api.Agent) string {
	panelW := m.width - 4
	if panelW < 60 {
		panelW = 60
	}

	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render("Agent: "+ag.Name) + "\n")
	b.WriteString(strings.Repeat("─", panelW-4) + "\n")
	b.WriteString(theme.StyleDimmed.Render("Model: ") +
		lipgloss.NewStyle().Foreground(theme.ModelColor(ag.Model)).Render(api.ModelLabel(ag.Model)) + "   " +
		theme.StyleDimmed.Render("Status: ") +
		lipgloss.NewStyle().Foreground(agentStatusColor(ag.Status)).Render(string(ag.Status)) + "\n")
	if ag.Description != "" {
		b.WriteString(theme.StyleDimmed.Render(ag.Description) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(m.instructions(ag, panelW-4))
	b.WriteString("\n" + theme.StyleDimmed.Render("[esc] close"))

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Padding(0, 1).
		Width(panelW).
		Render(b.String())
}

// instructions returns the agent's instructions rendered as terminal
// markdown, cached per agent. Render failures fall back to raw text.
func (m Model) instructions(ag api.Agent, width int) string {
	if ag.Instructions == "" {
		return theme.StyleDimmed.Render("No instructions.")
	}
	if out, ok := m.rendered[ag.ID]; ok {
		return out
	}

	out := ag.Instructions
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		if md, rerr := r.Render(ag.Instructions); rerr == nil {
			out = strings.TrimRight(md, "\n")
		}
	}
	m.rendered[ag.ID] = out
	return out
}

func agentStatusColor(s api.AgentStatus) lipgloss.Color {
	switch s {
	case api.AgentActive:
		return theme.ColorHealthy
	case api.AgentPaused:
		return theme.ColorWarning
	case api.AgentArchived:
		return theme.ColorDimmed
	default:
		return theme.ColorDefault
	}
}

func agentStatusGlyph(s api.AgentStatus) string {
	switch s {
	case api.AgentActive:
		return "●"
	case api.AgentPaused:
		return "◌"
	case api.AgentArchived:
		return "○"
	default:
		return "·"
	}
}

func lastRunAge(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	d := time.Since(*t)
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

func fetchAgents(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		list, err := c.ListAgents(context.Background())
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{Agents: list.Agents}
	}
}

func deleteAgent(c *api.Client, id string) tea.Cmd {
	return func() tea.Msg {
		if err := c.DeleteAgent(context.Background(), id); err != nil {
			return DeletedMsg{ID: id, Err: err}
		}
		return DeletedMsg{ID: id}
	}
}
