// Package app assembles the console's root Bubble Tea model: the tab
// bar, the per-tab views, and the two live feeds (the team-wide events
// socket and the per-run log stream).
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/events"
	"github.com/collexa/console/internal/livelog"
	"github.com/collexa/console/internal/theme"
	"github.com/collexa/console/internal/views/agents"
	"github.com/collexa/console/internal/views/billing"
	"github.com/collexa/console/internal/views/debug"
	apikeys "github.com/collexa/console/internal/views/keys"
	"github.com/collexa/console/internal/views/runlog"
	"github.com/collexa/console/internal/views/runs"
	"github.com/collexa/console/internal/views/status"
	"github.com/collexa/console/internal/views/team"
)

// Tab identifies the active main view.
type Tab int

const (
	TabRuns Tab = iota
	TabAgents
	TabTeam
	TabBilling
	TabKeys
	tabCount
)

var tabNames = [tabCount]string{"Runs", "Agents", "Team", "Billing", "Keys"}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayRunLog
	OverlayDebug
)

// Model is the root Bubble Tea model.
type Model struct {
	client *api.Client
	feed   *events.Client
	logs   *livelog.Subscriber
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	// Navigation.
	tab     Tab
	overlay Overlay

	// visited tracks tabs whose initial fetch has fired.
	visited [tabCount]bool

	// Sub-views.
	statusBar status.Model
	runs      runs.Model
	agents    agents.Model
	team      team.Model
	billing   billing.Model
	apikeys   apikeys.Model
	runlog    runlog.Model
	debug     debug.Model

	connected bool
}

// New creates the root model.
func New(client *api.Client, feed *events.Client) Model {
	ctx, cancel := context.WithCancel(context.Background())
	logs := livelog.New(livelog.Dial(client))
	return Model{
		client:    client,
		feed:      feed,
		logs:      logs,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		runs:      runs.New(client),
		agents:    agents.New(client),
		team:      team.New(client),
		billing:   billing.New(client),
		apikeys:   apikeys.New(client),
		runlog:    runlog.New(logs),
		debug:     debug.New(),
	}
}

// Init connects the events feed and fires the initial fetches for the
// default tab.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.feed.Listen(m.ctx),
		m.runs.Init(),
		m.agents.Init(),
		fetchIdentity(m.client),
	)
}

// identityMsg carries the authenticated user for the status bar.
type identityMsg struct {
	user *api.User
	err  error
}

func fetchIdentity(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		user, err := c.Whoami(context.Background())
		return identityMsg{user: user, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.runs.Width = msg.Width
		m.agents.SetSize(msg.Width, msg.Height)
		m.team.SetWidth(msg.Width)
		m.billing.SetWidth(min(msg.Width-4, 90))
		m.apikeys.SetWidth(msg.Width)
		m.runlog.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case identityMsg:
		if msg.err == nil && msg.user != nil && len(msg.user.Teams) > 0 {
			m.statusBar.Team = msg.user.Teams[0].Name
		}
		return m, nil

	// Events feed lifecycle. Each handler re-arms the read loop; the
	// feed reconnects on its own after a drop.
	case events.ConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.debug.Add("ws", "events feed connected")
		return m, m.feed.ReadLoop(m.ctx)

	case events.DisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.debug.Add("err", "events feed: "+msg.Err.Error())
		}
		return m, m.feed.Listen(m.ctx)

	case events.SnapshotMsg:
		m.runs.SetRuns(msg.Payload.Runs)
		for _, ag := range msg.Payload.Agents {
			m.agents.ApplyAgent(ag, false)
		}
		m.updateCounts()
		m.debug.Add("ws", fmt.Sprintf("snapshot: %d runs, %d agents",
			len(msg.Payload.Runs), len(msg.Payload.Agents)))
		return m, m.feed.ReadLoop(m.ctx)

	case events.RunMsg:
		m.runs.ApplyRun(msg.Payload.Run)
		m.runlog.SetStatus(msg.Payload.Run)
		m.updateCounts()
		return m, m.feed.ReadLoop(m.ctx)

	case events.AgentMsg:
		m.agents.ApplyAgent(msg.Payload.Agent, msg.Payload.Removed)
		return m, m.feed.ReadLoop(m.ctx)

	case events.ErrorMsg:
		m.debug.Add("err", string(msg.Raw))
		return m, m.feed.ReadLoop(m.ctx)

	// Per-run log stream. The pump is re-armed after every event and
	// stops for good on ClosedMsg: a lost stream is surfaced, never
	// silently redialed.
	case livelog.OpenedMsg:
		m.debug.Add("sse", "log stream open: "+msg.RunID)
		return m, m.logs.Wait()

	case livelog.EventMsg:
		return m, m.logs.Wait()

	case livelog.ClosedMsg:
		if msg.Err != nil {
			m.debug.Add("err", "log stream: "+msg.Err.Error())
		} else {
			m.debug.Add("sse", "log stream closed: "+msg.RunID)
		}
		return m, nil

	// Runs tab.
	case runs.LoadedMsg:
		m.runs, _ = m.runs.Update(msg)
		m.updateCounts()
		return m, nil

	case runs.OpenMsg:
		return m.openRun(msg.Run)

	// Agents tab.
	case agents.LoadedMsg, agents.DeletedMsg:
		var cmd tea.Cmd
		m.agents, cmd = m.agents.Update(msg)
		return m, cmd

	// Team tab.
	case team.LoadedMsg, team.InviteResultMsg, team.RemoveResultMsg:
		var cmd tea.Cmd
		m.team, cmd = m.team.Update(msg)
		return m, cmd

	// Billing tab. Frame messages keep the meters animating even if
	// the user switches away mid-spring.
	case billing.LoadedMsg, billing.PortalMsg, billing.FrameMsg:
		var cmd tea.Cmd
		m.billing, cmd = m.billing.Update(msg)
		if sub := m.billing.SubscriptionPlan(); sub != "" {
			m.statusBar.Plan = sub
		}
		return m, cmd

	// Keys tab.
	case apikeys.LoadedMsg, apikeys.CreatedMsg, apikeys.RevokedMsg:
		var cmd tea.Cmd
		m.apikeys, cmd = m.apikeys.Update(msg)
		return m, cmd

	// Run detail overlay.
	case runlog.LogsLoadedMsg:
		var cmd tea.Cmd
		m.runlog, cmd = m.runlog.Update(msg)
		return m, cmd
	}

	return m, nil
}

// openRun switches to the run detail overlay. Live runs subscribe to
// the log stream; finished runs load their stored logs instead.
func (m Model) openRun(run api.Run) (tea.Model, tea.Cmd) {
	m.overlay = OverlayRunLog
	m.runlog.SetRun(run)
	m.debug.Add("nav", "open run "+run.ID)

	if run.Status.Terminal() {
		return m, runlog.FetchLogs(m.client, run.ID)
	}
	return m, m.logs.Subscribe(m.ctx, run.ID)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Overlays capture input while open.
	if m.overlay != OverlayNone {
		return m.handleOverlayKey(msg)
	}

	// Text forms capture everything except the quit chord.
	if m.formFocused() {
		if msg.String() == "ctrl+c" {
			m.cancel()
			return m, tea.Quit
		}
		return m.forwardToTab(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		return m.switchTab((m.tab + 1) % tabCount)

	case key.Matches(msg, m.keys.ShiftTab):
		return m.switchTab((m.tab - 1 + tabCount) % tabCount)

	case key.Matches(msg, m.keys.Tab1):
		return m.switchTab(TabRuns)

	case key.Matches(msg, m.keys.Tab2):
		return m.switchTab(TabAgents)

	case key.Matches(msg, m.keys.Tab3):
		return m.switchTab(TabTeam)

	case key.Matches(msg, m.keys.Tab4):
		return m.switchTab(TabBilling)

	case key.Matches(msg, m.keys.Tab5):
		return m.switchTab(TabKeys)

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Resync):
		if err := m.feed.Resync(); err != nil {
			m.debug.Add("err", "resync: "+err.Error())
		} else {
			m.debug.Add("ws", "resync requested")
		}
		return m, nil
	}

	return m.forwardToTab(msg)
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.overlay {
	case OverlayRunLog:
		if key.Matches(msg, m.keys.Escape) {
			m.overlay = OverlayNone
			m.logs.Clear()
			return m, nil
		}
		if msg.String() == "r" {
			run := m.runlog.Run()
			if run.Status.Terminal() {
				return m, runlog.FetchLogs(m.client, run.ID)
			}
			// No-op while the stream is healthy; redials after a drop.
			return m, m.logs.Subscribe(m.ctx, run.ID)
		}
		var cmd tea.Cmd
		m.runlog, cmd = m.runlog.Update(msg)
		return m, cmd

	case OverlayDebug:
		switch msg.String() {
		case "esc", "d":
			m.overlay = OverlayNone
		case "j", "down":
			m.debug.ScrollDown(1)
		case "k", "up":
			m.debug.ScrollUp(1)
		}
		return m, nil
	}
	return m, nil
}

// formFocused reports whether a text input on the active tab owns the
// keyboard.
func (m Model) formFocused() bool {
	switch m.tab {
	case TabTeam:
		return m.team.Inviting()
	case TabKeys:
		return m.apikeys.Creating()
	}
	return false
}

// switchTab activates a tab, firing its initial fetch on first visit.
func (m Model) switchTab(tab Tab) (tea.Model, tea.Cmd) {
	m.tab = tab
	m.debug.Add("nav", "tab "+tabNames[tab])

	if m.visited[tab] {
		return m, nil
	}
	m.visited[tab] = true

	switch tab {
	case TabTeam:
		return m, m.team.Init()
	case TabBilling:
		return m, m.billing.Init()
	case TabKeys:
		return m, m.apikeys.Init()
	}
	return m, nil
}

// forwardToTab routes a key press to the active tab's view.
func (m Model) forwardToTab(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.tab {
	case TabRuns:
		m.runs, cmd = m.runs.Update(msg)
	case TabAgents:
		m.agents, cmd = m.agents.Update(msg)
	case TabTeam:
		m.team, cmd = m.team.Update(msg)
	case TabBilling:
		m.billing, cmd = m.billing.Update(msg)
	case TabKeys:
		m.apikeys, cmd = m.apikeys.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateCounts() {
	m.statusBar.SetCounts(m.runs.Counts())
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayRunLog:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.runlog.View())
	case OverlayDebug:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.debug.View(m.width, m.height))
	}

	sections := []string{
		m.statusBar.View(),
		m.renderTabBar(),
		m.activeView(),
		theme.StyleDimmed.Render("  tab/1-5:switch  d:debug  ctrl+r:resync  q:quit"),
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTabBar() string {
	tabs := make([]string, 0, tabCount)
	for i := Tab(0); i < tabCount; i++ {
		label := fmt.Sprintf("%d:%s", i+1, tabNames[i])
		if i == m.tab {
			tabs = append(tabs, lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorBright).
				Underline(true).
				Render(label))
		} else {
			tabs = append(tabs, theme.StyleDimmed.Render(label))
		}
	}
	return "  " + strings.Join(tabs, "  ")
}

func (m Model) activeView() string {
	switch m.tab {
	case TabAgents:
		return m.agents.View()
	case TabTeam:
		return m.team.View()
	case TabBilling:
		return m.billing.View()
	case TabKeys:
		return m.apikeys.View()
	default:
		return m.runs.View()
	}
}
