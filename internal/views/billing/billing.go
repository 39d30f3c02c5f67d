// Package billing provides the subscription panel: plan summary and
// spring-animated usage meters for the current period.
package billing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/theme"
)

const (
	meterWidth = 30
	fps        = 60

	springFrequency = 7.0
	springDamping   = 0.8
)

// LoadedMsg is returned when the subscription and usage fetch completes.
type LoadedMsg struct {
	Subscription *api.Subscription
	Usage        *api.Usage
	Err          error
}

// PortalMsg carries a freshly minted billing portal link.
type PortalMsg struct {
	Link *api.PortalLink
	Err  error
}

// FrameMsg advances the meter animation by one frame.
type FrameMsg time.Time

// FetchCmd returns a command that fetches subscription and usage.
func FetchCmd(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		sub, err := c.GetSubscription(context.Background())
		if err != nil {
			return LoadedMsg{Err: err}
		}
		usage, err := c.GetUsage(context.Background())
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{Subscription: sub, Usage: usage}
	}
}

// meter is one spring-animated gauge.
type meter struct {
	pos    float64
	vel    float64
	target float64
}

func (g *meter) settled() bool {
	return math.Abs(g.pos-g.target) < 0.001 && math.Abs(g.vel) < 0.001
}

// Model holds the billing panel state.
type Model struct {
	client *api.Client
	spring harmonica.Spring

	sub   *api.Subscription
	usage *api.Usage

	runs   meter
	tokens meter

	portal    *api.PortalLink
	loading   bool
	fetchErr  string
	statusMsg string

	width int
}

// New returns a Model in loading state.
func New(client *api.Client) Model {
	return Model{
		client:  client,
		spring:  harmonica.NewSpring(harmonica.FPS(fps), springFrequency, springDamping),
		loading: true,
	}
}

// Init fetches subscription and usage.
func (m Model) Init() tea.Cmd {
	return FetchCmd(m.client)
}

// SetWidth updates the rendering width.
func (m *Model) SetWidth(w int) {
	m.width = w
}

// SubscriptionPlan returns the loaded plan name, or "" before the
// first fetch completes.
func (m Model) SubscriptionPlan() string {
	if m.sub == nil {
		return ""
	}
	return m.sub.Plan
}

func animate() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

// Update processes messages forwarded from the parent when this panel
// is active.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.fetchErr = msg.Err.Error()
			return m, nil
		}
		m.fetchErr = ""
		m.sub = msg.Subscription
		m.usage = msg.Usage
		m.runs.target = fraction(m.usage.Runs, int64(m.usage.RunsLimit))
		m.tokens.target = fraction64(m.usage.Tokens, m.usage.TokensLimit)
		return m, animate()

	case FrameMsg:
		m.runs.pos, m.runs.vel = m.spring.Update(m.runs.pos, m.runs.vel, m.runs.target)
		m.tokens.pos, m.tokens.vel = m.spring.Update(m.tokens.pos, m.tokens.vel, m.tokens.target)
		if m.runs.settled() && m.tokens.settled() {
			return m, nil
		}
		return m, animate()

	case PortalMsg:
		if msg.Err != nil {
			m.statusMsg = "Portal error: " + msg.Err.Error()
			return m, nil
		}
		m.portal = msg.Link
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "p":
		return m, openPortal(m.client)
	case "r":
		m.loading = true
		m.portal = nil
		return m, FetchCmd(m.client)
	}
	return m, nil
}

// View renders the billing panel.
func (m Model) View() string {
	w := m.width
	if w < 60 {
		w = 60
	}
	inner := w - 6

	var sb strings.Builder

	sb.WriteString(theme.StyleHeader.Render("BILLING"))
	if m.sub != nil {
		sb.WriteString("  ")
		sb.WriteString(lipgloss.NewStyle().
			Foreground(theme.PlanColor(m.sub.Plan)).
			Bold(true).
			Render(strings.ToUpper(m.sub.Plan)))
	}
	sb.WriteString("\n\n")

	if m.loading {
		sb.WriteString(theme.StyleDimmed.Render("Loading billing..."))
		return m.frame(w, sb.String())
	}
	if m.fetchErr != "" {
		sb.WriteString(lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("Error: " + m.fetchErr))
		return m.frame(w, sb.String())
	}

	if m.sub != nil {
		sb.WriteString(m.renderPlan())
		sb.WriteString("\n\n")
	}

	if m.usage != nil {
		sb.WriteString(theme.StyleHeader.Render("Usage this period"))
		sb.WriteString("\n")
		sb.WriteString(renderMeter("Runs", m.runs.pos,
			fmt.Sprintf("%d / %s", m.usage.Runs, limitLabel(int64(m.usage.RunsLimit))), inner))
		sb.WriteString("\n")
		sb.WriteString(renderMeter("Tokens", m.tokens.pos,
			fmt.Sprintf("%s / %s", formatTokens(m.usage.Tokens), limitLabel(m.usage.TokensLimit)), inner))
		sb.WriteString("\n")
		sb.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("Period %s – %s",
			m.usage.PeriodStart.Format("Jan 2"), m.usage.PeriodEnd.Format("Jan 2"))))
		sb.WriteString("\n\n")
	}

	if m.portal != nil {
		sb.WriteString(theme.StyleHeader.Render("Billing portal"))
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Foreground(theme.ColorBright).Render(m.portal.URL))
		sb.WriteString("\n")
		sb.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("expires %s", m.portal.ExpiresAt.Format("15:04"))))
		sb.WriteString("\n\n")
	}

	if m.statusMsg != "" {
		sb.WriteString(lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(m.statusMsg))
		sb.WriteString("\n\n")
	}

	sb.WriteString(theme.StyleDimmed.Render("[p] billing portal  [r] refresh"))

	return m.frame(w, sb.String())
}

func (m Model) frame(w int, inner string) string {
	return lipgloss.NewStyle().
		Width(w).
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(inner)
}

func (m Model) renderPlan() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s",
		theme.StyleDimmed.Render("Status:"),
		lipgloss.NewStyle().Foreground(statusColor(m.sub.Status)).Render(m.sub.Status)))
	b.WriteString(fmt.Sprintf("   %s %d",
		theme.StyleDimmed.Render("Seats:"), m.sub.Seats))
	if m.sub.RenewsAt != nil {
		b.WriteString(fmt.Sprintf("   %s %s",
			theme.StyleDimmed.Render("Renews:"), m.sub.RenewsAt.Format("Jan 2, 2006")))
	}
	if m.sub.TrialEndsAt != nil {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(theme.ColorWarning).
			Render(fmt.Sprintf("Trial ends %s", m.sub.TrialEndsAt.Format("Jan 2, 2006"))))
	}
	return b.String()
}

// renderMeter renders one animated gauge row.
func renderMeter(label string, pos float64, detail string, width int) string {
	barWidth := meterWidth
	if width/2 < barWidth {
		barWidth = width / 2
	}
	if barWidth < 10 {
		barWidth = 10
	}

	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	fill := int(pos * float64(barWidth))

	color := theme.UsageColor(pos)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", fill)) +
		lipgloss.NewStyle().Foreground(theme.ColorDimmed).Render(strings.Repeat("░", barWidth-fill))

	labelStr := theme.StyleDimmed.Render(fmt.Sprintf("%-7s", label))
	pct := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%3.0f%%", pos*100))

	return fmt.Sprintf("%s [%s] %s  %s", labelStr, bar, pct, theme.StyleDimmed.Render(detail))
}

func statusColor(status string) lipgloss.Color {
	switch status {
	case "active", "trialing":
		return theme.ColorHealthy
	case "past_due":
		return theme.ColorWarning
	case "canceled":
		return theme.ColorDanger
	default:
		return theme.ColorDimmed
	}
}

func limitLabel(limit int64) string {
	if limit <= 0 {
		return "∞"
	}
	return formatTokens(limit)
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func fraction(used int, limit int64) float64 {
	return fraction64(int64(used), limit)
}

func fraction64(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	f := float64(used) / float64(limit)
	if f > 1 {
		f = 1
	}
	return f
}

func openPortal(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		link, err := c.CreateBillingPortal(context.Background())
		return PortalMsg{Link: link, Err: err}
	}
}
