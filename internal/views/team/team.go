// Package team provides the team members panel: the roster with an
// inline invite form, and the onboarding checklist.
package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/theme"
)

// LoadedMsg is returned when the members and onboarding fetch completes.
type LoadedMsg struct {
	Members    []api.Member
	Onboarding *api.Onboarding
	Err        error
}

// InviteResultMsg is returned after an invite call.
type InviteResultMsg struct {
	Member *api.Member
	Err    error
}

// RemoveResultMsg is returned after a remove call.
type RemoveResultMsg struct {
	ID  string
	Err error
}

// FetchCmd returns a command that fetches members and onboarding state.
func FetchCmd(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		members, err := c.ListMembers(context.Background())
		if err != nil {
			return LoadedMsg{Err: err}
		}
		ob, err := c.OnboardingStatus(context.Background())
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{Members: members, Onboarding: ob}
	}
}

// Model holds the team panel state.
type Model struct {
	client *api.Client

	members    []api.Member
	onboarding *api.Onboarding
	cursor     int
	loading    bool
	fetchErr   string
	statusMsg  string

	// inviting shows the inline invite form.
	inviting   bool
	inviteRole api.MemberRole
	email      textinput.Model

	width int
}

// New returns a Model in loading state.
func New(client *api.Client) Model {
	email := textinput.New()
	email.Placeholder = "email address"
	email.CharLimit = 128
	return Model{
		client:     client,
		loading:    true,
		inviteRole: api.RoleMember,
		email:      email,
	}
}

// Init fetches members and onboarding state.
func (m Model) Init() tea.Cmd {
	return FetchCmd(m.client)
}

// SetWidth updates the rendering width.
func (m *Model) SetWidth(w int) {
	m.width = w
}

// Inviting reports whether the invite form has focus.
func (m Model) Inviting() bool {
	return m.inviting
}

// ApplyLoaded stores fetched members and onboarding state.
func (m *Model) ApplyLoaded(msg LoadedMsg) {
	m.loading = false
	if msg.Err != nil {
		m.fetchErr = msg.Err.Error()
		return
	}
	m.fetchErr = ""
	m.members = msg.Members
	m.onboarding = msg.Onboarding
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.members) {
		m.cursor = len(m.members) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Update processes messages forwarded from the parent when this panel
// is active.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.ApplyLoaded(msg)
		return m, nil

	case InviteResultMsg:
		if msg.Err != nil {
			m.statusMsg = "Invite failed: " + msg.Err.Error()
			return m, nil
		}
		if msg.Member != nil {
			m.members = append(m.members, *msg.Member)
			m.statusMsg = "Invited " + msg.Member.Email
		}
		return m, nil

	case RemoveResultMsg:
		if msg.Err != nil {
			m.statusMsg = "Remove failed: " + msg.Err.Error()
			return m, nil
		}
		for i := range m.members {
			if m.members[i].ID == msg.ID {
				m.members = append(m.members[:i], m.members[i+1:]...)
				break
			}
		}
		m.clampCursor()
		m.statusMsg = "Member removed"
		return m, nil

	case tea.KeyMsg:
		if m.inviting {
			return m.updateInviteForm(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	m.statusMsg = ""

	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.members)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "i":
		m.inviting = true
		m.inviteRole = api.RoleMember
		m.email.SetValue("")
		m.email.Focus()
		return m, textinput.Blink
	case "x":
		if m.cursor < len(m.members) {
			member := m.members[m.cursor]
			if member.Role == api.RoleOwner {
				m.statusMsg = "Cannot remove the team owner"
				return m, nil
			}
			return m, removeMember(m.client, member.ID)
		}
	case "r":
		m.loading = true
		return m, FetchCmd(m.client)
	}
	return m, nil
}

func (m Model) updateInviteForm(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.inviting = false
		m.email.Blur()
		return m, nil

	case "tab":
		if m.inviteRole == api.RoleMember {
			m.inviteRole = api.RoleAdmin
		} else {
			m.inviteRole = api.RoleMember
		}
		return m, nil

	case "enter":
		email := strings.TrimSpace(m.email.Value())
		if email == "" || !strings.Contains(email, "@") {
			m.statusMsg = "Enter a valid email address"
			return m, nil
		}
		m.inviting = false
		m.email.Blur()
		return m, inviteMember(m.client, email, m.inviteRole)

	default:
		var cmd tea.Cmd
		m.email, cmd = m.email.Update(msg)
		return m, cmd
	}
}

// View renders the team panel.
func (m Model) View() string {
	w := m.width
	if w < 60 {
		w = 60
	}

	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).Render("  Team")
	b.WriteString(title + "\n")

	if m.loading {
		b.WriteString(theme.StyleDimmed.Render("  Loading team..."))
		return b.String()
	}
	if m.fetchErr != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  Error: " + m.fetchErr))
		return b.String()
	}

	b.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("  %d members", len(m.members))) + "\n\n")

	// Member rows: badge + name + email on the first line, role +
	// joined age dimmed on the second.
	for i, member := range m.members {
		cursor := "  "
		if i == m.cursor && !m.inviting {
			cursor = "> "
		}

		name := member.Name
		if name == "" {
			name = member.Email
		}
		nameStyle := lipgloss.NewStyle().Foreground(theme.ColorBright)
		if i == m.cursor && !m.inviting {
			nameStyle = theme.StyleSelected
		}

		nameLine := cursor + theme.RoleBadge(string(member.Role)) + " " + nameStyle.Render(name)
		if member.Invited {
			nameLine += " " + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("(invited)")
		}

		detail := string(member.Role)
		if member.Name != "" {
			detail += "  " + member.Email
		}
		if member.JoinedAt != nil {
			detail += "  joined " + joinAge(*member.JoinedAt)
		}
		descLine := theme.StyleDimmed.Render("      " + detail)

		b.WriteString(nameLine + "\n")
		b.WriteString(descLine + "\n")
	}

	if len(m.members) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  No members.") + "\n")
	}

	if m.inviting {
		b.WriteString("\n" + m.renderInviteForm())
	}

	if ob := m.onboarding; ob != nil && !ob.Complete {
		b.WriteString("\n" + m.renderOnboarding(ob, w))
	}

	if m.statusMsg != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("  "+m.statusMsg))
	}

	help := "  j/k: select  i: invite  x: remove  r: refresh"
	if m.inviting {
		help = "  tab: toggle role  enter: send invite  esc: cancel"
	}
	b.WriteString("\n\n" + theme.StyleDimmed.Render(help))

	return b.String()
}

func (m Model) renderInviteForm() string {
	roleStr := lipgloss.NewStyle().
		Foreground(theme.ColorBright).
		Bold(true).
		Render(string(m.inviteRole))

	form := lipgloss.JoinVertical(lipgloss.Left,
		theme.StyleHeader.Render("Invite member"),
		"Email: "+m.email.View(),
		"Role:  "+roleStr,
	)
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Padding(0, 1).
		Render(form)
}

func (m Model) renderOnboarding(ob *api.Onboarding, w int) string {
	var b strings.Builder
	done := 0
	for _, s := range ob.Steps {
		if s.Done {
			done++
		}
	}

	b.WriteString(theme.StyleHeader.Render("  Getting started") +
		theme.StyleDimmed.Render(fmt.Sprintf("  %d / %d", done, len(ob.Steps))) + "\n")

	for _, step := range ob.Steps {
		var glyph, title string
		if step.Done {
			glyph = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("✓")
			title = theme.StyleDimmed.Render(step.Title)
		} else {
			glyph = theme.StyleDimmed.Render("○")
			title = lipgloss.NewStyle().Foreground(theme.ColorBright).Render(step.Title)
		}
		b.WriteString("  " + glyph + " " + title + "\n")
	}

	return b.String()
}

func joinAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d >= 365*24*time.Hour:
		return fmt.Sprintf("%dy ago", int(d.Hours()/(365*24)))
	case d >= 30*24*time.Hour:
		return fmt.Sprintf("%dmo ago", int(d.Hours()/(30*24)))
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return "today"
	}
}

func inviteMember(c *api.Client, email string, role api.MemberRole) tea.Cmd {
	return func() tea.Msg {
		member, err := c.InviteMember(context.Background(), email, role)
		return InviteResultMsg{Member: member, Err: err}
	}
}

func removeMember(c *api.Client, id string) tea.Cmd {
	return func() tea.Msg {
		return RemoveResultMsg{ID: id, Err: c.RemoveMember(context.Background(), id)}
	}
}
