// Package keys provides the API key panel: the key list with an
// inline create form and revocation.
package keys

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

// LoadedMsg is returned when the key list fetch completes.
type LoadedMsg struct {
	Keys []api.APIKey
	Err  error
}

// CreatedMsg carries a freshly minted key. The secret inside is shown
// once and never retrievable again.
type CreatedMsg struct {
	Key *api.CreatedKey
	Err error
}

// RevokedMsg is returned after a revoke call.
type RevokedMsg struct {
	ID  string
	Err error
}

// FetchCmd returns a command that fetches the key list.
func FetchCmd(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		keys, err := c.ListKeys(context.Background())
		return LoadedMsg{Keys: keys, Err: err}
	}
}

// Model holds the keys panel state.
type Model struct {
	client *api.Client

	keys      []api.APIKey
	cursor    int
	loading   bool
	fetchErr  string
	statusMsg string

	// creating shows the inline name form.
	creating bool
	name     textinput.Model

	// secret holds the one-time secret of the last created key until
	// dismissed.
	secret string

	width int
}

// New returns a Model in loading state.
func New(client *api.Client) Model {
	name := textinput.New()
	name.Placeholder = "key name"
	name.CharLimit = 64
	return Model{
		client:  client,
		loading: true,
		name:    name,
	}
}

// Init fetches the key list.
func (m Model) Init() tea.Cmd {
	return FetchCmd(m.client)
}

// SetWidth updates the rendering width.
func (m *Model) SetWidth(w int) {
	m.width = w
}

// Creating reports whether the create form has focus.
func (m Model) Creating() bool {
	return m.creating
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
		m.keys = msg.Keys
		m.clampCursor()
		return m, nil

	case CreatedMsg:
		if msg.Err != nil {
			m.statusMsg = "Create failed: " + msg.Err.Error()
			return m, nil
		}
		if msg.Key != nil {
			m.keys = append(m.keys, msg.Key.APIKey)
			m.secret = msg.Key.Secret
		}
		return m, nil

	case RevokedMsg:
		if msg.Err != nil {
			m.statusMsg = "Revoke failed: " + msg.Err.Error()
			return m, nil
		}
		for i := range m.keys {
			if m.keys[i].ID == msg.ID {
				m.keys = append(m.keys[:i], m.keys[i+1:]...)
				break
			}
		}
		m.clampCursor()
		m.statusMsg = "Key revoked"
		return m, nil

	case tea.KeyMsg:
		if m.creating {
			return m.updateCreateForm(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.keys) {
		m.cursor = len(m.keys) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	m.statusMsg = ""

	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.keys)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "c":
		m.creating = true
		m.secret = ""
		m.name.SetValue("")
		m.name.Focus()
		return m, textinput.Blink
	case "x":
		if m.cursor < len(m.keys) {
			return m, revokeKey(m.client, m.keys[m.cursor].ID)
		}
	case "esc":
		m.secret = ""
	case "r":
		m.loading = true
		m.secret = ""
		return m, FetchCmd(m.client)
	}
	return m, nil
}

func (m Model) updateCreateForm(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.creating = false
		m.name.Blur()
		return m, nil

	case "enter":
		name := strings.TrimSpace(m.name.Value())
		if name == "" {
			m.statusMsg = "Key name required"
			return m, nil
		}
		m.creating = false
		m.name.Blur()
		return m, createKey(m.client, name)

	default:
		var cmd tea.Cmd
		m.name, cmd = m.name.Update(msg)
		return m, cmd
	}
}

// View renders the keys panel.
func (m Model) View() string {
	w := m.width
	if w < 60 {
		w = 60
	}

	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).Render("  API Keys")
	b.WriteString(title + "\n")

	if m.loading {
		b.WriteString(theme.StyleDimmed.Render("  Loading keys..."))
		return b.String()
	}
	if m.fetchErr != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  Error: " + m.fetchErr))
		return b.String()
	}

	b.WriteString("\n")

	for i, k := range m.keys {
		cursor := "  "
		if i == m.cursor && !m.creating {
			cursor = "> "
		}

		nameStyle := lipgloss.NewStyle().Foreground(theme.ColorBright)
		if i == m.cursor && !m.creating {
			nameStyle = theme.StyleSelected
		}

		prefix := theme.StyleDimmed.Render(k.Prefix + "…")
		lastUsed := "never used"
		if k.LastUsedAt != nil {
			lastUsed = "used " + useAge(*k.LastUsedAt)
		}

		b.WriteString(fmt.Sprintf("%s%s  %s  %s\n",
			cursor,
			nameStyle.Render(fmt.Sprintf("%-24s", k.Name)),
			prefix,
			theme.StyleDimmed.Render(lastUsed)))
	}

	if len(m.keys) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  No API keys.") + "\n")
	}

	if m.creating {
		form := lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleHeader.Render("New API key"),
			"Name: "+m.name.View(),
		)
		b.WriteString("\n" + lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1).
			Render(form) + "\n")
	}

	if m.secret != "" {
		note := lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().Foreground(theme.ColorWarning).Bold(true).
				Render("Copy this secret now. It will not be shown again."),
			lipgloss.NewStyle().Foreground(theme.ColorBright).Render(m.secret),
		)
		b.WriteString("\n" + lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(theme.ColorWarning).
			Padding(0, 1).
			Render(note) + "\n")
	}

	if m.statusMsg != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("  "+m.statusMsg))
	}

	help := "  j/k: select  c: create  x: revoke  r: refresh"
	if m.creating {
		help = "  enter: create key  esc: cancel"
	} else if m.secret != "" {
		help = "  esc: dismiss secret"
	}
	b.WriteString("\n" + theme.StyleDimmed.Render(help))

	return b.String()
}

func useAge(t time.Time) string {
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

func createKey(c *api.Client, name string) tea.Cmd {
	return func() tea.Msg {
		key, err := c.CreateKey(context.Background(), name)
		return CreatedMsg{Key: key, Err: err}
	}
}

func revokeKey(c *api.Client, id string) tea.Cmd {
	return func() tea.Msg {
		return RevokedMsg{ID: id, Err: c.RevokeKey(context.Background(), id)}
	}
}
