package billing

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/collexa/console/internal/api"
)

func loadedMsg() LoadedMsg {
	renews := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return LoadedMsg{
		Subscription: &api.Subscription{
			Plan:     "pro",
			Status:   "active",
			Seats:    5,
			RenewsAt: &renews,
		},
		Usage: &api.Usage{
			PeriodStart: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			Runs:        750,
			RunsLimit:   1000,
			Tokens:      2_000_000,
			TokensLimit: 10_000_000,
		},
	}
}

func TestLoadedSetsTargets(t *testing.T) {
	m := New(nil)
	m, cmd := m.Update(loadedMsg())

	if m.runs.target != 0.75 {
		t.Errorf("runs target = %v, want 0.75", m.runs.target)
	}
	if m.tokens.target != 0.2 {
		t.Errorf("tokens target = %v, want 0.2", m.tokens.target)
	}
	if cmd == nil {
		t.Error("loading usage should start the meter animation")
	}
}

func TestSpringConvergesAndSettles(t *testing.T) {
	m := New(nil)
	m, _ = m.Update(loadedMsg())

	var cmd tea.Cmd
	for i := 0; i < 600; i++ {
		m, cmd = m.Update(FrameMsg(time.Now()))
		if cmd == nil {
			break
		}
	}

	if cmd != nil {
		t.Fatal("animation never settled")
	}
	if diff := m.runs.pos - 0.75; diff > 0.01 || diff < -0.01 {
		t.Errorf("runs meter settled at %v, want ~0.75", m.runs.pos)
	}
	if diff := m.tokens.pos - 0.2; diff > 0.01 || diff < -0.01 {
		t.Errorf("tokens meter settled at %v, want ~0.2", m.tokens.pos)
	}
}

func TestViewShowsPlanAndUsage(t *testing.T) {
	m := New(nil)
	m.SetWidth(80)
	m, _ = m.Update(loadedMsg())

	v := m.View()
	if !strings.Contains(v, "PRO") {
		t.Error("view should show the plan name")
	}
	if !strings.Contains(v, "active") {
		t.Error("view should show the subscription status")
	}
	if !strings.Contains(v, "750 / 1.0K") {
		t.Error("view should show run usage against the limit")
	}
	if !strings.Contains(v, "2.0M / 10.0M") {
		t.Error("view should show token usage against the limit")
	}
}

func TestUnlimitedPlanShowsInfinity(t *testing.T) {
	msg := loadedMsg()
	msg.Usage.RunsLimit = 0

	m := New(nil)
	m.SetWidth(80)
	m, _ = m.Update(msg)

	if !strings.Contains(m.View(), "∞") {
		t.Error("zero limit should render as unlimited")
	}
	if m.runs.target != 0 {
		t.Errorf("unlimited meter should target 0, got %v", m.runs.target)
	}
}

func TestPortalLinkShown(t *testing.T) {
	m := New(nil)
	m.SetWidth(80)
	m, _ = m.Update(loadedMsg())

	m, _ = m.Update(PortalMsg{Link: &api.PortalLink{
		URL:       "https://billing.collexa.dev/p/abc123",
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}})

	if !strings.Contains(m.View(), "billing.collexa.dev/p/abc123") {
		t.Error("view should show the portal URL")
	}
}

func TestPortalError(t *testing.T) {
	m := New(nil)
	m.SetWidth(80)
	m, _ = m.Update(loadedMsg())
	m, _ = m.Update(PortalMsg{Err: errStub("stripe down")})

	if !strings.Contains(m.View(), "stripe down") {
		t.Error("view should surface the portal error")
	}
}

func TestTrialBannerShown(t *testing.T) {
	msg := loadedMsg()
	trialEnd := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	msg.Subscription.Status = "trialing"
	msg.Subscription.TrialEndsAt = &trialEnd

	m := New(nil)
	m.SetWidth(80)
	m, _ = m.Update(msg)

	if !strings.Contains(m.View(), "Trial ends Sep 10, 2026") {
		t.Error("view should show the trial end date")
	}
}

func TestLoadError(t *testing.T) {
	m := New(nil)
	m.SetWidth(80)
	m, _ = m.Update(LoadedMsg{Err: errStub("billing unreachable")})

	if !strings.Contains(m.View(), "billing unreachable") {
		t.Error("view should surface the load error")
	}
}

type errStub string

func (e errStub) Error() string { return string(e) }
