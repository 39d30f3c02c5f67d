package runs

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/collexa/console/internal/api"
)

func run(id, agent string, status api.RunStatus, started time.Time) api.Run {
	return api.Run{
		ID:        id,
		AgentID:   "ag-" + id,
		AgentName: agent,
		Status:    status,
		Trigger:   "manual",
		StartedAt: started,
	}
}

func TestSetRunsSortsNewestFirst(t *testing.T) {
	now := time.Now()
	m := New(nil)
	m.SetRuns([]api.Run{
		run("old", "alpha", api.RunSucceeded, now.Add(-2*time.Hour)),
		run("new", "beta", api.RunRunning, now),
		run("mid", "gamma", api.RunQueued, now.Add(-time.Hour)),
	})

	got := m.Runs()
	if len(got) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(got))
	}
	if got[0].ID != "new" || got[1].ID != "mid" || got[2].ID != "old" {
		t.Errorf("wrong order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestApplyRunUpdatesExisting(t *testing.T) {
	now := time.Now()
	m := New(nil)
	m.SetRuns([]api.Run{run("r1", "alpha", api.RunRunning, now)})

	updated := run("r1", "alpha", api.RunSucceeded, now)
	m.ApplyRun(updated)

	got := m.Runs()
	if len(got) != 1 {
		t.Fatalf("expected 1 run after upsert, got %d", len(got))
	}
	if got[0].Status != api.RunSucceeded {
		t.Errorf("expected status succeeded, got %s", got[0].Status)
	}
}

func TestApplyRunInsertsNew(t *testing.T) {
	now := time.Now()
	m := New(nil)
	m.SetRuns([]api.Run{run("r1", "alpha", api.RunSucceeded, now.Add(-time.Minute))})

	m.ApplyRun(run("r2", "beta", api.RunRunning, now))

	got := m.Runs()
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	if got[0].ID != "r2" {
		t.Errorf("new run should sort first, got %s", got[0].ID)
	}
}

func TestCounts(t *testing.T) {
	now := time.Now()
	m := New(nil)
	m.SetRuns([]api.Run{
		run("r1", "a", api.RunRunning, now),
		run("r2", "b", api.RunRunning, now),
		run("r3", "c", api.RunQueued, now),
		run("r4", "d", api.RunSucceeded, now),
		run("r5", "e", api.RunFailed, now),
		run("r6", "f", api.RunCanceled, now),
	})

	running, queued, done := m.Counts()
	if running != 2 || queued != 1 || done != 3 {
		t.Errorf("Counts() = %d, %d, %d, want 2, 1, 3", running, queued, done)
	}
}

func TestCursorNavigation(t *testing.T) {
	now := time.Now()
	m := New(nil)
	m.loading = false
	m.SetRuns([]api.Run{
		run("r1", "a", api.RunRunning, now),
		run("r2", "b", api.RunQueued, now.Add(-time.Minute)),
	})

	sel, ok := m.Selected()
	if !ok || sel.ID != "r1" {
		t.Fatalf("expected r1 selected, got %v %v", sel.ID, ok)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	sel, _ = m.Selected()
	if sel.ID != "r2" {
		t.Errorf("expected r2 after j, got %s", sel.ID)
	}

	// Down at the bottom stays put.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	sel, _ = m.Selected()
	if sel.ID != "r2" {
		t.Errorf("expected r2 at bottom, got %s", sel.ID)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	sel, _ = m.Selected()
	if sel.ID != "r1" {
		t.Errorf("expected r1 after k, got %s", sel.ID)
	}
}

func TestOpenEmitsMsg(t *testing.T) {
	now := time.Now()
	m := New(nil)
	m.loading = false
	m.SetRuns([]api.Run{run("r1", "alpha", api.RunRunning, now)})

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should produce a command")
	}
	msg, ok := cmd().(OpenMsg)
	if !ok {
		t.Fatalf("expected OpenMsg, got %T", cmd())
	}
	if msg.Run.ID != "r1" {
		t.Errorf("expected run r1, got %s", msg.Run.ID)
	}
}

func TestOpenWithoutRunsIsNoop(t *testing.T) {
	m := New(nil)
	m.loading = false

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter with no runs should not produce a command")
	}
}

func TestLoadedMsgError(t *testing.T) {
	m := New(nil)
	m, _ = m.Update(LoadedMsg{Err: errFake})

	m.Width = 80
	v := m.View()
	if !strings.Contains(v, "fake failure") {
		t.Error("view should show the load error")
	}
}

func TestViewShowsRuns(t *testing.T) {
	now := time.Now()
	m := New(nil)
	m.loading = false
	m.Width = 120
	m.SetRuns([]api.Run{
		run("run-abc123", "deploy-watcher", api.RunRunning, now),
		run("run-def456", "issue-triager", api.RunFailed, now.Add(-time.Minute)),
	})

	v := m.View()
	if !strings.Contains(v, "deploy-watcher") {
		t.Error("view should contain agent name 'deploy-watcher'")
	}
	if !strings.Contains(v, "issue-triager") {
		t.Error("view should contain agent name 'issue-triager'")
	}
	if !strings.Contains(v, "running") {
		t.Error("view should contain status 'running'")
	}
	if !strings.Contains(v, "Running: 1") {
		t.Error("stats row should count 1 running")
	}
	if !strings.Contains(v, "Failed: 1") {
		t.Error("stats row should count 1 failed")
	}
}

func TestViewEmpty(t *testing.T) {
	m := New(nil)
	m.loading = false
	m.Width = 80
	v := m.View()
	if !strings.Contains(v, "No runs yet") {
		t.Error("empty view should show 'No runs yet'")
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2_300_000, "2.3M"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.n); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

type fakeErr struct{}

func (fakeErr) Error() string { return "fake failure" }

var errFake = fakeErr{}
