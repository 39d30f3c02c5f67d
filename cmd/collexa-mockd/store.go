package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/collexa/console/internal/api"
)

// newID mints a readable entity id: a short kind tag plus the head of
// a UUID, the same shape the platform uses.
func newID(kind string) string {
	return kind + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Store holds the whole mock platform state in memory. Values are
// copied in and out under the lock; handlers and the runner never
// share pointers with it.
type Store struct {
	mu         sync.RWMutex
	agents     map[string]api.Agent
	runs       map[string]api.Run
	logs       map[string][]api.LogEntry
	keys       map[string]api.APIKey
	members    map[string]api.Member
	onboarding api.Onboarding
	sub        api.Subscription
	usage      api.Usage
	user       api.User
}

func NewStore() *Store {
	return &Store{
		agents:  make(map[string]api.Agent),
		runs:    make(map[string]api.Run),
		logs:    make(map[string][]api.LogEntry),
		keys:    make(map[string]api.APIKey),
		members: make(map[string]api.Member),
	}
}

// --- agents ---

func (s *Store) Agents() []api.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) Agent(id string) (api.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	return a, ok
}

func (s *Store) PutAgent(a api.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
}

func (s *Store) DeleteAgent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return false
	}
	delete(s.agents, id)
	return true
}

// RecordRunStarted bumps the agent-side run counters when a run
// leaves the queue.
func (s *Store) RecordRunStarted(agentID string, at time.Time) (api.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return api.Agent{}, false
	}
	a.RunCount++
	a.LastRunAt = &at
	a.UpdatedAt = at
	s.agents[agentID] = a
	return a, true
}

// --- runs ---

func (s *Store) Runs(agentID string) []api.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if agentID != "" && r.AgentID != agentID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (s *Store) Run(id string) (api.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

func (s *Store) PutRun(r api.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
}

func (s *Store) AppendLog(runID string, entry api.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[runID] = append(s.logs[runID], entry)
}

func (s *Store) Logs(runID string) []api.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.logs[runID]
	out := make([]api.LogEntry, len(entries))
	copy(out, entries)
	return out
}

// Snapshot returns the feed's initial payload: every run and agent.
func (s *Store) Snapshot() ([]api.Run, []api.Agent) {
	return s.Runs(""), s.Agents()
}

// --- billing ---

func (s *Store) Subscription() api.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sub
}

func (s *Store) Usage() api.Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// AddUsage charges a completed run against the current period.
func (s *Store) AddUsage(runs int, tokens int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Runs += runs
	s.usage.Tokens += tokens
}

// --- keys ---

func (s *Store) Keys() []api.APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) PutKey(k api.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.ID] = k
}

func (s *Store) DeleteKey(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return false
	}
	delete(s.keys, id)
	return true
}

// --- team ---

func (s *Store) Members() []api.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := out[i].Role == api.RoleOwner, out[j].Role == api.RoleOwner
		if oi != oj {
			return oi
		}
		return out[i].Email < out[j].Email
	})
	return out
}

func (s *Store) PutMember(m api.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
}

// RemoveMember deletes a member or revokes an invite. The owner is
// immutable; attempting to remove them reports a conflict.
func (s *Store) RemoveMember(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return errNotFound
	}
	if m.Role == api.RoleOwner {
		return errOwnerImmutable
	}
	delete(s.members, id)
	return nil
}

var (
	errNotFound       = fmt.Errorf("not found")
	errOwnerImmutable = fmt.Errorf("the team owner cannot be removed")
)

// --- onboarding ---

func (s *Store) Onboarding() api.Onboarding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.onboarding
	out.Steps = make([]api.OnboardingStep, len(s.onboarding.Steps))
	copy(out.Steps, s.onboarding.Steps)
	return out
}

func (s *Store) CompleteOnboardingStep(stepID string) (api.Onboarding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	complete := true
	for i, step := range s.onboarding.Steps {
		if step.ID == stepID {
			s.onboarding.Steps[i].Done = true
			found = true
		}
		if !s.onboarding.Steps[i].Done {
			complete = false
		}
	}
	s.onboarding.Complete = complete
	if !found {
		return api.Onboarding{}, false
	}
	out := s.onboarding
	out.Steps = make([]api.OnboardingStep, len(s.onboarding.Steps))
	copy(out.Steps, s.onboarding.Steps)
	return out, true
}

// --- identity ---

func (s *Store) User() api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// --- seed ---

// Seed populates the store with a believable team: a handful of
// agents, a run history with a few still in flight, members, keys,
// and a pro subscription partway through its period.
func (s *Store) Seed(now time.Time) {
	teamID := newID("team")

	s.mu.Lock()
	s.user = api.User{
		ID:    newID("usr"),
		Email: "ada@acme.dev",
		Name:  "Ada Fairweather",
		Teams: []api.Team{
			{ID: teamID, Name: "Acme", Role: api.RoleOwner},
			{ID: newID("team"), Name: "Acme Labs", Role: api.RoleMember},
		},
	}

	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	s.sub = api.Subscription{
		Plan:     "pro",
		Status:   "active",
		Seats:    5,
		RenewsAt: timePtr(periodStart.AddDate(0, 1, 0)),
	}
	s.usage = api.Usage{
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 1, 0),
		Runs:        412,
		RunsLimit:   1000,
		Tokens:      3_800_000,
		TokensLimit: 10_000_000,
	}

	s.onboarding = api.Onboarding{
		Steps: []api.OnboardingStep{
			{ID: "create-agent", Title: "Create your first agent", Done: true},
			{ID: "trigger-run", Title: "Trigger a run", Done: true},
			{ID: "invite-teammate", Title: "Invite a teammate", Done: true},
			{ID: "create-key", Title: "Create an API key", Done: false},
			{ID: "connect-slack", Title: "Connect Slack", Done: false},
		},
	}

	owner := api.Member{
		ID: newID("mem"), Email: "ada@acme.dev", Name: "Ada Fairweather",
		Role: api.RoleOwner, JoinedAt: timePtr(now.AddDate(-1, -2, 0)),
	}
	admin := api.Member{
		ID: newID("mem"), Email: "kofi@acme.dev", Name: "Kofi Mensah",
		Role: api.RoleAdmin, JoinedAt: timePtr(now.AddDate(0, -7, 0)),
	}
	engineer := api.Member{
		ID: newID("mem"), Email: "june@acme.dev", Name: "June Park",
		Role: api.RoleMember, JoinedAt: timePtr(now.AddDate(0, -2, -12)),
	}
	invited := api.Member{
		ID: newID("mem"), Email: "sam@acme.dev",
		Role: api.RoleMember, Invited: true,
	}
	for _, m := range []api.Member{owner, admin, engineer, invited} {
		s.members[m.ID] = m
	}

	for _, k := range []api.APIKey{
		{
			ID: newID("key"), Name: "ci-deploys", Prefix: "clx_a1b9",
			CreatedBy: owner.ID, CreatedAt: now.AddDate(0, -3, 0),
			LastUsedAt: timePtr(now.Add(-2 * time.Hour)),
		},
		{
			ID: newID("key"), Name: "local-dev", Prefix: "clx_f44e",
			CreatedBy: engineer.ID, CreatedAt: now.AddDate(0, 0, -9),
		},
	} {
		s.keys[k.ID] = k
	}
	s.mu.Unlock()

	agents := []api.Agent{
		{
			Name: "deploy-watcher", Model: "claude-sonnet-4-5", Status: api.AgentActive,
			Description:  "Watches production deploys and reports anomalies to #ops.",
			Instructions: "# Mission\n\nWatch every production deploy. Compare error rates before and after; page the on-call when the delta exceeds 5%.\n\n## Tone\n\nTerse. Lead with the number.",
		},
		{
			Name: "issue-triager", Model: "claude-haiku-4-5", Status: api.AgentActive,
			Description:  "Labels and routes new GitHub issues.",
			Instructions: "Label each new issue by area and severity. Route crashes to the platform team, everything else by CODEOWNERS.",
		},
		{
			Name: "release-notes", Model: "gpt-5-mini", Status: api.AgentActive,
			Description: "Drafts release notes from merged pull requests every Friday.",
		},
		{
			Name: "standup-bot", Model: "gemini-2.5-flash", Status: api.AgentActive,
			Description:  "Collects yesterday's merged work into a morning summary.",
			Instructions: "Summarize merged PRs and closed issues from the last 24h in three bullets or fewer per person.",
		},
		{
			Name: "churn-predictor", Model: "gpt-5", Status: api.AgentActive,
			Description: "Scores accounts weekly for churn risk from product usage.",
		},
		{
			Name: "docs-gardener", Model: "claude-sonnet-4-5", Status: api.AgentPaused,
			Description: "Flags stale documentation pages. Paused during the docs migration.",
		},
	}
	for i := range agents {
		agents[i].ID = newID("ag")
		agents[i].Slug = agents[i].Name
		agents[i].CreatedAt = now.AddDate(0, 0, -40+i*3)
		agents[i].UpdatedAt = agents[i].CreatedAt
		s.PutAgent(agents[i])
	}

	// Historical runs, oldest first so the counters line up.
	type seedRun struct {
		agent   int
		status  api.RunStatus
		age     time.Duration
		dur     time.Duration
		tokens  int
		trigger string
		errMsg  string
	}
	seeds := []seedRun{
		{0, api.RunSucceeded, 26 * time.Hour, 4 * time.Minute, 48_210, "webhook", ""},
		{1, api.RunSucceeded, 22 * time.Hour, 90 * time.Second, 9_804, "webhook", ""},
		{2, api.RunSucceeded, 20 * time.Hour, 6 * time.Minute, 88_450, "schedule", ""},
		{1, api.RunFailed, 9 * time.Hour, 40 * time.Second, 3_112, "webhook", "github api: 502 from upstream"},
		{4, api.RunSucceeded, 7 * time.Hour, 11 * time.Minute, 154_002, "schedule", ""},
		{3, api.RunCanceled, 5 * time.Hour, 25 * time.Second, 1_530, "manual", ""},
		{0, api.RunSucceeded, 3 * time.Hour, 5 * time.Minute, 51_330, "webhook", ""},
	}
	for _, sr := range seeds {
		started := now.Add(-sr.age)
		ended := started.Add(sr.dur)
		run := api.Run{
			ID:         newID("run"),
			AgentID:    agents[sr.agent].ID,
			AgentName:  agents[sr.agent].Name,
			Status:     sr.status,
			Trigger:    sr.trigger,
			TokensUsed: sr.tokens,
			Error:      sr.errMsg,
			StartedAt:  started,
			EndedAt:    &ended,
		}
		if sr.status == api.RunSucceeded {
			run.Output = json.RawMessage(fmt.Sprintf(`{"summary":"completed %s run","items":%d}`, run.AgentName, sr.tokens/10_000))
		}
		s.PutRun(run)
		s.seedLogs(run, agents[sr.agent].Model)
		s.RecordRunStarted(run.AgentID, started)
	}

	// Two in flight, one still queued; the runner picks these up.
	for i, agent := range []int{0, 3} {
		started := now.Add(-time.Duration(2+i) * time.Minute)
		run := api.Run{
			ID:        newID("run"),
			AgentID:   agents[agent].ID,
			AgentName: agents[agent].Name,
			Status:    api.RunRunning,
			Trigger:   "webhook",
			StartedAt: started,
		}
		s.PutRun(run)
		s.RecordRunStarted(run.AgentID, started)
	}
	s.PutRun(api.Run{
		ID:        newID("run"),
		AgentID:   agents[4].ID,
		AgentName: agents[4].Name,
		Status:    api.RunQueued,
		Trigger:   "schedule",
		StartedAt: now,
	})
}

// seedLogs backfills a plausible transcript for a finished run.
func (s *Store) seedLogs(run api.Run, model string) {
	lines := []struct {
		level, msg string
	}{
		{"info", "resolving trigger payload"},
		{"debug", "loaded instructions (412 tokens)"},
		{"info", "calling " + model},
		{"info", "tool call: fetch_context"},
		{"info", "parsing model response"},
	}
	ts := run.StartedAt
	step := run.EndedAt.Sub(run.StartedAt) / time.Duration(len(lines)+1)
	for _, l := range lines {
		ts = ts.Add(step)
		s.AppendLog(run.ID, api.LogEntry{
			TS: ts.UTC().Format(time.RFC3339Nano), Level: l.level, Message: l.msg,
		})
	}
	if run.Error != "" {
		s.AppendLog(run.ID, api.LogEntry{
			TS: run.EndedAt.UTC().Format(time.RFC3339Nano), Level: "error", Message: run.Error,
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
