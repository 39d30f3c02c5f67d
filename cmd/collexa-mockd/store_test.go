package main

import (
	"testing"
	"time"

	"github.com/collexa/console/internal/api"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.Seed(time.Now())
	return s
}

func TestSeedShape(t *testing.T) {
	s := seeded(t)

	if got := len(s.Agents()); got != 6 {
		t.Errorf("agents = %d, want 6", got)
	}
	if got := len(s.Runs("")); got != 10 {
		t.Errorf("runs = %d, want 10", got)
	}
	if got := len(s.Members()); got != 4 {
		t.Errorf("members = %d, want 4", got)
	}
	if got := len(s.Keys()); got != 2 {
		t.Errorf("keys = %d, want 2", got)
	}
	if s.Onboarding().Complete {
		t.Error("seeded onboarding should have pending steps")
	}
	if s.User().Email != "ada@acme.dev" {
		t.Errorf("user = %q", s.User().Email)
	}
}

func TestRunsSortedNewestFirst(t *testing.T) {
	s := seeded(t)
	runs := s.Runs("")
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Fatalf("runs[%d] is newer than runs[%d]", i, i-1)
		}
	}
}

func TestRunsFilterByAgent(t *testing.T) {
	s := seeded(t)
	agent := s.Agents()[0]
	for _, r := range s.Runs(agent.ID) {
		if r.AgentID != agent.ID {
			t.Errorf("run %s belongs to %s", r.ID, r.AgentID)
		}
	}
}

func TestRemoveMemberOwnerBlocked(t *testing.T) {
	s := seeded(t)

	var owner, admin api.Member
	for _, m := range s.Members() {
		switch m.Role {
		case api.RoleOwner:
			owner = m
		case api.RoleAdmin:
			admin = m
		}
	}

	if err := s.RemoveMember(owner.ID); err != errOwnerImmutable {
		t.Errorf("removing owner: err = %v, want errOwnerImmutable", err)
	}
	if err := s.RemoveMember(admin.ID); err != nil {
		t.Errorf("removing admin: %v", err)
	}
	if err := s.RemoveMember("mem_missing"); err != errNotFound {
		t.Errorf("removing unknown: err = %v, want errNotFound", err)
	}
}

func TestCompleteOnboardingStep(t *testing.T) {
	s := seeded(t)

	ob, ok := s.CompleteOnboardingStep("create-key")
	if !ok {
		t.Fatal("create-key step should exist")
	}
	if ob.Complete {
		t.Error("one step still pending, should not be complete")
	}

	ob, _ = s.CompleteOnboardingStep("connect-slack")
	if !ob.Complete {
		t.Error("all steps done, should be complete")
	}

	if _, ok := s.CompleteOnboardingStep("no-such-step"); ok {
		t.Error("unknown step should not be found")
	}
}

func TestAddUsage(t *testing.T) {
	s := seeded(t)
	before := s.Usage()

	s.AddUsage(1, 50_000)

	after := s.Usage()
	if after.Runs != before.Runs+1 {
		t.Errorf("runs = %d, want %d", after.Runs, before.Runs+1)
	}
	if after.Tokens != before.Tokens+50_000 {
		t.Errorf("tokens = %d, want %d", after.Tokens, before.Tokens+50_000)
	}
}

func TestRecordRunStarted(t *testing.T) {
	s := seeded(t)
	agent := s.Agents()[0]
	at := time.Now()

	updated, ok := s.RecordRunStarted(agent.ID, at)
	if !ok {
		t.Fatal("agent should exist")
	}
	if updated.RunCount != agent.RunCount+1 {
		t.Errorf("run count = %d, want %d", updated.RunCount, agent.RunCount+1)
	}
	if updated.LastRunAt == nil || !updated.LastRunAt.Equal(at) {
		t.Error("last run timestamp not recorded")
	}

	if _, ok := s.RecordRunStarted("ag_missing", at); ok {
		t.Error("unknown agent should report false")
	}
}
