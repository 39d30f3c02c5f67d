// Package api provides the HTTP and streaming clients for the Collexa
// platform API. Types mirror the platform wire protocol.
package api

import (
	"encoding/json"
	"time"
)

// AgentStatus reports whether an agent accepts new runs.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentPaused   AgentStatus = "paused"
	AgentArchived AgentStatus = "archived"
)

// Agent is a configured agent as returned by /v1/agents.
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Slug         string      `json:"slug,omitempty"`
	Description  string      `json:"description,omitempty"`
	Instructions string      `json:"instructions,omitempty"`
	Model        string      `json:"model"`
	Status       AgentStatus `json:"status"`
	RunCount     int         `json:"runCount"`
	LastRunAt    *time.Time  `json:"lastRunAt,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// AgentList is the envelope returned by GET /v1/agents.
type AgentList struct {
	Agents []Agent `json:"agents"`
	Total  int     `json:"total"`
}

// CreateAgentRequest is the body for POST /v1/agents.
type CreateAgentRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Model        string `json:"model,omitempty"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Terminal reports whether the run can produce further events.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunCanceled:
		return true
	}
	return false
}

// Run is one execution of an agent.
type Run struct {
	ID         string          `json:"id"`
	AgentID    string          `json:"agentId"`
	AgentName  string          `json:"agentName,omitempty"`
	Status     RunStatus       `json:"status"`
	Trigger    string          `json:"trigger,omitempty"`
	TokensUsed int             `json:"tokensUsed,omitempty"`
	Error      string          `json:"error,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	EndedAt    *time.Time      `json:"endedAt,omitempty"`
}

// RunList is the envelope returned by GET /v1/runs.
type RunList struct {
	Runs  []Run `json:"runs"`
	Total int   `json:"total"`
}

// LogEntry is one stored log line returned by GET /v1/runs/{id}/logs.
// Timestamps are opaque strings assigned by the producing process.
type LogEntry struct {
	TS      string `json:"ts,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

// Subscription describes the team's billing plan.
type Subscription struct {
	Plan        string     `json:"plan"`
	Status      string     `json:"status"`
	Seats       int        `json:"seats"`
	RenewsAt    *time.Time `json:"renewsAt,omitempty"`
	TrialEndsAt *time.Time `json:"trialEndsAt,omitempty"`
}

// Usage reports consumption against the current billing period.
type Usage struct {
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	Runs        int       `json:"runs"`
	RunsLimit   int       `json:"runsLimit"`
	Tokens      int64     `json:"tokens"`
	TokensLimit int64     `json:"tokensLimit"`
}

// PortalLink is a one-time URL into the hosted billing portal.
type PortalLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// APIKey is a provisioned platform key. The secret is only returned
// once, at creation, inside CreatedKey.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedBy  string     `json:"createdBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// CreatedKey is returned by POST /v1/keys.
type CreatedKey struct {
	APIKey
	Secret string `json:"secret"`
}

// MemberRole is a member's permission level within a team.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Member is a team member or outstanding invite.
type Member struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	Name     string     `json:"name,omitempty"`
	Role     MemberRole `json:"role"`
	Invited  bool       `json:"invited,omitempty"`
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
}

// OnboardingStep is one item of the team onboarding checklist.
type OnboardingStep struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Onboarding is the team's onboarding progress.
type Onboarding struct {
	Steps    []OnboardingStep `json:"steps"`
	Complete bool             `json:"complete"`
}

// Team is a tenant the authenticated user belongs to.
type Team struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Role MemberRole `json:"role,omitempty"`
}

// User is the authenticated identity returned by GET /v1/me.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Teams []Team `json:"teams,omitempty"`
}

// Health is returned by GET /v1/health. The endpoint is public.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
