package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// Client makes REST calls to the Collexa platform API.
//
// Every request resolves the session through the injected SessionSource,
// then injects Authorization and X-Team-Id headers before hitting the
// transport. If session resolution fails the request fails before any
// network I/O; it is never downgraded to an unauthenticated call.
type Client struct {
	baseURL string
	source  SessionSource
	teamID  string // explicit team scope set via ForTeam, wins over the session's
	http    *http.Client
	stream  *http.Client // no overall timeout; streams end via context or remote close
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport used for one-shot calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a logger for request tracing. Defaults to a nop
// logger so the TUI stays silent.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client targeting the given base URL
// (e.g. "https://api.collexa.dev").
func New(baseURL string, source SessionSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		source:  source,
		http:    &http.Client{Timeout: requestTimeout},
		stream:  &http.Client{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForTeam returns a copy of the client that scopes every request to the
// given team, overriding the session's selected team.
func (c *Client) ForTeam(teamID string) *Client {
	dup := *c
	dup.teamID = teamID
	return &dup
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// RequestOptions adjust how the dispatcher builds a single request.
// The zero value is an authenticated request scoped to the session's
// selected team.
type RequestOptions struct {
	// NoAuth skips the Authorization header even when a session exists.
	NoAuth bool
	// TeamID overrides the team scope for this request only.
	TeamID string
	// Header entries are copied onto the request before injection. The
	// dispatcher only ever sets Authorization and X-Team-Id on top;
	// every other caller header passes through untouched.
	Header http.Header
	// Query is appended to the request URL.
	Query url.Values
	// Body is JSON-encoded when non-nil.
	Body any
}

// --- typed operations ---

// Health fetches GET /v1/health. The endpoint is public, so the
// request goes out without credentials.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/v1/health", RequestOptions{NoAuth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Whoami fetches GET /v1/me.
func (c *Client) Whoami(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/v1/me", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAgents fetches GET /v1/agents.
func (c *Client) ListAgents(ctx context.Context) (*AgentList, error) {
	var out AgentList
	if err := c.do(ctx, http.MethodGet, "/v1/agents", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAgent sends POST /v1/agents.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents", RequestOptions{Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAgent fetches GET /v1/agents/{id}.
func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(id), RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAgent sends DELETE /v1/agents/{id}.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/agents/"+url.PathEscape(id), RequestOptions{}, nil)
}

// ListRuns fetches GET /v1/runs, optionally filtered to one agent.
func (c *Client) ListRuns(ctx context.Context, agentID string) (*RunList, error) {
	opts := RequestOptions{}
	if agentID != "" {
		opts.Query = url.Values{"agent": {agentID}}
	}
	var out RunList
	if err := c.do(ctx, http.MethodGet, "/v1/runs", opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun fetches GET /v1/runs/{id}.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var out Run
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id), RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRunLogs fetches GET /v1/runs/{id}/logs, the stored log lines of a
// finished or in-flight run. Live tailing goes through StreamRunLogs.
func (c *Client) GetRunLogs(ctx context.Context, id string) ([]LogEntry, error) {
	var out []LogEntry
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id)+"/logs", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSubscription fetches GET /v1/billing/subscription.
func (c *Client) GetSubscription(ctx context.Context) (*Subscription, error) {
	var out Subscription
	if err := c.do(ctx, http.MethodGet, "/v1/billing/subscription", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUsage fetches GET /v1/billing/usage.
func (c *Client) GetUsage(ctx context.Context) (*Usage, error) {
	var out Usage
	if err := c.do(ctx, http.MethodGet, "/v1/billing/usage", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBillingPortal sends POST /v1/billing/portal and returns a
// one-time URL into the hosted billing portal.
func (c *Client) CreateBillingPortal(ctx context.Context) (*PortalLink, error) {
	var out PortalLink
	if err := c.do(ctx, http.MethodPost, "/v1/billing/portal", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListKeys fetches GET /v1/keys.
func (c *Client) ListKeys(ctx context.Context) ([]APIKey, error) {
	var out []APIKey
	if err := c.do(ctx, http.MethodGet, "/v1/keys", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateKey sends POST /v1/keys. The returned secret is shown once and
// never retrievable again.
func (c *Client) CreateKey(ctx context.Context, name string) (*CreatedKey, error) {
	body := map[string]string{"name": name}
	var out CreatedKey
	if err := c.do(ctx, http.MethodPost, "/v1/keys", RequestOptions{Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeKey sends DELETE /v1/keys/{id}.
func (c *Client) RevokeKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/keys/"+url.PathEscape(id), RequestOptions{}, nil)
}

// ListMembers fetches GET /v1/team/members.
func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	var out []Member
	if err := c.do(ctx, http.MethodGet, "/v1/team/members", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InviteMember sends POST /v1/team/invites.
func (c *Client) InviteMember(ctx context.Context, email string, role MemberRole) (*Member, error) {
	body := map[string]string{"email": email, "role": string(role)}
	var out Member
	if err := c.do(ctx, http.MethodPost, "/v1/team/invites", RequestOptions{Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveMember sends DELETE /v1/team/members/{id}. Revokes an invite
// when the id belongs to one.
func (c *Client) RemoveMember(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/team/members/"+url.PathEscape(id), RequestOptions{}, nil)
}

// OnboardingStatus fetches GET /v1/onboarding.
func (c *Client) OnboardingStatus(ctx context.Context) (*Onboarding, error) {
	var out Onboarding
	if err := c.do(ctx, http.MethodGet, "/v1/onboarding", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteOnboardingStep sends POST /v1/onboarding/{step}/complete and
// returns the updated checklist.
func (c *Client) CompleteOnboardingStep(ctx context.Context, stepID string) (*Onboarding, error) {
	var out Onboarding
	path := "/v1/onboarding/" + url.PathEscape(stepID) + "/complete"
	if err := c.do(ctx, http.MethodPost, path, RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- dispatcher ---

// do builds one request per the header contract, issues it, and decodes
// the JSON response into out (skipped when out is nil). There are no
// retries at this layer: transport and status errors surface directly
// so callers can decide what a retry means for them.
func (c *Client) do(ctx context.Context, method, path string, opts RequestOptions, out any) error {
	req, err := c.newRequest(ctx, method, path, opts)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("requestId", req.Header.Get("X-Request-Id")))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %w", method, path, readAPIError(resp))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// newRequest resolves the session (exactly once per invocation) and
// assembles the request. Caller headers are copied first; the injected
// Authorization and X-Team-Id only ever set their own names.
func (c *Client) newRequest(ctx context.Context, method, path string, opts RequestOptions) (*http.Request, error) {
	sess, err := c.source.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(opts.Query) > 0 {
		u += "?" + opts.Query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !opts.NoAuth && sess.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}
	if team := c.resolveTeam(opts, sess); team != "" {
		req.Header.Set("X-Team-Id", team)
	}
	return req, nil
}

// resolveTeam picks the team scope: per-request override, then the
// client's ForTeam scope, then the session's selected team.
func (c *Client) resolveTeam(opts RequestOptions, sess Session) string {
	if opts.TeamID != "" {
		return opts.TeamID
	}
	if c.teamID != "" {
		return c.teamID
	}
	return sess.TeamID
}
