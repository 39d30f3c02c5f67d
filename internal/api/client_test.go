package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource records how many times the dispatcher resolves it.
type countingSource struct {
	sess  Session
	err   error
	calls atomic.Int64
}

func (s *countingSource) Session(context.Context) (Session, error) {
	s.calls.Add(1)
	return s.sess, s.err
}

// captureServer records the headers of the last request it served.
func captureServer(t *testing.T, status int, body string) (*httptest.Server, *http.Header, *atomic.Int64) {
	t.Helper()
	var last http.Header
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		last = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &last, &hits
}

func TestDispatcherHeaders(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		opts    RequestOptions
		check   func(*testing.T, http.Header)
	}{
		{
			name:    "bearer token attached when session exists",
			session: Session{AccessToken: "tok-123"},
			check: func(t *testing.T, h http.Header) {
				assert.Equal(t, "Bearer tok-123", h.Get("Authorization"))
			},
		},
		{
			name:    "no authorization when auth disabled",
			session: Session{AccessToken: "tok-123"},
			opts:    RequestOptions{NoAuth: true},
			check: func(t *testing.T, h http.Header) {
				assert.Empty(t, h.Get("Authorization"))
			},
		},
		{
			name:    "no authorization without a session token",
			session: Session{},
			check: func(t *testing.T, h http.Header) {
				assert.Empty(t, h.Get("Authorization"))
			},
		},
		{
			name:    "explicit team wins over ambient team",
			session: Session{AccessToken: "tok", TeamID: "team-ambient"},
			opts:    RequestOptions{TeamID: "team-explicit"},
			check: func(t *testing.T, h http.Header) {
				assert.Equal(t, "team-explicit", h.Get("X-Team-Id"))
			},
		},
		{
			name:    "ambient team used when no explicit team",
			session: Session{AccessToken: "tok", TeamID: "team-ambient"},
			check: func(t *testing.T, h http.Header) {
				assert.Equal(t, "team-ambient", h.Get("X-Team-Id"))
			},
		},
		{
			name:    "team header omitted when no team resolvable",
			session: Session{AccessToken: "tok"},
			check: func(t *testing.T, h http.Header) {
				_, present := h["X-Team-Id"]
				assert.False(t, present)
			},
		},
		{
			name:    "team header attached on unauthenticated requests",
			session: Session{AccessToken: "tok", TeamID: "team-1"},
			opts:    RequestOptions{NoAuth: true},
			check: func(t *testing.T, h http.Header) {
				assert.Empty(t, h.Get("Authorization"))
				assert.Equal(t, "team-1", h.Get("X-Team-Id"))
			},
		},
		{
			name:    "caller headers pass through untouched",
			session: Session{AccessToken: "tok", TeamID: "team-1"},
			opts: RequestOptions{Header: http.Header{
				"X-Idempotency-Key": {"abc"},
				"Accept-Language":   {"en"},
			}},
			check: func(t *testing.T, h http.Header) {
				assert.Equal(t, "abc", h.Get("X-Idempotency-Key"))
				assert.Equal(t, "en", h.Get("Accept-Language"))
				assert.Equal(t, "Bearer tok", h.Get("Authorization"))
				assert.Equal(t, "team-1", h.Get("X-Team-Id"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, last, _ := captureServer(t, http.StatusOK, `{}`)
			c := New(srv.URL, &countingSource{sess: tt.session})
			var out struct{}
			err := c.do(context.Background(), http.MethodGet, "/v1/agents", tt.opts, &out)
			require.NoError(t, err)
			tt.check(t, *last)
		})
	}
}

func TestDispatcherResolvesSessionOnce(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusOK, `{"agents":[],"total":0}`)
	src := &countingSource{sess: Session{AccessToken: "tok"}}
	c := New(srv.URL, src)

	_, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.calls.Load())

	_, err = c.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.calls.Load())
}

func TestDispatcherSessionFailureBlocksRequest(t *testing.T) {
	srv, _, hits := captureServer(t, http.StatusOK, `{}`)
	src := &countingSource{err: errors.New("identity provider unreachable")}
	c := New(srv.URL, src)

	_, err := c.ListAgents(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "resolve session")
	assert.Equal(t, int64(0), hits.Load(), "request must fail before network I/O")
}

func TestForTeamScopesRequests(t *testing.T) {
	srv, last, _ := captureServer(t, http.StatusOK, `{"runs":[],"total":0}`)
	c := New(srv.URL, StaticSource{AccessToken: "tok", TeamID: "team-session"})

	_, err := c.ForTeam("team-cli").ListRuns(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "team-cli", last.Get("X-Team-Id"))

	// The original client is untouched by the scoped copy.
	_, err = c.ListRuns(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "team-session", last.Get("X-Team-Id"))
}

func TestDispatcherRequestID(t *testing.T) {
	srv, last, _ := captureServer(t, http.StatusOK, `{}`)
	c := New(srv.URL, StaticSource{AccessToken: "tok"})

	_, err := c.Whoami(context.Background())
	require.NoError(t, err)
	first := last.Get("X-Request-Id")
	assert.NotEmpty(t, first)

	_, err = c.Whoami(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, last.Get("X-Request-Id"))
}

func TestAPIErrorDecoding(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "structured platform error",
			status:   http.StatusForbidden,
			body:     `{"error":{"code":"team_access_denied","message":"not a member of this team"}}`,
			wantCode: "team_access_denied",
			wantMsg:  "not a member of this team",
		},
		{
			name:    "plain body fallback",
			status:  http.StatusBadGateway,
			body:    "upstream exploded",
			wantMsg: "upstream exploded",
		},
		{
			name:    "empty body falls back to status text",
			status:  http.StatusNotFound,
			body:    "",
			wantMsg: "Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := captureServer(t, tt.status, tt.body)
			c := New(srv.URL, StaticSource{AccessToken: "tok"})

			_, err := c.GetAgent(context.Background(), "agent-1")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestListRunsAgentFilter(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"runs":[],"total":0}`))
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, StaticSource{AccessToken: "tok"})

	_, err := c.ListRuns(context.Background(), "agent-9")
	require.NoError(t, err)
	assert.Equal(t, "agent-9", gotQuery.Get("agent"))
}
