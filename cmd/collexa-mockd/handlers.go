package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collexa/console/internal/api"
)

// Server owns the mock platform's HTTP surface: the /v1 REST routes,
// the per-run SSE streams, and the /v1/events WebSocket feed.
type Server struct {
	store *Store
	feed  *Feed
	hub   *streamHub
	token string
	log   *zap.Logger
}

func NewServer(store *Store, feed *Feed, hub *streamHub, token string, log *zap.Logger) *Server {
	return &Server{store: store, feed: feed, hub: hub, token: token, log: log}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/me", s.auth(s.handleWhoami))

	mux.HandleFunc("GET /v1/agents", s.auth(s.handleListAgents))
	mux.HandleFunc("POST /v1/agents", s.auth(s.handleCreateAgent))
	mux.HandleFunc("GET /v1/agents/{id}", s.auth(s.handleGetAgent))
	mux.HandleFunc("DELETE /v1/agents/{id}", s.auth(s.handleDeleteAgent))

	mux.HandleFunc("GET /v1/runs", s.auth(s.handleListRuns))
	mux.HandleFunc("GET /v1/runs/{id}", s.auth(s.handleGetRun))
	mux.HandleFunc("GET /v1/runs/{id}/logs", s.auth(s.handleRunLogs))
	mux.HandleFunc("GET /v1/runs/{id}/stream", s.auth(s.handleRunStream))

	mux.HandleFunc("GET /v1/events", s.auth(s.handleEvents))

	mux.HandleFunc("GET /v1/billing/subscription", s.auth(s.handleSubscription))
	mux.HandleFunc("GET /v1/billing/usage", s.auth(s.handleUsage))
	mux.HandleFunc("POST /v1/billing/portal", s.auth(s.handlePortal))

	mux.HandleFunc("GET /v1/keys", s.auth(s.handleListKeys))
	mux.HandleFunc("POST /v1/keys", s.auth(s.handleCreateKey))
	mux.HandleFunc("DELETE /v1/keys/{id}", s.auth(s.handleRevokeKey))

	mux.HandleFunc("GET /v1/team/members", s.auth(s.handleListMembers))
	mux.HandleFunc("POST /v1/team/invites", s.auth(s.handleInvite))
	mux.HandleFunc("DELETE /v1/team/members/{id}", s.auth(s.handleRemoveMember))

	mux.HandleFunc("GET /v1/onboarding", s.auth(s.handleOnboarding))
	mux.HandleFunc("POST /v1/onboarding/{step}/complete", s.auth(s.handleOnboardingStep))

	return mux
}

// authorize mirrors production: the token rides as a Bearer header on
// REST calls and as a ?token= query parameter on the stream and feed
// endpoints, which browser EventSource/WebSocket consumers cannot set
// headers for. An empty configured token disables the check.
func (s *Server) authorize(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.token {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.token
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", uuid.NewString())
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.log.Error("response encode", zap.Error(err))
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	type detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	s.writeJSON(w, status, map[string]detail{
		"error": {Code: code, Message: message},
	})
}

// --- identity ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.Health{Status: "ok", Version: "mock"})
}

func (s *Server) handleWhoami(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.User())
}

// --- agents ---

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	agents := s.store.Agents()
	s.writeJSON(w, http.StatusOK, api.AgentList{Agents: agents, Total: len(agents)})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	model := req.Model
	if model == "" {
		model = api.DefaultModel
	}

	now := time.Now()
	agent := api.Agent{
		ID:           newID("ag"),
		Name:         req.Name,
		Slug:         slugify(req.Name),
		Description:  req.Description,
		Instructions: req.Instructions,
		Model:        model,
		Status:       api.AgentActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.store.PutAgent(agent)
	s.feed.BroadcastAgent(agent, false)
	s.log.Info("agent created", zap.String("agentId", agent.ID), zap.String("name", agent.Name))
	s.writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.store.Agent(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "no such agent")
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.store.Agent(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "no such agent")
		return
	}
	s.store.DeleteAgent(agent.ID)
	s.feed.BroadcastAgent(agent, true)
	s.log.Info("agent deleted", zap.String("agentId", agent.ID))
	w.WriteHeader(http.StatusNoContent)
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(slug), "-")
}

// --- runs ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.store.Runs(r.URL.Query().Get("agent"))
	s.writeJSON(w, http.StatusOK, api.RunList{Runs: runs, Total: len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.store.Run(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "no such run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.store.Run(r.PathValue("id")); !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "no such run")
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.Logs(r.PathValue("id")))
}

// handleRunStream serves the live SSE stream for one run. Stored log
// lines replay first so a consumer attaching mid-run has context;
// after that, frames arrive as the runner emits them. Finished runs
// get their transcript and a complete frame, then the stream closes.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	run, ok := s.store.Run(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "no such run")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	// Subscribe before replay so no frame falls between the two.
	var frames chan api.Frame
	if !run.Status.Terminal() {
		frames = s.hub.Subscribe(runID)
		defer s.hub.Unsubscribe(runID, frames)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Request-Id", uuid.NewString())
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for _, e := range s.store.Logs(runID) {
		writeFrame(w, api.Frame{Type: api.FrameLog, TS: e.TS, Level: e.Level, Message: e.Message})
	}
	flusher.Flush()

	if run.Status.Terminal() {
		ts := run.StartedAt
		if run.EndedAt != nil {
			ts = *run.EndedAt
		}
		writeFrame(w, api.Frame{
			Type:   api.FrameComplete,
			TS:     ts.UTC().Format(time.RFC3339Nano),
			Output: run.Output,
		})
		flusher.Flush()
		return
	}

	s.log.Debug("stream attached", zap.String("runId", runID))
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case frame, open := <-frames:
			if !open {
				return
			}
			writeFrame(w, frame)
			flusher.Flush()
			if frame.Type == api.FrameComplete {
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, f api.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// --- event feed ---

var upgrader = websocket.Upgrader{
	// The mock serves local tools, not browsers; any origin may attach.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("feed upgrade failed", zap.Error(err))
		return
	}

	s.log.Info("feed client connected", zap.String("remote", r.RemoteAddr))
	c := s.feed.AddClient(conn)

	go func() {
		defer func() {
			s.feed.RemoveClient(c)
			s.log.Info("feed client disconnected", zap.String("remote", r.RemoteAddr))
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &msg) == nil && msg.Type == "resync" {
				s.feed.Resync(c)
			}
		}
	}()
}

// --- billing ---

func (s *Server) handleSubscription(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Subscription())
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Usage())
}

func (s *Server) handlePortal(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusCreated, api.PortalLink{
		URL:       "https://billing.collexa.dev/session/" + newID("prt"),
		ExpiresAt: time.Now().Add(30 * time.Minute),
	})
}

// --- keys ---

func (s *Server) handleListKeys(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Keys())
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	secret := "clx_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := api.APIKey{
		ID:        newID("key"),
		Name:      req.Name,
		Prefix:    secret[:12],
		CreatedBy: s.store.User().ID,
		CreatedAt: time.Now(),
	}
	s.store.PutKey(key)
	s.log.Info("key created", zap.String("keyId", key.ID), zap.String("name", key.Name))
	s.writeJSON(w, http.StatusCreated, api.CreatedKey{APIKey: key, Secret: secret})
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteKey(r.PathValue("id")) {
		s.writeError(w, http.StatusNotFound, "not_found", "no such key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- team ---

func (s *Server) handleListMembers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Members())
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if !strings.Contains(req.Email, "@") {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "email is invalid")
		return
	}
	role := api.MemberRole(req.Role)
	if role != api.RoleMember && role != api.RoleAdmin {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "role must be member or admin")
		return
	}

	member := api.Member{
		ID:      newID("mem"),
		Email:   req.Email,
		Role:    role,
		Invited: true,
	}
	s.store.PutMember(member)
	s.log.Info("member invited", zap.String("email", member.Email), zap.String("role", string(role)))
	s.writeJSON(w, http.StatusCreated, member)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	switch err := s.store.RemoveMember(r.PathValue("id")); err {
	case nil:
		w.WriteHeader(http.StatusNoContent)
	case errOwnerImmutable:
		s.writeError(w, http.StatusConflict, "owner_immutable", err.Error())
	default:
		s.writeError(w, http.StatusNotFound, "not_found", "no such member")
	}
}

// --- onboarding ---

func (s *Server) handleOnboarding(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Onboarding())
}

func (s *Server) handleOnboardingStep(w http.ResponseWriter, r *http.Request) {
	ob, ok := s.store.CompleteOnboardingStep(r.PathValue("step"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "no such step")
		return
	}
	s.writeJSON(w, http.StatusOK, ob)
}
