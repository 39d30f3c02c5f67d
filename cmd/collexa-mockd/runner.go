package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collexa/console/internal/api"
)

// streamHub fans live frames out to the SSE subscribers of each run.
// Channels are closed exactly once, under the lock: either when the
// run completes or when the subscriber detaches.
type streamHub struct {
	mu   sync.Mutex
	subs map[string]map[chan api.Frame]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{subs: make(map[string]map[chan api.Frame]struct{})}
}

func (h *streamHub) Subscribe(runID string) chan api.Frame {
	ch := make(chan api.Frame, 64)
	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan api.Frame]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *streamHub) Unsubscribe(runID string, ch chan api.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[runID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, runID)
		}
	}
}

func (h *streamHub) Publish(runID string, f api.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[runID] {
		select {
		case ch <- f:
		default:
			// Subscriber stalled; it will miss this frame.
		}
	}
}

// Complete delivers the final frame and closes every subscriber.
func (h *streamHub) Complete(runID string, f api.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[runID] {
		select {
		case ch <- f:
		default:
		}
		close(ch)
	}
	delete(h.subs, runID)
}

// liveRun is the runner's private state for one in-flight run.
type liveRun struct {
	id      string
	pattern string
	tick    int
	doneAt  int
	fails   bool
	stepIdx int
}

// runScript is the rotating transcript in-flight runs emit.
var runScript = []struct {
	level, msg string
}{
	{"info", "resolving trigger payload"},
	{"debug", "instructions loaded"},
	{"info", "calling model"},
	{"info", "tool call: fetch_context"},
	{"debug", "tool result: 2.1kb in 184ms"},
	{"info", "tool call: search_workspace"},
	{"warn", "rate limited by upstream, backing off"},
	{"info", "parsing model response"},
	{"info", "drafting output"},
	{"info", "running post checks"},
}

// Runner drives queued runs to completion: it promotes them, emits
// log frames at each tick, and settles them as succeeded or failed.
// Every state change is written to the store, streamed to SSE
// subscribers, and broadcast on the event feed.
type Runner struct {
	store    *Store
	feed     *Feed
	hub      *streamHub
	interval time.Duration
	log      *zap.Logger

	live    map[string]*liveRun
	pending map[string]int // queued run id -> tick at which it starts
}

func NewRunner(store *Store, feed *Feed, hub *streamHub, interval time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		feed:     feed,
		hub:      hub,
		interval: interval,
		log:      log,
		live:     make(map[string]*liveRun),
		pending:  make(map[string]int),
	}
}

func (r *Runner) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Runner) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			r.adopt(tick)
			r.advance(tick)
			if tick%18 == 0 {
				r.enqueue()
			}
		}
	}
}

// adopt picks up runs it is not yet driving: running ones (seeded or
// promoted) start emitting immediately, queued ones are scheduled a
// few ticks out.
func (r *Runner) adopt(tick int) {
	for _, run := range r.store.Runs("") {
		switch run.Status {
		case api.RunRunning:
			if _, ok := r.live[run.ID]; !ok {
				r.track(run.ID)
			}
		case api.RunQueued:
			if _, ok := r.pending[run.ID]; !ok {
				r.pending[run.ID] = tick + 2 + rand.Intn(4)
			}
		}
	}

	for id, startAt := range r.pending {
		if tick < startAt {
			continue
		}
		delete(r.pending, id)
		run, ok := r.store.Run(id)
		if !ok || run.Status != api.RunQueued {
			continue
		}
		now := time.Now()
		run.Status = api.RunRunning
		run.StartedAt = now
		r.store.PutRun(run)
		if agent, ok := r.store.RecordRunStarted(run.AgentID, now); ok {
			r.feed.BroadcastAgent(agent, false)
		}
		r.feed.BroadcastRun(run)
		r.track(run.ID)
		r.log.Info("run started", zap.String("runId", run.ID), zap.String("agent", run.AgentName))
	}
}

func (r *Runner) track(runID string) {
	lr := &liveRun{
		id:     runID,
		doneAt: 12 + rand.Intn(28),
	}
	switch n := rand.Intn(10); {
	case n < 6:
		lr.pattern = "steady"
	case n < 8:
		lr.pattern = "chatty"
	default:
		lr.pattern = "flaky"
		lr.fails = true
	}
	r.live[runID] = lr
}

func (r *Runner) advance(tick int) {
	for id, lr := range r.live {
		run, ok := r.store.Run(id)
		if !ok || run.Status != api.RunRunning {
			delete(r.live, id)
			continue
		}

		lr.tick++
		lines := 1
		tokens := 150 + rand.Intn(750)
		if lr.pattern == "chatty" {
			lines = 2
			tokens += 600
		}
		for i := 0; i < lines; i++ {
			step := runScript[lr.stepIdx%len(runScript)]
			lr.stepIdx++
			r.emitLog(run.ID, step.level, step.msg)
		}
		run.TokensUsed += tokens
		r.store.PutRun(run)

		if lr.tick >= lr.doneAt {
			r.settle(run, lr)
			delete(r.live, id)
			continue
		}
		r.feed.BroadcastRun(run)
	}
}

// settle finishes a run and tells everyone: a terminal log line, the
// complete frame for stream subscribers, the feed delta, and the
// usage charge.
func (r *Runner) settle(run api.Run, lr *liveRun) {
	now := time.Now()
	run.EndedAt = &now

	if lr.fails {
		run.Status = api.RunFailed
		run.Error = "model call failed: upstream timeout after 3 retries"
		r.emitLog(run.ID, "error", run.Error)
		run.Output = json.RawMessage(fmt.Sprintf(`{"error":%q}`, run.Error))
	} else {
		run.Status = api.RunSucceeded
		run.Output = json.RawMessage(fmt.Sprintf(
			`{"summary":"completed %s run","tokens":%d}`, run.AgentName, run.TokensUsed))
		r.emitLog(run.ID, "info", "run finished")
	}
	r.store.PutRun(run)
	r.store.AddUsage(1, int64(run.TokensUsed))

	r.hub.Complete(run.ID, api.Frame{
		Type:   api.FrameComplete,
		TS:     now.UTC().Format(time.RFC3339Nano),
		Output: run.Output,
	})
	r.feed.BroadcastRun(run)
	r.log.Info("run settled",
		zap.String("runId", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("tokens", run.TokensUsed))
}

func (r *Runner) emitLog(runID, level, msg string) {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	r.store.AppendLog(runID, api.LogEntry{TS: ts, Level: level, Message: msg})
	r.hub.Publish(runID, api.Frame{
		Type:    api.FrameLog,
		TS:      ts,
		Level:   level,
		Message: msg,
	})
}

// enqueue files a fresh queued run for a random active agent so the
// dashboard always has something arriving.
func (r *Runner) enqueue() {
	agents := r.store.Agents()
	active := agents[:0]
	for _, a := range agents {
		if a.Status == api.AgentActive {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return
	}
	agent := active[rand.Intn(len(active))]
	triggers := []string{"webhook", "schedule", "manual"}

	run := api.Run{
		ID:        newID("run"),
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Status:    api.RunQueued,
		Trigger:   triggers[rand.Intn(len(triggers))],
		StartedAt: time.Now(),
	}
	r.store.PutRun(run)
	r.feed.BroadcastRun(run)
	r.log.Info("run queued", zap.String("runId", run.ID), zap.String("agent", agent.Name))
}
