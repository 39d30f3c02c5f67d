package main

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/collexa/console/internal/api"
)

func testRunner(t *testing.T) (*Runner, *Store, *streamHub) {
	t.Helper()
	store := NewStore()
	store.Seed(time.Now())
	feed := NewFeed(store, zap.NewNop())
	hub := newStreamHub()
	return NewRunner(store, feed, hub, time.Second, zap.NewNop()), store, hub
}

func runningRun(t *testing.T, store *Store) api.Run {
	t.Helper()
	for _, r := range store.Runs("") {
		if r.Status == api.RunRunning {
			return r
		}
	}
	t.Fatal("seed should contain a running run")
	return api.Run{}
}

func TestStreamHubPublishAndComplete(t *testing.T) {
	hub := newStreamHub()
	a := hub.Subscribe("run-1")
	b := hub.Subscribe("run-1")

	hub.Publish("run-1", api.Frame{Type: api.FrameLog, Message: "hello"})
	for _, ch := range []chan api.Frame{a, b} {
		select {
		case f := <-ch:
			if f.Message != "hello" {
				t.Errorf("message = %q", f.Message)
			}
		default:
			t.Fatal("frame not delivered")
		}
	}

	hub.Unsubscribe("run-1", a)
	if _, open := <-a; open {
		t.Error("unsubscribed channel should be closed")
	}

	hub.Complete("run-1", api.Frame{Type: api.FrameComplete})
	f, open := <-b
	if !open || f.Type != api.FrameComplete {
		t.Errorf("want complete frame, got %+v open=%v", f, open)
	}
	if _, open := <-b; open {
		t.Error("channel should close after complete")
	}

	// Publishing to a finished run is a no-op.
	hub.Publish("run-1", api.Frame{Type: api.FrameLog})
}

func TestAdvanceEmitsLogsAndTokens(t *testing.T) {
	r, store, hub := testRunner(t)
	run := runningRun(t, store)
	ch := hub.Subscribe(run.ID)

	r.live[run.ID] = &liveRun{id: run.ID, doneAt: 100}
	before := len(store.Logs(run.ID))

	r.advance(1)

	if got := len(store.Logs(run.ID)); got <= before {
		t.Error("advance should append log lines")
	}
	updated, _ := store.Run(run.ID)
	if updated.TokensUsed <= run.TokensUsed {
		t.Error("advance should consume tokens")
	}
	select {
	case f := <-ch:
		if f.Type != api.FrameLog {
			t.Errorf("frame type = %q", f.Type)
		}
	default:
		t.Error("no frame streamed to subscriber")
	}
}

func TestSettleSucceeded(t *testing.T) {
	r, store, hub := testRunner(t)
	run := runningRun(t, store)
	ch := hub.Subscribe(run.ID)
	usageBefore := store.Usage()

	r.settle(run, &liveRun{id: run.ID})

	settled, _ := store.Run(run.ID)
	if settled.Status != api.RunSucceeded {
		t.Errorf("status = %q", settled.Status)
	}
	if settled.EndedAt == nil {
		t.Error("ended timestamp not set")
	}
	if !strings.Contains(string(settled.Output), "summary") {
		t.Errorf("output = %s", settled.Output)
	}

	// Final log line, then the complete frame, then the channel closes.
	var sawComplete bool
	for f := range ch {
		if f.Type == api.FrameComplete {
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Error("subscriber never saw the complete frame")
	}

	if store.Usage().Runs != usageBefore.Runs+1 {
		t.Error("completed run not charged against usage")
	}
}

func TestSettleFailed(t *testing.T) {
	r, store, _ := testRunner(t)
	run := runningRun(t, store)

	r.settle(run, &liveRun{id: run.ID, fails: true})

	settled, _ := store.Run(run.ID)
	if settled.Status != api.RunFailed {
		t.Errorf("status = %q", settled.Status)
	}
	if settled.Error == "" {
		t.Error("failed run should carry an error")
	}

	logs := store.Logs(run.ID)
	last := logs[len(logs)-1]
	if last.Level != "error" {
		t.Errorf("last log level = %q, want error", last.Level)
	}
}

func TestAdoptPromotesQueuedRun(t *testing.T) {
	r, store, _ := testRunner(t)

	var queued api.Run
	for _, run := range store.Runs("") {
		if run.Status == api.RunQueued {
			queued = run
			break
		}
	}
	if queued.ID == "" {
		t.Fatal("seed should contain a queued run")
	}

	r.adopt(1)
	if _, ok := r.pending[queued.ID]; !ok {
		t.Fatal("queued run not scheduled")
	}

	r.pending[queued.ID] = 1
	r.adopt(1)

	promoted, _ := store.Run(queued.ID)
	if promoted.Status != api.RunRunning {
		t.Errorf("status = %q, want running", promoted.Status)
	}
	if _, ok := r.live[queued.ID]; !ok {
		t.Error("promoted run should be driven")
	}
}

func TestEnqueueAddsQueuedRun(t *testing.T) {
	r, store, _ := testRunner(t)
	before := len(store.Runs(""))

	r.enqueue()

	runs := store.Runs("")
	if len(runs) != before+1 {
		t.Fatalf("runs = %d, want %d", len(runs), before+1)
	}
	var queued int
	for _, run := range runs {
		if run.Status == api.RunQueued {
			queued++
		}
	}
	if queued < 2 {
		t.Error("expected the seeded queued run plus the new one")
	}
}
