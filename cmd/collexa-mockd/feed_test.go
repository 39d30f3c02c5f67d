package main

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/events"
)

func testFeed(t *testing.T) (*Feed, *Store) {
	t.Helper()
	store := NewStore()
	store.Seed(time.Now())
	return NewFeed(store, zap.NewNop()), store
}

// quietClient is a feedClient with no write pump; sent envelopes pile
// up in the channel where the test can read them.
func quietClient(n int) *feedClient {
	return &feedClient{send: make(chan []byte, n)}
}

func decodeEnvelope(t *testing.T, data []byte) events.Envelope {
	t.Helper()
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestEnvelopeSequencing(t *testing.T) {
	f, _ := testFeed(t)

	first := decodeEnvelope(t, f.envelope(events.MsgRun, events.RunPayload{Run: api.Run{ID: "run-1"}}))
	second := decodeEnvelope(t, f.envelope(events.MsgAgent, events.AgentPayload{Agent: api.Agent{ID: "ag-1"}}))

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq = %d, %d; want 1, 2", first.Seq, second.Seq)
	}
	if first.Type != events.MsgRun || second.Type != events.MsgAgent {
		t.Errorf("types = %q, %q", first.Type, second.Type)
	}

	var payload events.RunPayload
	if err := json.Unmarshal(first.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Run.ID != "run-1" {
		t.Errorf("run id = %q", payload.Run.ID)
	}
}

func TestSnapshotDelivery(t *testing.T) {
	f, store := testFeed(t)
	c := quietClient(1)

	f.sendSnapshot(c)

	env := decodeEnvelope(t, <-c.send)
	if env.Type != events.MsgSnapshot {
		t.Fatalf("type = %q", env.Type)
	}
	var snap events.SnapshotPayload
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(snap.Agents) != len(store.Agents()) {
		t.Errorf("agents = %d, want %d", len(snap.Agents), len(store.Agents()))
	}
	if len(snap.Runs) != len(store.Runs("")) {
		t.Errorf("runs = %d, want %d", len(snap.Runs), len(store.Runs("")))
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	f, _ := testFeed(t)
	a, b := quietClient(4), quietClient(4)
	f.clients[a] = true
	f.clients[b] = true

	f.BroadcastRun(api.Run{ID: "run-9", Status: api.RunRunning})

	for _, c := range []*feedClient{a, b} {
		env := decodeEnvelope(t, <-c.send)
		if env.Type != events.MsgRun {
			t.Errorf("type = %q", env.Type)
		}
	}
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	f, _ := testFeed(t)
	slow := quietClient(0)
	f.clients[slow] = true

	f.BroadcastRun(api.Run{ID: "run-9"})

	if n := f.ClientCount(); n != 0 {
		t.Errorf("clients = %d, want 0", n)
	}
	if _, open := <-slow.send; open {
		t.Error("dropped client channel should be closed")
	}
}
