package main

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/events"
)

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newFeedClient(conn *websocket.Conn) *feedClient {
	c := &feedClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *feedClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *feedClient) close() {
	close(c.send)
}

// Feed fans run and agent updates out to every connected dashboard.
// Each client gets a snapshot on attach and whenever it asks to
// resync; deltas are broadcast as they happen.
type Feed struct {
	mu      sync.RWMutex
	clients map[*feedClient]bool
	store   *Store
	seq     atomic.Uint64
	log     *zap.Logger
}

func NewFeed(store *Store, log *zap.Logger) *Feed {
	return &Feed{
		clients: make(map[*feedClient]bool),
		store:   store,
		log:     log,
	}
}

func (f *Feed) AddClient(conn *websocket.Conn) *feedClient {
	c := newFeedClient(conn)

	f.mu.Lock()
	f.clients[c] = true
	f.mu.Unlock()

	f.sendSnapshot(c)
	return c
}

func (f *Feed) RemoveClient(c *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		c.close()
	}
	f.mu.Unlock()
}

// Resync replays a fresh snapshot to one client, in response to its
// resync request.
func (f *Feed) Resync(c *feedClient) {
	f.sendSnapshot(c)
}

func (f *Feed) sendSnapshot(c *feedClient) {
	runs, agents := f.store.Snapshot()
	data := f.envelope(events.MsgSnapshot, events.SnapshotPayload{Runs: runs, Agents: agents})
	if data == nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot; it can resync.
	}
}

func (f *Feed) BroadcastRun(run api.Run) {
	f.broadcast(f.envelope(events.MsgRun, events.RunPayload{Run: run}))
}

func (f *Feed) BroadcastAgent(agent api.Agent, removed bool) {
	f.broadcast(f.envelope(events.MsgAgent, events.AgentPayload{Agent: agent, Removed: removed}))
}

func (f *Feed) envelope(typ events.MessageType, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		f.log.Error("feed payload marshal", zap.Error(err))
		return nil
	}
	data, err := json.Marshal(events.Envelope{
		Type:    typ,
		Seq:     f.seq.Add(1),
		Payload: raw,
	})
	if err != nil {
		f.log.Error("feed envelope marshal", zap.Error(err))
		return nil
	}
	return data
}

func (f *Feed) broadcast(data []byte) {
	if data == nil {
		return
	}

	f.mu.RLock()
	clients := make([]*feedClient, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			f.log.Warn("feed client too slow, disconnecting")
			f.RemoveClient(c)
		}
	}
}

func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}
