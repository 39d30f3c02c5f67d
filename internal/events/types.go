// Package events maintains the console's live event feed: a WebSocket
// subscription to /v1/events carrying a snapshot of the team's runs
// and agents followed by incremental updates. Unlike the per-run log
// stream, this channel reconnects on its own; it is dashboard chrome,
// and a dropped feed should heal without user action.
package events

import (
	"encoding/json"

	"github.com/collexa/console/internal/api"
)

// MessageType identifies the kind of feed message.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgRun      MessageType = "run"
	MsgAgent    MessageType = "agent"
	MsgError    MessageType = "error"
)

// Envelope wraps every feed message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// SnapshotPayload is sent once per connection, before any updates.
type SnapshotPayload struct {
	Runs   []api.Run   `json:"runs"`
	Agents []api.Agent `json:"agents"`
}

// RunPayload upserts one run.
type RunPayload struct {
	Run api.Run `json:"run"`
}

// AgentPayload upserts or removes one agent.
type AgentPayload struct {
	Agent   api.Agent `json:"agent"`
	Removed bool      `json:"removed,omitempty"`
}
