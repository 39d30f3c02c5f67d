// Package livelog maintains a live, ordered view of one run's log
// events without the consumer polling. A Subscriber owns at most one
// stream connection at a time; switching runs tears the old connection
// down before any event from the new one is accepted, so a buffer
// never interleaves two runs.
package livelog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/collexa/console/internal/api"
)

// State is the lifecycle of the current subscription.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed  // remote finished cleanly
	StateErrored // dial or transport failure
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Event is one line of the live log buffer. Timestamps are opaque
// strings assigned by the producing process.
type Event struct {
	TS      string
	Level   string
	Message string
}

// Stream yields decoded frames from one live connection.
// *api.LogStream implements it.
type Stream interface {
	Next() (api.Frame, error)
	Close() error
}

// DialFunc opens a live stream for a run. Wrap an *api.Client with
// Dial, or inject a fake in tests.
type DialFunc func(ctx context.Context, runID string) (Stream, error)

// Dial adapts an *api.Client into a DialFunc.
func Dial(c *api.Client) DialFunc {
	return func(ctx context.Context, runID string) (Stream, error) {
		return c.StreamRunLogs(ctx, runID)
	}
}

// --- Bubble Tea messages ---

// OpenedMsg is sent when the stream's open handshake completes.
type OpenedMsg struct{ RunID string }

// EventMsg delivers one appended event.
type EventMsg struct {
	RunID string
	Event Event
}

// ClosedMsg is sent when the stream ends. Err is nil on a clean remote
// close and non-nil on dial or transport failure. The subscriber never
// reconnects on its own; recovery is the consumer re-subscribing.
type ClosedMsg struct {
	RunID string
	Err   error
}

// Subscriber accumulates events from at most one live stream.
//
// Consumers drive it with the two commands: Subscribe opens a stream
// and Wait pumps one event per invocation, re-armed from Update the
// same way a WebSocket read loop is. The event buffer is append-only
// and survives a dropped connection; it is discarded only when the run
// identifier changes or the consumer clears the subscription.
type Subscriber struct {
	dial DialFunc

	mu     sync.Mutex
	gen    int // bumped on every teardown; stale pumps drop their results
	runID  string
	stream Stream
	state  State
	events []Event
}

// New creates a Subscriber that opens streams through dial.
func New(dial DialFunc) *Subscriber {
	return &Subscriber{dial: dial}
}

// Subscribe switches the subscriber to the given run and returns the
// command that performs the dial. Any previous connection is closed
// before the command runs, so no event from the old stream can land
// once the switch has happened. Subscribing to the run that is already
// connecting or open is a no-op returning nil.
func (s *Subscriber) Subscribe(ctx context.Context, runID string) tea.Cmd {
	s.mu.Lock()
	if runID == s.runID && (s.state == StateConnecting || s.state == StateOpen) {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked()
	gen := s.gen
	s.runID = runID
	s.state = StateConnecting
	s.mu.Unlock()

	return func() tea.Msg {
		stream, err := s.dial(ctx, runID)

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			// Superseded while dialing: the result belongs to a dead
			// subscription.
			if err == nil {
				stream.Close()
			}
			return nil
		}
		if err != nil {
			s.state = StateErrored
			return ClosedMsg{RunID: runID, Err: err}
		}
		s.stream = stream
		s.state = StateOpen
		return OpenedMsg{RunID: runID}
	}
}

// Wait returns a command that blocks for the next frame, appends it to
// the buffer, and delivers it as an EventMsg. Start it after OpenedMsg
// and re-arm it after every EventMsg. Returns nil when no stream is
// open.
func (s *Subscriber) Wait() tea.Cmd {
	s.mu.Lock()
	stream := s.stream
	gen := s.gen
	s.mu.Unlock()
	if stream == nil {
		return nil
	}

	return func() tea.Msg {
		frame, err := stream.Next()

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return nil
		}
		if err != nil {
			stream.Close()
			if s.stream != stream {
				// Another pump already reported this stream's end.
				return nil
			}
			s.stream = nil
			if err == io.EOF {
				s.state = StateClosed
				return ClosedMsg{RunID: s.runID}
			}
			s.state = StateErrored
			return ClosedMsg{RunID: s.runID, Err: err}
		}
		ev := frameEvent(frame)
		s.events = append(s.events, ev)
		return EventMsg{RunID: s.runID, Event: ev}
	}
}

// Clear ends the subscription: the connection closes, the buffer
// empties, and the state returns to Idle.
func (s *Subscriber) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.runID = ""
}

// teardownLocked closes the current stream, invalidates in-flight
// pumps, and discards the buffer. Callers hold s.mu.
func (s *Subscriber) teardownLocked() {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	s.gen++
	s.state = StateIdle
	s.events = nil
}

// Events returns a copy of the ordered event buffer.
func (s *Subscriber) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the buffer length without copying.
func (s *Subscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Connected reports whether the stream is open right now.
func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen
}

// State returns the current subscription state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RunID returns the run the subscriber is scoped to, "" when idle.
func (s *Subscriber) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// frameEvent converts a wire frame into a buffer event. A complete
// frame becomes a single synthetic terminal event whose message embeds
// the run's serialized output.
func frameEvent(f api.Frame) Event {
	if f.Type == api.FrameComplete {
		return Event{TS: f.TS, Level: "info", Message: "complete: " + compactJSON(f.Output)}
	}
	level := f.Level
	if level == "" {
		level = "info"
	}
	return Event{TS: f.TS, Level: level, Message: f.Message}
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
