package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collexa/console/internal/api"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// Client manages the WebSocket connection to the platform event feed.
type Client struct {
	url    string
	source api.SessionSource
	log    *zap.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes (ping, resync)
	conn    *websocket.Conn
	seq     uint64
	pingCtx context.CancelFunc // cancels the active ping goroutine
}

// NewClient creates a client for the given ws:// or wss:// URL.
// Credentials are resolved through source on every connection attempt,
// so a token refreshed mid-session is used by the next reconnect.
func NewClient(url string, source api.SessionSource, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{url: url, source: source, log: log}
}

// --- Bubble Tea messages ---

// ConnectedMsg is sent when the feed connects.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection drops.
type DisconnectedMsg struct{ Err error }

// SnapshotMsg delivers the full run and agent listing.
type SnapshotMsg struct{ Payload SnapshotPayload }

// RunMsg delivers one run update.
type RunMsg struct{ Payload RunPayload }

// AgentMsg delivers one agent update.
type AgentMsg struct{ Payload AgentPayload }

// ErrorMsg wraps a server-side error.
type ErrorMsg struct{ Raw json.RawMessage }

// Listen returns a Bubble Tea command that connects and reports
// ConnectedMsg. It retries with exponential backoff until the context
// is done, resolving fresh credentials for each attempt.
func (c *Client) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, err := c.dial(ctx)
			if err != nil {
				c.log.Debug("events dial failed",
					zap.Error(err),
					zap.Duration("retryIn", delay))
				time.Sleep(delay)
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			// Cancel any previous ping goroutine.
			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.seq = 0
			c.pingCtx = pingCancel
			c.mu.Unlock()

			// Start a single ping ticker for this connection.
			go c.pingLoop(pingCtx, conn)

			return ConnectedMsg{}
		}
	}
}

// dial resolves the session and opens one authenticated connection.
// The feed endpoint takes credentials as query parameters, like the
// run stream.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	sess, err := c.source.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", sess.AccessToken)
	if sess.TeamID != "" {
		q.Set("team", sess.TeamID)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// ReadLoop returns a Bubble Tea command that reads one dispatched
// message from the connection. Start it after ConnectedMsg and re-arm
// it after every delivered message.
func (c *Client) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: fmt.Errorf("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}

			var msg Envelope
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}

			c.mu.Lock()
			c.seq = msg.Seq
			c.mu.Unlock()

			teaMsg := dispatch(msg)
			if teaMsg != nil {
				return teaMsg
			}
		}
	}
}

// pingLoop sends periodic pings on the given connection. It exits when
// the context is cancelled or the connection changes.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Resync asks the server for a fresh snapshot.
func (c *Client) Resync() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(map[string]string{"type": "resync"})
}

// Seq returns the last seen sequence number.
func (c *Client) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// dispatch converts one envelope into its Bubble Tea message. Unknown
// types and undecodable payloads return nil and are skipped.
func dispatch(msg Envelope) tea.Msg {
	switch msg.Type {
	case MsgSnapshot:
		var p SnapshotPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return SnapshotMsg{Payload: p}
		}
	case MsgRun:
		var p RunPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return RunMsg{Payload: p}
		}
	case MsgAgent:
		var p AgentPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return AgentMsg{Payload: p}
		}
	case MsgError:
		return ErrorMsg{Raw: msg.Payload}
	}
	return nil
}
