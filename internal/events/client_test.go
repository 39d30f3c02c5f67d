package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collexa/console/internal/api"
)

// feedServer upgrades one connection, records its query, writes the
// given raw frames, and holds the connection open until the client
// goes away.
func feedServer(t *testing.T, frames []string) (*httptest.Server, *url.Values) {
	t.Helper()
	var gotQuery url.Values
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		conn.ReadMessage() // park until the peer disconnects
	}))
	t.Cleanup(srv.Close)
	return srv, &gotQuery
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListenAuthenticatesViaQueryParams(t *testing.T) {
	srv, gotQuery := feedServer(t, nil)
	c := NewClient(wsURL(srv), api.StaticSource{AccessToken: "tok-9", TeamID: "team-3"}, nil)

	msg := c.Listen(context.Background())()
	require.Equal(t, ConnectedMsg{}, msg)
	assert.Equal(t, "tok-9", gotQuery.Get("token"))
	assert.Equal(t, "team-3", gotQuery.Get("team"))
}

func TestReadLoopDispatchesAndSkipsNoise(t *testing.T) {
	srv, _ := feedServer(t, []string{
		`{"type":"snapshot","seq":1,"payload":{"runs":[{"id":"run-1","agentId":"a1","status":"running","startedAt":"2026-08-25T10:00:00Z"}],"agents":[]}}`,
		`this is not json`,
		`{"type":"mystery","seq":2,"payload":{}}`,
		`{"type":"run","seq":3,"payload":{"run":{"id":"run-1","agentId":"a1","status":"succeeded","startedAt":"2026-08-25T10:00:00Z"}}}`,
	})
	c := NewClient(wsURL(srv), api.StaticSource{AccessToken: "tok"}, nil)

	require.Equal(t, ConnectedMsg{}, c.Listen(context.Background())())

	msg := c.ReadLoop(context.Background())()
	snap, ok := msg.(SnapshotMsg)
	require.True(t, ok, "first message should be the snapshot, got %T", msg)
	require.Len(t, snap.Payload.Runs, 1)
	assert.Equal(t, api.RunRunning, snap.Payload.Runs[0].Status)

	// Noise between snapshot and update is consumed inside the loop.
	msg = c.ReadLoop(context.Background())()
	run, ok := msg.(RunMsg)
	require.True(t, ok, "second message should be the run update, got %T", msg)
	assert.Equal(t, api.RunSucceeded, run.Payload.Run.Status)
	assert.Equal(t, uint64(3), c.Seq())
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want any
	}{
		{
			name: "snapshot",
			env:  Envelope{Type: MsgSnapshot, Payload: json.RawMessage(`{"runs":[],"agents":[]}`)},
			want: SnapshotMsg{},
		},
		{
			name: "agent removal",
			env:  Envelope{Type: MsgAgent, Payload: json.RawMessage(`{"agent":{"id":"a1"},"removed":true}`)},
			want: AgentMsg{},
		},
		{
			name: "server error passes through raw",
			env:  Envelope{Type: MsgError, Payload: json.RawMessage(`{"message":"overload"}`)},
			want: ErrorMsg{},
		},
		{
			name: "unknown type dropped",
			env:  Envelope{Type: "telemetry", Payload: json.RawMessage(`{}`)},
			want: nil,
		},
		{
			name: "undecodable payload dropped",
			env:  Envelope{Type: MsgRun, Payload: json.RawMessage(`"not an object"`)},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dispatch(tt.env)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.IsType(t, tt.want, got)
		})
	}
}
