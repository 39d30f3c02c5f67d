package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer serves the given pre-formatted SSE chunks and closes.
func sseServer(t *testing.T, onRequest func(*http.Request), chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onRequest != nil {
			onRequest(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			fmt.Fprint(w, chunk)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// drain reads frames until the stream ends.
func drain(t *testing.T, s *LogStream) []Frame {
	t.Helper()
	var frames []Frame
	for {
		f, err := s.Next()
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func TestStreamDecodesFramesInOrder(t *testing.T) {
	srv := sseServer(t, nil,
		"data: {\"type\":\"log\",\"ts\":\"t1\",\"level\":\"info\",\"message\":\"hello\"}\n\n",
		"data: {\"type\":\"log\",\"ts\":\"t2\",\"level\":\"warn\",\"message\":\"careful\"}\n\n",
		"data: {\"type\":\"complete\",\"ts\":\"t3\",\"output\":{\"ok\":true}}\n\n",
	)
	c := New(srv.URL, StaticSource{AccessToken: "tok"})

	stream, err := c.StreamRunLogs(context.Background(), "run-1")
	require.NoError(t, err)
	defer stream.Close()

	frames := drain(t, stream)
	require.Len(t, frames, 3)
	assert.Equal(t, FrameLog, frames[0].Type)
	assert.Equal(t, "hello", frames[0].Message)
	assert.Equal(t, "t1", frames[0].TS)
	assert.Equal(t, "careful", frames[1].Message)
	assert.Equal(t, FrameComplete, frames[2].Type)
	assert.JSONEq(t, `{"ok":true}`, string(frames[2].Output))
}

func TestStreamSkipsNoise(t *testing.T) {
	srv := sseServer(t, nil,
		"data: {\"type\":\"log\",\"message\":\"first\"}\n\n",
		": keep-alive\n\n",
		"data: not json at all\n\n",
		"data: {\"type\":\"heartbeat\"}\n\n",
		"data: {\"type\":\"log\",\"message\":\"second\"}\n\n",
	)
	c := New(srv.URL, StaticSource{AccessToken: "tok"})

	stream, err := c.StreamRunLogs(context.Background(), "run-1")
	require.NoError(t, err)
	defer stream.Close()

	frames := drain(t, stream)
	require.Len(t, frames, 2)
	assert.Equal(t, "first", frames[0].Message)
	assert.Equal(t, "second", frames[1].Message)
}

func TestStreamJoinsMultilineData(t *testing.T) {
	srv := sseServer(t, nil,
		"data: {\"type\":\"log\",\ndata: \"message\":\"split\"}\n\n",
	)
	c := New(srv.URL, StaticSource{AccessToken: "tok"})

	stream, err := c.StreamRunLogs(context.Background(), "run-1")
	require.NoError(t, err)
	defer stream.Close()

	frames := drain(t, stream)
	require.Len(t, frames, 1)
	assert.Equal(t, "split", frames[0].Message)
}

func TestStreamCredentialsRideAsQueryParams(t *testing.T) {
	var gotQuery url.Values
	var gotAuth string
	var gotPath string
	srv := sseServer(t, func(r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
	})
	c := New(srv.URL, StaticSource{AccessToken: "tok-stream", TeamID: "team-7"})

	stream, err := c.StreamRunLogs(context.Background(), "run-42")
	require.NoError(t, err)
	stream.Close()

	assert.Equal(t, "/v1/runs/run-42/stream", gotPath)
	assert.Equal(t, "tok-stream", gotQuery.Get("token"))
	assert.Equal(t, "team-7", gotQuery.Get("team"))
	assert.Empty(t, gotAuth, "push endpoint takes credentials as params, not headers")
}

func TestStreamOmitsTeamParamWithoutTeam(t *testing.T) {
	var gotQuery url.Values
	srv := sseServer(t, func(r *http.Request) { gotQuery = r.URL.Query() })
	c := New(srv.URL, StaticSource{AccessToken: "tok"})

	stream, err := c.StreamRunLogs(context.Background(), "run-1")
	require.NoError(t, err)
	stream.Close()

	_, present := gotQuery["team"]
	assert.False(t, present)
}

func TestStreamSessionFailureBlocksConnection(t *testing.T) {
	hits := 0
	srv := sseServer(t, func(*http.Request) { hits++ })
	src := &countingSource{err: errors.New("token refresh failed")}
	c := New(srv.URL, src)

	_, err := c.StreamRunLogs(context.Background(), "run-1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "resolve session")
	assert.Equal(t, 0, hits)
}

func TestStreamRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"invalid_token","message":"token expired"}}`))
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, StaticSource{AccessToken: "stale"})

	_, err := c.StreamRunLogs(context.Background(), "run-1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid_token", apiErr.Code)
}
