package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// FrameType tags a stream frame.
type FrameType string

const (
	// FrameLog carries one log line from the running agent.
	FrameLog FrameType = "log"
	// FrameComplete reports the run's final output. The remote side
	// may close the stream after sending it.
	FrameComplete FrameType = "complete"
)

// Frame is one decoded message from a run's live stream.
type Frame struct {
	Type    FrameType       `json:"type"`
	TS      string          `json:"ts,omitempty"`
	Level   string          `json:"level,omitempty"`
	Message string          `json:"message,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
}

// LogStream is a live server-sent-events connection to one run. It is
// exclusively owned by its subscriber; Close releases the connection.
type LogStream struct {
	runID   string
	body    io.ReadCloser
	scanner *sseScanner
	log     *zap.Logger
}

// StreamRunLogs opens the live log stream for a run. Credentials ride
// as query parameters because the push endpoint cannot receive custom
// headers from its browser consumers; this client follows the same
// wire contract. The session is resolved once, and a resolution error
// fails the call before any connection is attempted.
//
// The underlying transport carries no overall timeout: the stream
// stays open until the remote closes it, an error occurs, or ctx is
// canceled.
func (c *Client) StreamRunLogs(ctx context.Context, runID string) (*LogStream, error) {
	sess, err := c.source.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	q := url.Values{"token": {sess.AccessToken}}
	if team := c.resolveTeam(RequestOptions{}, sess); team != "" {
		q.Set("team", team)
	}
	u := fmt.Sprintf("%s/v1/runs/%s/stream?%s", c.baseURL, url.PathEscape(runID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream run %s: %w", runID, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("stream run %s: %w", runID, readAPIError(resp))
	}

	c.log.Debug("stream opened", zap.String("runId", runID))
	return &LogStream{
		runID:   runID,
		body:    resp.Body,
		scanner: newSSEScanner(resp.Body),
		log:     c.log,
	}, nil
}

// RunID returns the run this stream is scoped to.
func (s *LogStream) RunID() string { return s.runID }

// Next blocks until the next recognized frame arrives. Frames that
// fail to decode or carry an unknown type are skipped without error;
// the platform uses such frames as keep-alives, so tolerating them is
// part of the contract, not leniency. Next returns io.EOF when the
// remote closes the stream cleanly.
func (s *LogStream) Next() (Frame, error) {
	for s.scanner.Next() {
		var f Frame
		if err := json.Unmarshal([]byte(s.scanner.Event().Data), &f); err != nil {
			continue
		}
		switch f.Type {
		case FrameLog, FrameComplete:
			return f, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// Close terminates the connection. Safe to call more than once.
func (s *LogStream) Close() error {
	s.log.Debug("stream closed", zap.String("runId", s.runID))
	return s.body.Close()
}
