package api

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event: the optional "event:" type and
// the payload assembled from its "data:" lines.
type sseEvent struct {
	Type string
	Data string
}

// sseScanner splits a server-sent-events body into events. Events are
// delimited by blank lines; multiple data lines within one event join
// with "\n"; comment lines (leading ":") and unknown fields are
// skipped, which is how the platform's keep-alives arrive.
type sseScanner struct {
	r       *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at end of stream
// or on a read error; Err distinguishes the two.
func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = sseEvent{}

	var data []string
	var eventType string

	for {
		line, err := s.r.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && len(data) > 0 {
				// Stream ended mid-event: emit what accumulated.
				s.current = sseEvent{Type: eventType, Data: strings.Join(data, "\n")}
				s.err = io.EOF
				return true
			}
			s.err = err
			return false
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				s.current = sseEvent{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if ok {
			// One leading space after the colon is part of the syntax.
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			eventType = value
		}
	}
}

// Event returns the event parsed by the last successful Next.
func (s *sseScanner) Event() sseEvent { return s.current }

// Err returns the read error that stopped scanning, nil on clean EOF.
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
