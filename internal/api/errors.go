package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a non-2xx platform response. The platform wraps error
// details as {"error":{"code","message"}}; when a body doesn't match
// that shape the raw body (truncated) becomes the message.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

const maxErrorBody = 4 * 1024

// readAPIError drains a failed response into an *APIError. The body is
// consumed so the transport can reuse the connection.
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get("X-Request-Id"),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
