package api

import "context"

// Session is one resolved credential snapshot: an opaque bearer token
// issued by the identity provider plus the team selected in the
// platform console, when any. Sessions are never stored by the client;
// each request resolves a fresh one.
type Session struct {
	AccessToken string
	TeamID      string
}

// SessionSource resolves the current session. The client consults its
// source exactly once per dispatched request, so refreshed tokens and
// team switches take effect without rebuilding the client. A zero
// Session with a nil error means "no active session": requests go out
// unauthenticated rather than failing.
type SessionSource interface {
	Session(ctx context.Context) (Session, error)
}

// StaticSource is a SessionSource that returns the same session on
// every call. Used for token-flag invocations and tests.
type StaticSource Session

// Session implements SessionSource.
func (s StaticSource) Session(context.Context) (Session, error) {
	return Session(s), nil
}
