// Package credentials stores the session credential obtained at login.
// The file is consulted on every API request, so a token rewritten by
// `collexa login` or a team switch takes effect in already-running
// sessions without a restart. Nothing here talks to the identity
// provider; the token is minted in the platform web console.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/collexa/console/internal/api"
)

// Credentials is the stored session: the bearer token and the
// selected team, when one has been chosen.
type Credentials struct {
	AccessToken string `json:"accessToken"`
	TeamID      string `json:"teamId,omitempty"`
}

// DefaultPath returns the standard credentials location,
// $XDG_CONFIG_HOME/collexa/credentials.json or the platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "collexa", "credentials.json")
}

// Store reads and writes one credentials file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the stored credentials. A missing file returns zero
// Credentials and no error: not being logged in is a normal state.
func (s *Store) Load() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return creds, nil
}

// Save writes the credentials with owner-only permissions, creating
// the parent directory if needed.
func (s *Store) Save(creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(data, '\n'), 0o600)
}

// Clear deletes the stored credentials. Clearing an absent file is
// not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// SetTeam updates only the selected team, keeping the token.
func (s *Store) SetTeam(teamID string) error {
	creds, err := s.Load()
	if err != nil {
		return err
	}
	creds.TeamID = teamID
	return s.Save(creds)
}

// Session implements api.SessionSource by re-reading the file. A
// corrupt file is an error, which fails the request before any network
// I/O rather than sending it unauthenticated.
func (s *Store) Session(context.Context) (api.Session, error) {
	creds, err := s.Load()
	if err != nil {
		return api.Session{}, err
	}
	return api.Session{AccessToken: creds.AccessToken, TeamID: creds.TeamID}, nil
}
