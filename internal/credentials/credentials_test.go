package credentials

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "collexa", "credentials.json"))
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(Credentials{AccessToken: "tok-1", TeamID: "team-1"}))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Credentials{AccessToken: "tok-1", TeamID: "team-1"}, creds)
}

func TestSaveRestrictsPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	store := tempStore(t)
	require.NoError(t, store.Save(Credentials{AccessToken: "secret"}))

	info, err := os.Stat(store.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadMissingFileMeansLoggedOut(t *testing.T) {
	store := tempStore(t)
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Zero(t, creds)
}

func TestSessionRereadsFile(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(Credentials{AccessToken: "old"}))

	sess, err := store.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", sess.AccessToken)

	// A login from another process is picked up on the next request.
	require.NoError(t, store.Save(Credentials{AccessToken: "new", TeamID: "team-2"}))
	sess, err = store.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", sess.AccessToken)
	assert.Equal(t, "team-2", sess.TeamID)
}

func TestSessionCorruptFileFails(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.path), 0o700))
	require.NoError(t, os.WriteFile(store.path, []byte("{truncated"), 0o600))

	_, err := store.Session(context.Background())
	require.Error(t, err)
}

func TestSetTeamKeepsToken(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(Credentials{AccessToken: "tok-1"}))
	require.NoError(t, store.SetTeam("team-9"))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", creds.AccessToken)
	assert.Equal(t, "team-9", creds.TeamID)
}

func TestClearIsIdempotent(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(Credentials{AccessToken: "tok"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Zero(t, creds)
}
