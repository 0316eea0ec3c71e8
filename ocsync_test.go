package ocsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeRemote() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
	})
	return httptest.NewServer(mux)
}

func TestNewRejectsEmptyArgs(t *testing.T) {
	_, err := New("", "owncloud://example.com/dav")
	assert.Error(t, err)

	_, err = New("/tmp/sync-root", "")
	assert.Error(t, err)
}

func TestNewAppliesOptions(t *testing.T) {
	s, err := New("/tmp/sync-root", "owncloud://example.com/dav",
		WithCredentials("alice", "hunter2"),
		WithConfigPath(filepath.Join(t.TempDir(), "ocsync.conf")),
	)
	require.NoError(t, err)
	assert.NotNil(t, s.Session())
}

func TestNewAcceptsWithMaxConnections(t *testing.T) {
	s, err := New("/tmp/sync-root", "owncloud://example.com/dav", WithMaxConnections(2))
	require.NoError(t, err)
	assert.NotNil(t, s.Session())
}

func TestInitConnectsSessionAndLoadsStore(t *testing.T) {
	srv := newFakeRemote()
	defer srv.Close()

	remoteURL := "owncloud://" + strings.TrimPrefix(srv.URL, "http://")
	configPath := filepath.Join(t.TempDir(), "ocsync.conf")

	s, err := New("/tmp/sync-root", remoteURL, WithConfigPath(configPath))
	require.NoError(t, err)

	require.NoError(t, s.Init(context.Background()))
	assert.NotNil(t, s.ConfigStore())

	require.NoError(t, s.ConfigStore().FileSet("remote1", "url", remoteURL))
	assert.Equal(t, remoteURL, s.ConfigStore().FileGet("remote1", "url", ""))
}

func TestUnimplementedEngineOperations(t *testing.T) {
	srv := newFakeRemote()
	defer srv.Close()

	remoteURL := "owncloud://" + strings.TrimPrefix(srv.URL, "http://")
	s, err := New("/tmp/sync-root", remoteURL)
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, s.Update(ctx), ErrNotImplemented)
	assert.ErrorIs(t, s.Reconcile(ctx), ErrNotImplemented)
	assert.ErrorIs(t, s.Propagate(ctx), ErrNotImplemented)
}

func TestDestroyClearsSession(t *testing.T) {
	s, err := New("/tmp/sync-root", "owncloud://example.com/dav")
	require.NoError(t, err)
	require.NoError(t, s.Destroy(context.Background()))
	assert.Nil(t, s.Session())
}
