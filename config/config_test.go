package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInMemoryRoundTrip(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	assert.Equal(t, "default", s.FileGet("remote1", "type", "default"))
	require.NoError(t, s.FileSet("remote1", "type", "owncloud"))
	assert.Equal(t, "owncloud", s.FileGet("remote1", "type", "default"))
	assert.Equal(t, []string{"remote1"}, s.Sections())
}

func TestStorePersistsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocsync.conf")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.FileSet("remote1", "url", "https://example.com/dav"))
	require.NoError(t, s.FileSet("remote1", "user", "alice"))

	_, err = os.Stat(path)
	require.NoError(t, err, "FileSet should have written the file to disk")

	reloaded, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/dav", reloaded.FileGet("remote1", "url", ""))
	assert.Equal(t, "alice", reloaded.FileGet("remote1", "user", ""))
}

func TestStoreObscuredPassword(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	require.NoError(t, s.FileSetObscured("remote1", "pass", "hunter2"))

	raw := s.FileGet("remote1", "pass", "")
	assert.NotEqual(t, "hunter2", raw, "obscured password must not be stored in the clear")

	revealed, err := s.FileGetObscured("remote1", "pass")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", revealed)
}

func TestStoreDeleteKeyAndSection(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	require.NoError(t, s.FileSet("remote1", "type", "owncloud"))
	require.NoError(t, s.FileSet("remote1", "url", "https://example.com"))

	existed, err := s.FileDeleteKey("remote1", "type")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "", s.FileGet("remote1", "type", ""))

	existed, err = s.FileDeleteKey("remote1", "nope")
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, s.DeleteSection("remote1"))
	assert.Empty(t, s.Sections())
}

func TestStoreMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.conf")
	s, err := New(path)
	require.NoError(t, err)
	assert.Empty(t, s.Sections())
}
