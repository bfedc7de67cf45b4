package cas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	hash1, err := s.Store([]byte("hello world"))
	require.NoError(t, err)

	hash2, err := s.Store([]byte("hello world"))
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
	assert.True(t, s.Has(hash1))
}

func TestStoreDistinctContentDistinctHash(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	h1, err := s.Store([]byte("a"))
	require.NoError(t, err)
	h2, err := s.Store([]byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestOpenMissingHashReturnsErrNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open("deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenReturnsStoredContent(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	hash, err := s.Store([]byte("payload"))
	require.NoError(t, err)

	r, err := s.Open(hash)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data := make([]byte, len("payload"))
	n, err := r.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data[:n]))
}

func TestMaterializeHardlinksFromStore(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	hash, err := s.Store([]byte("shim contents"))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "nested", "shim.luau")
	require.NoError(t, s.Materialize(hash, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "shim contents", string(data))

	srcInfo, err := os.Stat(s.Path(hash))
	require.NoError(t, err)
	dstInfo, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestMaterializeMissingHashFails(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	err = s.Materialize("deadbeef", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMaterializeReplacesExistingDifferentFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	hash, err := s.Store([]byte("new content"))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(dest, []byte("old content"), 0o644))

	require.NoError(t, s.Materialize(hash, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))
}

func TestStoreFileHashesFromDisk(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "src.luau")
	require.NoError(t, os.WriteFile(src, []byte("return {}"), 0o644))

	hash, err := s.StoreFile(src)
	require.NoError(t, err)

	expected, err := s.Store([]byte("return {}"))
	require.NoError(t, err)
	assert.Equal(t, expected, hash)
}
