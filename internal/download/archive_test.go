package download

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestArchive(t *testing.T, entries map[string]string, dirs []string) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, dir := range dirs {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     dir + "/",
			Typeflag: tar.TypeDir,
			Mode:     0o755,
		}))
	}
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestUnpackStoresFilesAndDirectories(t *testing.T) {
	store, err := cas.New(t.TempDir())
	require.NoError(t, err)

	archivePath := buildTestArchive(t, map[string]string{
		"init.luau":     "return {}",
		"sub/other.luau": "return 1",
	}, []string{"sub"})

	fs, err := Unpack(store, archivePath)
	require.NoError(t, err)

	require.Contains(t, fs, "init.luau")
	assert.Equal(t, graph.EntryFile, fs["init.luau"].Kind)
	require.Contains(t, fs, "sub")
	assert.Equal(t, graph.EntryDirectory, fs["sub"].Kind)
	require.Contains(t, fs, "sub/other.luau")

	r, err := store.Open(fs["init.luau"].Hash)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
}

func TestMaterializeWritesTreeToDisk(t *testing.T) {
	store, err := cas.New(t.TempDir())
	require.NoError(t, err)

	archivePath := buildTestArchive(t, map[string]string{
		"init.luau": "return {}",
	}, nil)

	fs, err := Unpack(store, archivePath)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "pkg")
	require.NoError(t, Materialize(store, fs, dest))

	data, err := os.ReadFile(filepath.Join(dest, "init.luau"))
	require.NoError(t, err)
	assert.Equal(t, "return {}", string(data))
}

func TestUnpackDedupesIdenticalFiles(t *testing.T) {
	store, err := cas.New(t.TempDir())
	require.NoError(t, err)

	archivePath := buildTestArchive(t, map[string]string{
		"a.luau": "same content",
		"b.luau": "same content",
	}, nil)

	fs, err := Unpack(store, archivePath)
	require.NoError(t, err)

	assert.Equal(t, fs["a.luau"].Hash, fs["b.luau"].Hash)
}
