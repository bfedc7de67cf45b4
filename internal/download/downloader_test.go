package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloaderFetchesToDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("archive contents"))
	}))
	defer srv.Close()

	d := New(context.Background(), srv.Client(), 2)
	defer d.Shutdown()

	dest := filepath.Join(t.TempDir(), "pkg.tar.gz")
	group := d.Fetch(context.Background(), &Request{URL: srv.URL, Destination: dest})
	results, err := group.Wait()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, dest, results[0].Destination())
}

func TestDownloaderDedupesConcurrentFetchesToSameDestination(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("archive contents"))
	}))
	defer srv.Close()

	d := New(context.Background(), srv.Client(), 4)
	defer d.Shutdown()

	dest := filepath.Join(t.TempDir(), "pkg.tar.gz")
	group := d.Fetch(context.Background(),
		&Request{URL: srv.URL, Destination: dest},
		&Request{URL: srv.URL, Destination: dest},
	)
	_, err := group.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}
