// Package cas implements the content-addressable store that backs the
// package file system (CAS): every file pesde ever downloads or generates is
// written once, keyed by its blake3 hash, and every on-disk package tree is
// materialized from the store by hard-linking rather than copying.
package cas

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
)

// ErrNotFound is returned when a hash has no corresponding blob in the store.
var ErrNotFound = errors.New("cas: content not found")

// Store is a directory-backed content-addressable store. Blobs are written
// once and never modified or deleted; the same content always resolves to
// the same path, so concurrent writers racing to store identical bytes is
// safe and cheap.
type Store struct {
	dir string

	// linkMu serializes the check-then-link sequence in Materialize so two
	// goroutines populating the same destination concurrently can't race.
	linkMu sync.Mutex
}

// New opens (creating if necessary) a content-addressable store rooted at
// dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cas: creating store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Hash returns the blake3 hex digest of data, the identifier under which
// Store will place it.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// path returns the blob's location, sharded by the first two hex digits of
// its hash to keep any one directory from accumulating too many entries.
func (s *Store) path(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.dir, "_short", hash)
	}
	return filepath.Join(s.dir, hash[:2], hash)
}

// Has reports whether hash is already present in the store.
func (s *Store) Has(hash string) bool {
	_, err := os.Stat(s.path(hash))
	return err == nil
}

// Path returns the store-internal path for hash, for callers (the linker,
// the downloader) that need to hard-link it directly rather than reading it
// back through Open. It does not check that the blob exists.
func (s *Store) Path(hash string) string {
	return s.path(hash)
}

// Store writes data into the store under its blake3 hash, returning that
// hash. Writing already-present content is a cheap no-op beyond the hash
// computation.
func (s *Store) Store(data []byte) (string, error) {
	hash := Hash(data)
	dst := s.path(hash)

	if _, err := os.Stat(dst); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("cas: creating shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "blob-*.tmp")
	if err != nil {
		return "", fmt.Errorf("cas: creating temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("cas: writing temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("cas: closing temp blob: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		// Another writer may have won the race for the same content; that's
		// fine, the content is identical by construction of the hash.
		if _, statErr := os.Stat(dst); statErr == nil {
			return hash, nil
		}
		return "", fmt.Errorf("cas: finalizing blob: %w", err)
	}

	return hash, nil
}

// StoreFile hashes and stores the file at src, returning its hash.
func (s *Store) StoreFile(src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("cas: reading %s: %w", src, err)
	}
	return s.Store(data)
}

// Open returns a reader for the blob stored under hash.
func (s *Store) Open(hash string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Materialize places the content addressed by hash at dest, hard-linking
// from the store when possible and falling back to a copy when dest is on a
// different filesystem. If dest already exists and already points at the
// same content (same inode), nothing is done; otherwise it is replaced.
func (s *Store) Materialize(hash, dest string) error {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	src := s.path(hash)
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, hash)
	} else if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("cas: creating destination dir: %w", err)
	}

	if err := ensureHardlink(src, dest); err != nil {
		if errors.Is(err, syscallCrossDevice) {
			return copyFile(src, dest)
		}
		return err
	}
	return nil
}
