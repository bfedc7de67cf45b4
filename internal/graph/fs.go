// Package graph holds the shapes that flow between the resolver and the
// downloader: the dependency graph itself, and the content-hash-indexed
// file tree (PackageFS) each source produces once a package is fetched.
package graph

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EntryKind discriminates the two things a PackageFS path can be.
type EntryKind int

const (
	EntryDirectory EntryKind = iota
	EntryFile
)

// Entry is one node of a package's file tree: either a bare directory
// marker or a file recorded by the blake3 hash of its contents in the CAS.
type Entry struct {
	Kind EntryKind
	Hash string // set when Kind == EntryFile
}

// PackageFS is a package's file tree recorded by content hash against the
// CAS, keyed by slash-separated relative path.
type PackageFS map[string]Entry

// Paths returns the tree's paths in sorted order, directories before the
// files they contain would naturally sort, which is sufficient for
// deterministic materialization (mkdir before the files that need it).
func (fs PackageFS) Paths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Hashes returns every file hash referenced by the tree, for bulk CAS
// presence checks.
func (fs PackageFS) Hashes() []string {
	var hashes []string
	for _, e := range fs {
		if e.Kind == EntryFile {
			hashes = append(hashes, e.Hash)
		}
	}
	return hashes
}

type fsEntryJSON struct {
	Kind string `json:"kind"`
	Hash string `json:"hash,omitempty"`
}

// MarshalJSON renders the tree as the on-disk cached-PackageFS format.
func (fs PackageFS) MarshalJSON() ([]byte, error) {
	out := make(map[string]fsEntryJSON, len(fs))
	for path, entry := range fs {
		switch entry.Kind {
		case EntryDirectory:
			out[path] = fsEntryJSON{Kind: "directory"}
		case EntryFile:
			out[path] = fsEntryJSON{Kind: "file", Hash: entry.Hash}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads back a cached PackageFS.
func (fs *PackageFS) UnmarshalJSON(data []byte) error {
	var in map[string]fsEntryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(PackageFS, len(in))
	for path, e := range in {
		switch e.Kind {
		case "directory":
			out[path] = Entry{Kind: EntryDirectory}
		case "file":
			if e.Hash == "" {
				return fmt.Errorf("package fs entry %q: file with no hash", path)
			}
			out[path] = Entry{Kind: EntryFile, Hash: e.Hash}
		default:
			return fmt.Errorf("package fs entry %q: unknown kind %q", path, e.Kind)
		}
	}
	*fs = out
	return nil
}
