// Package registry implements the first-class registry package source: a
// bare git-mirrored index repository holding per-package TOML version
// lists, and an HTTP API serving tarballs.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/pkgerrors"
	"github.com/pesde-pm/pesde/internal/project"
)

// ScopeInfoFile is the name of the file holding a scope's owner set.
const ScopeInfoFile = "scope.toml"

// IndexConfig is the index-wide configuration published at config.toml in
// the index repository's root.
type IndexConfig struct {
	API                   string `toml:"api"`
	Download              string `toml:"download"`
	GitAllowed            bool   `toml:"git_allowed"`
	OtherRegistriesAllowed bool  `toml:"other_registries_allowed"`
	MaxArchiveSize        int64  `toml:"max_archive_size"`
	OAuthClientID         string `toml:"client_id"`
}

// IndexFileEntry is one version's metadata as recorded in a package's
// `<scope>/<name>` index file.
type IndexFileEntry struct {
	Target       string                    `toml:"target"`
	PublishedAt  string                    `toml:"published_at"`
	Description  string                    `toml:"description"`
	License      string                    `toml:"license"`
	Dependencies map[string]toml.Primitive `toml:"dependencies"`
}

// IndexFile is the full per-package version list, keyed by the "1.2.3
// roblox" VersionId spelling.
type IndexFile map[string]IndexFileEntry

// mirrorDir returns the local path a registry's bare index mirror lives at,
// derived from hashing the index URL.
func mirrorDir(proj *project.Project, indexURL string) string {
	return filepath.Join(proj.IndicesDir(), project.IndexHash(indexURL))
}

// openOrCloneMirror opens the bare index mirror for indexURL, cloning it if
// it doesn't exist yet.
func openOrCloneMirror(indexURL string, dir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: opening index mirror: %w", pkgerrors.ErrGitTransport, err)
	}

	repo, err = git.PlainClone(dir, true, &git.CloneOptions{URL: indexURL})
	if err != nil {
		return nil, fmt.Errorf("%w: cloning index %s: %w", pkgerrors.ErrGitTransport, indexURL, err)
	}
	return repo, nil
}

// fetch brings an already-cloned bare mirror up to date with its origin
// remote, tolerating the already-up-to-date case.
func fetch(repo *git.Repository) error {
	err := repo.Fetch(&git.FetchOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: fetching index: %w", pkgerrors.ErrGitTransport, err)
	}
	return nil
}

// headTree returns the tree object for the repository's HEAD commit.
func headTree(repo *git.Repository) (*object.Tree, error) {
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving index HEAD: %w", pkgerrors.ErrGitTransport, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: reading index HEAD commit: %w", pkgerrors.ErrGitTransport, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: reading index HEAD tree: %w", pkgerrors.ErrGitTransport, err)
	}
	return tree, nil
}

// readFile reads a UTF-8 file at the given slash-separated path from the
// index repository's HEAD tree.
func readFile(repo *git.Repository, filePath string) (string, bool, error) {
	tree, err := headTree(repo)
	if err != nil {
		return "", false, err
	}

	f, err := tree.File(path.Clean(filePath))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: reading %s: %w", pkgerrors.ErrGitTransport, filePath, err)
	}

	r, err := f.Reader()
	if err != nil {
		return "", false, fmt.Errorf("%w: opening %s: %w", pkgerrors.ErrGitTransport, filePath, err)
	}
	defer func() { _ = r.Close() }()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", false, fmt.Errorf("%w: reading %s: %w", pkgerrors.ErrGitTransport, filePath, err)
	}
	return buf.String(), true, nil
}

// readConfig reads and parses config.toml from the index mirror.
func readConfig(repo *git.Repository) (IndexConfig, error) {
	content, ok, err := readFile(repo, "config.toml")
	if err != nil {
		return IndexConfig{}, err
	}
	if !ok {
		return IndexConfig{}, fmt.Errorf("%w: index config.toml missing", pkgerrors.ErrNotFound)
	}
	var cfg IndexConfig
	if _, err := toml.Decode(content, &cfg); err != nil {
		return IndexConfig{}, fmt.Errorf("%w: parsing index config: %w", pkgerrors.ErrDecode, err)
	}
	return cfg, nil
}

// readIndexFile reads and parses the version list for a package, returning
// the TOML metadata alongside it so each entry's dependency primitives can
// be decoded afterwards.
func readIndexFile(repo *git.Repository, name names.PackageName) (IndexFile, toml.MetaData, bool, error) {
	content, ok, err := readFile(repo, name.Scope()+"/"+name.Name())
	if err != nil || !ok {
		return nil, toml.MetaData{}, ok, err
	}

	raw := map[string]IndexFileEntry{}
	meta, err := toml.Decode(content, &raw)
	if err != nil {
		return nil, toml.MetaData{}, false, fmt.Errorf("%w: parsing index file for %s: %w", pkgerrors.ErrDecode, name, err)
	}
	return IndexFile(raw), meta, true, nil
}

// decodeEntryDependencies decodes an index entry's dependency table into
// aliased specifiers, reusing the manifest package's TOML variant-sniffing
// against the MetaData that originally decoded the whole index file.
func decodeEntryDependencies(meta toml.MetaData, entry IndexFileEntry) ([]manifest.AliasedSpecifier, error) {
	out := make([]manifest.AliasedSpecifier, 0, len(entry.Dependencies))
	for alias, prim := range entry.Dependencies {
		spec, err := manifest.DecodeSpecifier(meta, prim)
		if err != nil {
			return nil, fmt.Errorf("index dependency %q: %w", alias, err)
		}
		out = append(out, manifest.AliasedSpecifier{Alias: alias, Spec: spec, Kind: manifest.Normal})
	}
	return out, nil
}
