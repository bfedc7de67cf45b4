// Package compat implements the compatibility-registry package source: a
// second git-mirrored index repository and tarball API, shaped after an
// older package manager's format that never recorded its own TargetKind.
package compat

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

// IndexConfig is the compat index's config.toml, the same shape as the
// first-class registry's.
type IndexConfig struct {
	API            string `toml:"api"`
	Download       string `toml:"download"`
	MaxArchiveSize int64  `toml:"max_archive_size"`
}

// IndexFileEntry is one version's metadata. Unlike the first-class
// registry's index entries, there is no target field: the older format
// never described its own TargetKind.
type IndexFileEntry struct {
	Dependencies       map[string]toml.Primitive `toml:"dependencies"`
	ServerDependencies map[string]toml.Primitive `toml:"server-dependencies"`
	DevDependencies    map[string]toml.Primitive `toml:"dev-dependencies"`
}

// IndexFile is the full per-package version list, keyed by bare semver
// string (no " <target>" suffix, since there is no recorded target).
type IndexFile map[string]IndexFileEntry

func mirrorDir(proj *project.Project, indexURL string) string {
	return filepath.Join(proj.IndicesDir(), "compat", project.IndexHash(indexURL))
}

func openOrCloneMirror(indexURL, dir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: opening compat index mirror: %w", pkgerrors.ErrGitTransport, err)
	}
	repo, err = git.PlainClone(dir, true, &git.CloneOptions{URL: indexURL})
	if err != nil {
		return nil, fmt.Errorf("%w: cloning compat index %s: %w", pkgerrors.ErrGitTransport, indexURL, err)
	}
	return repo, nil
}

func fetch(repo *git.Repository) error {
	err := repo.Fetch(&git.FetchOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: fetching compat index: %w", pkgerrors.ErrGitTransport, err)
	}
	return nil
}

func headTree(repo *git.Repository) (*object.Tree, error) {
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving compat index HEAD: %w", pkgerrors.ErrGitTransport, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: reading compat index HEAD commit: %w", pkgerrors.ErrGitTransport, err)
	}
	return commit.Tree()
}

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

func readConfig(repo *git.Repository) (IndexConfig, error) {
	content, ok, err := readFile(repo, "config.toml")
	if err != nil {
		return IndexConfig{}, err
	}
	if !ok {
		return IndexConfig{}, fmt.Errorf("%w: compat index config.toml missing", pkgerrors.ErrNotFound)
	}
	var cfg IndexConfig
	if _, err := toml.Decode(content, &cfg); err != nil {
		return IndexConfig{}, fmt.Errorf("%w: parsing compat index config: %w", pkgerrors.ErrDecode, err)
	}
	return cfg, nil
}

func readIndexFile(repo *git.Repository, name names.PackageName) (IndexFile, toml.MetaData, bool, error) {
	content, ok, err := readFile(repo, name.Scope()+"/"+name.Name())
	if err != nil || !ok {
		return nil, toml.MetaData{}, ok, err
	}

	raw := map[string]IndexFileEntry{}
	meta, err := toml.Decode(content, &raw)
	if err != nil {
		return nil, toml.MetaData{}, false, fmt.Errorf("%w: parsing compat index file for %s: %w", pkgerrors.ErrDecode, name, err)
	}
	return IndexFile(raw), meta, true, nil
}

// decodeEntryDependencies flattens an entry's three dependency tables into
// aliased specifiers, same as the first-class registry source.
func decodeEntryDependencies(meta toml.MetaData, entry IndexFileEntry) ([]manifest.AliasedSpecifier, error) {
	out := make([]manifest.AliasedSpecifier, 0, len(entry.Dependencies)+len(entry.ServerDependencies)+len(entry.DevDependencies))

	add := func(table map[string]toml.Primitive, kind manifest.DependencyKind) error {
		for alias, prim := range table {
			spec, err := manifest.DecodeSpecifier(meta, prim)
			if err != nil {
				return fmt.Errorf("compat index dependency %q: %w", alias, err)
			}
			out = append(out, manifest.AliasedSpecifier{Alias: alias, Spec: spec, Kind: kind})
		}
		return nil
	}

	if err := add(entry.Dependencies, manifest.Normal); err != nil {
		return nil, err
	}
	if err := add(entry.ServerDependencies, manifest.Normal); err != nil {
		return nil, err
	}
	if err := add(entry.DevDependencies, manifest.Dev); err != nil {
		return nil, err
	}
	return out, nil
}
