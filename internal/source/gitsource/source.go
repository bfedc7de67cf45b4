// Package gitsource implements the git package source: an arbitrary
// repository pinned to a revision, optionally rooted at a sub-path, read as
// if it were an already-unpacked package.
package gitsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/download"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/pkgerrors"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/source"
)

// Source is the git package source.
type Source struct{}

var _ source.Source = (*Source)(nil)

func New() *Source { return &Source{} }

func (s *Source) Kind() graph.SourceKind { return graph.SourceGit }

// Refresh is a no-op: each git dependency pins its own revision and is
// fetched fresh on resolve, so there is no shared index state to keep
// current.
func (s *Source) Refresh(ctx context.Context, proj *project.Project) error { return nil }

func mirrorDir(proj *project.Project, repoURL string) string {
	return filepath.Join(proj.IndicesDir(), "git", project.IndexHash(repoURL))
}

func openOrCloneMirror(repoURL, dir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err == nil {
		return repo, nil
	}
	repo, err = git.PlainClone(dir, true, &git.CloneOptions{URL: repoURL})
	if err != nil {
		return nil, fmt.Errorf("%w: cloning %s: %w", pkgerrors.ErrGitTransport, repoURL, err)
	}
	return repo, nil
}

// checkout materializes the repository at revision into a fresh scratch
// worktree directory and returns its path; the caller owns cleanup.
func checkout(repoURL, revision string) (string, error) {
	scratch, err := os.MkdirTemp("", "pesde-git-checkout-*")
	if err != nil {
		return "", fmt.Errorf("creating scratch checkout dir: %w", err)
	}

	repo, err := git.PlainClone(scratch, false, &git.CloneOptions{URL: repoURL})
	if err != nil {
		_ = os.RemoveAll(scratch)
		return "", fmt.Errorf("%w: cloning %s: %w", pkgerrors.ErrGitTransport, repoURL, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		_ = os.RemoveAll(scratch)
		return "", fmt.Errorf("%w: opening worktree: %w", pkgerrors.ErrGitTransport, err)
	}

	hash := plumbing.NewHash(revision)
	if hash.IsZero() {
		ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", revision), true)
		if err != nil {
			_ = os.RemoveAll(scratch)
			return "", fmt.Errorf("%w: resolving revision %s: %w", pkgerrors.ErrGitTransport, revision, err)
		}
		hash = ref.Hash()
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash}); err != nil {
		_ = os.RemoveAll(scratch)
		return "", fmt.Errorf("%w: checking out %s: %w", pkgerrors.ErrGitTransport, revision, err)
	}

	return scratch, nil
}

// Resolve clones the repository at the pinned revision just far enough to
// read its manifest, since a git dependency has exactly one version: the
// one committed at that revision.
func (s *Source) Resolve(ctx context.Context, spec manifest.Specifier, proj *project.Project, consumerKind names.TargetKind) (names.PackageName, map[names.VersionId]source.PackageRef, error) {
	gitSpec, ok := spec.(manifest.GitSpecifier)
	if !ok {
		return names.PackageName{}, nil, fmt.Errorf("git source given non-git specifier %q", spec.Describe())
	}

	scratch, err := checkout(gitSpec.RepoURL, gitSpec.Rev)
	if err != nil {
		return names.PackageName{}, nil, err
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	root := scratch
	if gitSpec.Subpath != "" {
		root = filepath.Join(scratch, filepath.FromSlash(gitSpec.Subpath))
	}

	m, err := manifest.Load(filepath.Join(root, manifest.FileName))
	if err != nil {
		return names.PackageName{}, nil, fmt.Errorf("reading manifest at %s: %w", gitSpec.RepoURL, err)
	}

	version, err := parseVersion(m.Version)
	if err != nil {
		return names.PackageName{}, nil, err
	}
	versionID := names.NewVersionId(version, m.Target.Kind)

	if !consumerKind.CompatibleWith(m.Target.Kind) {
		return names.PackageName{}, nil, fmt.Errorf("%w: %s is not compatible with consumer target", pkgerrors.ErrPolicyViolation, m.Name)
	}

	deps, err := m.AllDependencies()
	if err != nil {
		return names.PackageName{}, nil, err
	}

	ref := source.PackageRef{
		Kind:            graph.SourceGit,
		Target:          m.Target,
		Dependencies:    nonDevDependencies(deps),
		UseNewStructure: true,
		RepoURL:         gitSpec.RepoURL,
		Revision:        gitSpec.Rev,
		Subpath:         gitSpec.Subpath,
	}

	return m.Name, map[names.VersionId]source.PackageRef{versionID: ref}, nil
}

// Download re-checks out the pinned revision and feeds every file under the
// (optional) sub-path into the CAS by content.
func (s *Source) Download(ctx context.Context, name names.PackageName, version names.VersionId, ref source.PackageRef, proj *project.Project, store *cas.Store, dl *download.Downloader) (graph.PackageFS, manifest.Target, error) {
	scratch, err := checkout(ref.RepoURL, ref.Revision)
	if err != nil {
		return nil, manifest.Target{}, err
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	root := scratch
	if ref.Subpath != "" {
		root = filepath.Join(scratch, filepath.FromSlash(ref.Subpath))
	}

	fs := make(graph.PackageFS)
	err = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.Name() == ".git" {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			fs[rel] = graph.Entry{Kind: graph.EntryDirectory}
			return nil
		}
		hash, err := store.StoreFile(p)
		if err != nil {
			return err
		}
		fs[rel] = graph.Entry{Kind: graph.EntryFile, Hash: hash}
		return nil
	})
	if err != nil {
		return nil, manifest.Target{}, fmt.Errorf("walking git checkout: %w", err)
	}

	return fs, ref.Target, nil
}

func parseVersion(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

func nonDevDependencies(deps []manifest.AliasedSpecifier) []manifest.AliasedSpecifier {
	out := make([]manifest.AliasedSpecifier, 0, len(deps))
	for _, d := range deps {
		if d.Kind != manifest.Dev {
			out = append(out, d)
		}
	}
	return out
}
