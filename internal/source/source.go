// Package source declares the uniform package-source abstraction: refresh,
// resolve, download. The four concrete sources (registry, compat,
// gitsource, workspace) each implement Source; callers dispatch on
// graph.SourceKind rather than relying on dynamic typing, since the set is
// closed and known ahead of time.
package source

import (
	"context"

	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/download"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/project"
)

// PackageRef is a resolved, source-specific handle sufficient to download a
// package: enough to dispatch at download time without re-resolving, plus
// everything the resolver needs to expand this package's own edges.
type PackageRef struct {
	Kind graph.SourceKind

	// Target is this package's declared build profile, already known at
	// resolve time for every source except the compat registry (where it's
	// discovered during download via the sourcemap generator script).
	Target manifest.Target

	// Dependencies are this package's own declared edges, to be expanded by
	// the resolver's work queue.
	Dependencies []manifest.AliasedSpecifier

	// UseNewStructure selects the modern (siblings-of-consumer) linking
	// layout over the legacy (one-level-deeper) layout.
	UseNewStructure bool

	// LikeCompat marks a package as having been sourced from the
	// compatibility registry, which the linker treats as using legacy
	// structure regardless of UseNewStructure.
	LikeCompat bool

	// IndexURL is set for Registry and Compat refs.
	IndexURL string

	// RepoURL, Revision, Subpath are set for Git refs.
	RepoURL  string
	Revision string
	Subpath  string

	// MemberPath is set for Workspace refs: the on-disk path of the sibling
	// package's root.
	MemberPath string
}

// Source is the uniform interface each of the four package-source variants
// implements.
type Source interface {
	Kind() graph.SourceKind

	// Refresh ensures the source's local view (an index mirror, mainly) is
	// current. Must be idempotent and safe to call concurrently; callers
	// are expected to dedup calls across a single run themselves.
	Refresh(ctx context.Context, proj *project.Project) error

	// Resolve returns every version of the named package compatible with
	// consumerKind that satisfies spec.
	Resolve(ctx context.Context, spec manifest.Specifier, proj *project.Project, consumerKind names.TargetKind) (names.PackageName, map[names.VersionId]PackageRef, error)

	// Download fetches the package, populates the CAS, and returns its file
	// tree plus resolved Target.
	Download(ctx context.Context, name names.PackageName, version names.VersionId, ref PackageRef, proj *project.Project, store *cas.Store, dl *download.Downloader) (graph.PackageFS, manifest.Target, error)
}
