// Package installer drives the fixed-size worker pool that turns a resolved
// DependencyGraph into a populated, on-disk package tree: one container
// folder per (name, version) under the root project's packages folders,
// each filled by its source's Download and materialized out of the CAS.
package installer

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/download"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/source"
)

// SourceForRef resolves an already-picked PackageRef back to the Source
// implementation that can download it, dispatching on ref.Kind rather than
// re-inspecting a manifest.Specifier the way the resolver's SourceFor does.
type SourceForRef func(ref graph.PackageRef) (source.Source, error)

// Download fans the graph's nodes out across a pool of size threads, one
// task per (name, version). Every source is refreshed at most once across
// the call, guarded by a mutex (mirroring, but not sharing, the resolver's
// own per-run refresh dedup: a node downloaded here may come from a source
// the resolver never touched, e.g. one reused unchanged from a prior
// lockfile). The first task to fail cancels acceptance of further results;
// tasks already in flight are allowed to finish, and their results are
// discarded.
func Download(ctx context.Context, proj *project.Project, rootManifest *manifest.Manifest, g graph.DependencyGraph, store *cas.Store, dl *download.Downloader, sourceFor SourceForRef, threads int) (graph.DownloadedGraph, error) {
	if threads <= 0 {
		threads = 1
	}

	pool := pond.NewPool(threads, pond.WithContext(ctx), pond.WithoutPanicRecovery())
	defer pool.StopAndWait()

	group := pool.NewGroup()

	var (
		refreshMu sync.Mutex
		refreshed = map[string]bool{}

		resultMu sync.Mutex
		result   = make(graph.DownloadedGraph)
	)

	for pkgName, versions := range g {
		for versionID, node := range versions {
			pkgName, versionID, node := pkgName, versionID, node

			src, err := sourceFor(node.PkgRef)
			if err != nil {
				return nil, fmt.Errorf("resolving source for %s@%s: %w", pkgName, versionID.Version(), err)
			}

			if err := refreshOnce(ctx, proj, src, &refreshMu, refreshed); err != nil {
				return nil, err
			}

			containerFolder := ContainerFolder(proj, rootManifest.Target.Kind, pkgName, versionID)
			if err := os.MkdirAll(containerFolder, 0o755); err != nil {
				return nil, fmt.Errorf("creating container folder %s: %w", containerFolder, err)
			}

			group.SubmitErr(func() error {
				ref := toSourceRef(node.PkgRef)
				fs, target, err := src.Download(ctx, pkgName, versionID, ref, proj, store, dl)
				if err != nil {
					return fmt.Errorf("downloading %s@%s: %w", pkgName, versionID.Version(), err)
				}
				if err := download.Materialize(store, fs, containerFolder); err != nil {
					return fmt.Errorf("materializing %s@%s: %w", pkgName, versionID.Version(), err)
				}

				resultMu.Lock()
				defer resultMu.Unlock()
				byVersion, ok := result[pkgName]
				if !ok {
					byVersion = make(map[names.VersionId]*graph.DownloadedNode)
					result[pkgName] = byVersion
				}
				byVersion[versionID] = &graph.DownloadedNode{Node: node, FS: fs, Target: target}
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

// refreshOnce calls src.Refresh at most once per distinct source identity
// across the lifetime of the shared refreshed set, synchronising the
// check-then-refresh sequence the way the original's HashSet<Source> insert
// does.
func refreshOnce(ctx context.Context, proj *project.Project, src source.Source, mu *sync.Mutex, refreshed map[string]bool) error {
	id := sourceIdentity(src)

	mu.Lock()
	if refreshed[id] {
		mu.Unlock()
		return nil
	}
	refreshed[id] = true
	mu.Unlock()

	return src.Refresh(ctx, proj)
}

func sourceIdentity(src source.Source) string {
	return fmt.Sprintf("%T:%p", src, src)
}

// toSourceRef reconstructs the richer source.PackageRef a Source.Download
// expects from the slimmer form persisted on the graph node. Dependencies
// is left empty: by download time the graph already holds every expanded
// edge, so nothing downstream reads it back off the ref.
func toSourceRef(ref graph.PackageRef) source.PackageRef {
	return source.PackageRef{
		Kind:            ref.Kind,
		Target:          ref.Target,
		UseNewStructure: ref.UseNewStructure,
		LikeCompat:      ref.LikeCompat,
		IndexURL:        ref.IndexURL,
		RepoURL:         ref.RepoURL,
		Revision:        ref.Rev,
		Subpath:         ref.Subpath,
		MemberPath:      ref.Workspace,
	}
}
