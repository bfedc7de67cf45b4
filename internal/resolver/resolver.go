// Package resolver implements the dependency graph resolution algorithm: a
// breadth-first work queue over dependency specifiers, greatest-version
// selection per specifier, node merging on re-encounter, and the two
// graph-wide invariant checks (no non-dev version conflicts, every peer
// edge satisfied somewhere in the graph).
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/pkgerrors"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/source"
)

// SourceFor resolves a dependency specifier to the Source implementation
// that can resolve/download it. Callers typically dispatch on spec.Kind()
// to one of the four concrete sources, threading through per-manifest
// index aliases for registry/compat specifiers.
type SourceFor func(spec manifest.Specifier) (source.Source, error)

// queueEntry is one pending edge to resolve: either a direct dependency of
// the root manifest (parent == nil) or a transitive edge declared by an
// already-resolved node (parent points at that node's graph key).
type queueEntry struct {
	alias        string
	spec         manifest.Specifier
	kind         manifest.DependencyKind
	parent       *graph.Key
	consumerKind names.TargetKind
}

// pendingPeer is a peer requirement recorded during resolution: alias and
// name come from the declaring entry, acceptable is the set of VersionIds
// the peer's specifier itself would accept. It is checked against the
// graph only after the whole queue has drained, since whichever real
// (non-peer) install satisfies it may not have been processed yet.
type pendingPeer struct {
	alias      string
	name       names.PackageName
	acceptable map[names.VersionId]bool
}

// Resolve runs the algorithm in full, starting from rootManifest's own
// dependency tables (Normal, Dev, and Peer, per AllDependencies) and
// returns the completed graph.
func Resolve(ctx context.Context, proj *project.Project, rootManifest *manifest.Manifest, sourceFor SourceFor) (graph.DependencyGraph, error) {
	deps, err := rootManifest.AllDependencies()
	if err != nil {
		return nil, err
	}

	g := make(graph.DependencyGraph)
	queue := make([]queueEntry, 0, len(deps))
	for _, d := range deps {
		queue = append(queue, queueEntry{
			alias:        d.Alias,
			spec:         d.Spec,
			kind:         d.Kind,
			parent:       nil,
			consumerKind: rootManifest.Target.Kind,
		})
	}

	refreshed := make(map[string]bool) // by source identity, see sourceIdentity
	nonDevVersions := make(map[names.PackageName]map[names.VersionId]bool)
	var pendingPeers []pendingPeer

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]

		src, err := sourceFor(entry.spec)
		if err != nil {
			return nil, fmt.Errorf("resolving source for %s: %w", entry.spec.Describe(), err)
		}

		if id := sourceIdentity(src); !refreshed[id] {
			if err := src.Refresh(ctx, proj); err != nil {
				return nil, err
			}
			refreshed[id] = true
		}

		name, candidates, err := src.Resolve(ctx, entry.spec, proj, entry.consumerKind)
		if err != nil {
			return nil, err
		}

		// A peer edge is a requirement, not an install: the declaring
		// package does not pull its own provider into the graph. Record
		// what it would accept and check it against whatever the rest of
		// the graph actually installs, once the queue has fully drained.
		if entry.kind == manifest.Peer {
			acceptable := make(map[names.VersionId]bool, len(candidates))
			for id := range candidates {
				acceptable[id] = true
			}
			pendingPeers = append(pendingPeers, pendingPeer{alias: entry.alias, name: name, acceptable: acceptable})

			if entry.parent != nil {
				parent, ok := g.Get(*entry.parent)
				if !ok {
					return nil, fmt.Errorf("internal error: parent node %v missing while attaching %s", *entry.parent, entry.alias)
				}
				versionID, _, err := pickGreatest(candidates, entry.consumerKind)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", entry.spec.Describe(), err)
				}
				parent.PeerDependencies[entry.alias] = graph.Dependency{Name: name, VersionId: versionID}
			}
			continue
		}

		versionID, ref, err := pickGreatest(candidates, entry.consumerKind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.spec.Describe(), err)
		}

		key := graph.Key{Name: name, VersionId: versionID}

		if err := checkConflict(nonDevVersions, name, versionID, entry.kind); err != nil {
			return nil, err
		}

		node, seen := g.Get(key)
		if !seen {
			node = &graph.Node{
				PkgRef:           toNodePkgRef(ref),
				Dependencies:     map[string]graph.Dependency{},
				PeerDependencies: map[string]graph.Dependency{},
				DependencyKind:   entry.kind,
			}
			if entry.parent == nil {
				alias := entry.alias
				node.Direct = &alias
			}
			g.Set(key, node)

			childKind := entry.kind
			if childKind == manifest.Dev {
				// A dev dependency's own dependencies are ordinary installs:
				// nothing downstream of it is itself under development.
				childKind = manifest.Normal
			}
			for _, childDep := range ref.Dependencies {
				queue = append(queue, queueEntry{
					alias:        childDep.Alias,
					spec:         childDep.Spec,
					kind:         pickChildKind(childDep.Kind, childKind),
					parent:       &key,
					consumerKind: ref.Target.Kind,
				})
			}
		} else {
			node.DependencyKind = node.DependencyKind.Escalate(entry.kind)
			if entry.parent == nil && node.Direct == nil {
				alias := entry.alias
				node.Direct = &alias
			}
		}

		if entry.parent != nil {
			parent, ok := g.Get(*entry.parent)
			if !ok {
				return nil, fmt.Errorf("internal error: parent node %v missing while attaching %s", *entry.parent, entry.alias)
			}
			parent.Dependencies[entry.alias] = graph.Dependency{Name: name, VersionId: versionID}
		}
	}

	if err := verifyPeers(g, pendingPeers); err != nil {
		return nil, err
	}

	return g, nil
}

// pickChildKind determines what kind a transitive edge should carry: a
// child explicitly declared Peer by its own package stays Peer so it gets
// verified rather than installed; everything else follows the parent
// edge's already-demoted kind.
func pickChildKind(declared manifest.DependencyKind, parentKind manifest.DependencyKind) manifest.DependencyKind {
	if declared == manifest.Peer {
		return manifest.Peer
	}
	return parentKind
}

func sourceIdentity(src source.Source) string {
	return fmt.Sprintf("%T", src)
}

// pickGreatest selects the greatest VersionId among candidates, with the
// tie-break rule from spec: equal versions prefer the consumer's own
// TargetKind, else fall back to a stable discriminant order.
func pickGreatest(candidates map[names.VersionId]source.PackageRef, consumerKind names.TargetKind) (names.VersionId, source.PackageRef, error) {
	if len(candidates) == 0 {
		return names.VersionId{}, source.PackageRef{}, pkgerrors.ErrNotFound
	}

	ids := make([]names.VersionId, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if c := a.Version().Compare(b.Version()); c != 0 {
			return c > 0
		}
		aMatch := a.TargetKind() == consumerKind
		bMatch := b.TargetKind() == consumerKind
		if aMatch != bMatch {
			return aMatch
		}
		return a.TargetKind().CompareDiscriminant(b.TargetKind()) < 0
	})

	best := ids[0]
	return best, candidates[best], nil
}

func toNodePkgRef(ref source.PackageRef) graph.PackageRef {
	return graph.PackageRef{
		Kind:            ref.Kind,
		IndexURL:        ref.IndexURL,
		RepoURL:         ref.RepoURL,
		Rev:             ref.Revision,
		Subpath:         ref.Subpath,
		Workspace:       ref.MemberPath,
		Target:          ref.Target,
		UseNewStructure: ref.UseNewStructure,
		LikeCompat:      ref.LikeCompat,
	}
}

// checkConflict records name/versionID under the non-dev version set and
// fails if a different version of the same package is already present
// there, per spec §4.7 step 5.
func checkConflict(seen map[names.PackageName]map[names.VersionId]bool, name names.PackageName, versionID names.VersionId, kind manifest.DependencyKind) error {
	if kind == manifest.Dev {
		return nil
	}
	versions, ok := seen[name]
	if !ok {
		versions = map[names.VersionId]bool{}
		seen[name] = versions
	}
	versions[versionID] = true
	if len(versions) > 1 {
		return fmt.Errorf("%w: %s resolves to multiple incompatible versions", pkgerrors.ErrConflict, name)
	}
	return nil
}

// verifyPeers checks that every pending peer requirement is satisfied by a
// genuinely installed (non-Peer) node somewhere in the graph, per spec §4.7:
// a peer dependency is satisfied by the consumer's own transitive closure,
// never by the declaring package materializing its own provider.
func verifyPeers(g graph.DependencyGraph, pendingPeers []pendingPeer) error {
	for _, p := range pendingPeers {
		versions, ok := g[p.name]
		if !ok {
			return fmt.Errorf("%w: peer dependency %q (%s) has no installed provider", pkgerrors.ErrUnsatisfiedPeer, p.alias, p.name)
		}

		satisfied := false
		for versionID, node := range versions {
			if node.DependencyKind == manifest.Peer {
				continue
			}
			if p.acceptable[versionID] {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return fmt.Errorf("%w: peer dependency %q (%s) is not satisfied by any installed version", pkgerrors.ErrUnsatisfiedPeer, p.alias, p.name)
		}
	}
	return nil
}
