package graph

import (
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
)

// Node is one resolved package in the dependency graph: the source it came
// from, the version it was pinned to, and the edges to its own
// dependencies, already re-expressed as concrete graph keys.
type Node struct {
	PkgRef PackageRef

	// Dependencies maps this node's own declared alias to the (name,
	// version) of the graph node that satisfies it, for Normal and Dev
	// edges.
	Dependencies map[string]Dependency

	// PeerDependencies maps this node's own declared peer alias to the
	// (name, version) it requires. These are not installed on this node's
	// behalf; the resolver verifies each is satisfied somewhere in the
	// consumer's own transitive closure instead.
	PeerDependencies map[string]Dependency

	// DependencyKind is the strongest kind (Normal beats Peer beats Dev)
	// under which any root-reachable edge reaches this node.
	DependencyKind manifest.DependencyKind

	// Direct is set when this node is reachable via a direct (not
	// transitive) dependency of the root manifest, recording the alias it
	// was declared under there.
	Direct *string
}

// Dependency is one edge out of a Node.
type Dependency struct {
	Name      names.PackageName
	VersionId names.VersionId
}

// PackageRef identifies where a node's bytes come from well enough for the
// downloader to dispatch to the right source without re-resolving, plus the
// handful of resolve-time facts (target, structure layout) a node needs to
// carry forward to download and linking without re-reading the source.
type PackageRef struct {
	Kind      SourceKind
	IndexURL  string // SourceRegistry / SourceCompat
	RepoURL   string // SourceGit
	Rev       string // SourceGit
	Subpath   string // SourceGit, optional
	Workspace string // SourceWorkspace: path relative to the workspace root

	// Target is this node's declared build profile, as resolved. For the
	// compat registry this is only provisional until Download's
	// sourcemap-generator pass fills in the real one.
	Target manifest.Target

	// UseNewStructure and LikeCompat mirror source.PackageRef's own fields,
	// carried forward for the linker's structure-selection pass.
	UseNewStructure bool
	LikeCompat      bool
}

// SourceKind discriminates which of the four package sources a PackageRef
// resolves through.
type SourceKind int

const (
	SourceRegistry SourceKind = iota
	SourceCompat
	SourceGit
	SourceWorkspace
)

// Key identifies one node uniquely: one node per (PackageName, VersionId).
type Key struct {
	Name      names.PackageName
	VersionId names.VersionId
}

// DependencyGraph is the full resolved graph: every reachable package,
// keyed by name then by the specific version/target pinned for it.
type DependencyGraph map[names.PackageName]map[names.VersionId]*Node

// Get looks up a single node by key.
func (g DependencyGraph) Get(key Key) (*Node, bool) {
	versions, ok := g[key.Name]
	if !ok {
		return nil, false
	}
	node, ok := versions[key.VersionId]
	return node, ok
}

// Set inserts or replaces a node.
func (g DependencyGraph) Set(key Key, node *Node) {
	versions, ok := g[key.Name]
	if !ok {
		versions = make(map[names.VersionId]*Node)
		g[key.Name] = versions
	}
	versions[key.VersionId] = node
}

// DownloadedNode pairs a resolved graph Node with the file tree and target
// its source produced once actually fetched.
type DownloadedNode struct {
	Node   *Node
	FS     PackageFS
	Target manifest.Target
}

// DownloadedGraph is the post-download counterpart of DependencyGraph.
type DownloadedGraph map[names.PackageName]map[names.VersionId]*DownloadedNode
