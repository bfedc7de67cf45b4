// Package lockfile persists a resolved dependency graph to pesde.lock,
// mirroring the per-package index file format the registry sources already
// read: a package's versions keyed by the "1.2.3 roblox" VersionId spelling,
// each entry carrying enough of graph.Node and graph.PackageRef to skip
// re-resolution on a later install when the manifest is unchanged.
package lockfile

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
)

// FileName is the fixed name of the lockfile within a package root.
const FileName = "pesde.lock"

// Lockfile is the on-disk record of a resolved (and downloaded) graph.
type Lockfile struct {
	// ManifestHash is the blake3 hash of the manifest bytes this lockfile
	// was produced from. A later install re-resolves from scratch whenever
	// the current manifest's hash doesn't match.
	ManifestHash string `toml:"manifest_hash"`

	// Packages maps "scope/name" to the package's resolved versions.
	Packages map[string]map[string]Package `toml:"packages"`
}

// Package is one (name, version) node's persisted form.
type Package struct {
	Target string `toml:"target"`

	Kind            string `toml:"kind"`
	IndexURL        string `toml:"index_url,omitempty"`
	RepoURL         string `toml:"repo_url,omitempty"`
	Rev             string `toml:"rev,omitempty"`
	Subpath         string `toml:"subpath,omitempty"`
	Workspace       string `toml:"workspace,omitempty"`
	UseNewStructure bool   `toml:"use_new_structure,omitempty"`
	LikeCompat      bool   `toml:"like_compat,omitempty"`

	LibPath    string   `toml:"lib_path,omitempty"`
	BinPath    string   `toml:"bin_path,omitempty"`
	BuildFiles []string `toml:"build_files,omitempty"`

	DependencyKind string `toml:"dependency_kind"`
	Direct         string `toml:"direct,omitempty"`

	// Dependencies and PeerDependencies map a declared alias to the
	// dependency's own "scope/name@1.2.3 roblox" key into Packages.
	Dependencies     map[string]string `toml:"dependencies,omitempty"`
	PeerDependencies map[string]string `toml:"peer_dependencies,omitempty"`
}

// HashManifest derives the digest stored as ManifestHash from a manifest
// file's raw bytes, reusing the CAS's own blake3 hash so a manifest's
// lockfile staleness check costs the same primitive as everything else that
// content-addresses bytes in this codebase.
func HashManifest(data []byte) string {
	return cas.Hash(data)
}

// Load reads and parses the lockfile at path. A missing file is reported via
// os.IsNotExist on the returned error, matching os.ReadFile's own contract.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lf Lockfile
	if _, err := toml.Decode(string(data), &lf); err != nil {
		return nil, fmt.Errorf("parsing lockfile: %w", err)
	}
	return &lf, nil
}

// Save serializes and writes the lockfile to path.
func Save(path string, lf *Lockfile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating lockfile: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(lf); err != nil {
		return fmt.Errorf("encoding lockfile: %w", err)
	}
	return nil
}

// packageKey is the lockfile's within-package map key: "1.2.3 roblox".
func packageKey(v names.VersionId) string { return v.String() }

// nodeKey is the cross-package reference used by Dependencies/PeerDependencies
// entries: "scope/name@1.2.3 roblox".
func nodeKey(name names.PackageName, v names.VersionId) string {
	return name.String() + "@" + v.String()
}

// FromDownloaded builds a Lockfile from a fully downloaded graph, recording
// each node's resolved Target (the sourcemap-generator-filled one for compat
// packages, not the provisional one the resolver saw) alongside its
// PackageRef and edges.
func FromDownloaded(manifestHash string, dg graph.DownloadedGraph) *Lockfile {
	lf := &Lockfile{
		ManifestHash: manifestHash,
		Packages:     make(map[string]map[string]Package),
	}

	for name, versions := range dg {
		byVersion := make(map[string]Package, len(versions))
		for versionID, dn := range versions {
			byVersion[packageKey(versionID)] = toPackage(dn.Node, dn.Target)
		}
		lf.Packages[name.String()] = byVersion
	}

	return lf
}

// FromResolved builds a Lockfile straight from a resolved (not yet
// downloaded) graph, using each node's PkgRef.Target as the best available
// target (accurate for every source except an un-downloaded compat
// package, whose provisional target installer.Download will correct on the
// next pass that actually downloads it).
func FromResolved(manifestHash string, g graph.DependencyGraph) *Lockfile {
	lf := &Lockfile{
		ManifestHash: manifestHash,
		Packages:     make(map[string]map[string]Package),
	}

	for name, versions := range g {
		byVersion := make(map[string]Package, len(versions))
		for versionID, node := range versions {
			byVersion[packageKey(versionID)] = toPackage(node, node.PkgRef.Target)
		}
		lf.Packages[name.String()] = byVersion
	}

	return lf
}

func toPackage(node *graph.Node, target manifest.Target) Package {
	p := Package{
		Target:          target.Kind.String(),
		Kind:            sourceKindString(node.PkgRef.Kind),
		IndexURL:        node.PkgRef.IndexURL,
		RepoURL:         node.PkgRef.RepoURL,
		Rev:             node.PkgRef.Rev,
		Subpath:         node.PkgRef.Subpath,
		Workspace:       node.PkgRef.Workspace,
		UseNewStructure: node.PkgRef.UseNewStructure,
		LikeCompat:      node.PkgRef.LikeCompat,
		BuildFiles:      target.BuildFiles,
		DependencyKind:  node.DependencyKind.String(),
	}
	if target.LibPath != nil {
		p.LibPath = string(*target.LibPath)
	}
	if target.BinPath != nil {
		p.BinPath = string(*target.BinPath)
	}
	if node.Direct != nil {
		p.Direct = *node.Direct
	}

	if len(node.Dependencies) > 0 {
		p.Dependencies = make(map[string]string, len(node.Dependencies))
		for alias, dep := range node.Dependencies {
			p.Dependencies[alias] = nodeKey(dep.Name, dep.VersionId)
		}
	}
	if len(node.PeerDependencies) > 0 {
		p.PeerDependencies = make(map[string]string, len(node.PeerDependencies))
		for alias, dep := range node.PeerDependencies {
			p.PeerDependencies[alias] = nodeKey(dep.Name, dep.VersionId)
		}
	}

	return p
}

func sourceKindString(k graph.SourceKind) string {
	switch k {
	case graph.SourceRegistry:
		return "registry"
	case graph.SourceCompat:
		return "compat"
	case graph.SourceGit:
		return "git"
	case graph.SourceWorkspace:
		return "workspace"
	default:
		return "unknown"
	}
}

// IsUpToDate reports whether lf was produced from the manifest bytes
// currently hashing to manifestHash — the same check `pesde install`'s
// --locked flag uses to decide whether to fail before re-resolving, and
// `pesde publish`'s Roblox precondition uses to decide whether the lockfile
// it's about to inspect is trustworthy at all.
func (lf *Lockfile) IsUpToDate(manifestHash string) bool {
	return lf != nil && lf.ManifestHash == manifestHash
}

// DirectDependencyWithoutBuildFiles returns the name of the first direct,
// non-dev dependency recorded in the lockfile whose target has no build
// files, or ("", false) if every direct non-dev dependency has some. Used
// by the Roblox publish precondition: a Roblox package may not depend on a
// package with no Roblox build profile.
func (lf *Lockfile) DirectDependencyWithoutBuildFiles() (string, bool) {
	for name, versions := range lf.Packages {
		for versionStr, pkg := range versions {
			if pkg.Direct == "" {
				continue
			}
			if pkg.DependencyKind == manifest.Dev.String() {
				continue
			}
			if len(pkg.BuildFiles) == 0 {
				return name + "@" + versionStr, true
			}
		}
	}
	return "", false
}
