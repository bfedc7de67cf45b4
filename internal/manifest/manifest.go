package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pesde-pm/pesde/internal/names"
)

// FileName is the fixed name of the project manifest file within a package
// root, analogous to Cargo.toml/package.json for this ecosystem.
const FileName = "pesde.toml"

// DependencyKind distinguishes how a dependency participates in resolution:
// Normal dependencies are always included, Dev only at the workspace root,
// and Peer dependencies are recorded but satisfied by the consumer's own
// transitive closure rather than by the declaring package.
type DependencyKind int

const (
	Normal DependencyKind = iota
	Dev
	Peer
)

func (k DependencyKind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Dev:
		return "dev"
	case Peer:
		return "peer"
	default:
		return "unknown"
	}
}

// Escalate returns the dependency kind a package should carry in the graph
// when it is reached via both k and other. Dev is the weakest kind: Normal
// or Peer edges always win over a Dev edge to the same node. Peer is
// preserved when both sides agree it's Peer.
func (k DependencyKind) Escalate(other DependencyKind) DependencyKind {
	if k == Dev {
		return other
	}
	if other == Dev {
		return k
	}
	if k == Peer && other == Peer {
		return Peer
	}
	return Normal
}

// Manifest is the authoritative project descriptor read from pesde.toml.
type Manifest struct {
	Name        names.PackageName `toml:"name"`
	Version     string            `toml:"version"`
	Description string            `toml:"description,omitempty"`
	License     string            `toml:"license,omitempty"`
	Authors     []string          `toml:"authors,omitempty"`
	Repository  string            `toml:"repository,omitempty"`
	Private     bool              `toml:"private"`

	Target Target `toml:"target"`

	Indices      map[string]string `toml:"indices"`
	WallyIndices map[string]string `toml:"wally_indices,omitempty"`

	Scripts  map[string]FilePath `toml:"scripts,omitempty"`
	Includes map[string]struct{} `toml:"-"`

	Dependencies     map[string]Specifier `toml:"-"`
	DevDependencies  map[string]Specifier `toml:"-"`
	PeerDependencies map[string]Specifier `toml:"-"`

	WorkspaceMembers []string `toml:"workspace_members,omitempty"`
}

// DefaultIndexName is the alias a manifest uses for its primary registry
// when no explicit index alias is given on a specifier.
const DefaultIndexName = "default"

// rawManifest mirrors Manifest's TOML shape but keeps the polymorphic
// sections and the target as primitives for a second decoding pass, and the
// includes set as a plain slice (TOML has no native set type).
type rawManifest struct {
	Name        names.PackageName `toml:"name"`
	Version     string            `toml:"version"`
	Description string            `toml:"description"`
	License     string            `toml:"license"`
	Authors     []string          `toml:"authors"`
	Repository  string            `toml:"repository"`
	Private     bool              `toml:"private"`

	Target rawTarget `toml:"target"`

	Indices      map[string]string   `toml:"indices"`
	WallyIndices map[string]string   `toml:"wally_indices"`
	Scripts      map[string]FilePath `toml:"scripts"`
	Includes     []string            `toml:"includes"`

	Dependencies     map[string]toml.Primitive `toml:"dependencies"`
	DevDependencies  map[string]toml.Primitive `toml:"dev_dependencies"`
	PeerDependencies map[string]toml.Primitive `toml:"peer_dependencies"`

	WorkspaceMembers []string `toml:"workspace_members"`
}

type rawTarget struct {
	Kind       string   `toml:"kind"`
	Lib        *string  `toml:"lib"`
	Bin        *string  `toml:"bin"`
	BuildFiles []string `toml:"build_files"`
}

// Load reads and validates the manifest file at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes manifest bytes, rejecting unknown top-level fields.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	for _, key := range meta.Undecoded() {
		if len(key) == 1 {
			return nil, fmt.Errorf("unknown manifest field %q", key.String())
		}
	}

	kind, err := names.ParseTargetKind(raw.Target.Kind)
	if err != nil {
		return nil, fmt.Errorf("manifest target: %w", err)
	}

	target := Target{Kind: kind, BuildFiles: raw.Target.BuildFiles}
	if raw.Target.Lib != nil {
		p := FilePath(*raw.Target.Lib)
		target.LibPath = &p
	}
	if raw.Target.Bin != nil {
		p := FilePath(*raw.Target.Bin)
		target.BinPath = &p
	}

	m := &Manifest{
		Name:             raw.Name,
		Version:          raw.Version,
		Description:      raw.Description,
		License:          raw.License,
		Authors:          raw.Authors,
		Repository:       raw.Repository,
		Private:          raw.Private,
		Target:           target,
		Indices:          raw.Indices,
		WallyIndices:     raw.WallyIndices,
		Scripts:          raw.Scripts,
		Includes:         make(map[string]struct{}, len(raw.Includes)),
		WorkspaceMembers: raw.WorkspaceMembers,
	}
	for _, inc := range raw.Includes {
		m.Includes[inc] = struct{}{}
	}

	if m.Dependencies, err = decodeSpecifiers(meta, raw.Dependencies); err != nil {
		return nil, fmt.Errorf("dependencies: %w", err)
	}
	if m.DevDependencies, err = decodeSpecifiers(meta, raw.DevDependencies); err != nil {
		return nil, fmt.Errorf("dev_dependencies: %w", err)
	}
	if m.PeerDependencies, err = decodeSpecifiers(meta, raw.PeerDependencies); err != nil {
		return nil, fmt.Errorf("peer_dependencies: %w", err)
	}

	if m.Indices == nil {
		m.Indices = map[string]string{}
	}

	return m, nil
}

func decodeSpecifiers(meta toml.MetaData, prims map[string]toml.Primitive) (map[string]Specifier, error) {
	out := make(map[string]Specifier, len(prims))
	for alias, prim := range prims {
		spec, err := decodeSpecifier(meta, prim)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", alias, err)
		}
		out[alias] = spec
	}
	return out, nil
}

// AllDependencies returns every (alias, specifier, kind) triple across the
// three dependency maps.
type AliasedSpecifier struct {
	Alias string
	Spec  Specifier
	Kind  DependencyKind
}

// AllDependencies flattens Dependencies, DevDependencies, and
// PeerDependencies into a single slice, checking that no alias is reused
// across the three maps with a conflicting meaning.
func (m *Manifest) AllDependencies() ([]AliasedSpecifier, error) {
	seen := make(map[string]DependencyKind)
	var out []AliasedSpecifier

	add := func(deps map[string]Specifier, kind DependencyKind) error {
		for alias, spec := range deps {
			if existing, ok := seen[alias]; ok {
				return fmt.Errorf("alias %q used for both %s and %s dependencies", alias, existing, kind)
			}
			seen[alias] = kind
			out = append(out, AliasedSpecifier{Alias: alias, Spec: spec, Kind: kind})
		}
		return nil
	}

	if err := add(m.Dependencies, Normal); err != nil {
		return nil, err
	}
	if err := add(m.DevDependencies, Dev); err != nil {
		return nil, err
	}
	if err := add(m.PeerDependencies, Peer); err != nil {
		return nil, err
	}

	return out, nil
}

// Dir returns the directory path manifestPath lives in, the package root.
func Dir(manifestPath string) string {
	return filepath.Dir(manifestPath)
}
