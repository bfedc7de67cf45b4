package manifest

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/pesde-pm/pesde/internal/names"
)

// SpecifierKind discriminates the four DependencySpecifier variants without
// requiring a type assertion at call sites that must handle all of them
// exhaustively (e.g. the publisher's reference-rewrite pass).
type SpecifierKind int

const (
	// SpecifierRegistry names a package on the first-class registry.
	SpecifierRegistry SpecifierKind = iota
	// SpecifierCompat names a package on the compatibility (Wally) registry.
	SpecifierCompat
	// SpecifierGit names an arbitrary git repository at a pinned revision.
	SpecifierGit
	// SpecifierWorkspace names a sibling package in the same workspace.
	SpecifierWorkspace
)

// Specifier is the tagged variant of a dependency reference. Each concrete
// type implements exactly one of the four kinds.
type Specifier interface {
	Kind() SpecifierKind
	// Describe renders a short human-readable form for logging and error
	// messages, e.g. "scope/name@^1.2.0" or "git:https://...#abcdef".
	Describe() string
}

// RegistrySpecifier references a package published to the first-class
// registry (or an index alias pointing at one).
type RegistrySpecifier struct {
	Name       names.PackageName
	VersionReq string
	Index      string // alias into Manifest.Indices, defaults to "default"
	Target     *names.TargetKind
}

func (RegistrySpecifier) Kind() SpecifierKind { return SpecifierRegistry }

func (s RegistrySpecifier) Describe() string {
	return fmt.Sprintf("%s@%s", s.Name, s.VersionReq)
}

// CompatSpecifier references a package published to the compatibility
// (Wally-format) registry.
type CompatSpecifier struct {
	Name       names.PackageName
	VersionReq string
	Index      string // alias into Manifest.WallyIndices, defaults to "default"
}

func (CompatSpecifier) Kind() SpecifierKind { return SpecifierCompat }

func (s CompatSpecifier) Describe() string {
	return fmt.Sprintf("wally:%s@%s", s.Name, s.VersionReq)
}

// GitSpecifier references an arbitrary git repository at a pinned revision,
// optionally rooted at a sub-path within it.
type GitSpecifier struct {
	RepoURL string
	Rev     string
	Subpath string // optional, "" means repository root
}

func (GitSpecifier) Kind() SpecifierKind { return SpecifierGit }

func (s GitSpecifier) Describe() string {
	if s.Subpath == "" {
		return fmt.Sprintf("git:%s#%s", s.RepoURL, s.Rev)
	}
	return fmt.Sprintf("git:%s//%s#%s", s.RepoURL, s.Subpath, s.Rev)
}

// WorkspaceVersionKind distinguishes the three ways a workspace dependency
// can declare what version constraint it wants once resolved against its
// sibling's own manifest version.
type WorkspaceVersionKind int

const (
	// WorkspaceVersionWildcard accepts any version of the sibling package.
	WorkspaceVersionWildcard WorkspaceVersionKind = iota
	// WorkspaceVersionReq uses an explicit version requirement string,
	// independent of the sibling's current version.
	WorkspaceVersionReq
	// WorkspaceVersionComparator combines a comparator prefix (^, ~, =)
	// with whatever version the sibling currently has.
	WorkspaceVersionComparator
)

// WorkspaceVersion is the parsed form of a workspace specifier's version
// field: "*", a full requirement, or a bare comparator prefix.
type WorkspaceVersion struct {
	Kind       WorkspaceVersionKind
	Req        string // set when Kind == WorkspaceVersionReq
	Comparator string // set when Kind == WorkspaceVersionComparator: "^", "~", or "="
}

// ResolveAgainst turns the workspace version spec into a concrete version
// requirement string now that the sibling's own version is known.
func (w WorkspaceVersion) ResolveAgainst(siblingVersion string) string {
	switch w.Kind {
	case WorkspaceVersionWildcard:
		return "*"
	case WorkspaceVersionReq:
		return w.Req
	case WorkspaceVersionComparator:
		return w.Comparator + siblingVersion
	default:
		return "*"
	}
}

// WorkspaceSpecifier references a sibling package discovered via the
// workspace root's workspace_members globs.
type WorkspaceSpecifier struct {
	Name    names.PackageName
	Version WorkspaceVersion
	Target  *names.TargetKind
}

func (WorkspaceSpecifier) Kind() SpecifierKind { return SpecifierWorkspace }

func (s WorkspaceSpecifier) Describe() string {
	return fmt.Sprintf("workspace:%s", s.Name)
}

// specifierAux is the auxiliary shape used to sniff which variant a TOML
// dependency table represents, mirroring the "decode into an all-optional
// struct, then branch on which field is set" pattern used for feed options
// elsewhere in the pack.
type specifierAux struct {
	Name      *string `toml:"name"`
	Wally     *string `toml:"wally"`
	Repo      *string `toml:"repo"`
	Workspace *string `toml:"workspace"`

	Version *string `toml:"version"`
	Index   *string `toml:"index"`
	Target  *string `toml:"target"`
	Rev     *string `toml:"rev"`
	Path    *string `toml:"path"`
}

// DecodeSpecifier turns one already-extracted TOML primitive into a
// concrete Specifier. Exported for index-file parsing, which reuses the
// same variant-sniffing logic as the manifest's own dependency tables.
func DecodeSpecifier(meta toml.MetaData, prim toml.Primitive) (Specifier, error) {
	return decodeSpecifier(meta, prim)
}

// decodeSpecifier turns one already-extracted TOML primitive into a
// concrete Specifier.
func decodeSpecifier(meta toml.MetaData, prim toml.Primitive) (Specifier, error) {
	var aux specifierAux
	if err := meta.PrimitiveDecode(prim, &aux); err != nil {
		return nil, fmt.Errorf("decoding dependency specifier: %w", err)
	}

	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}

	var targetKind *names.TargetKind
	if aux.Target != nil {
		k, err := names.ParseTargetKind(*aux.Target)
		if err != nil {
			return nil, err
		}
		targetKind = &k
	}

	switch {
	case aux.Name != nil:
		name, err := names.NewPackageName(*aux.Name)
		if err != nil {
			return nil, err
		}
		return RegistrySpecifier{
			Name:       name,
			VersionReq: str(aux.Version),
			Index:      str(aux.Index),
			Target:     targetKind,
		}, nil
	case aux.Wally != nil:
		name, err := names.NewPackageName(*aux.Wally)
		if err != nil {
			return nil, err
		}
		return CompatSpecifier{
			Name:       name,
			VersionReq: str(aux.Version),
			Index:      str(aux.Index),
		}, nil
	case aux.Repo != nil:
		if aux.Rev == nil {
			return nil, fmt.Errorf("git dependency %q is missing a rev", *aux.Repo)
		}
		return GitSpecifier{
			RepoURL: *aux.Repo,
			Rev:     *aux.Rev,
			Subpath: str(aux.Path),
		}, nil
	case aux.Workspace != nil:
		name, err := names.NewPackageName(*aux.Workspace)
		if err != nil {
			return nil, err
		}
		version, err := parseWorkspaceVersion(str(aux.Version))
		if err != nil {
			return nil, err
		}
		return WorkspaceSpecifier{
			Name:    name,
			Version: version,
			Target:  targetKind,
		}, nil
	default:
		return nil, fmt.Errorf("dependency specifier has none of name/wally/repo/workspace set")
	}
}

func parseWorkspaceVersion(s string) (WorkspaceVersion, error) {
	switch s {
	case "", "*":
		return WorkspaceVersion{Kind: WorkspaceVersionWildcard}, nil
	case "^", "~", "=":
		return WorkspaceVersion{Kind: WorkspaceVersionComparator, Comparator: s}, nil
	default:
		return WorkspaceVersion{Kind: WorkspaceVersionReq, Req: s}, nil
	}
}
