package publish

import (
	"fmt"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
)

// rewrittenDeps reports which non-registry dependency kinds a manifest's
// rewritten specifiers included, so the caller can enforce the index's
// git/compat allowance policy after rewriting.
type rewrittenDeps struct {
	hasGit    bool
	hasCompat bool
}

// rewriteSpecifiers rewrites every dependency specifier across m's three
// dependency tables in place, turning index aliases into the URLs they
// point at and workspace references into registry references resolved
// against the sibling's own manifest, exactly as the published manifest
// must read for a consumer who has no access to this workspace.
func rewriteSpecifiers(m *manifest.Manifest, members map[string]*manifest.Manifest) (rewrittenDeps, error) {
	var out rewrittenDeps

	tables := []map[string]manifest.Specifier{m.Dependencies, m.DevDependencies, m.PeerDependencies}
	for _, table := range tables {
		for alias, spec := range table {
			rewritten, err := rewriteOne(m, members, spec, &out)
			if err != nil {
				return out, fmt.Errorf("dependency %q: %w", alias, err)
			}
			table[alias] = rewritten
		}
	}

	return out, nil
}

func rewriteOne(m *manifest.Manifest, members map[string]*manifest.Manifest, spec manifest.Specifier, out *rewrittenDeps) (manifest.Specifier, error) {
	switch s := spec.(type) {
	case manifest.RegistrySpecifier:
		indexName := s.Index
		if indexName == "" {
			indexName = manifest.DefaultIndexName
		}
		url, ok := m.Indices[indexName]
		if !ok {
			return nil, fmt.Errorf("index %q not found in indices field", indexName)
		}
		s.Index = url
		return s, nil

	case manifest.CompatSpecifier:
		out.hasCompat = true
		indexName := s.Index
		if indexName == "" {
			indexName = manifest.DefaultIndexName
		}
		url, ok := m.WallyIndices[indexName]
		if !ok {
			return nil, fmt.Errorf("index %q not found in wally_indices field", indexName)
		}
		s.Index = url
		return s, nil

	case manifest.GitSpecifier:
		out.hasGit = true
		return s, nil

	case manifest.WorkspaceSpecifier:
		return resolveWorkspaceSpecifier(m, members, s)

	default:
		return nil, fmt.Errorf("unknown specifier kind")
	}
}

func resolveWorkspaceSpecifier(m *manifest.Manifest, members map[string]*manifest.Manifest, s manifest.WorkspaceSpecifier) (manifest.Specifier, error) {
	sibling, ok := findMember(members, s.Name)
	if !ok {
		return nil, fmt.Errorf("no workspace member found for %s", s.Name)
	}

	url, ok := sibling.Indices[manifest.DefaultIndexName]
	if !ok {
		return nil, fmt.Errorf("missing default index in workspace package manifest for %s", s.Name)
	}

	targetKind := sibling.Target.Kind
	if s.Target != nil {
		targetKind = *s.Target
	}

	return manifest.RegistrySpecifier{
		Name:       s.Name,
		VersionReq: s.Version.ResolveAgainst(sibling.Version),
		Index:      url,
		Target:     &targetKind,
	}, nil
}

func findMember(members map[string]*manifest.Manifest, name names.PackageName) (*manifest.Manifest, bool) {
	for _, member := range members {
		if member.Name == name {
			return member, true
		}
	}
	return nil, false
}
