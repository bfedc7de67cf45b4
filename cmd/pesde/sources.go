package main

import (
	"fmt"

	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/source"
	"github.com/pesde-pm/pesde/internal/source/compat"
	"github.com/pesde-pm/pesde/internal/source/gitsource"
	"github.com/pesde-pm/pesde/internal/source/registry"
	"github.com/pesde-pm/pesde/internal/source/workspace"
)

// sourceForSpecifier builds a resolver.SourceFor closure over
// rootManifest's index alias tables. A specifier's Index field is an alias
// (e.g. "default") only when it was declared directly in rootManifest's own
// dependency tables; specifiers surfacing from an already-published
// manifest (index entries, git dependency manifests) carry a literal URL
// there instead, since publish.rewriteSpecifiers resolves aliases away
// before a manifest is ever uploaded. Aliases in rootManifest's own tables
// take priority; anything else is assumed to already be a URL.
func sourceForSpecifier(rootManifest *manifest.Manifest) func(spec manifest.Specifier) (source.Source, error) {
	return func(spec manifest.Specifier) (source.Source, error) {
		switch s := spec.(type) {
		case manifest.RegistrySpecifier:
			return registry.New(resolveIndexAlias(rootManifest.Indices, s.Index)), nil
		case manifest.CompatSpecifier:
			return compat.New(resolveIndexAlias(rootManifest.WallyIndices, s.Index)), nil
		case manifest.GitSpecifier:
			return gitsource.New(), nil
		case manifest.WorkspaceSpecifier:
			return workspace.New(), nil
		default:
			return nil, fmt.Errorf("unknown specifier kind %T", spec)
		}
	}
}

func resolveIndexAlias(indices map[string]string, aliasOrURL string) string {
	if aliasOrURL == "" {
		aliasOrURL = manifest.DefaultIndexName
	}
	if url, ok := indices[aliasOrURL]; ok {
		return url
	}
	return aliasOrURL
}

// sourceForRef dispatches an already-resolved PackageRef back to its
// Source, the way installer.SourceForRef is documented to work, without
// re-inspecting the manifest specifier that produced it.
func sourceForRef(ref graph.PackageRef) (source.Source, error) {
	switch ref.Kind {
	case graph.SourceRegistry:
		return registry.New(ref.IndexURL), nil
	case graph.SourceCompat:
		return compat.New(ref.IndexURL), nil
	case graph.SourceGit:
		return gitsource.New(), nil
	case graph.SourceWorkspace:
		return workspace.New(), nil
	default:
		return nil, fmt.Errorf("unknown source kind %v", ref.Kind)
	}
}
