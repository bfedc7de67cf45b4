package publish

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/pesde-pm/pesde/internal/manifest"
)

// encodableManifest mirrors manifest's own rawManifest decode shape, but in
// the direction publish needs: rendering a (rewritten) in-memory Manifest
// back to the TOML bytes shipped inside the archive.
type encodableManifest struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description,omitempty"`
	License     string `toml:"license,omitempty"`
	Authors     []string `toml:"authors,omitempty"`
	Repository  string `toml:"repository,omitempty"`
	Private     bool   `toml:"private"`

	Target encodableTarget `toml:"target"`

	Indices      map[string]string `toml:"indices,omitempty"`
	WallyIndices map[string]string `toml:"wally_indices,omitempty"`

	Scripts  map[string]string `toml:"scripts,omitempty"`
	Includes []string          `toml:"includes"`

	WorkspaceMembers []string `toml:"workspace_members,omitempty"`

	Dependencies     map[string]map[string]any `toml:"dependencies,omitempty"`
	DevDependencies  map[string]map[string]any `toml:"dev_dependencies,omitempty"`
	PeerDependencies map[string]map[string]any `toml:"peer_dependencies,omitempty"`
}

type encodableTarget struct {
	Kind       string   `toml:"kind"`
	Lib        string   `toml:"lib,omitempty"`
	Bin        string   `toml:"bin,omitempty"`
	BuildFiles []string `toml:"build_files,omitempty"`
}

// encodeManifest renders m as the TOML bytes that accompany a published
// archive, after specifiers have already been rewritten to the index-URL
// (not index-alias) form a consumer outside this workspace can resolve.
func encodeManifest(m *manifest.Manifest) ([]byte, error) {
	enc := encodableManifest{
		Name:             m.Name.String(),
		Version:          m.Version,
		Description:      m.Description,
		License:          m.License,
		Authors:          m.Authors,
		Repository:       m.Repository,
		Private:          m.Private,
		Target:           encodableTarget{Kind: m.Target.Kind.String(), BuildFiles: m.Target.BuildFiles},
		Indices:          m.Indices,
		WallyIndices:     m.WallyIndices,
		WorkspaceMembers: m.WorkspaceMembers,
	}
	if m.Target.LibPath != nil {
		enc.Target.Lib = string(*m.Target.LibPath)
	}
	if m.Target.BinPath != nil {
		enc.Target.Bin = string(*m.Target.BinPath)
	}
	if len(m.Scripts) > 0 {
		enc.Scripts = make(map[string]string, len(m.Scripts))
		for k, v := range m.Scripts {
			enc.Scripts[k] = string(v)
		}
	}

	enc.Includes = make([]string, 0, len(m.Includes))
	for inc := range m.Includes {
		enc.Includes = append(enc.Includes, inc)
	}

	var err error
	if enc.Dependencies, err = specifierTables(m.Dependencies); err != nil {
		return nil, err
	}
	if enc.DevDependencies, err = specifierTables(m.DevDependencies); err != nil {
		return nil, err
	}
	if enc.PeerDependencies, err = specifierTables(m.PeerDependencies); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(enc); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

func specifierTables(specs map[string]manifest.Specifier) (map[string]map[string]any, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]any, len(specs))
	for alias, spec := range specs {
		table, err := specifierTable(spec)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", alias, err)
		}
		out[alias] = table
	}
	return out, nil
}

func specifierTable(spec manifest.Specifier) (map[string]any, error) {
	switch s := spec.(type) {
	case manifest.RegistrySpecifier:
		table := map[string]any{"name": s.Name.String(), "version": s.VersionReq, "index": s.Index}
		if s.Target != nil {
			table["target"] = s.Target.String()
		}
		return table, nil
	case manifest.CompatSpecifier:
		table := map[string]any{"wally": s.Name.String(), "version": s.VersionReq, "index": s.Index}
		return table, nil
	case manifest.GitSpecifier:
		table := map[string]any{"repo": s.RepoURL, "rev": s.Rev}
		if s.Subpath != "" {
			table["path"] = s.Subpath
		}
		return table, nil
	default:
		return nil, fmt.Errorf("specifier of kind %T survived rewriting unresolved", spec)
	}
}
