// Package workspace implements the workspace package source: sibling
// packages discovered via the workspace root's workspace_members globs,
// matched by name and target kind.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/download"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/pkgerrors"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/source"
)

// Source is the workspace package source.
type Source struct{}

var _ source.Source = (*Source)(nil)

func New() *Source { return &Source{} }

func (s *Source) Kind() graph.SourceKind { return graph.SourceWorkspace }

// Refresh is a no-op: workspace members are read straight off disk.
func (s *Source) Refresh(ctx context.Context, proj *project.Project) error { return nil }

// Resolve scans the workspace root's members for one whose manifest matches
// the specifier's name and (if given) target kind.
func (s *Source) Resolve(ctx context.Context, spec manifest.Specifier, proj *project.Project, consumerKind names.TargetKind) (names.PackageName, map[names.VersionId]source.PackageRef, error) {
	wsSpec, ok := spec.(manifest.WorkspaceSpecifier)
	if !ok {
		return names.PackageName{}, nil, fmt.Errorf("workspace source given non-workspace specifier %q", spec.Describe())
	}

	workspaceDir, has := proj.WorkspaceDir()
	if !has {
		return names.PackageName{}, nil, fmt.Errorf("%w: %s has no workspace to resolve %s against", pkgerrors.ErrNotFound, proj.PackageDir(), wsSpec.Name)
	}

	members, err := proj.WorkspaceMembers(workspaceDir)
	if err != nil {
		return names.PackageName{}, nil, err
	}

	wantTarget := consumerKind
	if wsSpec.Target != nil {
		wantTarget = *wsSpec.Target
	}

	for path, m := range members {
		if m.Name.Compare(wsSpec.Name) != 0 {
			continue
		}
		if m.Target.Kind != wantTarget {
			continue
		}

		version, err := semver.NewVersion(m.Version)
		if err != nil {
			return names.PackageName{}, nil, fmt.Errorf("invalid version %q for %s: %w", m.Version, m.Name, err)
		}
		versionID := names.NewVersionId(version, m.Target.Kind)

		deps, err := m.AllDependencies()
		if err != nil {
			return names.PackageName{}, nil, err
		}

		ref := source.PackageRef{
			Kind:            graph.SourceWorkspace,
			Target:          m.Target,
			Dependencies:    nonDevDependencies(deps),
			UseNewStructure: true,
			MemberPath:      path,
		}
		return m.Name, map[names.VersionId]source.PackageRef{versionID: ref}, nil
	}

	return names.PackageName{}, nil, fmt.Errorf("%w: no workspace member matches %s", pkgerrors.ErrNotFound, wsSpec.Name)
}

// Download feeds the on-disk member's files into the CAS by content; no
// network or git transport involved.
func (s *Source) Download(ctx context.Context, name names.PackageName, version names.VersionId, ref source.PackageRef, proj *project.Project, store *cas.Store, dl *download.Downloader) (graph.PackageFS, manifest.Target, error) {
	fs := make(graph.PackageFS)

	err := filepath.Walk(ref.MemberPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == ref.MemberPath {
			return nil
		}
		rel, err := filepath.Rel(ref.MemberPath, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			fs[rel] = graph.Entry{Kind: graph.EntryDirectory}
			return nil
		}

		hash, err := store.StoreFile(p)
		if err != nil {
			return err
		}
		fs[rel] = graph.Entry{Kind: graph.EntryFile, Hash: hash}
		return nil
	})
	if err != nil {
		return nil, manifest.Target{}, fmt.Errorf("walking workspace member %s: %w", ref.MemberPath, err)
	}

	return fs, ref.Target, nil
}

func nonDevDependencies(deps []manifest.AliasedSpecifier) []manifest.AliasedSpecifier {
	out := make([]manifest.AliasedSpecifier, 0, len(deps))
	for _, d := range deps {
		if d.Kind != manifest.Dev {
			out = append(out, d)
		}
	}
	return out
}
