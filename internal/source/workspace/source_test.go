package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(contents), 0o644))
}

func newTestWorkspace(t *testing.T) (*project.Project, string) {
	t.Helper()
	workspaceDir := t.TempDir()

	writeManifest(t, workspaceDir, `
name = "acme/root"
version = "0.1.0"
workspace_members = ["packages/*"]

[target]
kind = "luau"
`)

	memberDir := filepath.Join(workspaceDir, "packages", "util")
	writeManifest(t, memberDir, `
name = "acme/util"
version = "1.4.0"

[target]
kind = "luau"
`)
	require.NoError(t, os.WriteFile(filepath.Join(memberDir, "init.luau"), []byte("return {}\n"), 0o644))

	dataDir := t.TempDir()
	casDir := t.TempDir()
	proj := project.New(filepath.Join(workspaceDir, "packages", "util"), workspaceDir, dataDir, casDir, project.NewAuthConfig(nil))
	return proj, memberDir
}

func TestResolveFindsWorkspaceMemberByNameAndTarget(t *testing.T) {
	proj, memberDir := newTestWorkspace(t)
	s := New()

	spec := manifest.WorkspaceSpecifier{
		Name:    mustPackageName(t, "acme/util"),
		Version: manifest.WorkspaceVersion{Kind: manifest.WorkspaceVersionWildcard},
	}

	name, versions, err := s.Resolve(context.Background(), spec, proj, names.GenericLuau)
	require.NoError(t, err)
	assert.Equal(t, "acme/util", name.String())
	require.Len(t, versions, 1)

	for versionID, ref := range versions {
		assert.Equal(t, "1.4.0", versionID.Version().String())
		assert.Equal(t, names.GenericLuau, versionID.TargetKind())
		assert.Equal(t, memberDir, ref.MemberPath)
		assert.True(t, ref.UseNewStructure)
	}
}

func TestResolveRejectsNonWorkspaceSpecifier(t *testing.T) {
	proj, _ := newTestWorkspace(t)
	s := New()

	_, _, err := s.Resolve(context.Background(), manifest.GitSpecifier{RepoURL: "x", Rev: "y"}, proj, names.GenericLuau)
	require.Error(t, err)
}

func TestResolveErrorsWhenNoMemberMatches(t *testing.T) {
	proj, _ := newTestWorkspace(t)
	s := New()

	spec := manifest.WorkspaceSpecifier{
		Name:    mustPackageName(t, "acme/missing"),
		Version: manifest.WorkspaceVersion{Kind: manifest.WorkspaceVersionWildcard},
	}

	_, _, err := s.Resolve(context.Background(), spec, proj, names.GenericLuau)
	require.Error(t, err)
}

func TestDownloadStoresMemberTreeInCAS(t *testing.T) {
	proj, memberDir := newTestWorkspace(t)
	s := New()

	store, err := cas.New(proj.CASDir())
	require.NoError(t, err)

	ref := source.PackageRef{
		Kind:            graph.SourceWorkspace,
		Target:          manifest.Target{Kind: names.GenericLuau},
		UseNewStructure: true,
		MemberPath:      memberDir,
	}

	fs, target, err := s.Download(context.Background(), mustPackageName(t, "acme/util"), names.VersionId{}, ref, proj, store, nil)
	require.NoError(t, err)
	assert.Equal(t, names.GenericLuau, target.Kind)

	assert.Contains(t, fs, "init.luau")
	assert.Contains(t, fs, manifest.FileName)
	assert.Equal(t, graph.EntryFile, fs["init.luau"].Kind)
}

func mustPackageName(t *testing.T, s string) names.PackageName {
	t.Helper()
	n, err := names.NewPackageName(s)
	require.NoError(t, err)
	return n
}
