package linking

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/installer"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/scripts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustVersionID(t *testing.T, s string, kind names.TargetKind) names.VersionId {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return names.NewVersionId(v, kind)
}

func mustPackageName(t *testing.T, s string) names.PackageName {
	t.Helper()
	n, err := names.NewPackageName(s)
	require.NoError(t, err)
	return n
}

func TestLinkWritesDirectAliasShim(t *testing.T) {
	packageDir := t.TempDir()
	casDir := t.TempDir()
	store, err := cas.New(casDir)
	require.NoError(t, err)
	proj := project.New(packageDir, "", t.TempDir(), casDir, project.NewAuthConfig(nil))

	rootManifest := &manifest.Manifest{Target: manifest.Target{Kind: names.GenericLuau}}

	util := mustPackageName(t, "acme/util")
	v := mustVersionID(t, "1.0.0", names.GenericLuau)

	container := installer.ContainerFolder(proj, names.GenericLuau, util, v)
	require.NoError(t, os.MkdirAll(filepath.Join(container, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(container, "src", "init.luau"), []byte("export type Foo = {}\nreturn {}\n"), 0o644))

	libPath := manifest.FilePath("src/init.luau")
	alias := "util"

	dg := graph.DownloadedGraph{
		util: {
			v: &graph.DownloadedNode{
				Node: &graph.Node{
					PkgRef:           graph.PackageRef{UseNewStructure: true},
					Dependencies:     map[string]graph.Dependency{},
					PeerDependencies: map[string]graph.Dependency{},
					Direct:           &alias,
				},
				Target: manifest.Target{Kind: names.GenericLuau, LibPath: &libPath},
			},
		},
	}

	runner := scripts.NewRunner("lune")
	err = Link(context.Background(), proj, rootManifest, dg, store, runner)
	require.NoError(t, err)

	shimPath := filepath.Join(packageDir, "luau_packages", "util.luau")
	contents, err := os.ReadFile(shimPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "require(")
	assert.Contains(t, string(contents), "export type Foo = m.Foo")
}

func TestLinkWritesDependencyForwardingShim(t *testing.T) {
	packageDir := t.TempDir()
	casDir := t.TempDir()
	store, err := cas.New(casDir)
	require.NoError(t, err)
	proj := project.New(packageDir, "", t.TempDir(), casDir, project.NewAuthConfig(nil))

	rootManifest := &manifest.Manifest{Target: manifest.Target{Kind: names.GenericLuau}}

	app := mustPackageName(t, "acme/app")
	util := mustPackageName(t, "acme/util")
	appV := mustVersionID(t, "1.0.0", names.GenericLuau)
	utilV := mustVersionID(t, "2.0.0", names.GenericLuau)

	appContainer := installer.ContainerFolder(proj, names.GenericLuau, app, appV)
	utilContainer := installer.ContainerFolder(proj, names.GenericLuau, util, utilV)
	require.NoError(t, os.MkdirAll(utilContainer, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(utilContainer, "init.luau"), []byte("return {}\n"), 0o644))
	require.NoError(t, os.MkdirAll(appContainer, 0o755))

	appAlias := "app"
	libPath := manifest.FilePath("init.luau")

	dg := graph.DownloadedGraph{
		app: {
			appV: &graph.DownloadedNode{
				Node: &graph.Node{
					PkgRef: graph.PackageRef{UseNewStructure: true},
					Dependencies: map[string]graph.Dependency{
						"util": {Name: util, VersionId: utilV},
					},
					PeerDependencies: map[string]graph.Dependency{},
					Direct:           &appAlias,
				},
				Target: manifest.Target{Kind: names.GenericLuau},
			},
		},
		util: {
			utilV: &graph.DownloadedNode{
				Node: &graph.Node{
					PkgRef:           graph.PackageRef{UseNewStructure: true},
					Dependencies:     map[string]graph.Dependency{},
					PeerDependencies: map[string]graph.Dependency{},
				},
				Target: manifest.Target{Kind: names.GenericLuau, LibPath: &libPath},
			},
		},
	}

	runner := scripts.NewRunner("lune")
	err = Link(context.Background(), proj, rootManifest, dg, store, runner)
	require.NoError(t, err)

	shimPath := filepath.Join(appContainer, names.GenericLuau.PackagesFolder(names.GenericLuau), "util.luau")
	assert.FileExists(t, shimPath)
}
