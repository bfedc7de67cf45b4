package installer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/download"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource hands back a fixed, in-memory file tree for every download,
// counting how many times Refresh was called so tests can assert the
// once-per-source dedup.
type fakeSource struct {
	refreshes int
	files     map[string]string
}

var _ source.Source = (*fakeSource)(nil)

func (f *fakeSource) Kind() graph.SourceKind { return graph.SourceRegistry }

func (f *fakeSource) Refresh(ctx context.Context, proj *project.Project) error {
	f.refreshes++
	return nil
}

func (f *fakeSource) Resolve(ctx context.Context, spec manifest.Specifier, proj *project.Project, consumerKind names.TargetKind) (names.PackageName, map[names.VersionId]source.PackageRef, error) {
	return names.PackageName{}, nil, nil
}

func (f *fakeSource) Download(ctx context.Context, name names.PackageName, version names.VersionId, ref source.PackageRef, proj *project.Project, store *cas.Store, dl *download.Downloader) (graph.PackageFS, manifest.Target, error) {
	fs := make(graph.PackageFS)
	for path, content := range f.files {
		hash, err := store.Store([]byte(content))
		if err != nil {
			return nil, manifest.Target{}, err
		}
		fs[path] = graph.Entry{Kind: graph.EntryFile, Hash: hash}
	}
	return fs, ref.Target, nil
}

func mustPackageName(t *testing.T, s string) names.PackageName {
	t.Helper()
	n, err := names.NewPackageName(s)
	require.NoError(t, err)
	return n
}

func newTestEnv(t *testing.T) (*project.Project, *cas.Store) {
	t.Helper()
	packageDir := t.TempDir()
	casDir := t.TempDir()
	store, err := cas.New(casDir)
	require.NoError(t, err)
	proj := project.New(packageDir, "", t.TempDir(), casDir, project.NewAuthConfig(nil))
	return proj, store
}

func TestDownloadMaterializesEachNodeIntoItsContainerFolder(t *testing.T) {
	proj, store := newTestEnv(t)
	dl := download.New(context.Background(), nil, 2)
	defer dl.Shutdown()

	util := mustPackageName(t, "acme/util")
	v := names.NewVersionId(mustVersion(t, "1.0.0"), names.GenericLuau)

	g := graph.DependencyGraph{
		util: {
			v: &graph.Node{
				PkgRef:           graph.PackageRef{Kind: graph.SourceRegistry, Target: manifest.Target{Kind: names.GenericLuau}},
				Dependencies:     map[string]graph.Dependency{},
				PeerDependencies: map[string]graph.Dependency{},
				DependencyKind:   manifest.Normal,
			},
		},
	}

	fs := &fakeSource{files: map[string]string{"init.luau": "return {}"}}
	rootManifest := &manifest.Manifest{Target: manifest.Target{Kind: names.GenericLuau}}

	result, err := Download(context.Background(), proj, rootManifest, g, store, dl,
		func(graph.PackageRef) (source.Source, error) { return fs, nil }, 2)
	require.NoError(t, err)

	require.Contains(t, result, util)
	require.Contains(t, result[util], v)

	container := ContainerFolder(proj, names.GenericLuau, util, v)
	assert.FileExists(t, filepath.Join(container, "init.luau"))
	assert.Equal(t, 1, fs.refreshes)
}

func TestDownloadRefreshesEachSourceOnlyOnce(t *testing.T) {
	proj, store := newTestEnv(t)
	dl := download.New(context.Background(), nil, 4)
	defer dl.Shutdown()

	a := mustPackageName(t, "acme/a")
	b := mustPackageName(t, "acme/b")
	v1 := names.NewVersionId(mustVersion(t, "1.0.0"), names.GenericLuau)
	v2 := names.NewVersionId(mustVersion(t, "2.0.0"), names.GenericLuau)

	g := graph.DependencyGraph{
		a: {v1: &graph.Node{PkgRef: graph.PackageRef{Target: manifest.Target{Kind: names.GenericLuau}}, Dependencies: map[string]graph.Dependency{}, PeerDependencies: map[string]graph.Dependency{}}},
		b: {v2: &graph.Node{PkgRef: graph.PackageRef{Target: manifest.Target{Kind: names.GenericLuau}}, Dependencies: map[string]graph.Dependency{}, PeerDependencies: map[string]graph.Dependency{}}},
	}

	shared := &fakeSource{files: map[string]string{"init.luau": "return {}"}}
	rootManifest := &manifest.Manifest{Target: manifest.Target{Kind: names.GenericLuau}}

	_, err := Download(context.Background(), proj, rootManifest, g, store, dl,
		func(graph.PackageRef) (source.Source, error) { return shared, nil }, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.refreshes)
}

func TestDownloadFailsFastOnFirstError(t *testing.T) {
	proj, store := newTestEnv(t)
	dl := download.New(context.Background(), nil, 2)
	defer dl.Shutdown()

	bad := mustPackageName(t, "acme/bad")
	v := names.NewVersionId(mustVersion(t, "1.0.0"), names.GenericLuau)

	g := graph.DependencyGraph{
		bad: {v: &graph.Node{PkgRef: graph.PackageRef{Target: manifest.Target{Kind: names.GenericLuau}}, Dependencies: map[string]graph.Dependency{}, PeerDependencies: map[string]graph.Dependency{}}},
	}

	rootManifest := &manifest.Manifest{Target: manifest.Target{Kind: names.GenericLuau}}

	_, err := Download(context.Background(), proj, rootManifest, g, store, dl,
		func(graph.PackageRef) (source.Source, error) { return &failingSource{}, nil }, 2)
	require.Error(t, err)
}

type failingSource struct{ fakeSource }

var errDownloadFailed = errors.New("simulated download failure")

func (f *failingSource) Download(ctx context.Context, name names.PackageName, version names.VersionId, ref source.PackageRef, proj *project.Project, store *cas.Store, dl *download.Downloader) (graph.PackageFS, manifest.Target, error) {
	return nil, manifest.Target{}, errDownloadFailed
}

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return v
}
