package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

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

// Source is the first-class registry package source: a bare git-mirrored
// index repository plus an HTTP API serving tarballs.
type Source struct {
	IndexURL string

	mu sync.Mutex

	cacheMu sync.Mutex
	cache   map[string]graph.PackageFS
	watcher *cas.DirWatcher
}

var _ source.Source = (*Source)(nil)

// New builds a registry source for the given index URL.
func New(indexURL string) *Source {
	return &Source{IndexURL: indexURL}
}

func (s *Source) Kind() graph.SourceKind { return graph.SourceRegistry }

// Refresh clones the index mirror if absent, else fetches it.
func (s *Source) Refresh(ctx context.Context, proj *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := mirrorDir(proj, s.IndexURL)
	repo, err := openOrCloneMirror(s.IndexURL, dir)
	if err != nil {
		return err
	}
	return fetch(repo)
}

func (s *Source) openRepo(proj *project.Project) (*IndexConfig, string, error) {
	dir := mirrorDir(proj, s.IndexURL)
	repo, err := openOrCloneMirror(s.IndexURL, dir)
	if err != nil {
		return nil, "", err
	}
	cfg, err := readConfig(repo)
	if err != nil {
		return nil, "", err
	}
	return &cfg, dir, nil
}

// Config reads the index's published config.toml, cloning its mirror first
// if this is the first time this index has been touched. The publisher uses
// this to learn the upload API URL, the archive size cap, and the git/other
// registry allowance policy before it builds an archive.
func (s *Source) Config(proj *project.Project) (*IndexConfig, error) {
	cfg, _, err := s.openRepo(proj)
	return cfg, err
}

// Resolve returns every version of the named package compatible with
// consumerKind that satisfies spec.
func (s *Source) Resolve(ctx context.Context, spec manifest.Specifier, proj *project.Project, consumerKind names.TargetKind) (names.PackageName, map[names.VersionId]source.PackageRef, error) {
	reg, ok := spec.(manifest.RegistrySpecifier)
	if !ok {
		return names.PackageName{}, nil, fmt.Errorf("registry source given non-registry specifier %q", spec.Describe())
	}

	dir := mirrorDir(proj, s.IndexURL)
	repo, err := openOrCloneMirror(s.IndexURL, dir)
	if err != nil {
		return names.PackageName{}, nil, err
	}

	indexFile, meta, ok, err := readIndexFile(repo, reg.Name)
	if err != nil {
		return names.PackageName{}, nil, err
	}
	if !ok {
		return names.PackageName{}, nil, fmt.Errorf("%w: package %s not found on index %s", pkgerrors.ErrNotFound, reg.Name, s.IndexURL)
	}

	constraint, err := semver.NewConstraint(reg.VersionReq)
	if err != nil {
		return names.PackageName{}, nil, fmt.Errorf("invalid version requirement %q: %w", reg.VersionReq, err)
	}

	results := make(map[names.VersionId]source.PackageRef)
	for versionStr, entry := range indexFile {
		versionID, err := names.ParseVersionId(versionStr)
		if err != nil {
			continue
		}

		if !constraint.Check(versionID.Version()) {
			continue
		}

		if reg.Target != nil {
			if versionID.TargetKind() != *reg.Target {
				continue
			}
		} else if !consumerKind.CompatibleWith(versionID.TargetKind()) {
			continue
		}

		deps, err := decodeEntryDependencies(meta, entry)
		if err != nil {
			return names.PackageName{}, nil, err
		}

		targetKind, err := names.ParseTargetKind(entry.Target)
		if err != nil {
			return names.PackageName{}, nil, fmt.Errorf("index entry for %s %s: %w", reg.Name, versionStr, err)
		}

		results[versionID] = source.PackageRef{
			Kind:            graph.SourceRegistry,
			Target:          manifest.Target{Kind: targetKind},
			Dependencies:    deps,
			UseNewStructure: true,
			IndexURL:        s.IndexURL,
		}
	}

	if len(results) == 0 {
		return names.PackageName{}, nil, fmt.Errorf("%w: no version of %s satisfies %s", pkgerrors.ErrNotFound, reg.Name, reg.VersionReq)
	}

	return reg.Name, results, nil
}

// Download fetches the package archive, unpacks it into the CAS, and
// caches the resulting PackageFS for future short-circuits.
func (s *Source) Download(ctx context.Context, name names.PackageName, version names.VersionId, ref source.PackageRef, proj *project.Project, store *cas.Store, dl *download.Downloader) (graph.PackageFS, manifest.Target, error) {
	cachePath := cachedFSPath(proj, name, version)
	s.ensureWatcher(proj)

	s.cacheMu.Lock()
	cached, hit := s.cache[cachePath]
	s.cacheMu.Unlock()
	if hit {
		return cached, ref.Target, nil
	}

	if onDisk, err := readCachedFS(cachePath); err == nil {
		s.cacheMu.Lock()
		s.cache[cachePath] = onDisk
		s.cacheMu.Unlock()
		return onDisk, ref.Target, nil
	}

	cfg, _, err := s.openRepo(proj)
	if err != nil {
		return nil, manifest.Target{}, err
	}

	url, err := renderDownloadURL(cfg.Download, cfg.API, name.Escaped(), version.Version().String(), version.TargetKind().String())
	if err != nil {
		return nil, manifest.Target{}, err
	}

	headers := map[string]string{"Accept": "application/octet-stream"}
	if token, ok := proj.Auth().Token(s.IndexURL); ok {
		headers["Authorization"] = token
	}

	scratch, err := os.CreateTemp("", "pesde-registry-*.tar.gz")
	if err != nil {
		return nil, manifest.Target{}, fmt.Errorf("creating scratch file: %w", err)
	}
	scratchPath := scratch.Name()
	_ = scratch.Close()
	defer func() { _ = os.Remove(scratchPath) }()

	group := dl.Fetch(ctx, &download.Request{URL: url, Destination: scratchPath, Headers: headers})
	if _, err := group.Wait(); err != nil {
		return nil, manifest.Target{}, fmt.Errorf("%w: %w", pkgerrors.ErrNotFound, err)
	}

	fs, err := download.Unpack(store, scratchPath)
	if err != nil {
		return nil, manifest.Target{}, err
	}

	if err := writeCachedFS(cachePath, fs); err != nil {
		return nil, manifest.Target{}, err
	}

	s.cacheMu.Lock()
	s.cache[cachePath] = fs
	s.cacheMu.Unlock()

	return fs, ref.Target, nil
}

// ensureWatcher lazily starts a filesystem watcher on the source's index
// cache root, so that another process writing a fs.json this process
// already has cached in memory (e.g. a concurrent `pesde install` sharing
// the same CAS dir) invalidates that entry instead of being shadowed by it
// indefinitely. Best-effort: a platform without inotify/kqueue support just
// means the in-memory cache never invalidates from outside this process,
// not a hard failure.
func (s *Source) ensureWatcher(proj *project.Project) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.cache == nil {
		s.cache = make(map[string]graph.PackageFS)
	}
	if s.watcher != nil {
		return
	}

	root := filepath.Join(proj.CASDir(), "index")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return
	}

	w, err := cas.NewDirWatcher(func(string) {
		s.cacheMu.Lock()
		clear(s.cache)
		s.cacheMu.Unlock()
	})
	if err != nil {
		return
	}
	_ = w.Add(root)
	s.watcher = w
}

func cachedFSPath(proj *project.Project, name names.PackageName, version names.VersionId) string {
	return filepath.Join(proj.CASDir(), "index", name.Escaped(), version.Version().String(), version.TargetKind().String())
}

func readCachedFS(path string) (graph.PackageFS, error) {
	data, err := os.ReadFile(filepath.Join(path, "fs.json"))
	if err != nil {
		return nil, err
	}
	var fs graph.PackageFS
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, err
	}
	return fs, nil
}

func writeCachedFS(path string, fs graph.PackageFS) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(fs)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, "fs.json"), data, 0o644)
}
