package compat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/download"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/pkgerrors"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/scripts"
	"github.com/pesde-pm/pesde/internal/source"
)

// Source is the compatibility-registry package source: a second
// git-mirrored index over an older package manager's format.
type Source struct {
	IndexURL string
	// Scripts runs the consuming project's "sourcemap generator" script.
	// Defaults to a lune-backed Runner when nil.
	Scripts *scripts.Runner

	mu sync.Mutex
}

var _ source.Source = (*Source)(nil)

func New(indexURL string) *Source {
	return &Source{IndexURL: indexURL, Scripts: scripts.NewRunner("")}
}

func (s *Source) Kind() graph.SourceKind { return graph.SourceCompat }

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

func (s *Source) openRepo(proj *project.Project) (*IndexConfig, error) {
	dir := mirrorDir(proj, s.IndexURL)
	repo, err := openOrCloneMirror(s.IndexURL, dir)
	if err != nil {
		return nil, err
	}
	cfg, err := readConfig(repo)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve returns every version of the named package satisfying spec. The
// index entry carries no TargetKind, so each match is provisionally keyed
// under the consumer's own Roblox kind (compat packages never target
// anything but Roblox); Download corrects the Target once the package's
// own legacy manifest has been read.
func (s *Source) Resolve(ctx context.Context, spec manifest.Specifier, proj *project.Project, consumerKind names.TargetKind) (names.PackageName, map[names.VersionId]source.PackageRef, error) {
	compatSpec, ok := spec.(manifest.CompatSpecifier)
	if !ok {
		return names.PackageName{}, nil, fmt.Errorf("compat source given non-compat specifier %q", spec.Describe())
	}

	dir := mirrorDir(proj, s.IndexURL)
	repo, err := openOrCloneMirror(s.IndexURL, dir)
	if err != nil {
		return names.PackageName{}, nil, err
	}

	indexFile, meta, ok, err := readIndexFile(repo, compatSpec.Name)
	if err != nil {
		return names.PackageName{}, nil, err
	}
	if !ok {
		return names.PackageName{}, nil, fmt.Errorf("%w: package %s not found on compat index %s", pkgerrors.ErrNotFound, compatSpec.Name, s.IndexURL)
	}

	constraint, err := semver.NewConstraint(compatSpec.VersionReq)
	if err != nil {
		return names.PackageName{}, nil, fmt.Errorf("invalid version requirement %q: %w", compatSpec.VersionReq, err)
	}

	provisionalKind := names.RobloxPlayer
	if consumerKind.IsRoblox() {
		provisionalKind = consumerKind
	}

	results := make(map[names.VersionId]source.PackageRef)
	for versionStr, entry := range indexFile {
		version, err := semver.NewVersion(versionStr)
		if err != nil {
			continue
		}
		if !constraint.Check(version) {
			continue
		}

		deps, err := decodeEntryDependencies(meta, entry)
		if err != nil {
			return names.PackageName{}, nil, err
		}

		versionID := names.NewVersionId(version, provisionalKind)
		results[versionID] = source.PackageRef{
			Kind:            graph.SourceCompat,
			Target:          manifest.Target{Kind: provisionalKind},
			Dependencies:    deps,
			UseNewStructure: false,
			LikeCompat:      true,
			IndexURL:        s.IndexURL,
		}
	}

	if len(results) == 0 {
		return names.PackageName{}, nil, fmt.Errorf("%w: no version of %s satisfies %s", pkgerrors.ErrNotFound, compatSpec.Name, compatSpec.VersionReq)
	}

	return compatSpec.Name, results, nil
}

// Download fetches the package archive, unpacks it, then materializes it to
// a scratch directory to run the sourcemap generator script and read the
// legacy manifest's realm.
func (s *Source) Download(ctx context.Context, name names.PackageName, version names.VersionId, ref source.PackageRef, proj *project.Project, store *cas.Store, dl *download.Downloader) (graph.PackageFS, manifest.Target, error) {
	cfg, err := s.openRepo(proj)
	if err != nil {
		return nil, manifest.Target{}, err
	}

	url, err := renderDownloadURL(cfg.Download, cfg.API, name.Escaped(), version.Version().String())
	if err != nil {
		return nil, manifest.Target{}, err
	}

	headers := map[string]string{"Accept": "application/octet-stream"}
	if token, ok := proj.Auth().Token(s.IndexURL); ok {
		headers["Authorization"] = token
	}

	scratchArchive, err := os.CreateTemp("", "pesde-compat-*.tar.gz")
	if err != nil {
		return nil, manifest.Target{}, fmt.Errorf("creating scratch file: %w", err)
	}
	scratchPath := scratchArchive.Name()
	_ = scratchArchive.Close()
	defer func() { _ = os.Remove(scratchPath) }()

	group := dl.Fetch(ctx, &download.Request{URL: url, Destination: scratchPath, Headers: headers})
	if _, err := group.Wait(); err != nil {
		return nil, manifest.Target{}, fmt.Errorf("%w: %w", pkgerrors.ErrNotFound, err)
	}

	fs, err := download.Unpack(store, scratchPath)
	if err != nil {
		return nil, manifest.Target{}, err
	}

	target, err := s.discoverTarget(ctx, proj, store, fs)
	if err != nil {
		return nil, manifest.Target{}, err
	}

	return fs, target, nil
}

// discoverTarget materializes fs to a scratch directory, invokes the
// consuming project's sourcemap generator against it, and reads the legacy
// manifest's realm to choose between the two Roblox TargetKinds.
func (s *Source) discoverTarget(ctx context.Context, proj *project.Project, store *cas.Store, fs graph.PackageFS) (manifest.Target, error) {
	scratch, err := os.MkdirTemp("", "pesde-compat-tree-*")
	if err != nil {
		return manifest.Target{}, fmt.Errorf("creating scratch tree dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	if err := download.Materialize(store, fs, scratch); err != nil {
		return manifest.Target{}, err
	}

	legacyPath := filepath.Join(scratch, ManifestFileName)
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return manifest.Target{}, fmt.Errorf("reading legacy manifest %s: %w", ManifestFileName, err)
	}
	var legacy LegacyManifest
	if _, err := toml.Decode(string(data), &legacy); err != nil {
		return manifest.Target{}, fmt.Errorf("%w: parsing legacy manifest: %w", pkgerrors.ErrDecode, err)
	}

	kind := names.RobloxPlayer
	if legacy.Package.Realm.IsServerOnly() {
		kind = names.RobloxServer
	}

	lib := findLibPath(ctx, proj, s.Scripts, scratch)

	return manifest.Target{Kind: kind, LibPath: lib}, nil
}

// sourcemapNode mirrors the sourcemap generator's documented JSON output:
// a sourcemap tree node with a list of file paths belonging to it.
type sourcemapNode struct {
	FilePaths []string `json:"filePaths"`
}

// findLibPath invokes the project's sourcemap generator script (if
// declared) against root, and returns the first .lua/.luau path it
// reports, or the "no file found" sentinel.
func findLibPath(ctx context.Context, proj *project.Project, runner *scripts.Runner, root string) *manifest.FilePath {
	sentinel := manifest.NoLibraryFileFound

	m, err := proj.ReadManifest()
	if err != nil {
		return &sentinel
	}

	scriptPath, ok := scripts.Lookup(m, proj.PackageDir(), scripts.SourcemapGenerator)
	if !ok {
		return &sentinel
	}
	if runner == nil {
		runner = scripts.NewRunner("")
	}

	out, err := runner.Run(ctx, scriptPath, root)
	if err != nil || strings.TrimSpace(out) == "" {
		return &sentinel
	}

	var node sourcemapNode
	if err := json.Unmarshal([]byte(out), &node); err != nil {
		return &sentinel
	}

	for _, p := range node.FilePaths {
		if strings.HasSuffix(p, ".lua") || strings.HasSuffix(p, ".luau") {
			fp := manifest.FilePath(p)
			return &fp
		}
	}
	return &sentinel
}
