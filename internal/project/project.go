// Package project binds together a package's on-disk locations: the
// package root, its workspace root (if any), the shared data directory, and
// the CAS directory, plus the authentication tokens used to talk to
// registries.
package project

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/manifest"
)

// ManifestFileName is the fixed name of the project manifest in a package root.
const ManifestFileName = manifest.FileName

// LockfileFileName is the fixed name of the lockfile in a package root.
const LockfileFileName = "pesde.lock"

// DefaultIndexName is the alias a manifest uses for its primary registry.
const DefaultIndexName = "default"

// PackagesContainerName is the directory name every packages-folder
// installs its per-package containers under.
const PackagesContainerName = ".pesde"

// AuthConfig carries the per-index bearer tokens used when talking to
// registries that require authentication.
type AuthConfig struct {
	tokens map[string]string
}

// NewAuthConfig builds an AuthConfig from an index-URL-to-token map.
func NewAuthConfig(tokens map[string]string) AuthConfig {
	if tokens == nil {
		tokens = map[string]string{}
	}
	return AuthConfig{tokens: tokens}
}

// Token returns the bearer token configured for indexURL, if any.
func (a AuthConfig) Token(indexURL string) (string, bool) {
	t, ok := a.tokens[indexURL]
	return t, ok
}

// Project is the main handle shared across the resolver, downloader,
// linker, and publisher: the package being operated on, the workspace it
// belongs to (if any), and where shared and content-addressed state lives.
type Project struct {
	packageDir   string
	workspaceDir string // empty if not part of a workspace
	dataDir      string
	casDir       string
	auth         AuthConfig
}

// New builds a Project. workspaceDir may be empty.
func New(packageDir, workspaceDir, dataDir, casDir string, auth AuthConfig) *Project {
	return &Project{
		packageDir:   packageDir,
		workspaceDir: workspaceDir,
		dataDir:      dataDir,
		casDir:       casDir,
		auth:         auth,
	}
}

func (p *Project) PackageDir() string { return p.packageDir }

// WorkspaceDir returns the workspace root, and false if this package is not
// part of a workspace.
func (p *Project) WorkspaceDir() (string, bool) {
	return p.workspaceDir, p.workspaceDir != ""
}

func (p *Project) DataDir() string   { return p.dataDir }
func (p *Project) CASDir() string    { return p.casDir }
func (p *Project) Auth() AuthConfig  { return p.auth }

// IndicesDir is where mirrored bare index repositories live.
func (p *Project) IndicesDir() string {
	return filepath.Join(p.dataDir, "indices")
}

// ManifestPath returns the path to this project's manifest file.
func (p *Project) ManifestPath() string {
	return filepath.Join(p.packageDir, ManifestFileName)
}

// LockfilePath returns the path to this project's lockfile.
func (p *Project) LockfilePath() string {
	return filepath.Join(p.packageDir, LockfileFileName)
}

// ReadManifest loads and parses this project's manifest.
func (p *Project) ReadManifest() (*manifest.Manifest, error) {
	return manifest.Load(p.ManifestPath())
}

// WriteManifest overwrites this project's manifest file.
func (p *Project) WriteManifest(data []byte) error {
	return os.WriteFile(p.ManifestPath(), data, 0o644)
}

// WorkspaceMembers loads the manifests of every workspace member declared
// by the manifest at dir, resolving its workspace_members globs relative to
// dir.
func (p *Project) WorkspaceMembers(dir string) (map[string]*manifest.Manifest, error) {
	rootManifestPath := filepath.Join(dir, ManifestFileName)
	rootManifest, err := manifest.Load(rootManifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading workspace root manifest at %s: %w", dir, err)
	}

	members := make(map[string]*manifest.Manifest)
	for _, glob := range rootManifest.WorkspaceMembers {
		pattern := filepath.Join(dir, filepath.FromSlash(glob))
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid workspace member glob %q: %w", glob, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				continue
			}
			memberManifest, err := manifest.Load(filepath.Join(match, ManifestFileName))
			if err != nil {
				return nil, fmt.Errorf("reading workspace member manifest at %s: %w", match, err)
			}
			members[match] = memberManifest
		}
	}
	return members, nil
}

// IndexHash derives the directory name a registry's bare mirror is cloned
// under inside IndicesDir, keyed by the repository URL.
func IndexHash(repoURL string) string {
	if u, err := url.Parse(repoURL); err == nil {
		repoURL = u.String()
	}
	return cas.Hash([]byte(repoURL))
}
