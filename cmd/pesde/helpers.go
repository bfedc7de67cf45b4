package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/homeconfig"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/project"
)

// loadProject locates the package root (the current directory), its
// workspace root if any (the nearest ancestor directory whose manifest
// declares workspace_members), and builds a Project wired to the shared
// data/CAS directories under the user's home config directory.
func loadProject(homeCfg *homeconfig.Config) (*project.Project, error) {
	packageDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	workspaceDir := findWorkspaceRoot(packageDir)

	dataDir := filepath.Join(homeCfg.ConfigDir, "data")
	casDir := filepath.Join(homeCfg.ConfigDir, "store")

	return project.New(packageDir, workspaceDir, dataDir, casDir, project.NewAuthConfig(homeCfg.Tokens)), nil
}

// findWorkspaceRoot walks up from dir looking for a manifest whose
// workspace_members field is non-empty; returns "" if dir itself is the
// only manifest found, or if no such ancestor exists.
func findWorkspaceRoot(dir string) string {
	current := dir
	for {
		manifestPath := filepath.Join(current, project.ManifestFileName)
		if m, err := loadManifestWorkspaceMembers(manifestPath); err == nil && len(m) > 0 {
			return current
		}

		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

func loadManifestWorkspaceMembers(path string) ([]string, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	return m.WorkspaceMembers, nil
}

func loadHomeConfig() (*homeconfig.Config, error) {
	return homeconfig.Load(cfgFile)
}
