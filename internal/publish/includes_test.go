package publish

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManifestWithIncludes(includes ...string) *manifest.Manifest {
	m := &manifest.Manifest{Includes: map[string]struct{}{}}
	for _, inc := range includes {
		m.Includes[inc] = struct{}{}
	}
	return m
}

func TestNormalizeIncludesForcesManifestFileAndStripsGit(t *testing.T) {
	m := newManifestWithIncludes(".git", "README.md")
	var warnings []string
	normalizeIncludes(m, func(msg string) { warnings = append(warnings, msg) })

	_, hasManifest := m.Includes[manifest.FileName]
	assert.True(t, hasManifest)
	_, hasGit := m.Includes[".git"]
	assert.False(t, hasGit)
	assert.NotEmpty(t, warnings)
}

func TestNormalizeIncludesStripsIgnoredNamesAndDefaultProject(t *testing.T) {
	m := newManifestWithIncludes("node_modules", "default.project.json", "README.md")
	normalizeIncludes(m, nil)

	_, hasNodeModules := m.Includes["node_modules"]
	assert.False(t, hasNodeModules)
	_, hasDefaultProject := m.Includes["default.project.json"]
	assert.False(t, hasDefaultProject)
}

func TestIncludeExportPathAddsTopLevelDirToIncludesAndBuildFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "init.luau"), []byte("return {}\n"), 0o644))

	proj := project.New(dir, "", t.TempDir(), t.TempDir(), project.NewAuthConfig(nil))
	m := newManifestWithIncludes()
	buildFiles := []string{}

	err := includeExportPath(m, proj, "lib path", manifest.FilePath("src/init.luau"), &buildFiles, nil)
	require.NoError(t, err)

	_, ok := m.Includes["src"]
	assert.True(t, ok)
	assert.Contains(t, buildFiles, "src")
}

func TestIncludeExportPathRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "init.luau"), []byte("   \n"), 0o644))

	proj := project.New(dir, "", t.TempDir(), t.TempDir(), project.NewAuthConfig(nil))
	m := newManifestWithIncludes()

	err := includeExportPath(m, proj, "lib path", manifest.FilePath("init.luau"), nil, nil)
	require.Error(t, err)
}
