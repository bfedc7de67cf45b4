package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
name = "scope/name"
version = "1.0.0"

[target]
kind = "luau"
lib = "init.luau"

[indices]
default = "https://registry.example.com"
`

func newTestProject(t *testing.T) *Project {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(testManifest), 0o644))
	return New(dir, "", t.TempDir(), t.TempDir(), NewAuthConfig(nil))
}

func TestReadManifest(t *testing.T) {
	p := newTestProject(t)
	m, err := p.ReadManifest()
	require.NoError(t, err)
	assert.Equal(t, "scope/name", m.Name.String())
}

func TestWorkspaceDirAbsentByDefault(t *testing.T) {
	p := newTestProject(t)
	_, ok := p.WorkspaceDir()
	assert.False(t, ok)
}

func TestAuthConfigToken(t *testing.T) {
	auth := NewAuthConfig(map[string]string{"https://registry.example.com": "secret-token"})
	token, ok := auth.Token("https://registry.example.com")
	require.True(t, ok)
	assert.Equal(t, "secret-token", token)

	_, ok = auth.Token("https://other.example.com")
	assert.False(t, ok)
}

func TestWorkspaceMembers(t *testing.T) {
	root := t.TempDir()
	rootManifest := testManifest + "\nworkspace_members = [\"packages/*\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ManifestFileName), []byte(rootManifest), 0o644))

	memberDir := filepath.Join(root, "packages", "util")
	require.NoError(t, os.MkdirAll(memberDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(memberDir, ManifestFileName), []byte(`
name = "scope/util"
version = "1.0.0"

[target]
kind = "luau"

[indices]
default = "https://registry.example.com"
`), 0o644))

	p := New(root, root, t.TempDir(), t.TempDir(), NewAuthConfig(nil))
	members, err := p.WorkspaceMembers(root)
	require.NoError(t, err)
	require.Contains(t, members, memberDir)
	assert.Equal(t, "scope/util", members[memberDir].Name.String())
}

func TestIndexHashStable(t *testing.T) {
	a := IndexHash("https://index.example.com/repo.git")
	b := IndexHash("https://index.example.com/repo.git")
	assert.Equal(t, a, b)
}
