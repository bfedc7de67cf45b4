package manifest

import (
	"testing"

	"github.com/pesde-pm/pesde/internal/names"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
name = "scope/name"
version = "1.0.0"
description = "a sample package"
private = false

[target]
kind = "luau"
lib = "init.luau"

[indices]
default = "https://registry.example.com"

[dependencies]
foo = { name = "other/foo", version = "^1.0.0" }
bar = { wally = "other/bar", version = "~2.0.0", index = "wally" }
baz = { repo = "https://github.com/example/baz.git", rev = "abc123" }
qux = { workspace = "scope/qux", version = "^" }

[dev_dependencies]
test-utils = { name = "other/test-utils", version = "*" }
`

func TestParseManifest(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "scope/name", m.Name.String())
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, names.GenericLuau, m.Target.Kind)
	require.NotNil(t, m.Target.LibPath)
	assert.Equal(t, "init.luau", m.Target.LibPath.String())

	require.Len(t, m.Dependencies, 4)
	require.Len(t, m.DevDependencies, 1)

	foo, ok := m.Dependencies["foo"].(RegistrySpecifier)
	require.True(t, ok)
	assert.Equal(t, "other/foo", foo.Name.String())
	assert.Equal(t, "^1.0.0", foo.VersionReq)

	bar, ok := m.Dependencies["bar"].(CompatSpecifier)
	require.True(t, ok)
	assert.Equal(t, "wally", bar.Index)

	baz, ok := m.Dependencies["baz"].(GitSpecifier)
	require.True(t, ok)
	assert.Equal(t, "abc123", baz.Rev)

	qux, ok := m.Dependencies["qux"].(WorkspaceSpecifier)
	require.True(t, ok)
	assert.Equal(t, WorkspaceVersionComparator, qux.Version.Kind)
	assert.Equal(t, "^1.2.3", qux.Version.ResolveAgainst("1.2.3"))
}

func TestParseManifestRejectsUnknownField(t *testing.T) {
	bad := sampleManifest + "\nbogus_field = true\n"
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
}

func TestParseManifestRejectsGitWithoutRev(t *testing.T) {
	src := `
name = "scope/name"
version = "1.0.0"

[target]
kind = "luau"

[indices]
default = "https://registry.example.com"

[dependencies]
baz = { repo = "https://github.com/example/baz.git" }
`
	_, err := Parse([]byte(src))
	assert.Error(t, err)
}

func TestAllDependenciesRejectsDuplicateAlias(t *testing.T) {
	m := &Manifest{
		Dependencies: map[string]Specifier{
			"foo": RegistrySpecifier{VersionReq: "^1.0.0"},
		},
		DevDependencies: map[string]Specifier{
			"foo": RegistrySpecifier{VersionReq: "^2.0.0"},
		},
	}
	_, err := m.AllDependencies()
	assert.Error(t, err)
}

func TestDependencyKindEscalate(t *testing.T) {
	assert.Equal(t, Normal, Dev.Escalate(Normal))
	assert.Equal(t, Normal, Normal.Escalate(Dev))
	assert.Equal(t, Peer, Dev.Escalate(Peer))
	assert.Equal(t, Normal, Normal.Escalate(Peer))
}
