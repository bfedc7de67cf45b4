// Package manifest implements the project descriptor (pesde.toml): the
// manifest schema, the build target it declares, and the four dependency
// specifier variants a manifest can reference.
package manifest

import (
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/names"
)

// FilePath is a project-relative path recorded in the manifest (a lib/bin
// entry point, a script path). It is always stored with forward slashes and
// converted to the host separator on use.
type FilePath string

// ToPath joins the relative path onto base using the host's path rules.
func (p FilePath) ToPath(base string) string {
	return filepath.Join(base, filepath.FromSlash(string(p)))
}

func (p FilePath) String() string { return string(p) }

// sentinel library path recorded when a compat-registry package could not
// have its entry point discovered by the sourcemap generator.
const NoLibraryFileFound FilePath = "____pesde_no_export_file_found"

// Target is a package's declared build profile: which runtime it targets
// and where its library/binary entry points live.
type Target struct {
	Kind names.TargetKind

	// LibPath is the relative path to the file `require`d by consumers.
	LibPath *FilePath
	// BinPath is the relative path to the file executed as the package's
	// binary entrypoint (via the external script runner).
	BinPath *FilePath
	// BuildFiles is the set of file/directory names a Roblox sync-config
	// generator script needs to see to produce a *.project.json. Only
	// meaningful for Roblox-kind targets.
	BuildFiles []string
}

// HasExports reports whether the target publishes anything consumers can
// use (required for publish).
func (t Target) HasExports() bool {
	return t.LibPath != nil || t.BinPath != nil
}
