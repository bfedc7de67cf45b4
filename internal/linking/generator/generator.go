// Package generator renders the shim file contents the linker writes, and
// the path arithmetic that decides what a shim's require() call points at.
package generator

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
)

// exportedTypePattern matches a top-level `export type Name` declaration.
// This is deliberately not a real Luau parser: it tolerates syntax errors
// elsewhere in the file, which a real parse would choke on, in exchange for
// only ever seeing type names a well-formed file would also produce.
var exportedTypePattern = regexp.MustCompile(`(?m)^\s*export\s+type\s+([A-Za-z_][A-Za-z0-9_]*)`)

// GetFileTypes extracts the names of every top-level exported type from a
// Luau source file's contents.
func GetFileTypes(contents string) []string {
	matches := exportedTypePattern.FindAllStringSubmatch(contents, -1)
	types := make([]string, 0, len(matches))
	for _, m := range matches {
		types = append(types, m[1])
	}
	return types
}

// requirePathFor converts an on-disk file path into the argument Luau's
// require() expects: relative to from, slash-separated, extension
// stripped, and with a trailing "init" segment dropped since requiring a
// directory implicitly resolves to its init.luau.
func requirePathFor(from, file string) (string, error) {
	rel, err := filepath.Rel(from, file)
	if err != nil {
		return "", fmt.Errorf("computing require path from %s to %s: %w", from, file, err)
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, ".luau")
	rel = strings.TrimSuffix(rel, ".lua")
	rel = strings.TrimSuffix(rel, "/init")
	if rel == "init" {
		rel = "."
	}
	if rel != "." && rel != ".." && !strings.HasPrefix(rel, "./") && !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel, nil
}

// GetLibRequirePath computes the require() path a shim at fromDir should
// use to reach a dependency's library file living at
// containerFolder/libFile. useNewStructure selects between the modern
// layout, where packagesFolderBase (the consumer's own container's
// sibling) sits next to fromDir, and the legacy layout used by compat and
// pre-restructure registry packages, where it's nested one level deeper
// under fromDir itself.
func GetLibRequirePath(fromDir string, libFile manifest.FilePath, containerFolder string, useNewStructure bool, packagesFolderBase string) (string, error) {
	target := libFile.ToPath(containerFolder)

	base := fromDir
	if !useNewStructure {
		base = packagesFolderBase
	}
	return requirePathFor(base, target)
}

// GetBinRequirePath computes the require() path a .bin.luau shim uses to
// reach a package's binary entrypoint.
func GetBinRequirePath(fromDir string, binFile manifest.FilePath, containerFolder string) (string, error) {
	return requirePathFor(fromDir, binFile.ToPath(containerFolder))
}

// GenerateLibLinkingModule renders a shim that re-exports requirePath's
// module, forwarding every recorded exported type name alongside it.
func GenerateLibLinkingModule(requirePath string, types []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "local m = require(%s)\n", luauString(requirePath))
	for _, t := range types {
		fmt.Fprintf(&b, "export type %s = m.%s\n", t, t)
	}
	b.WriteString("return m\n")
	return b.String()
}

// GenerateBinLinkingModule renders a shim that forwards to a package's
// binary entrypoint, setting PESDE_ROOT so the invoked script resolves its
// own requires against containerFolder rather than the shim's location.
func GenerateBinLinkingModule(containerFolder, requirePath string) string {
	return fmt.Sprintf(
		"local process = require(\"@lune/process\")\n"+
			"process.env.PESDE_ROOT = %s\n"+
			"return require(%s)(...)\n",
		luauString(filepath.ToSlash(containerFolder)), luauString(requirePath),
	)
}

func luauString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

// PackagesFolderBase returns the directory a dependency's sibling linking
// folder lives under, given the consumer's and the dependency's own target
// kinds: containerFolder/<dep_kind's packages_folder name>.
func PackagesFolderBase(containerFolder string, consumerKind, depKind names.TargetKind) string {
	return path.Join(filepath.ToSlash(containerFolder), consumerKind.PackagesFolder(depKind))
}
