package publish

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/scripts"
)

// ignoredIncludes is the block-list of file and directory names a package's
// includes set silently drops, typically editor/toolchain state that has no
// business being shipped in a tarball.
var ignoredIncludes = []string{
	".github",
	".vscode",
	".vscode.json",
	"node_modules",
	".DS_Store",
	".gitignore",
	".gitattributes",
	"rokit.toml",
	"aftman.toml",
	"foreman.toml",
}

var readmeNames = map[string]bool{"readme": true, "readme.md": true, "readme.txt": true}

// warner receives one human-readable warning line per normalization step
// that changed something. Callers not interested in the stream may pass nil.
type warner func(string)

func warn(w warner, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w != nil {
		w(msg)
	}
	slog.Warn(msg)
}

// normalizeIncludes mutates m.Includes in place: forces the manifest file
// in, strips .git, strips the ignored-names block-list and
// default.project.json (with an explanation), and warns (without failing)
// about a missing README or docs directory.
func normalizeIncludes(m *manifest.Manifest, w warner) {
	if _, ok := m.Includes[manifest.FileName]; !ok {
		m.Includes[manifest.FileName] = struct{}{}
		warn(w, "%s was not in includes, adding it", manifest.FileName)
	}

	if _, ok := m.Includes[".git"]; ok {
		delete(m.Includes, ".git")
		warn(w, ".git was in includes, removing it")
	}

	hasReadme := false
	hasDocs := false
	for inc := range m.Includes {
		if readmeNames[strings.ToLower(inc)] {
			hasReadme = true
		}
		if inc == "docs" {
			hasDocs = true
		}
	}
	if !hasReadme {
		warn(w, "no README file in includes, consider adding one")
	}
	if !hasDocs {
		warn(w, "no docs directory in includes, consider adding one")
	}

	if _, ok := m.Includes["default.project.json"]; ok {
		delete(m.Includes, "default.project.json")
		warn(w, "default.project.json was in includes, this should be generated by the %s script upon dependants installation", scripts.RobloxSyncConfigGenerator)
	}

	for _, ignored := range ignoredIncludes {
		if _, ok := m.Includes[ignored]; ok {
			delete(m.Includes, ignored)
			warn(w, "%s was in includes, removing it: unnecessary for a published package", ignored)
		}
	}
}

// includeExportPath validates an export path (lib or bin) exists, is a
// regular file, and looks like valid Luau source, then ensures its
// top-level path component is present in includes (and, for a Roblox
// target, in buildFiles). Returns an error if any check fails.
func includeExportPath(m *manifest.Manifest, proj *project.Project, label string, export manifest.FilePath, buildFiles *[]string, w warner) error {
	fullPath := export.ToPath(proj.PackageDir())

	info, err := os.Stat(fullPath)
	if err != nil {
		return fmt.Errorf("%s points to non-existent file: %w", label, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file", label)
	}

	contents, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", label, err)
	}
	if err := validateLuau(string(contents)); err != nil {
		return fmt.Errorf("%s is not a valid Luau file: %w", label, err)
	}

	rel, err := filepath.Rel(proj.PackageDir(), fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s must be within project directory", label)
	}
	firstPart := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]

	if _, ok := m.Includes[firstPart]; !ok {
		m.Includes[firstPart] = struct{}{}
		warn(w, "%s was not in includes, adding %s", label, firstPart)
	}

	if buildFiles != nil {
		found := false
		for _, f := range *buildFiles {
			if f == firstPart {
				found = true
				break
			}
		}
		if !found {
			*buildFiles = append(*buildFiles, firstPart)
			warn(w, "%s was not in build files, adding %s", label, firstPart)
		}
	}

	return nil
}

// validateLuau performs a lightweight tolerant sanity check in place of a
// real parse: pesde's original validates with a full Luau parser, which has
// no equivalent available here. This rejects only the cheapest, most
// unambiguous mistake — an empty export file — rather than attempting to
// reimplement grammar validation.
func validateLuau(contents string) error {
	if strings.TrimSpace(contents) == "" {
		return fmt.Errorf("file is empty")
	}
	return nil
}

// validateBuildFiles checks that every declared Roblox build file exists
// under the project directory and is present in includes.
func validateBuildFiles(m *manifest.Manifest, proj *project.Project, buildFiles []string) error {
	for _, bf := range buildFiles {
		if strings.EqualFold(bf, manifest.FileName) {
			return fmt.Errorf("%s is in build files, please remove it", manifest.FileName)
		}

		full := filepath.Join(proj.PackageDir(), filepath.FromSlash(bf))
		if _, err := os.Stat(full); err != nil {
			return fmt.Errorf("build file %s does not exist", bf)
		}
		if _, ok := m.Includes[bf]; !ok {
			return fmt.Errorf("build file %s is not in includes, please add it", bf)
		}
	}
	return nil
}
