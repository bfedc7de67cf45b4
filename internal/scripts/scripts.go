// Package scripts invokes the external helper scripts a manifest names
// under its scripts table: the sourcemap generator used by the
// compatibility source to discover a legacy package's entry point, and the
// Roblox sync-config generator used by the linker.
package scripts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/pesde-pm/pesde/internal/manifest"
)

// Role names the two script entries the core understands. Any other key in
// a manifest's scripts table is opaque to the core.
type Role string

const (
	// SourcemapGenerator discovers a package's Luau entry point given its
	// unpacked tree.
	SourcemapGenerator Role = "sourcemap generator"
	// RobloxSyncConfigGenerator produces a *.project.json for a package
	// whose target declares build_files.
	RobloxSyncConfigGenerator Role = "roblox sync config generator"
)

// DefaultInterpreter is the runtime used to execute a manifest script when
// the project doesn't override it: the general-purpose Luau runtime this
// tool itself is commonly installed alongside.
const DefaultInterpreter = "lune"

// Runner executes manifest-declared scripts through an external
// interpreter, as a subprocess.
type Runner struct {
	// Interpreter is the executable invoked as `<interpreter> run
	// <script> -- <args...>`. Defaults to DefaultInterpreter if empty.
	Interpreter string
}

// NewRunner builds a Runner using interpreter, or DefaultInterpreter if
// interpreter is empty.
func NewRunner(interpreter string) *Runner {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return &Runner{Interpreter: interpreter}
}

// Lookup resolves role to the script path a manifest declares for it,
// relative to baseDir. The second return is false if the manifest doesn't
// declare that role.
func Lookup(m *manifest.Manifest, baseDir string, role Role) (string, bool) {
	fp, ok := m.Scripts[string(role)]
	if !ok {
		return "", false
	}
	return fp.ToPath(baseDir), true
}

// Run executes scriptPath with args, returning its stdout as-is. Script
// failures are wrapped so callers can distinguish "script errored" from
// "script not declared".
func (r *Runner) Run(ctx context.Context, scriptPath string, args ...string) (string, error) {
	cmdArgs := append([]string{"run", scriptPath, "--"}, args...)
	cmd := exec.CommandContext(ctx, r.Interpreter, cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running script %s: %w: %s", scriptPath, err, stderr.String())
	}
	return stdout.String(), nil
}
