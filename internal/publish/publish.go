// Package publish implements `pesde publish`: validating a package's
// manifest and exports, normalizing its includes set, rewriting dependency
// specifiers into a form resolvable outside the current workspace, and
// archiving and submitting the result to the package's default registry.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/lockfile"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgerrors"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/source/registry"
)

// Status is the outcome of a publish attempt.
type Status int

const (
	StatusPublished Status = iota
	StatusDryRun
	StatusSkippedPrivate
	StatusAborted
	StatusAlreadyExists
	StatusUnauthorized
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusPublished:
		return "published"
	case StatusDryRun:
		return "dry_run"
	case StatusSkippedPrivate:
		return "skipped_private"
	case StatusAborted:
		return "aborted"
	case StatusAlreadyExists:
		return "already_exists"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Summary is the human-reviewable digest of what's about to be published,
// presented to Options.Confirm before the network call is made.
type Summary struct {
	Name        string
	Version     string
	Description string
	License     string
	Authors     []string
	Repository  string
	Target      string
	LibPath     string
	BinPath     string
	BuildFiles  []string
	Includes    []string
	ArchiveSize int
}

// Result is the outcome of one Publish call.
type Result struct {
	Status      Status
	Message     string
	ArchivePath string // set when Options.DryRun wrote package.tar.gz to disk
}

// Confirm is asked to approve the Summary before anything is sent over the
// network. Returning false aborts the publish without error. A nil Confirm
// is treated as always-approve (the caller already confirmed, or is running
// non-interactively).
type Confirm func(Summary) (bool, error)

// Options configures one Publish call.
type Options struct {
	DryRun  bool
	Confirm Confirm
}

// Publish runs the full publish pipeline against the package rooted at
// proj. It never returns an error for conditions the original CLI reports
// and exits zero for (private package, user declines confirmation); those
// are reported via Result.Status instead.
func Publish(ctx context.Context, proj *project.Project, httpClient *http.Client, opts Options) (*Result, error) {
	m, err := proj.ReadManifest()
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	if m.Private {
		slog.Info("package is private, cannot publish", "name", m.Name)
		return &Result{Status: StatusSkippedPrivate}, nil
	}

	if !m.Target.HasExports() {
		return nil, fmt.Errorf("no exports found in target")
	}

	var buildFiles *[]string
	if m.Target.Kind.IsRoblox() {
		if len(m.Target.BuildFiles) == 0 {
			return nil, fmt.Errorf("no build files found in target")
		}
		if err := checkRobloxLockfile(proj); err != nil {
			return nil, err
		}
		buildFiles = &m.Target.BuildFiles
	}

	var warnings []string
	collect := func(msg string) { warnings = append(warnings, msg) }

	normalizeIncludes(m, collect)

	for _, step := range []struct {
		label  string
		export *manifest.FilePath
	}{
		{"lib path", m.Target.LibPath},
		{"bin path", m.Target.BinPath},
	} {
		if step.export == nil {
			continue
		}
		if err := includeExportPath(m, proj, step.label, *step.export, buildFiles, collect); err != nil {
			return nil, err
		}
	}

	if err := validateIncludedPathsExist(m, proj); err != nil {
		return nil, err
	}

	if m.Target.Kind.IsRoblox() {
		if err := validateBuildFiles(m, proj, m.Target.BuildFiles); err != nil {
			return nil, err
		}
	}

	var members map[string]*manifest.Manifest
	if workspaceDir, ok := proj.WorkspaceDir(); ok {
		members, err = proj.WorkspaceMembers(workspaceDir)
		if err != nil {
			return nil, fmt.Errorf("reading workspace members: %w", err)
		}
	}

	deps, err := rewriteSpecifiers(m, members)
	if err != nil {
		return nil, fmt.Errorf("rewriting dependencies: %w", err)
	}

	if _, err := m.AllDependencies(); err != nil {
		return nil, fmt.Errorf("dependency conflict: %w", err)
	}

	summary := buildSummary(m, warnings)

	manifestBytes, err := encodeManifest(m)
	if err != nil {
		return nil, err
	}

	archiveIncludes := make(map[string]struct{}, len(m.Includes))
	for inc := range m.Includes {
		archiveIncludes[inc] = struct{}{}
	}

	archive, err := buildArchive(proj.PackageDir(), archiveIncludes, manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("building archive: %w", err)
	}
	summary.ArchiveSize = len(archive)

	if opts.Confirm != nil {
		ok, err := opts.Confirm(summary)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.Info("publish aborted by user")
			return &Result{Status: StatusAborted, Message: "publish aborted"}, nil
		}
	}

	indexURL, ok := m.Indices[manifest.DefaultIndexName]
	if !ok {
		return nil, fmt.Errorf("missing default index")
	}

	src := registry.New(indexURL)
	if err := src.Refresh(ctx, proj); err != nil {
		return nil, fmt.Errorf("refreshing index: %w", err)
	}
	cfg, err := src.Config(proj)
	if err != nil {
		return nil, fmt.Errorf("reading index config: %w", err)
	}

	if int64(len(archive)) > cfg.MaxArchiveSize {
		return nil, fmt.Errorf("%w: archive size exceeds maximum of %d bytes by %d bytes",
			pkgerrors.ErrPolicyViolation, cfg.MaxArchiveSize, int64(len(archive))-cfg.MaxArchiveSize)
	}
	if deps.hasGit && !cfg.GitAllowed {
		return nil, fmt.Errorf("%w: git dependencies are not allowed on this index", pkgerrors.ErrPolicyViolation)
	}
	if deps.hasCompat && !cfg.OtherRegistriesAllowed {
		return nil, fmt.Errorf("%w: wally dependencies are not allowed on this index", pkgerrors.ErrPolicyViolation)
	}

	if opts.DryRun {
		archivePath := filepath.Join(proj.PackageDir(), "package.tar.gz")
		if err := os.WriteFile(archivePath, archive, 0o644); err != nil {
			return nil, fmt.Errorf("writing dry-run archive: %w", err)
		}
		return &Result{Status: StatusDryRun, ArchivePath: archivePath, Message: "package written to package.tar.gz"}, nil
	}

	return submit(ctx, httpClient, cfg.API, indexURL, proj, archive)
}

func buildSummary(m *manifest.Manifest, warnings []string) Summary {
	s := Summary{
		Name:        m.Name.String(),
		Version:     m.Version,
		Description: m.Description,
		License:     m.License,
		Authors:     m.Authors,
		Repository:  m.Repository,
		Target:      m.Target.Kind.String(),
		BuildFiles:  m.Target.BuildFiles,
	}
	if m.Target.LibPath != nil {
		s.LibPath = string(*m.Target.LibPath)
	}
	if m.Target.BinPath != nil {
		s.BinPath = string(*m.Target.BinPath)
	}
	for inc := range m.Includes {
		s.Includes = append(s.Includes, inc)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}
	return s
}

func validateIncludedPathsExist(m *manifest.Manifest, proj *project.Project) error {
	for inc := range m.Includes {
		if inc == manifest.FileName {
			continue
		}
		full := filepath.Join(proj.PackageDir(), filepath.FromSlash(inc))
		if _, err := os.Stat(full); err != nil {
			return fmt.Errorf("included file %s does not exist", inc)
		}
	}
	return nil
}

// checkRobloxLockfile enforces the Roblox publish precondition: an
// up-to-date lockfile must exist, and every direct non-dev dependency it
// records must itself be Roblox-targeted.
func checkRobloxLockfile(proj *project.Project) error {
	manifestBytes, err := os.ReadFile(proj.ManifestPath())
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	lf, err := lockfile.Load(proj.LockfilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("outdated lockfile, please run the install command first")
		}
		return fmt.Errorf("reading lockfile: %w", err)
	}

	if !lf.IsUpToDate(lockfile.HashManifest(manifestBytes)) {
		return fmt.Errorf("outdated lockfile, please run the install command first")
	}

	if name, found := lf.DirectDependencyWithoutBuildFiles(); found {
		return fmt.Errorf("roblox packages may not depend on non-roblox packages: %s", name)
	}

	return nil
}

func submit(ctx context.Context, httpClient *http.Client, apiURL, indexURL string, proj *project.Project, archive []byte) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("tarball", "package.tar.gz")
	if err != nil {
		return nil, fmt.Errorf("building multipart request: %w", err)
	}
	if _, err := part.Write(archive); err != nil {
		return nil, fmt.Errorf("writing archive to request body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/v0/packages", &body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if token, ok := proj.Auth().Token(indexURL); ok {
		slog.Debug("using token for index", "index", indexURL)
		req.Header.Set("Authorization", token)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending publish request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return &Result{Status: StatusAlreadyExists, Message: "package version already exists"}, nil
	case http.StatusForbidden:
		return &Result{Status: StatusUnauthorized, Message: "unauthorized to publish under this scope"}, nil
	case http.StatusBadRequest:
		return &Result{Status: StatusInvalid, Message: string(text)}, nil
	default:
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("failed to publish package: %d (%s)", resp.StatusCode, text)
		}
		return &Result{Status: StatusPublished, Message: string(text)}, nil
	}
}
