package publish

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pesde-pm/pesde/internal/project"
)

// MemberResult pairs a workspace member's package directory with the
// outcome of publishing it.
type MemberResult struct {
	PackageDir string
	Result     *Result
	Err        error
}

// PublishWorkspace publishes proj, then every workspace member reachable
// from it, exactly the way the original CLI does: a failure publishing the
// workspace root itself is only logged, never propagated, so that member
// publishes still get attempted; a failure publishing one member never
// blocks the rest.
func PublishWorkspace(ctx context.Context, proj *project.Project, httpClient *http.Client, opts Options) []MemberResult {
	var results []MemberResult

	rootResult, err := Publish(ctx, proj, httpClient, opts)
	results = append(results, MemberResult{PackageDir: proj.PackageDir(), Result: rootResult, Err: err})
	if err != nil {
		slog.Error("an error occurred publishing workspace root", "error", err)
	}

	workspaceDir, ok := proj.WorkspaceDir()
	if !ok {
		workspaceDir = proj.PackageDir()
	}

	members, mErr := proj.WorkspaceMembers(workspaceDir)
	if mErr != nil {
		slog.Error("failed to enumerate workspace members", "error", mErr)
		return results
	}

	for dir := range members {
		if dir == proj.PackageDir() {
			continue
		}
		memberProj := project.New(dir, workspaceDir, proj.DataDir(), proj.CASDir(), proj.Auth())
		result, err := Publish(ctx, memberProj, httpClient, opts)
		if err != nil {
			slog.Error("failed to publish workspace member", "dir", dir, "error", err)
		}
		results = append(results, MemberResult{PackageDir: dir, Result: result, Err: err})
	}

	return results
}
