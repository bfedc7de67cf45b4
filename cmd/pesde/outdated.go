package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v80/github"
	"github.com/pesde-pm/pesde/internal/homeconfig"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/source"
	"github.com/spf13/cobra"
)

var outdatedCmd = &cobra.Command{
	Use:   "outdated",
	Short: "Report direct dependencies with a newer version available",
	RunE:  runOutdated,
}

func runOutdated(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	homeCfg, err := loadHomeConfig()
	if err != nil {
		return fmt.Errorf("loading home config: %w", err)
	}

	proj, err := loadProject(homeCfg)
	if err != nil {
		return err
	}

	m, err := proj.ReadManifest()
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	deps, err := m.AllDependencies()
	if err != nil {
		return fmt.Errorf("reading dependencies: %w", err)
	}

	sourceFor := sourceForSpecifier(m)

	refreshed := map[string]bool{}
	var rows []string
	for _, dep := range deps {
		reg, ok := dep.Spec.(manifest.RegistrySpecifier)
		if !ok {
			continue // only the registry source exposes a meaningful "latest" query
		}

		src, err := sourceFor(reg)
		if err != nil {
			return err
		}
		refreshKey := fmt.Sprintf("%T:%s", src, reg.Index)
		if !refreshed[refreshKey] {
			if err := src.Refresh(ctx, proj); err != nil {
				return fmt.Errorf("refreshing index for %s: %w", dep.Alias, err)
			}
			refreshed[refreshKey] = true
		}

		currentBest, currentOK, err := greatestSatisfying(ctx, src, reg, reg.VersionReq, proj, m.Target.Kind)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", dep.Alias, err)
		}
		latestBest, latestOK, err := greatestSatisfying(ctx, src, reg, "*", proj, m.Target.Kind)
		if err != nil {
			return fmt.Errorf("resolving latest for %s: %w", dep.Alias, err)
		}

		if currentOK && latestOK && latestBest.Compare(currentBest) > 0 {
			rows = append(rows, fmt.Sprintf("%s: %s -> %s", dep.Alias, currentBest, latestBest))
		}
	}

	sort.Strings(rows)
	if len(rows) == 0 {
		fmt.Fprintln(realStdout, "all direct dependencies are up to date")
	}
	for _, row := range rows {
		fmt.Fprintln(realStdout, row)
	}

	return checkScriptsRepoUpdate(ctx, homeCfg)
}

// greatestSatisfying re-queries src with reg's version requirement
// overridden to versionReq, returning the greatest VersionId among the
// results, and false if nothing satisfies it.
func greatestSatisfying(ctx context.Context, src source.Source, reg manifest.RegistrySpecifier, versionReq string, proj *project.Project, consumerKind names.TargetKind) (names.VersionId, bool, error) {
	reg.VersionReq = versionReq
	_, candidates, err := src.Resolve(ctx, reg, proj, consumerKind)
	if err != nil {
		return names.VersionId{}, false, err
	}

	var best names.VersionId
	found := false
	for id := range candidates {
		if !found || id.Compare(best) > 0 {
			best = id
			found = true
		}
	}
	return best, found, nil
}

// checkScriptsRepoUpdate polls the configured scripts repository's GitHub
// releases for a newer version than the one last recorded in the home
// config's update-check cache. Throttled to once per day.
func checkScriptsRepoUpdate(ctx context.Context, homeCfg *homeconfig.Config) error {
	check, err := homeconfig.LoadUpdateCheck(homeCfg)
	if err != nil {
		return fmt.Errorf("reading update check cache: %w", err)
	}
	if !check.CheckedAt.IsZero() && time.Since(check.CheckedAt) < 24*time.Hour {
		return nil
	}

	owner, repo, ok := parseGitHubOwnerRepo(homeCfg.ScriptsRepo)
	if !ok {
		return nil // not a github.com URL, nothing to check
	}

	client := github.NewClient(nil)
	release, _, err := client.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		slog.Warn("checking scripts repo for updates", "error", err)
		return nil
	}

	latest := release.GetTagName()
	if latest != "" && latest != check.Version {
		fmt.Fprintf(realStdout, "a newer pesde scripts release is available: %s -> %s\n", check.Version, latest)
	}

	return homeconfig.SaveUpdateCheck(homeCfg, time.Now(), latest)
}

func parseGitHubOwnerRepo(repoURL string) (owner, repo string, ok bool) {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host != "github.com" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
