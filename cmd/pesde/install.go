package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"

	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/download"
	"github.com/pesde-pm/pesde/internal/installer"
	"github.com/pesde-pm/pesde/internal/linking"
	"github.com/pesde-pm/pesde/internal/lockfile"
	"github.com/pesde-pm/pesde/internal/resolver"
	"github.com/pesde-pm/pesde/internal/scripts"
	"github.com/spf13/cobra"
)

var lockedFlag bool

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Resolve, download, and link this project's dependencies",
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&lockedFlag, "locked", false, "fail instead of re-resolving if pesde.lock is out of date")
}

func runInstall(cmd *cobra.Command, args []string) error {
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

	manifestBytes, err := os.ReadFile(proj.ManifestPath())
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	manifestHash := lockfile.HashManifest(manifestBytes)

	existing, lockErr := lockfile.Load(proj.LockfilePath())
	if lockedFlag {
		if lockErr != nil || !existing.IsUpToDate(manifestHash) {
			return fmt.Errorf("pesde.lock is out of date and --locked was given")
		}
	}

	slog.Info("resolving dependencies", "package", m.Name)
	g, err := resolver.Resolve(ctx, proj, m, sourceForSpecifier(m))
	if err != nil {
		return fmt.Errorf("resolving dependencies: %w", err)
	}

	store, err := cas.New(proj.CASDir())
	if err != nil {
		return fmt.Errorf("opening content store: %w", err)
	}

	dl := download.New(ctx, http.DefaultClient, runtime.NumCPU()*4)

	slog.Info("downloading dependencies")
	dg, err := installer.Download(ctx, proj, m, g, store, dl, sourceForRef, runtime.NumCPU()*4)
	if err != nil {
		return fmt.Errorf("downloading dependencies: %w", err)
	}

	runner := scripts.NewRunner(scripts.DefaultInterpreter)
	slog.Info("linking packages")
	if err := linking.Link(ctx, proj, m, dg, store, runner); err != nil {
		return fmt.Errorf("linking packages: %w", err)
	}

	lf := lockfile.FromDownloaded(manifestHash, dg)
	if err := lockfile.Save(proj.LockfilePath(), lf); err != nil {
		return fmt.Errorf("writing lockfile: %w", err)
	}

	slog.Info("install complete", "packages", len(dg))
	return nil
}
