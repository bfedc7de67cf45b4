// Package linking creates the shim files that let the Luau require()
// mechanism resolve an alias to the package actually installed for it,
// after installer.Download has populated every node's container folder.
package linking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/pesde-pm/pesde/internal/installer"
	"github.com/pesde-pm/pesde/internal/linking/generator"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/pkgerrors"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/scripts"
)

type typeKey struct {
	name    names.PackageName
	version names.VersionId
}

// Link writes every shim the downloaded graph's nodes need: direct-alias
// shims at the project root, dependency-forwarding shims inside each
// node's own container, and Roblox sync-config files for nodes whose
// target declares build files.
func Link(ctx context.Context, proj *project.Project, rootManifest *manifest.Manifest, dg graph.DownloadedGraph, store *cas.Store, runner *scripts.Runner) error {
	packageTypes := make(map[typeKey][]string)

	for name, versions := range dg {
		for versionID, dn := range versions {
			if dn.Target.LibPath != nil && *dn.Target.LibPath != manifest.NoLibraryFileFound {
				container := installer.ContainerFolder(proj, rootManifest.Target.Kind, name, versionID)
				libFile := dn.Target.LibPath.ToPath(container)
				contents, err := os.ReadFile(libFile)
				if err != nil {
					return fmt.Errorf("reading library file for %s@%s: %w", name, versionID.Version(), err)
				}
				packageTypes[typeKey{name, versionID}] = generator.GetFileTypes(string(contents))
			}

			if len(dn.Target.BuildFiles) > 0 && !dn.Node.PkgRef.LikeCompat {
				container := installer.ContainerFolder(proj, rootManifest.Target.Kind, name, versionID)
				if err := runRobloxSyncConfigGenerator(ctx, proj, rootManifest, runner, container, dn.Target.BuildFiles); err != nil {
					return fmt.Errorf("generating roblox sync config for %s@%s: %w", name, versionID.Version(), err)
				}
			}
		}
	}

	for name, versions := range dg {
		for versionID, dn := range versions {
			container := installer.ContainerFolder(proj, rootManifest.Target.Kind, name, versionID)

			if dn.Node.Direct != nil {
				baseFolder := filepath.Join(proj.PackageDir(), rootManifest.Target.Kind.PackagesFolder(versionID.TargetKind()))
				if err := os.MkdirAll(baseFolder, 0o755); err != nil {
					return fmt.Errorf("creating packages folder %s: %w", baseFolder, err)
				}

				if dn.Target.LibPath != nil && *dn.Target.LibPath != manifest.NoLibraryFileFound {
					reqPath, err := generator.GetLibRequirePath(baseFolder, *dn.Target.LibPath, container, dn.Node.PkgRef.UseNewStructure, baseFolder)
					if err != nil {
						return err
					}
					shim := generator.GenerateLibLinkingModule(reqPath, packageTypes[typeKey{name, versionID}])
					if err := writeCAS(store, filepath.Join(baseFolder, *dn.Node.Direct+".luau"), shim); err != nil {
						return err
					}
				}

				if dn.Target.BinPath != nil {
					reqPath, err := generator.GetBinRequirePath(baseFolder, *dn.Target.BinPath, container)
					if err != nil {
						return err
					}
					shim := generator.GenerateBinLinkingModule(container, reqPath)
					if err := writeCAS(store, filepath.Join(baseFolder, *dn.Node.Direct+".bin.luau"), shim); err != nil {
						return err
					}
				}
			}

			for alias, edge := range dn.Node.Dependencies {
				depVersions, ok := dg[edge.Name]
				if !ok {
					return fmt.Errorf("%w: dependency %s of %s@%s", pkgerrors.ErrNotFound, edge.Name, name, versionID.Version())
				}
				depNode, ok := depVersions[edge.VersionId]
				if !ok {
					return fmt.Errorf("%w: dependency %s@%s of %s@%s", pkgerrors.ErrNotFound, edge.Name, edge.VersionId.Version(), name, versionID.Version())
				}
				if depNode.Target.LibPath == nil || *depNode.Target.LibPath == manifest.NoLibraryFileFound {
					continue
				}

				depContainer := installer.ContainerFolder(proj, rootManifest.Target.Kind, edge.Name, edge.VersionId)
				linkerFolder := filepath.Join(container, versionID.TargetKind().PackagesFolder(edge.VersionId.TargetKind()))
				if err := os.MkdirAll(linkerFolder, 0o755); err != nil {
					return fmt.Errorf("creating linker folder %s: %w", linkerFolder, err)
				}

				reqPath, err := generator.GetLibRequirePath(linkerFolder, *depNode.Target.LibPath, depContainer, depNode.Node.PkgRef.UseNewStructure, linkerFolder)
				if err != nil {
					return err
				}
				shim := generator.GenerateLibLinkingModule(reqPath, packageTypes[typeKey{edge.Name, edge.VersionId}])
				if err := writeCAS(store, filepath.Join(linkerFolder, alias+".luau"), shim); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func runRobloxSyncConfigGenerator(ctx context.Context, proj *project.Project, rootManifest *manifest.Manifest, runner *scripts.Runner, containerFolder string, buildFiles []string) error {
	scriptPath, ok := scripts.Lookup(rootManifest, proj.PackageDir(), scripts.RobloxSyncConfigGenerator)
	if !ok {
		return nil
	}
	args := append([]string{containerFolder}, buildFiles...)
	if _, err := runner.Run(ctx, scriptPath, args...); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrScriptFailure, err)
	}
	return nil
}

// writeCAS stores contents by hash and hard-links (or copies) it into
// place, the same materialization path every other downloaded file takes.
func writeCAS(store *cas.Store, dest, contents string) error {
	hash, err := store.Store([]byte(contents))
	if err != nil {
		return fmt.Errorf("storing shim %s: %w", dest, err)
	}
	if err := store.Materialize(hash, dest); err != nil {
		return fmt.Errorf("materializing shim %s: %w", dest, err)
	}
	return nil
}
