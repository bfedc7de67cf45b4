package installer

import (
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/names"
	"github.com/pesde-pm/pesde/internal/project"
)

// ContainerFolder computes the on-disk path a node's files are materialized
// into: project_root/<packages_folder(root_kind, node_kind)>/.pesde/<escaped
// name>/<version>. Every node installs relative to the root project's own
// target kind, regardless of how deep it sits in the graph — a package
// reached through two different consumers still lands in exactly one place.
func ContainerFolder(proj *project.Project, rootKind names.TargetKind, name names.PackageName, version names.VersionId) string {
	base := rootKind.PackagesFolder(version.TargetKind())
	return filepath.Join(proj.PackageDir(), base, project.PackagesContainerName, name.Escaped(), version.Version().String())
}
