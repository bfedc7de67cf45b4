package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/pesde-pm/pesde/internal/publish"
	"github.com/spf13/cobra"
)

var (
	dryRunFlag    bool
	workspaceFlag bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish this package to its default registry",
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "build the archive but do not upload it")
	publishCmd.Flags().BoolVar(&workspaceFlag, "workspace", false, "also publish every workspace member")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	homeCfg, err := loadHomeConfig()
	if err != nil {
		return fmt.Errorf("loading home config: %w", err)
	}

	proj, err := loadProject(homeCfg)
	if err != nil {
		return err
	}

	opts := publish.Options{
		DryRun:  dryRunFlag,
		Confirm: confirmPublish,
	}

	if workspaceFlag {
		results := publish.PublishWorkspace(ctx, proj, http.DefaultClient, opts)
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(realStdout, "%s: error: %v\n", r.PackageDir, r.Err)
				continue
			}
			fmt.Fprintf(realStdout, "%s: %s %s\n", r.PackageDir, r.Result.Status, r.Result.Message)
		}
		return nil
	}

	result, err := publish.Publish(ctx, proj, http.DefaultClient, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(realStdout, "%s %s\n", result.Status, result.Message)
	return nil
}

// confirmPublish prints the publish summary and asks the user to confirm
// on stdin — the Go ecosystem pack has no interactive-prompt library
// (nothing like Rust's `inquire`), so this is a plain read-a-line prompt.
func confirmPublish(summary publish.Summary) (bool, error) {
	fmt.Fprintf(realStdout, "about to publish %s@%s (%s target, %d bytes archive)\n",
		summary.Name, summary.Version, summary.Target, summary.ArchiveSize)
	if len(summary.Includes) > 0 {
		fmt.Fprintf(realStdout, "  includes: %s\n", strings.Join(summary.Includes, ", "))
	}
	fmt.Fprint(realStdout, "proceed? [y/N] ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes", nil
}
