// Package main is the pesde CLI: a thin Cobra command tree that parses
// flags, loads the home config and project manifest, and forwards to the
// core packages — PersistentPreRun wires logging, a verbose flag enables
// debug logging, usage/errors are always silenced — without reimplementing
// any resolver/downloader/linker/
// publisher logic.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/pesde-pm/pesde/internal/pkglog"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	verbose    bool
	realStdout *os.File
)

var rootCmd = &cobra.Command{
	Use:   "pesde",
	Short: "A package manager for Luau",
	Long: `pesde resolves a project's dependencies from the registry, git, and
workspace sources, downloads them into a shared content-addressed store,
links them into a require-able packages layout, and publishes archives to
the registry.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		realStdout = os.Stdout

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(pkglog.NewHandler(realStdout, level)))

		cmd.SetOut(realStdout)
		cmd.SetErr(realStdout)
		return nil
	},
}

func executeContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "home config file (default: $XDG_CONFIG_HOME/pesde/config.toml, ~/.config/pesde/config.toml, or ~/.pesde/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(outdatedCmd)
	rootCmd.AddCommand(configCmd)
}
