package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	dataDir    string
	project    string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "maintlog",
		Short: "maintlog - maintenance report log",
		Long: `maintlog keeps maintenance reports for every project in one shared,
crash-safe file and recovers unfinished forms as drafts.

Features:
  - Project-scoped views over a single collection file
  - Atomic saves with backup and read-back verification
  - Draft recovery with bounded retention
  - CSV, XLSX and JSON export in the background
  - Audit journal of every change`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&project, "project", "p", "", "active project (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newAddCommand())
	rootCmd.AddCommand(newEditCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newDeleteProjectCommand())
	rootCmd.AddCommand(newDraftCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newRestoreCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newAuditCommand())

	return rootCmd
}
