package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

func newRestoreCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the collection with its last good backup",
		Long: `Replace the collection file with the backup taken before the last save.

The backup is checked before anything is overwritten. Reports saved after
the backup was taken are lost, so --force is required.`,
		Example: `  maintlog restore --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("restoring overwrites the collection, rerun with --force")
			}

			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.collection.Restore(a.ctx); err != nil {
				return err
			}
			a.watcher.MarkOwnWrite()

			if err := a.repo.Load(a.ctx); err != nil {
				return err
			}
			printSuccess("Restored %s from backup (%d reports in view)", a.collection.Path(), a.repo.Len())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm the restore")

	return cmd
}
