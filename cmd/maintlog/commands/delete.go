package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maintlog/maintlog/pkg/query"
)

func newDeleteCommand() *cobra.Command {
	var (
		filter   query.Filter
		matching bool
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete reports by id or by filter",
		Long: `Delete one or more reports of the active project.

Ids are deleted in a single save. Unknown ids are reported and the rest
are still removed. With --matching every report that passes the filter
flags is deleted, which requires --yes.`,
		Example: `  # Two reports
  maintlog delete 0a1b2c3d 4e5f6a7b

  # Everything in the Network category
  maintlog delete --matching --category network --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if matching == (len(args) > 0) {
				return errors.New("give report ids or --matching, not both")
			}
			if matching && !yes {
				return errors.New("deleting by filter requires --yes")
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ids := args
			if matching {
				if a.repo.SelectAll(filter) == 0 {
					printWarning("no reports match")
					return nil
				}
				ids = a.repo.Selected()
			}
			res, err := a.repo.DeleteAll(a.ctx, ids)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(res)
			}
			if len(res.Failed) > 0 {
				printWarning("%s", res.Summary())
				if len(res.Succeeded) == 0 {
					return fmt.Errorf("nothing deleted: %w", res.Err())
				}
				return nil
			}
			printSuccess("Deleted %s", res.Summary())
			return nil
		},
	}

	addFilterFlags(cmd, &filter)
	cmd.Flags().BoolVar(&matching, "matching", false, "delete every report matching the filter flags")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm a filter delete")

	return cmd
}

func newDeleteProjectCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-project <project>",
		Short: "Delete every report of a project",
		Long: `Delete every report whose project matches the key.

A leading "N. " ordinal is ignored on both sides, so "2. Acme" and
"Acme" name the same project. Other projects are left untouched.`,
		Example: `  maintlog delete-project "2. Acme" --yes`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("deleting every report of %q requires --yes", args[0])
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.repo.DeleteByPartition(a.ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{"project": args[0], "removed": removed})
			}
			printSuccess("Removed %d reports of %s", removed, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the delete")

	return cmd
}
