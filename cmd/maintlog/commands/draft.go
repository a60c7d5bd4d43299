package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDraftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage recoverable drafts",
		Long: `Drafts are snapshots of unfinished report input. They are kept in the
drafts directory, newest first, and trimmed to drafts.max_drafts.`,
	}

	cmd.AddCommand(
		newDraftSaveCommand(),
		newDraftListCommand(),
		newDraftShowCommand(),
		newDraftDeleteCommand(),
		newDraftClearCommand(),
	)

	return cmd
}

func newDraftSaveCommand() *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:     "save",
		Short:   "Save a draft",
		Example: `  maintlog draft save --field ticket=INC-1042 --field notes="waiting for parts"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseFields(fields)
			if err != nil {
				return err
			}

			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.repo.SaveDraft(a.ctx, payload)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(info)
			}
			printSuccess("Saved draft %s", info.Token)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field as key=value (repeatable)")

	return cmd
}

func newDraftListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List drafts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			drafts, err := a.repo.ListDrafts(a.ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(drafts)
			}
			if len(drafts) == 0 {
				fmt.Println("No drafts.")
				return nil
			}

			tw := newTable(os.Stdout)
			fmt.Fprintln(tw, "TOKEN\tSAVED\tTICKET\tREQUESTER\tFIELDS")
			for _, d := range drafts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
					d.Token, d.SavedAt.Local().Format("2006-01-02 15:04:05"), d.Ticket, d.Requester, d.FieldCount)
			}
			return tw.Flush()
		},
	}
}

func newDraftShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "Show the fields of a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			draft, err := a.repo.LoadDraft(a.ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(draft)
			}
			_, _ = headerColor.Printf("Draft %s\n", draft.Token)
			fmt.Printf("saved\t%s\n\n", draft.SavedAt.Local().Format("2006-01-02 15:04:05"))
			printFields(draft.Fields)
			return nil
		},
	}
}

func newDraftDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token>...",
		Short: "Delete drafts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, token := range args {
				if err := a.repo.DeleteDraft(a.ctx, token); err != nil {
					return err
				}
			}
			printSuccess("Deleted %d drafts", len(args))
			return nil
		},
	}
}

func newDraftClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("clearing all drafts requires --yes")
			}

			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.repo.DeleteAllDrafts(a.ctx)
			if err != nil {
				return err
			}
			printSuccess("Deleted %d drafts", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")

	return cmd
}
