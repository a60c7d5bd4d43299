package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show every field of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.repo.Get(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(rec)
			}

			_, _ = headerColor.Printf("Report %s\n", rec.ID)
			fmt.Printf("project\t%s\ncreated\t%s\n", rec.Project, rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if !rec.UpdatedAt.IsZero() {
				fmt.Printf("updated\t%s\n", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Println()
			printFields(rec.Fields)
			return nil
		},
	}

	return cmd
}
