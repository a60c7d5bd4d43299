package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maintlog/maintlog/pkg/query"
)

// addFilterFlags registers the flags shared by commands that filter.
func addFilterFlags(cmd *cobra.Command, f *query.Filter) {
	cmd.Flags().StringVar(&f.Category, "category", query.CategoryAll, "category substring, or ALL")
	cmd.Flags().StringVarP(&f.Text, "search", "s", "", "text to find in ticket, requester, technician or category")
}

func newListCommand() *cobra.Command {
	var (
		filter     query.Filter
		categories bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports of the active project",
		Long: `List maintenance reports, newest first.

With --project only that project's reports are shown; without it every
report in the collection is listed. Category and search filters combine.`,
		Example: `  # All reports of a project
  maintlog list --project "2. Acme"

  # Hardware reports mentioning Ana
  maintlog list --category hardware --search ana

  # Categories in use
  maintlog list --categories`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if categories {
				cats := a.repo.Categories()
				if jsonOutput {
					return printJSON(cats)
				}
				for _, c := range cats {
					fmt.Println(c)
				}
				return nil
			}

			recs := a.repo.List(filter)
			if jsonOutput {
				return printJSON(recs)
			}
			printRecordTable(recs)
			printSuccess("%d of %d reports", len(recs), a.repo.Len())
			return nil
		},
	}

	addFilterFlags(cmd, &filter)
	cmd.Flags().BoolVar(&categories, "categories", false, "list distinct categories instead of reports")

	return cmd
}
