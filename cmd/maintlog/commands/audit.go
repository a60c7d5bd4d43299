package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newAuditCommand() *cobra.Command {
	var (
		action string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit journal",
		Long: `Show recorded changes, newest first. With --project only entries of
that project are shown.`,
		Example: `  maintlog audit --action record.deleted --limit 20
  maintlog audit exports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.requireAudit()
			if err != nil {
				return err
			}

			var actionFilter, projectFilter *string
			if action != "" {
				actionFilter = &action
			}
			if a.cfg.Project != "" {
				projectFilter = &a.cfg.Project
			}

			entries, err := store.ListAuditEntries(a.ctx, actionFilter, projectFilter, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(entries)
			}

			tw := newTable(os.Stdout)
			fmt.Fprintln(tw, "TIME\tACTION\tACTOR\tPROJECT\tTARGET")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Actor, deref(e.Project), deref(e.TargetID))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "only entries with this action")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")

	cmd.AddCommand(newAuditExportsCommand())

	return cmd
}

func newAuditExportsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "exports [batch-id]",
		Short: "Show journaled export batches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.requireAudit()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				run, err := store.GetExportRun(a.ctx, args[0])
				if err != nil {
					return err
				}
				items, err := store.ListExportItems(a.ctx, run.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]any{"run": run, "items": items})
				}
				_, _ = headerColor.Printf("Export %s  %s  %d/%d succeeded\n", run.ID, run.Status, run.Succeeded, run.Total)
				tw := newTable(os.Stdout)
				fmt.Fprintln(tw, "RECORD\tOUTPUT\tERROR")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", it.RecordID, deref(it.OutputPath), deref(it.Error))
				}
				return tw.Flush()
			}

			runs, err := store.ListExportRuns(a.ctx, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}
			tw := newTable(os.Stdout)
			fmt.Fprintln(tw, "BATCH\tSTARTED\tFORMAT\tSTATUS\tOK\tFAILED\tTOTAL")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Format, r.Status, r.Succeeded, r.Failed, r.Total)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum batches")

	return cmd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
