package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maintlog/maintlog/pkg/export"
	"github.com/maintlog/maintlog/pkg/query"
)

func newExportCommand() *cobra.Command {
	var (
		format   string
		dest     string
		combined bool
		filter   query.Filter
	)

	cmd := &cobra.Command{
		Use:   "export [id...]",
		Short: "Export reports to CSV, XLSX or JSON",
		Long: `Export reports of the active project. Without ids every report that
passes the filter flags is exported.

Each report becomes its own file unless --combined is given. The batch
runs in the background; Ctrl-C stops it before the next report and the
files already written are kept. Batches are journaled when the audit
journal is enabled.`,
		Example: `  # Selected reports as spreadsheets
  maintlog export 0a1b2c3d 4e5f6a7b --format xlsx

  # Every hardware report of a project in one CSV
  maintlog export -p "2. Acme" --category hardware --combined --dest ~/reports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("format") {
				format = a.cfg.Export.Format
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if dest == "" {
				dest = a.cfg.ExportDir()
			}

			if len(args) > 0 {
				for _, id := range args {
					if !a.repo.Select(id) {
						return fmt.Errorf("report %q not found in the active project", id)
					}
				}
			} else {
				a.repo.SelectAll(filter)
			}
			records := a.repo.Snapshot(a.repo.Selected())
			if len(records) == 0 {
				return errors.New("no reports to export")
			}

			exporter := export.NewFileExporter()
			if combined {
				path, err := exporter.ExportCombined(a.ctx, records, f, dest)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]any{"path": path, "records": len(records)})
				}
				printSuccess("Exported %d reports to %s", len(records), path)
				return nil
			}

			cfg := export.WorkerConfig{
				Exporter: exporter,
				Logger:   a.tel.Logger.Component("export"),
				Metrics:  a.tel.Metrics,
				Events:   a.tel.Events,
			}
			if a.audit != nil {
				cfg.Recorder = a.audit
			}
			worker, err := export.NewWorker(cfg)
			if err != nil {
				return err
			}

			handle, err := worker.Dispatch(a.ctx, export.Job{
				Records:     records,
				Format:      f,
				Destination: dest,
			}, nil)
			if err != nil {
				return err
			}

			select {
			case <-a.ctx.Done():
				printWarning("stopping export after the current report")
				handle.Cancel()
			case <-handle.Done():
			}
			summary := handle.Wait()

			if jsonOutput {
				return printJSON(summary)
			}
			for _, item := range summary.Items {
				if item.Err != nil {
					printWarning("%s: %v", item.RecordID, item.Err)
				}
			}
			msg := fmt.Sprintf("Export %s: %s", summary.BatchID[:8], summary)
			if summary.Failed > 0 && summary.Succeeded == 0 {
				return errors.New(msg)
			}
			printSuccess("%s", msg)
			return nil
		},
	}

	addFilterFlags(cmd, &filter)
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv, xlsx or json")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "destination directory (default export.destination)")
	cmd.Flags().BoolVar(&combined, "combined", false, "write all reports to one file")

	return cmd
}
