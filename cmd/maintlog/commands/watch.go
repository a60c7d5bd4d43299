package commands

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maintlog/maintlog/pkg/stores"
	"github.com/maintlog/maintlog/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Report changes made to the collection by other programs",
		Long: `Watch the collection file and print a line whenever another program
changes it. Serves Prometheus metrics while running when
telemetry.metrics_enabled and telemetry.metrics_address are set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.tel.Metrics.StartMetricsServer(); err != nil {
				return err
			}
			if cmd.Flags().Changed("debounce") {
				a.watcher, err = stores.NewChangeWatcher(stores.WatcherConfig{
					Path:     a.cfg.CollectionPath(),
					Debounce: debounce,
					Logger:   a.tel.Logger.Component("watch"),
					Events:   a.tel.Events,
				})
				if err != nil {
					return err
				}
			}

			a.tel.Events.Subscribe(printExternalChange, telemetry.FilterByType(telemetry.EventTypeExternalChange))

			log.Info().Str("path", a.cfg.CollectionPath()).Msg("Watching collection, press Ctrl-C to stop")
			err = a.watcher.Watch(a.ctx, nil)
			if err != nil && a.ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", stores.DefaultWatchDebounce, "quiet period before a change is reported")

	return cmd
}
