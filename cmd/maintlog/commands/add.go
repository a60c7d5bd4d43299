package commands

import (
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maintlog/maintlog/pkg/stores"
)

func newAddCommand() *cobra.Command {
	var (
		fields    []string
		fromDraft string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a report to the active project",
		Long: `Add a maintenance report. Fields are given as repeated key=value pairs.

With --from-draft the draft's fields are used as a starting point and the
draft is removed once the report is saved.`,
		Example: `  # New report
  maintlog add -p "2. Acme" --field ticket=INC-1042 --field requester=Ana --field category=Hardware

  # Finish a recovered draft
  maintlog add --from-draft 20260501T080000.000000000 --field status=closed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseFields(fields)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if fromDraft != "" {
				draft, err := a.repo.LoadDraft(a.ctx, fromDraft)
				if err != nil {
					return err
				}
				merged := draft.Fields.Clone()
				maps.Copy(merged, payload)
				payload = merged
			}
			if len(payload) == 0 {
				return errors.New("no fields given, use --field key=value")
			}

			rec, err := a.repo.Add(a.ctx, payload)
			if err != nil {
				return err
			}

			if fromDraft != "" {
				if _, err := a.repo.ConsumeDraft(a.ctx, fromDraft); err != nil {
					log.Warn().Err(err).Str("token", fromDraft).Msg("Report saved but draft not removed")
				}
			}

			if jsonOutput {
				return printJSON(rec)
			}
			printSuccess("Added report %s", rec.ID)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field as key=value (repeatable)")
	cmd.Flags().StringVar(&fromDraft, "from-draft", "", "start from a saved draft and consume it")

	return cmd
}

func newEditCommand() *cobra.Command {
	var (
		fields    []string
		clearKeys []string
		replace   bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a report",
		Long: `Change fields of a report. The report keeps its id, project and creation
time. Given fields are merged into the existing ones unless --replace is set.`,
		Example: `  maintlog edit 0a1b2c3d --field status=closed --clear parts_replaced`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseFields(fields)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			current, err := a.repo.Get(args[0])
			if err != nil {
				return err
			}

			next := stores.Payload{}
			if !replace {
				next = current.Fields.Clone()
			}
			maps.Copy(next, payload)
			for _, k := range clearKeys {
				delete(next, k)
			}

			rec, err := a.repo.Edit(a.ctx, current.ID, next)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(rec)
			}
			printSuccess("Updated report %s (%s)", rec.ID, fmt.Sprintf("%d fields", rec.Fields.NonEmpty()))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&clearKeys, "clear", nil, "field to remove (repeatable)")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace all fields instead of merging")

	return cmd
}
