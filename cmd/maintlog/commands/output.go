package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/maintlog/maintlog/pkg/stores"
)

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.Bold)
)

func printSuccess(format string, args ...any) {
	if jsonOutput {
		return
	}
	_, _ = successColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printWarning(format string, args ...any) {
	_, _ = warningColor.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

// PrintError prints a readable summary of a failed command.
func PrintError(err error) {
	_, _ = errorColor.Fprintf(os.Stderr, "error: %v\n", err)
	switch stores.ClassOf(err) {
	case stores.ErrorClassCorruption:
		fmt.Fprintln(os.Stderr, "  the collection file could not be parsed; nothing was written. 'maintlog restore --force' restores the last good backup.")
	case stores.ErrorClassVerification:
		fmt.Fprintln(os.Stderr, "  the save did not read back correctly and was rolled back to the previous file.")
	case stores.ErrorClassIO:
		fmt.Fprintln(os.Stderr, "  the data directory could not be read or written; the previous file is unchanged.")
	}
	if errors.Is(err, stores.ErrNotAtomic) {
		fmt.Fprintln(os.Stderr, "  set storage.allow_non_atomic to accept an in-place replace on this filesystem.")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printRecordTable(recs []stores.ReportRecord) {
	tw := newTable(os.Stdout)
	fmt.Fprintln(tw, "ID\tTICKET\tREQUESTER\tTECHNICIAN\tCATEGORY\tPROJECT\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Field(stores.FieldTicket),
			r.Field(stores.FieldRequester),
			r.Field(stores.FieldTechnician),
			r.Field(stores.FieldCategory),
			r.Project,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}

// printFields prints the non-empty fields of p, known fields first.
func printFields(p stores.Payload) {
	tw := newTable(os.Stdout)
	seen := make(map[string]bool, len(stores.KnownFields))
	for _, k := range stores.KnownFields {
		seen[k] = true
		if v := p.Get(k); strings.TrimSpace(v) != "" {
			fmt.Fprintf(tw, "%s\t%s\n", k, v)
		}
	}
	var extra []string
	for k := range p {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	for _, k := range extra {
		if v := p.Get(k); strings.TrimSpace(v) != "" {
			fmt.Fprintf(tw, "%s\t%s\n", k, v)
		}
	}
	_ = tw.Flush()
}

// parseFields turns repeated key=value flags into a payload.
func parseFields(pairs []string) (stores.Payload, error) {
	p := make(stores.Payload, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}
		if !slices.Contains(stores.KnownFields, key) {
			printWarning("unknown field %q kept as-is", key)
		}
		p[key] = value
	}
	return p, nil
}
