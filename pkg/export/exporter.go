package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/maintlog/maintlog/pkg/atomicfile"
	"github.com/maintlog/maintlog/pkg/stores"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Exporter writes one record to a file under dest and returns its path.
type Exporter interface {
	Export(ctx context.Context, rec stores.ReportRecord, format Format, dest string) (string, error)
}

// Column headers that precede the payload fields.
const (
	colID        = "id"
	colProject   = "project"
	colCreatedAt = "created_at"
	colUpdatedAt = "updated_at"
)

const sheetName = "Report"

// FileExporter writes export files through the atomic writer so a failed
// export never leaves a truncated file behind.
type FileExporter struct {
	writer *atomicfile.Writer
	now    func() time.Time
}

// NewFileExporter creates a file exporter.
func NewFileExporter() *FileExporter {
	return &FileExporter{
		writer: atomicfile.New(atomicfile.Options{AllowNonAtomic: true}),
		now:    time.Now,
	}
}

// Export writes rec to <dest>/<ticket-or-id>_<id>.<ext>.
func (e *FileExporter) Export(ctx context.Context, rec stores.ReportRecord, format Format, dest string) (string, error) {
	base := rec.Field(stores.FieldTicket)
	if strings.TrimSpace(base) == "" {
		base = rec.ID
	}
	name := fmt.Sprintf("%s_%s.%s", sanitizeFilename(base), rec.ID, format)
	return e.write(ctx, []stores.ReportRecord{rec}, format, filepath.Join(dest, name), false)
}

// ExportCombined writes every record into one file under dest and returns
// its path.
func (e *FileExporter) ExportCombined(ctx context.Context, recs []stores.ReportRecord, format Format, dest string) (string, error) {
	name := fmt.Sprintf("reports_%s.%s", e.now().UTC().Format("20060102T150405"), format)
	return e.write(ctx, recs, format, filepath.Join(dest, name), true)
}

func (e *FileExporter) write(ctx context.Context, recs []stores.ReportRecord, format Format, path string, combined bool) (string, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = renderCSV(recs)
	case FormatXLSX:
		data, err = renderXLSX(recs, e.now())
	case FormatJSON:
		data, err = renderJSON(recs, combined)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", format, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}
	if _, err := e.writer.Write(ctx, path, data, nil); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Columns returns the header row for recs: record metadata, every known
// field in declaration order, then unknown payload keys sorted.
func Columns(recs []stores.ReportRecord) []string {
	cols := []string{colID, colProject, colCreatedAt, colUpdatedAt}
	cols = append(cols, stores.KnownFields...)

	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c] = struct{}{}
	}
	var extra []string
	for _, r := range recs {
		for k := range r.Fields {
			if _, ok := known[k]; !ok {
				known[k] = struct{}{}
				extra = append(extra, k)
			}
		}
	}
	slices.Sort(extra)
	return append(cols, extra...)
}

func cellValue(rec stores.ReportRecord, col string) string {
	switch col {
	case colID:
		return rec.ID
	case colProject:
		return rec.Project
	case colCreatedAt:
		if rec.CreatedAt.IsZero() {
			return ""
		}
		return rec.CreatedAt.Format("2006-01-02 15:04:05")
	case colUpdatedAt:
		if rec.UpdatedAt.IsZero() {
			return ""
		}
		return rec.UpdatedAt.Format("2006-01-02 15:04:05")
	default:
		return rec.Field(col)
	}
}

func renderCSV(recs []stores.ReportRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	cols := Columns(recs)
	if err := writer.Write(cols); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		row := make([]string, len(cols))
		for i, col := range cols {
			row[i] = cellValue(rec, col)
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}

func renderXLSX(recs []stores.ReportRecord, generated time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#4472C4"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, err
	}

	cols := Columns(recs)
	for colIdx, col := range cols {
		cell, err := excelize.CoordinatesToCellName(colIdx+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, err
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(cols))
	if err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 20); err != nil {
		return nil, err
	}

	for rowIdx, rec := range recs {
		for colIdx, col := range cols {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, cellValue(rec, col)); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Maintenance reports",
		Created: generated.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	// Drop the default sheet now that ours exists.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderJSON(recs []stores.ReportRecord, combined bool) ([]byte, error) {
	if !combined && len(recs) == 1 {
		return json.MarshalIndent(recs[0], "", "  ")
	}
	if recs == nil {
		recs = []stores.ReportRecord{}
	}
	return json.MarshalIndent(recs, "", "  ")
}

// sanitizeFilename replaces characters that are unsafe in file names.
func sanitizeFilename(name string) string {
	replacements := map[rune]rune{
		'/':  '_',
		'\\': '_',
		':':  '_',
		'*':  '_',
		'?':  '_',
		'"':  '_',
		'<':  '_',
		'>':  '_',
		'|':  '_',
		' ':  '_',
	}

	result := make([]rune, 0, len(name))
	for _, char := range name {
		if replacement, exists := replacements[char]; exists {
			result = append(result, replacement)
		} else {
			result = append(result, char)
		}
	}
	return strings.Trim(string(result), ".")
}
