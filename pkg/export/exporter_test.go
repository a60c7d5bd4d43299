package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/maintlog/maintlog/pkg/stores"
)

func sampleRecord(id, ticket string) stores.ReportRecord {
	return stores.ReportRecord{
		ID:        id,
		Project:   "1. Acme",
		CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		Fields: stores.Payload{
			stores.FieldTicket:    ticket,
			stores.FieldRequester: "Ana",
			"custom_note":         "kept",
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "csv", want: FormatCSV},
		{in: " XLSX ", want: FormatXLSX},
		{in: "json", want: FormatJSON},
		{in: "pdf", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("ParseFormat(%q): expected ErrUnsupportedFormat, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestColumnsOrder(t *testing.T) {
	cols := Columns([]stores.ReportRecord{sampleRecord("a", "T")})
	if cols[0] != "id" || cols[4] != stores.FieldTicket {
		t.Errorf("unexpected leading columns %v", cols[:5])
	}
	if cols[len(cols)-1] != "custom_note" {
		t.Errorf("unknown field should be appended last, got %s", cols[len(cols)-1])
	}
}

func TestExportCSV(t *testing.T) {
	dest := t.TempDir()
	e := NewFileExporter()

	path, err := e.Export(context.Background(), sampleRecord("ab12cd34", "INC/7"), FormatCSV, dest)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if filepath.Base(path) != "INC_7_ab12cd34.csv" {
		t.Errorf("unexpected file name %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	ticketCol := slices.Index(rows[0], stores.FieldTicket)
	if rows[1][ticketCol] != "INC/7" {
		t.Errorf("expected ticket value, got %q", rows[1][ticketCol])
	}
	if rows[1][2] != "2026-02-03 04:05:06" {
		t.Errorf("unexpected created_at %q", rows[1][2])
	}
}

func TestExportUsesIDWithoutTicket(t *testing.T) {
	path, err := NewFileExporter().Export(context.Background(), sampleRecord("ab12cd34", " "), FormatJSON, t.TempDir())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if filepath.Base(path) != "ab12cd34_ab12cd34.json" {
		t.Errorf("unexpected file name %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec stores.ReportRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("single-record json should be an object: %v", err)
	}
	if rec.ID != "ab12cd34" {
		t.Errorf("unexpected id %s", rec.ID)
	}
}

func TestExportXLSX(t *testing.T) {
	path, err := NewFileExporter().Export(context.Background(), sampleRecord("ab12cd34", "T-1"), FormatXLSX, t.TempDir())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); !slices.Equal(got, []string{sheetName}) {
		t.Errorf("unexpected sheets %v", got)
	}
	header, err := f.GetCellValue(sheetName, "A1")
	if err != nil || header != "id" {
		t.Errorf("unexpected header %q, %v", header, err)
	}
	id, err := f.GetCellValue(sheetName, "A2")
	if err != nil || id != "ab12cd34" {
		t.Errorf("unexpected id cell %q, %v", id, err)
	}
}

func TestExportCombined(t *testing.T) {
	e := NewFileExporter()
	e.now = func() time.Time { return time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC) }
	recs := []stores.ReportRecord{sampleRecord("a1", "T1"), sampleRecord("b2", "T2")}

	path, err := e.ExportCombined(context.Background(), recs, FormatJSON, t.TempDir())
	if err != nil {
		t.Fatalf("combined export failed: %v", err)
	}
	if filepath.Base(path) != "reports_20260701T093000.json" {
		t.Errorf("unexpected file name %s", path)
	}
	data, _ := os.ReadFile(path)
	var out []stores.ReportRecord
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("combined json should be an array: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("expected 2 records, got %d", len(out))
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := NewFileExporter().Export(context.Background(), sampleRecord("a", "b"), Format("pdf"), t.TempDir())
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
