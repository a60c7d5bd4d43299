package export

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maintlog/maintlog/pkg/stores"
)

// gatedExporter blocks every export until released.
type gatedExporter struct {
	started chan string
	release chan struct{}
}

func newGatedExporter() *gatedExporter {
	return &gatedExporter{started: make(chan string), release: make(chan struct{})}
}

func (g *gatedExporter) Export(_ context.Context, rec stores.ReportRecord, format Format, dest string) (string, error) {
	g.started <- rec.ID
	<-g.release
	return filepath.Join(dest, rec.ID+"."+string(format)), nil
}

// failingExporter fails for the listed ids.
type failingExporter struct {
	fail map[string]bool
}

func (f *failingExporter) Export(_ context.Context, rec stores.ReportRecord, format Format, dest string) (string, error) {
	if f.fail[rec.ID] {
		return "", errors.New("disk full")
	}
	return filepath.Join(dest, rec.ID+"."+string(format)), nil
}

func records(ids ...string) []stores.ReportRecord {
	out := make([]stores.ReportRecord, len(ids))
	for i, id := range ids {
		out[i] = stores.ReportRecord{ID: id, Fields: stores.Payload{stores.FieldTicket: "T-" + id}}
	}
	return out
}

func waitDone(t *testing.T, h *Handle) Summary {
	t.Helper()
	select {
	case <-h.Done():
		return h.Wait()
	case <-time.After(5 * time.Second):
		t.Fatal("export did not finish")
		return Summary{}
	}
}

func TestNewWorkerRequiresExporter(t *testing.T) {
	if _, err := NewWorker(WorkerConfig{}); err == nil {
		t.Fatal("expected error without exporter")
	}
}

func TestDispatchValidatesJob(t *testing.T) {
	w, _ := NewWorker(WorkerConfig{Exporter: &failingExporter{}})

	if _, err := w.Dispatch(context.Background(), Job{Format: "doc", Destination: "x"}, nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := w.Dispatch(context.Background(), Job{Format: FormatCSV}, nil); err == nil {
		t.Error("expected error without destination")
	}
}

func TestWorkerPartialFailure(t *testing.T) {
	w, _ := NewWorker(WorkerConfig{Exporter: &failingExporter{fail: map[string]bool{"b": true}}})

	var (
		mu       sync.Mutex
		received *Summary
	)
	h, err := w.Dispatch(context.Background(), Job{Records: records("a", "b", "c"), Format: FormatCSV, Destination: "/out"}, func(s Summary) {
		mu.Lock()
		received = &s
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	s := waitDone(t, h)
	if s.Succeeded != 2 || s.Failed != 1 || s.Cancelled {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.Status != stores.ExportStatusPartial {
		t.Errorf("expected partial status, got %s", s.Status)
	}
	if len(s.Items) != 3 || s.Items[1].Err == nil || s.Items[2].Path != "/out/c.csv" {
		t.Errorf("unexpected items %+v", s.Items)
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.BatchID != h.ID() {
		t.Errorf("onDone not delivered before Done: %+v", received)
	}
}

func TestWorkerAllFailed(t *testing.T) {
	w, _ := NewWorker(WorkerConfig{Exporter: &failingExporter{fail: map[string]bool{"a": true}}})
	h, _ := w.Dispatch(context.Background(), Job{Records: records("a"), Format: FormatJSON, Destination: "/out"}, nil)

	if s := waitDone(t, h); s.Status != stores.ExportStatusFailed {
		t.Errorf("expected failed status, got %s", s.Status)
	}
}

func TestWorkerCancellationKeepsPartialSuccess(t *testing.T) {
	g := newGatedExporter()
	w, _ := NewWorker(WorkerConfig{Exporter: g})

	h, err := w.Dispatch(context.Background(), Job{Records: records("a", "b", "c", "d"), Format: FormatCSV, Destination: "/out"}, nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if id := <-g.started; id != "a" {
		t.Fatalf("expected a first, got %s", id)
	}
	g.release <- struct{}{}
	<-g.started
	h.Cancel()
	g.release <- struct{}{}

	s := waitDone(t, h)
	if !s.Cancelled || s.Status != stores.ExportStatusCancelled {
		t.Errorf("expected cancelled summary, got %+v", s)
	}
	if s.Succeeded != 2 || s.Failed != 0 || s.Total != 4 {
		t.Errorf("expected 2 of 4 exported, got %+v", s)
	}
	if got := s.String(); got != "2 succeeded, cancelled after 2 of 4" {
		t.Errorf("unexpected summary text %q", got)
	}
}

func TestWorkerUsesSnapshot(t *testing.T) {
	g := newGatedExporter()
	w, _ := NewWorker(WorkerConfig{Exporter: g})

	live := records("a")
	h, _ := w.Dispatch(context.Background(), Job{Records: live, Format: FormatCSV, Destination: "/out"}, nil)

	// The host keeps editing while the batch runs.
	live[0].ID = "changed"
	live[0].Fields[stores.FieldTicket] = "changed"

	if id := <-g.started; id != "a" {
		t.Errorf("worker saw live edits: %s", id)
	}
	g.release <- struct{}{}
	waitDone(t, h)
}

func TestWorkerCustomDeliver(t *testing.T) {
	posted := make(chan func(), 1)
	w, _ := NewWorker(WorkerConfig{
		Exporter: &failingExporter{},
		Deliver:  func(fn func()) { posted <- fn },
	})

	called := false
	h, _ := w.Dispatch(context.Background(), Job{Records: records("a"), Format: FormatCSV, Destination: "/out"}, func(Summary) { called = true })
	waitDone(t, h)

	if called {
		t.Fatal("callback ran on the worker goroutine")
	}
	fn := <-posted
	fn()
	if !called {
		t.Error("posted callback did not run")
	}
}

func TestWorkerJournalsRun(t *testing.T) {
	ctx := context.Background()
	audit, err := stores.NewAuditStore(stores.AuditConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create audit store: %v", err)
	}
	if err := audit.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer audit.Close()
	if err := audit.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	w, _ := NewWorker(WorkerConfig{
		Exporter: &failingExporter{fail: map[string]bool{"b": true}},
		Recorder: audit,
	})
	h, _ := w.Dispatch(ctx, Job{Records: records("a", "b"), Format: FormatXLSX, Destination: "/out"}, nil)
	waitDone(t, h)

	run, err := audit.GetExportRun(ctx, h.ID())
	if err != nil {
		t.Fatalf("run not journalled: %v", err)
	}
	if run.Status != stores.ExportStatusPartial || run.Succeeded != 1 || run.Failed != 1 || run.Error == nil {
		t.Errorf("unexpected run %+v", run)
	}
	items, err := audit.ListExportItems(ctx, h.ID())
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 || items[1].Error == nil || *items[1].Error != "disk full" {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestWorkerWritesRealFiles(t *testing.T) {
	dest := t.TempDir()
	w, _ := NewWorker(WorkerConfig{Exporter: NewFileExporter()})

	h, _ := w.Dispatch(context.Background(), Job{Records: records("a1", "b2"), Format: FormatCSV, Destination: dest}, nil)
	s := waitDone(t, h)
	if s.Status != stores.ExportStatusCompleted {
		t.Fatalf("expected completed, got %+v", s)
	}
	for _, item := range s.Items {
		if filepath.Dir(item.Path) != dest {
			t.Errorf("file written outside destination: %s", item.Path)
		}
	}
}
