package stores

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maintlog/maintlog/pkg/telemetry"
)

func TestChangeWatcherReportsForeignWrite(t *testing.T) {
	ctx := context.Background()
	store := newTestCollection(t, CollectionConfig{})
	if _, err := store.Save(ctx, []ReportRecord{rec("a", "", "")}, ""); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	publisher, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}
	events := make(chan telemetry.Event, 4)
	publisher.Subscribe(func(e telemetry.Event) { events <- e }, telemetry.FilterByType(telemetry.EventTypeExternalChange))

	w, err := NewChangeWatcher(WatcherConfig{Path: store.Path(), Debounce: 300 * time.Millisecond, Events: publisher})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	changes := make(chan ExternalChange, 4)
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Watch(watchCtx, func(c ExternalChange) { changes <- c }) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("watch returned error: %v", err)
		}
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Own writes are not reported.
	if _, err := store.Save(ctx, []ReportRecord{rec("a", "", ""), rec("b", "", "")}, ""); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	w.MarkOwnWrite()

	select {
	case c := <-changes:
		t.Fatalf("own write reported as foreign: %+v", c)
	case <-time.After(700 * time.Millisecond):
	}

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(filepath.Dir(store.Path()), "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write other file: %v", err)
	}

	foreign := []byte(`{"schemaVersion":1,"records":[{"id":"zzz"}]}`)
	if err := os.WriteFile(store.Path(), foreign, 0o644); err != nil {
		t.Fatalf("foreign write: %v", err)
	}

	select {
	case c := <-changes:
		if c.Path != store.Path() {
			t.Errorf("unexpected path %s", c.Path)
		}
		if c.Size != int64(len(foreign)) {
			t.Errorf("expected size %d, got %d", len(foreign), c.Size)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("foreign write not reported")
	}

	select {
	case e := <-events:
		if e.Data["path"] != store.Path() || e.Data["size"] != int64(len(foreign)) {
			t.Errorf("unexpected event data %v", e.Data)
		}
	default:
		t.Fatal("external change not published")
	}
}

func TestNewChangeWatcherRequiresPath(t *testing.T) {
	if _, err := NewChangeWatcher(WatcherConfig{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
