package stores

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/maintlog/maintlog/pkg/telemetry"
)

// DefaultWatchDebounce collapses the burst of events one save produces.
const DefaultWatchDebounce = 250 * time.Millisecond

// ExternalChange describes a modification of the collection file that this
// process did not make.
type ExternalChange struct {
	Path    string
	Op      string
	ModTime time.Time
	Size    int64
}

// WatcherConfig holds change watcher configuration.
type WatcherConfig struct {
	Path     string
	Debounce time.Duration
	Logger   zerolog.Logger
	Events   *telemetry.EventPublisher
}

// fingerprint identifies one version of the file on disk.
type fingerprint struct {
	modTime time.Time
	size    int64
	exists  bool
}

func statFingerprint(path string) fingerprint {
	fi, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{modTime: fi.ModTime(), size: fi.Size(), exists: true}
}

// ChangeWatcher reports writes to the collection file by other processes.
// The store takes no locks, so the watcher only detects concurrent writers
// and leaves resolution to the user.
type ChangeWatcher struct {
	path     string
	debounce time.Duration
	log      zerolog.Logger
	events   *telemetry.EventPublisher

	mu    sync.Mutex
	known fingerprint
}

// NewChangeWatcher creates a watcher for the file at cfg.Path. The file's
// current state counts as known.
func NewChangeWatcher(cfg WatcherConfig) (*ChangeWatcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watch path is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultWatchDebounce
	}
	return &ChangeWatcher{
		path:     filepath.Clean(cfg.Path),
		debounce: cfg.Debounce,
		log:      cfg.Logger,
		events:   cfg.Events,
		known:    statFingerprint(cfg.Path),
	}, nil
}

// MarkOwnWrite records the file's current state as produced by this
// process. Call it after every successful save.
func (w *ChangeWatcher) MarkOwnWrite() {
	fp := statFingerprint(w.path)
	w.mu.Lock()
	w.known = fp
	w.mu.Unlock()
}

// check compares the file with the last known state and adopts the new
// state. It reports whether the file changed.
func (w *ChangeWatcher) check() (fingerprint, bool) {
	fp := statFingerprint(w.path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if fp == w.known {
		return fp, false
	}
	w.known = fp
	return fp, true
}

// Watch blocks until ctx is done, calling onChange for every foreign change.
// The parent directory is watched because atomic saves replace the file.
func (w *ChangeWatcher) Watch(ctx context.Context, onChange func(ExternalChange)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.Debug().Str("path", w.path).Msg("watching collection file")

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		lastOp fsnotify.Op
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			lastOp = event.Op
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			fp, changed := w.check()
			if !changed {
				continue
			}
			change := ExternalChange{Path: w.path, Op: lastOp.String(), ModTime: fp.modTime, Size: fp.size}
			w.log.Warn().
				Str("path", change.Path).
				Str("op", change.Op).
				Msg("collection file changed outside this process")
			if err := w.events.PublishExternalChange(change.Path, change.Op, change.Size, change.ModTime); err != nil {
				w.log.Debug().Err(err).Msg("failed to publish external change")
			}
			if onChange != nil {
				onChange(change)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}
