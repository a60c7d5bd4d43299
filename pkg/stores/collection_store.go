package stores

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maintlog/maintlog/pkg/atomicfile"
	"github.com/maintlog/maintlog/pkg/telemetry"
)

// CollectionConfig holds collection store configuration.
type CollectionConfig struct {
	// Path is the shared collection file.
	Path string

	// AllowNonAtomic permits an in-place replace when rename fails.
	AllowNonAtomic bool

	// AfterCommit is passed to the atomic writer.
	AfterCommit func(path string) error

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
}

// CollectionStore persists the single shared collection of report records
// for every project. It takes no locks: one process and one mutating
// goroutine are assumed.
type CollectionStore struct {
	path    string
	writer  *atomicfile.Writer
	log     zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewCollectionStore creates a collection store, creating the parent
// directory if needed.
func NewCollectionStore(cfg CollectionConfig) (*CollectionStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("collection path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, ioError("create data dir", filepath.Dir(cfg.Path), err)
	}

	return &CollectionStore{
		path: cfg.Path,
		writer: atomicfile.New(atomicfile.Options{
			Backup:         true,
			BackupGuard:    decodable,
			AllowNonAtomic: cfg.AllowNonAtomic,
			AfterCommit:    cfg.AfterCommit,
			Logger:         cfg.Logger,
			Metrics:        cfg.Metrics,
		}),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		now:     time.Now,
	}, nil
}

// Path returns the collection file path.
func (s *CollectionStore) Path() string { return s.path }

// BackupPath returns the last-known-good copy path.
func (s *CollectionStore) BackupPath() string { return atomicfile.BackupPath(s.path) }

// Load reads the whole collection. A missing file is an empty collection.
// Read failures are ErrIO, parse failures are ErrCorrupt; in both cases
// the returned slice is empty and non-nil.
func (s *CollectionStore) Load(ctx context.Context) ([]ReportRecord, error) {
	records, err := s.read(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("failed to load collection")
		return []ReportRecord{}, err
	}
	s.log.Debug().Int("records", len(records)).Msg("collection loaded")
	return records, nil
}

func (s *CollectionStore) read(ctx context.Context) ([]ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ReportRecord{}, nil
	}
	if err != nil {
		return nil, ioError("read", s.path, err)
	}
	records, err := decodeCollection(data)
	if err != nil {
		return nil, corruptionError("parse", s.path, err)
	}
	return records, nil
}

// Save persists records. With an empty partition the records become the
// whole collection. With a partition the file is re-read first, every
// record of that partition is replaced by records, and all other
// partitions pass through unchanged; if the re-read fails nothing is
// written.
func (s *CollectionStore) Save(ctx context.Context, records []ReportRecord, partition string) (SaveResult, error) {
	timer := telemetry.NewTimer()
	scope := "full"
	if partition != "" {
		scope = "scoped"
	}

	result, err := s.save(ctx, records, partition)

	outcome := "success"
	if err != nil {
		outcome = string(ClassOf(err))
		s.log.Error().Err(err).Str("partition", partition).Msg("collection save failed")
	} else {
		s.log.Info().
			Str("partition", partition).
			Int("records", result.Count).
			Bool("degraded", result.Degraded).
			Msg("collection saved")
	}
	s.metrics.RecordSave(scope, outcome, timer.Duration())
	return result, err
}

func (s *CollectionStore) save(ctx context.Context, records []ReportRecord, partition string) (SaveResult, error) {
	merged := records
	if partition != "" {
		for _, r := range records {
			if r.Project != partition {
				return SaveResult{}, &StoreError{
					Class: ErrorClassInvalid,
					Op:    "save",
					Err:   fmt.Errorf("%w: record %s belongs to %q, not %q", ErrInvalidPartition, r.ID, r.Project, partition),
				}
			}
		}

		onDisk, err := s.read(ctx)
		if err != nil {
			return SaveResult{}, fmt.Errorf("re-read before scoped save, nothing written: %w", err)
		}
		merged = make([]ReportRecord, 0, len(onDisk)+len(records))
		for _, r := range onDisk {
			if r.Project != partition {
				merged = append(merged, r)
			}
		}
		merged = append(merged, records...)
	}

	return s.write(ctx, merged)
}

func (s *CollectionStore) write(ctx context.Context, records []ReportRecord) (SaveResult, error) {
	payload, err := encodeCollection(records, s.now())
	if err != nil {
		return SaveResult{}, fmt.Errorf("encode collection: %w", err)
	}

	res, err := s.writer.Write(ctx, s.path, payload, countIs(len(records)))
	if err != nil {
		if errors.Is(err, atomicfile.ErrVerification) {
			return SaveResult{}, &StoreError{Class: ErrorClassVerification, Op: "save", Path: s.path, Err: err}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return SaveResult{}, err
		}
		return SaveResult{}, ioError("save", s.path, err)
	}
	if res.Degraded {
		s.log.Warn().Str("path", s.path).Msg("collection written without atomic rename")
	}
	return SaveResult{Count: len(records), Degraded: res.Degraded}, nil
}

// DeleteByPartition removes every record of the project key, also matching
// records whose project differs only by a leading "<index>. " prefix. It
// fails closed: an unreadable file yields 0 and an error. Returns the
// number of records removed.
func (s *CollectionStore) DeleteByPartition(ctx context.Context, key string) (int, error) {
	if strings.TrimSpace(StripIndex(key)) == "" {
		return 0, &StoreError{Class: ErrorClassInvalid, Op: "delete partition", Err: fmt.Errorf("%w: %q", ErrInvalidPartition, key)}
	}

	records, err := s.read(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("partition", key).Msg("partition delete aborted, collection unreadable")
		return 0, err
	}

	kept := make([]ReportRecord, 0, len(records))
	for _, r := range records {
		if !MatchesPartition(r.Project, key) {
			kept = append(kept, r)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if _, err := s.write(ctx, kept); err != nil {
		s.log.Error().Err(err).Str("partition", key).Msg("partition delete not persisted")
		return 0, err
	}
	s.log.Info().Str("partition", key).Int("removed", removed).Msg("partition deleted")
	return removed, nil
}

// Restore replaces the collection file with its backup if the backup parses.
func (s *CollectionStore) Restore(ctx context.Context) error {
	err := s.writer.Restore(ctx, s.path, decodable)
	if err != nil {
		return ioError("restore", s.BackupPath(), err)
	}
	s.log.Warn().Str("path", s.path).Msg("collection restored from backup")
	return nil
}

// decodable accepts bytes that parse as a collection, so a corrupt file
// never replaces the last good backup.
func decodable(data []byte) error {
	_, err := decodeCollection(data)
	return err
}

var indexPrefix = regexp.MustCompile(`^\d+\.\s+`)

// StripIndex removes a leading "<digits>. " numbering from a project name.
func StripIndex(project string) string {
	return indexPrefix.ReplaceAllString(project, "")
}

// MatchesPartition reports whether a record's project belongs to key,
// either exactly or once list numbering is ignored on both sides.
func MatchesPartition(recordProject, key string) bool {
	if recordProject == key {
		return true
	}
	if recordProject == "" {
		return false
	}
	return StripIndex(recordProject) == StripIndex(key)
}
