package stores

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/maintlog/maintlog/pkg/telemetry"
)

const (
	// DefaultMaxDrafts is the retention cap applied after every save.
	DefaultMaxDrafts = 20

	draftPrefix      = "draft_"
	draftExt         = ".yaml"
	draftTokenLayout = "20060102T150405.000000000"
	savedAtKey       = "_saved_at"
)

// statDraft is swapped in tests to inject stat failures.
var statDraft = os.Stat

var draftTokenPattern = regexp.MustCompile(`^\d{8}T\d{6}\.\d{9}$`)

// DraftConfig holds draft store configuration.
type DraftConfig struct {
	Dir       string
	MaxDrafts int
	Logger    zerolog.Logger
	Metrics   *telemetry.Metrics
}

// DraftStore keeps each draft in its own YAML file. Writes go straight to
// the final file: a torn write loses at most that one draft, and readers
// skip files they cannot parse.
type DraftStore struct {
	dir       string
	maxDrafts int
	log       zerolog.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewDraftStore creates a draft store rooted at cfg.Dir.
func NewDraftStore(cfg DraftConfig) (*DraftStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("drafts directory is required")
	}
	if cfg.MaxDrafts <= 0 {
		cfg.MaxDrafts = DefaultMaxDrafts
	}
	return &DraftStore{
		dir:       cfg.Dir,
		maxDrafts: cfg.MaxDrafts,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}, nil
}

// Dir returns the drafts directory.
func (s *DraftStore) Dir() string { return s.dir }

func (s *DraftStore) pathFor(token string) (string, error) {
	if !draftTokenPattern.MatchString(token) {
		return "", fmt.Errorf("%w: invalid token %q", ErrDraftNotFound, token)
	}
	return filepath.Join(s.dir, draftPrefix+token+draftExt), nil
}

// Save writes fields as a new draft and applies the retention cap. Forms
// with every key field blank are not kept.
func (s *DraftStore) Save(ctx context.Context, fields Payload) (DraftInfo, error) {
	if err := ctx.Err(); err != nil {
		return DraftInfo{}, err
	}
	if !fields.HasKeyField() {
		return DraftInfo{}, ErrDraftEmpty
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return DraftInfo{}, ioError("create drafts dir", s.dir, err)
	}

	savedAt := s.now().UTC()
	var (
		token string
		path  string
	)
	for {
		token = savedAt.Format(draftTokenLayout)
		path = filepath.Join(s.dir, draftPrefix+token+draftExt)
		_, err := statDraft(path)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return DraftInfo{}, ioError("stat draft", path, err)
		}
		savedAt = savedAt.Add(time.Nanosecond)
	}

	doc := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		if k == savedAtKey {
			continue
		}
		doc[k] = v
	}
	doc[savedAtKey] = savedAt.Format(time.RFC3339Nano)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return DraftInfo{}, fmt.Errorf("encode draft: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return DraftInfo{}, ioError("write draft", path, err)
	}
	s.metrics.RecordDraftSaved()
	s.log.Debug().Str("token", token).Msg("draft saved")

	if trimmed, err := s.enforceRetention(); err != nil {
		s.log.Warn().Err(err).Msg("draft retention incomplete")
	} else if trimmed > 0 {
		s.log.Debug().Int("trimmed", trimmed).Msg("old drafts removed")
	}

	return DraftInfo{
		Token:      token,
		Path:       path,
		SavedAt:    savedAt,
		Ticket:     fields.Get(FieldTicket),
		Requester:  fields.Get(FieldRequester),
		FieldCount: fields.NonEmpty(),
	}, nil
}

// draftEntry is one file found in the drafts directory.
type draftEntry struct {
	info     DraftInfo
	readable bool
}

// scan returns every draft file, readable or not, newest first.
func (s *DraftStore) scan() ([]draftEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioError("list drafts", s.dir, err)
	}

	entries := make([]draftEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, draftPrefix) || !strings.HasSuffix(name, draftExt) {
			continue
		}
		token := strings.TrimSuffix(strings.TrimPrefix(name, draftPrefix), draftExt)
		path := filepath.Join(s.dir, name)

		entry := draftEntry{info: DraftInfo{Token: token, Path: path}}
		if fi, err := de.Info(); err == nil {
			entry.info.SavedAt = fi.ModTime().UTC()
		}

		draft, err := readDraft(path, token)
		if err == nil {
			entry.readable = true
			if !draft.SavedAt.IsZero() {
				entry.info.SavedAt = draft.SavedAt
			}
			entry.info.Ticket = draft.Fields.Get(FieldTicket)
			entry.info.Requester = draft.Fields.Get(FieldRequester)
			entry.info.FieldCount = draft.Fields.NonEmpty()
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].info, entries[j].info
		if !a.SavedAt.Equal(b.SavedAt) {
			return a.SavedAt.After(b.SavedAt)
		}
		return a.Token > b.Token
	})
	return entries, nil
}

// List returns readable drafts, newest first. Files that cannot be parsed
// are left out without error.
func (s *DraftStore) List(ctx context.Context) ([]DraftInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	infos := make([]DraftInfo, 0, len(entries))
	for _, e := range entries {
		if !e.readable {
			s.log.Debug().Str("path", e.info.Path).Msg("skipping unreadable draft")
			s.metrics.RecordDraftSkipped()
			continue
		}
		infos = append(infos, e.info)
	}
	return infos, nil
}

// Load parses one draft. The draft stays on disk.
func (s *DraftStore) Load(ctx context.Context, token string) (Draft, error) {
	if err := ctx.Err(); err != nil {
		return Draft{}, err
	}
	path, err := s.pathFor(token)
	if err != nil {
		return Draft{}, err
	}
	return readDraft(path, token)
}

// Delete removes one draft. A missing draft is not an error.
func (s *DraftStore) Delete(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(token)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioError("delete draft", path, err)
	}
	return nil
}

// DeleteAll removes every draft file it can and returns how many went.
func (s *DraftStore) DeleteAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		if err := os.Remove(e.info.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, ioError("delete drafts", s.dir, errors.Join(errs...))
	}
	return removed, nil
}

// enforceRetention deletes the oldest drafts beyond the cap.
func (s *DraftStore) enforceRetention() (int, error) {
	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	if len(entries) <= s.maxDrafts {
		return 0, nil
	}
	trimmed := 0
	var errs []error
	for _, e := range entries[s.maxDrafts:] {
		if err := os.Remove(e.info.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		trimmed++
	}
	s.metrics.RecordDraftsTrimmed(trimmed)
	return trimmed, errors.Join(errs...)
}

func readDraft(path, token string) (Draft, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Draft{}, fmt.Errorf("%w: %s", ErrDraftNotFound, token)
	}
	if err != nil {
		return Draft{}, ioError("read draft", path, err)
	}

	var doc map[string]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Draft{}, corruptionError("parse draft", path, err)
	}
	if doc == nil {
		return Draft{}, corruptionError("parse draft", path, errors.New("empty draft"))
	}

	draft := Draft{Token: token, Fields: make(Payload, len(doc))}
	for k, v := range doc {
		if k == savedAtKey {
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				draft.SavedAt = ts
			}
			continue
		}
		draft.Fields[k] = v
	}
	return draft, nil
}
