package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maintlog/maintlog/pkg/query"
	"github.com/maintlog/maintlog/pkg/stores"
	"github.com/maintlog/maintlog/pkg/telemetry"
)

// Collection is the persistence the repository needs for records.
type Collection interface {
	Load(ctx context.Context) ([]stores.ReportRecord, error)
	Save(ctx context.Context, records []stores.ReportRecord, partition string) (stores.SaveResult, error)
	DeleteByPartition(ctx context.Context, key string) (int, error)
}

// Drafts is the persistence the repository needs for drafts.
type Drafts interface {
	Save(ctx context.Context, fields stores.Payload) (stores.DraftInfo, error)
	List(ctx context.Context) ([]stores.DraftInfo, error)
	Load(ctx context.Context, token string) (stores.Draft, error)
	Delete(ctx context.Context, token string) error
	DeleteAll(ctx context.Context) (int, error)
}

// AuditRecorder journals mutations.
type AuditRecorder interface {
	CreateAuditEntry(ctx context.Context, entry *stores.AuditEntry) error
}

// Options configures a Repository. Collection and Drafts are required.
type Options struct {
	Collection Collection
	Drafts     Drafts
	Audit      AuditRecorder
	Events     *telemetry.EventPublisher
	Metrics    *telemetry.Metrics
	Logger     zerolog.Logger

	// Actor is written to audit entries. Defaults to "maintlog".
	Actor string

	// AfterSave runs after every successful write of the collection file.
	AfterSave func()
}

// Repository owns the in-memory view of the active project's records.
type Repository struct {
	collection Collection
	drafts     Drafts
	audit      AuditRecorder
	events     *telemetry.EventPublisher
	metrics    *telemetry.Metrics
	log        zerolog.Logger
	actor      string
	afterSave  func()
	now        func() time.Time
	newID      func() string

	project  string
	loaded   bool
	degraded bool
	records  []stores.ReportRecord
	selected map[string]struct{}
}

// New creates an unloaded repository with no active project.
func New(opts Options) (*Repository, error) {
	if opts.Collection == nil {
		return nil, fmt.Errorf("collection store is required")
	}
	if opts.Drafts == nil {
		return nil, fmt.Errorf("draft store is required")
	}
	if opts.Actor == "" {
		opts.Actor = "maintlog"
	}
	return &Repository{
		collection: opts.Collection,
		drafts:     opts.Drafts,
		audit:      opts.Audit,
		events:     opts.Events,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		actor:      opts.Actor,
		afterSave:  opts.AfterSave,
		now:        time.Now,
		newID:      shortID,
		selected:   make(map[string]struct{}),
	}, nil
}

// shortID returns eight lowercase hex characters of a random UUID.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SetProject switches the active project. The view is unloaded until the
// next Load.
func (r *Repository) SetProject(key string) {
	if key == r.project {
		return
	}
	r.project = key
	r.loaded = false
	r.degraded = false
	r.records = nil
	r.selected = make(map[string]struct{})
}

// Project returns the active project, "" when unscoped.
func (r *Repository) Project() string { return r.project }

// Loaded reports whether mutations are possible.
func (r *Repository) Loaded() bool { return r.loaded }

// Degraded reports whether the last unscoped load fell back to an empty
// collection after a read failure.
func (r *Repository) Degraded() bool { return r.degraded }

// Load reads the collection. Without an active project a read failure
// leaves an empty, usable view and the error is returned. With an active
// project a read failure leaves the repository unloaded.
func (r *Repository) Load(ctx context.Context) (err error) {
	op := telemetry.StartOperation(ctx, "repository.load", telemetry.AttrProject.String(r.project))
	defer func() { op.End(err) }()

	records, err := r.collection.Load(op.Ctx)
	if err != nil {
		r.metrics.RecordError(string(stores.ClassOf(err)))
		if r.project == "" {
			r.log.Warn().Err(err).Msg("collection unreadable, continuing with an empty view")
			r.records = []stores.ReportRecord{}
			r.loaded = true
			r.degraded = true
		} else {
			r.log.Error().Err(err).Str("project", r.project).Msg("collection unreadable, project not loaded")
			r.records = nil
			r.loaded = false
		}
		r.pruneSelection()
		return err
	}

	if r.project != "" {
		scoped := make([]stores.ReportRecord, 0, len(records))
		for _, rec := range records {
			if rec.Project == r.project {
				scoped = append(scoped, rec)
			}
		}
		records = scoped
	}
	r.records = records
	r.loaded = true
	r.degraded = false
	r.pruneSelection()
	r.metrics.SetRecordsLoaded(len(records))
	r.log.Debug().Str("project", r.project).Int("records", len(records)).Msg("repository loaded")
	return nil
}

// Len returns the number of records in the view.
func (r *Repository) Len() int { return len(r.records) }

// List returns copies of the records matching filter, in display order.
// The active project always overrides filter.Project.
func (r *Repository) List(filter query.Filter) []stores.ReportRecord {
	return stores.CloneRecords(query.Apply(r.records, r.scope(filter)))
}

// Categories returns the distinct categories in the view.
func (r *Repository) Categories() []string {
	return query.Categories(r.records)
}

func (r *Repository) scope(filter query.Filter) query.Filter {
	if r.project != "" {
		filter.Project = r.project
	}
	return filter
}

// Get returns a copy of one record.
func (r *Repository) Get(id string) (stores.ReportRecord, error) {
	i := r.indexOf(id)
	if i < 0 {
		return stores.ReportRecord{}, fmt.Errorf("%w: %s", stores.ErrNotFound, id)
	}
	return r.records[i].Clone(), nil
}

func (r *Repository) indexOf(id string) int {
	return slices.IndexFunc(r.records, func(rec stores.ReportRecord) bool { return rec.ID == id })
}

func (r *Repository) requireLoaded() error {
	if !r.loaded {
		return ErrNotLoaded
	}
	return nil
}

// persist saves next and makes it the view on success.
func (r *Repository) persist(ctx context.Context, next []stores.ReportRecord) error {
	res, err := r.collection.Save(ctx, next, r.project)
	if err != nil {
		r.metrics.RecordError(string(stores.ClassOf(err)))
		return err
	}
	if res.Degraded {
		r.log.Warn().Msg("save completed without an atomic rename")
	}
	r.records = next
	r.degraded = false
	if r.afterSave != nil {
		r.afterSave()
	}
	return nil
}

func (r *Repository) uniqueID() string {
	for {
		id := r.newID()
		if r.indexOf(id) < 0 {
			return id
		}
	}
}

// Add creates a record in the active project and prepends it to the view.
func (r *Repository) Add(ctx context.Context, fields stores.Payload) (rec stores.ReportRecord, err error) {
	op := telemetry.StartOperation(ctx, "repository.add", telemetry.AttrProject.String(r.project))
	defer func() { op.End(err) }()

	if err := r.requireLoaded(); err != nil {
		return stores.ReportRecord{}, err
	}

	rec = stores.ReportRecord{
		ID:        r.uniqueID(),
		Project:   r.project,
		CreatedAt: r.now().UTC(),
		Fields:    fields.Clone(),
	}
	next := make([]stores.ReportRecord, 0, len(r.records)+1)
	next = append(next, rec)
	next = append(next, r.records...)

	if err := r.persist(op.Ctx, next); err != nil {
		r.log.Error().Err(err).Msg("add failed")
		return stores.ReportRecord{}, fmt.Errorf("add record: %w", err)
	}

	r.log.Info().Str("id", rec.ID).Str("project", rec.Project).Msg("record added")
	r.notifyRecord(op.Ctx, telemetry.EventTypeRecordAdded, rec.ID, nil)
	return rec.Clone(), nil
}

// Edit replaces the payload of a record. Its id, project and creation time
// are kept.
func (r *Repository) Edit(ctx context.Context, id string, fields stores.Payload) (rec stores.ReportRecord, err error) {
	op := telemetry.StartOperation(ctx, "repository.edit",
		telemetry.AttrProject.String(r.project), telemetry.AttrRecordID.String(id))
	defer func() { op.End(err) }()

	if err := r.requireLoaded(); err != nil {
		return stores.ReportRecord{}, err
	}
	i := r.indexOf(id)
	if i < 0 {
		return stores.ReportRecord{}, fmt.Errorf("%w: %s", stores.ErrNotFound, id)
	}

	next := slices.Clone(r.records)
	rec = next[i]
	rec.Fields = fields.Clone()
	rec.UpdatedAt = r.now().UTC()
	next[i] = rec

	if err := r.persist(op.Ctx, next); err != nil {
		r.log.Error().Err(err).Str("id", id).Msg("edit failed")
		return stores.ReportRecord{}, fmt.Errorf("edit record %s: %w", id, err)
	}

	r.log.Info().Str("id", id).Msg("record edited")
	r.notifyRecord(op.Ctx, telemetry.EventTypeRecordEdited, id, nil)
	return rec.Clone(), nil
}

// Delete removes one record.
func (r *Repository) Delete(ctx context.Context, id string) (err error) {
	op := telemetry.StartOperation(ctx, "repository.delete",
		telemetry.AttrProject.String(r.project), telemetry.AttrRecordID.String(id))
	defer func() { op.End(err) }()

	if err := r.requireLoaded(); err != nil {
		return err
	}
	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", stores.ErrNotFound, id)
	}

	next := slices.Delete(slices.Clone(r.records), i, i+1)
	if err := r.persist(op.Ctx, next); err != nil {
		r.log.Error().Err(err).Str("id", id).Msg("delete failed")
		return fmt.Errorf("delete record %s: %w", id, err)
	}

	delete(r.selected, id)
	r.log.Info().Str("id", id).Msg("record deleted")
	r.notifyRecord(op.Ctx, telemetry.EventTypeRecordDeleted, id, nil)
	return nil
}

// DeleteAll removes every listed record in one save. Unknown ids are
// tallied as failures and do not stop the rest. The returned error is
// non-nil only when the save itself failed, in which case nothing was
// deleted.
func (r *Repository) DeleteAll(ctx context.Context, ids []string) (res BatchResult, err error) {
	op := telemetry.StartOperation(ctx, "repository.delete_all", telemetry.AttrProject.String(r.project))
	defer func() { op.End(err) }()

	if err := r.requireLoaded(); err != nil {
		return BatchResult{}, err
	}

	doomed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := doomed[id]; dup {
			continue
		}
		if r.indexOf(id) < 0 {
			res.Failed = append(res.Failed, ItemFailure{ID: id, Err: stores.ErrNotFound})
			continue
		}
		doomed[id] = struct{}{}
		res.Succeeded = append(res.Succeeded, id)
	}
	if len(doomed) == 0 {
		return res, nil
	}

	next := make([]stores.ReportRecord, 0, len(r.records)-len(doomed))
	for _, rec := range r.records {
		if _, ok := doomed[rec.ID]; !ok {
			next = append(next, rec)
		}
	}
	if err := r.persist(op.Ctx, next); err != nil {
		r.log.Error().Err(err).Int("count", len(doomed)).Msg("bulk delete failed")
		return BatchResult{}, fmt.Errorf("delete %d records: %w", len(doomed), err)
	}

	for _, id := range res.Succeeded {
		delete(r.selected, id)
		r.notifyRecord(op.Ctx, telemetry.EventTypeRecordDeleted, id, nil)
	}
	r.log.Info().Int("deleted", len(res.Succeeded)).Int("failed", len(res.Failed)).Msg("bulk delete finished")
	return res, nil
}

// DeleteByPartition removes every record of a project from the shared file,
// including records tagged with the same name under another list number,
// and mirrors the removal into the view. It works whether or not the view
// is loaded.
func (r *Repository) DeleteByPartition(ctx context.Context, key string) (removed int, err error) {
	op := telemetry.StartOperation(ctx, "repository.delete_partition", telemetry.AttrProject.String(key))
	defer func() { op.End(err) }()

	removed, err = r.collection.DeleteByPartition(op.Ctx, key)
	if err != nil {
		r.metrics.RecordError(string(stores.ClassOf(err)))
		return 0, fmt.Errorf("delete project %q: %w", key, err)
	}

	if r.loaded {
		kept := r.records[:0:0]
		for _, rec := range r.records {
			if stores.MatchesPartition(rec.Project, key) {
				delete(r.selected, rec.ID)
				continue
			}
			kept = append(kept, rec)
		}
		r.records = kept
	}
	if removed > 0 && r.afterSave != nil {
		r.afterSave()
	}

	if err := r.events.PublishPartitionDeleted(key, removed); err != nil {
		r.log.Debug().Err(err).Msg("failed to publish event")
	}
	r.record(op.Ctx, telemetry.EventTypePartitionDeleted, &key, nil, map[string]any{"removed": removed})
	return removed, nil
}

// Snapshot returns deep copies of the listed records in display order.
// Unknown ids are skipped. The result shares nothing with the view.
func (r *Repository) Snapshot(ids []string) []stores.ReportRecord {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]stores.ReportRecord, 0, len(want))
	for _, rec := range r.records {
		if _, ok := want[rec.ID]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (r *Repository) notifyRecord(ctx context.Context, eventType, id string, details map[string]any) {
	if err := r.events.PublishRecordChanged(eventType, r.project, id); err != nil {
		r.log.Debug().Err(err).Msg("failed to publish event")
	}
	var project *string
	if r.project != "" {
		p := r.project
		project = &p
	}
	r.record(ctx, eventType, project, &id, details)
}

// record writes an audit entry. Failures are logged only.
func (r *Repository) record(ctx context.Context, action string, project, target *string, details map[string]any) {
	if r.audit == nil {
		return
	}
	entry := &stores.AuditEntry{
		Action:    action,
		Actor:     r.actor,
		Project:   project,
		TargetID:  target,
		Timestamp: r.now().UTC(),
	}
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			s := string(data)
			entry.Details = &s
		}
	}
	if err := r.audit.CreateAuditEntry(ctx, entry); err != nil {
		r.log.Warn().Err(err).Str("action", action).Msg("failed to write audit entry")
	}
}

// pruneSelection drops selected ids that are no longer in the view.
func (r *Repository) pruneSelection() {
	for id := range r.selected {
		if r.indexOf(id) < 0 {
			delete(r.selected, id)
		}
	}
}
