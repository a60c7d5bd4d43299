package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/maintlog/maintlog/pkg/stores"
	"github.com/maintlog/maintlog/pkg/telemetry"
)

// RunRecorder journals export batches. stores.AuditStore implements it.
type RunRecorder interface {
	CreateExportRun(ctx context.Context, run *stores.ExportRun) error
	RecordExportItem(ctx context.Context, item *stores.ExportItem) error
	FinishExportRun(ctx context.Context, id string, status stores.ExportStatus, succeeded, failed int, errMsg *string) error
}

// Job is one batch export request.
type Job struct {
	Records     []stores.ReportRecord
	Format      Format
	Destination string
}

// ItemResult is the outcome for one record.
type ItemResult struct {
	RecordID string `json:"record_id"`
	Path     string `json:"path,omitempty"`
	Err      error  `json:"-"`
}

// Summary is the terminal state of a batch. Cancelled batches with some
// successes are a normal outcome.
type Summary struct {
	BatchID   string              `json:"batch_id"`
	Status    stores.ExportStatus `json:"status"`
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Cancelled bool                `json:"cancelled"`
	Items     []ItemResult        `json:"items"`
}

// String formats the summary for the user.
func (s Summary) String() string {
	msg := fmt.Sprintf("%d succeeded", s.Succeeded)
	if s.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", s.Failed)
	}
	if s.Cancelled {
		msg += fmt.Sprintf(", cancelled after %d of %d", s.Succeeded+s.Failed, s.Total)
	}
	return msg
}

func (s *Summary) finalize() {
	switch {
	case s.Cancelled:
		s.Status = stores.ExportStatusCancelled
	case s.Failed > 0 && s.Succeeded == 0:
		s.Status = stores.ExportStatusFailed
	case s.Failed > 0:
		s.Status = stores.ExportStatusPartial
	default:
		s.Status = stores.ExportStatusCompleted
	}
}

// Handle controls a dispatched batch.
type Handle struct {
	id      string
	cancel  context.CancelFunc
	done    chan struct{}
	summary Summary
}

// ID returns the batch id.
func (h *Handle) ID() string { return h.id }

// Cancel asks the worker to stop before the next record.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed when the batch has finished and onDone was delivered.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the batch finishes and returns its summary.
func (h *Handle) Wait() Summary {
	<-h.done
	return h.summary
}

// WorkerConfig configures a Worker. Exporter is required.
type WorkerConfig struct {
	Exporter Exporter
	Recorder RunRecorder

	// Deliver runs the completion callback, typically by posting it to the
	// host's UI thread. The default calls it on the worker goroutine.
	Deliver func(func())

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Events  *telemetry.EventPublisher
}

// Worker runs export batches in the background.
type Worker struct {
	exporter Exporter
	recorder RunRecorder
	deliver  func(func())
	log      zerolog.Logger
	metrics  *telemetry.Metrics
	events   *telemetry.EventPublisher
}

// NewWorker creates a worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Exporter == nil {
		return nil, fmt.Errorf("exporter is required")
	}
	if cfg.Deliver == nil {
		cfg.Deliver = func(fn func()) { fn() }
	}
	return &Worker{
		exporter: cfg.Exporter,
		recorder: cfg.Recorder,
		deliver:  cfg.Deliver,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		events:   cfg.Events,
	}, nil
}

// Dispatch copies the job's records and starts the batch on a new
// goroutine. onDone, if set, receives the summary through Deliver.
func (w *Worker) Dispatch(ctx context.Context, job Job, onDone func(Summary)) (*Handle, error) {
	if _, err := ParseFormat(string(job.Format)); err != nil {
		return nil, err
	}
	if job.Destination == "" {
		return nil, fmt.Errorf("destination is required")
	}

	snapshot := stores.CloneRecords(job.Records)
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	w.log.Info().
		Str("batch_id", h.id).
		Str("format", string(job.Format)).
		Int("records", len(snapshot)).
		Msg("export dispatched")

	go func() {
		defer cancel()
		summary := w.run(runCtx, h.id, snapshot, job.Format, job.Destination)
		h.summary = summary
		if onDone != nil {
			w.deliver(func() { onDone(summary) })
		}
		close(h.done)
	}()

	return h, nil
}

func (w *Worker) run(ctx context.Context, batchID string, records []stores.ReportRecord, format Format, dest string) Summary {
	// The journal must record the outcome even after cancellation.
	journalCtx := context.WithoutCancel(ctx)

	var span trace.Span
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil && tel.Tracer != nil {
		ctx, span = tel.Tracer.StartExportSpan(ctx, batchID, len(records))
		defer span.End()
	}

	summary := Summary{BatchID: batchID, Total: len(records), Items: make([]ItemResult, 0, len(records))}
	w.metrics.RecordExportStarted()
	w.startRun(journalCtx, batchID, format, dest, len(records))

	for _, rec := range records {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		path, err := w.exporter.Export(ctx, rec, format, dest)
		if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
			summary.Cancelled = true
			break
		}

		item := ItemResult{RecordID: rec.ID, Path: path, Err: err}
		summary.Items = append(summary.Items, item)
		if err != nil {
			summary.Failed++
			w.metrics.RecordExportItem(string(format), "failure")
			w.log.Warn().Err(err).Str("batch_id", batchID).Str("record_id", rec.ID).Msg("record export failed")
		} else {
			summary.Succeeded++
			w.metrics.RecordExportItem(string(format), "success")
		}
		w.recordItem(journalCtx, batchID, item)
	}

	summary.finalize()
	w.finishRun(journalCtx, summary)
	w.metrics.RecordExportCompleted(string(summary.Status))
	if err := w.events.PublishExportFinished(batchID, string(summary.Status), summary.Succeeded, summary.Failed); err != nil {
		w.log.Debug().Err(err).Msg("failed to publish event")
	}
	if span != nil && summary.Status == stores.ExportStatusFailed {
		telemetry.RecordError(span, errors.New("every record failed to export"))
	} else if span != nil {
		telemetry.RecordSuccess(span)
	}

	w.log.Info().
		Str("batch_id", batchID).
		Str("status", string(summary.Status)).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("export finished")
	return summary
}

func (w *Worker) startRun(ctx context.Context, batchID string, format Format, dest string, total int) {
	if w.recorder == nil {
		return
	}
	run := &stores.ExportRun{
		ID:          batchID,
		Format:      string(format),
		Destination: dest,
		Status:      stores.ExportStatusRunning,
		Total:       total,
		StartedAt:   time.Now().UTC(),
	}
	if err := w.recorder.CreateExportRun(ctx, run); err != nil {
		w.log.Warn().Err(err).Str("batch_id", batchID).Msg("failed to journal export run")
	}
}

func (w *Worker) recordItem(ctx context.Context, batchID string, item ItemResult) {
	if w.recorder == nil {
		return
	}
	entry := &stores.ExportItem{RunID: batchID, RecordID: item.RecordID}
	if item.Path != "" {
		p := item.Path
		entry.OutputPath = &p
	}
	if item.Err != nil {
		msg := item.Err.Error()
		entry.Error = &msg
	}
	if err := w.recorder.RecordExportItem(ctx, entry); err != nil {
		w.log.Warn().Err(err).Str("batch_id", batchID).Msg("failed to journal export item")
	}
}

func (w *Worker) finishRun(ctx context.Context, s Summary) {
	if w.recorder == nil {
		return
	}
	var errMsg *string
	if s.Failed > 0 {
		msg := fmt.Sprintf("%d of %d records failed", s.Failed, s.Total)
		errMsg = &msg
	}
	if err := w.recorder.FinishExportRun(ctx, s.BatchID, s.Status, s.Succeeded, s.Failed, errMsg); err != nil {
		w.log.Warn().Err(err).Str("batch_id", s.BatchID).Msg("failed to journal export result")
	}
}
