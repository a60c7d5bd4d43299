package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for maintlog. A nil *Metrics and a
// disabled one are both valid and record nothing.
type Metrics struct {
	config MetricsConfig

	// Collection store metrics
	saves          *prometheus.CounterVec
	saveDuration   *prometheus.HistogramVec
	rollbacks      prometheus.Counter
	backupFailures prometheus.Counter
	degradedWrites prometheus.Counter
	recordsLoaded  prometheus.Gauge

	// Draft metrics
	draftsSaved   prometheus.Counter
	draftsTrimmed prometheus.Counter
	draftsSkipped prometheus.Counter

	// Export metrics
	exportItems   *prometheus.CounterVec
	exportBatches *prometheus.CounterVec
	activeExports prometheus.Gauge

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_saves_total",
				Help:      "Total number of collection saves by scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
		saveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collection_save_duration_seconds",
				Help:      "Duration of collection saves in seconds",
				Buckets:   buckets,
			},
			[]string{"scope"},
		),
		rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_rollbacks_total",
				Help:      "Writes rolled back after failing post-write verification",
			},
		),
		backupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backup_failures_total",
				Help:      "Pre-write backups that could not be taken",
			},
		),
		degradedWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "non_atomic_writes_total",
				Help:      "Writes that fell back to a non-atomic replace",
			},
		),
		recordsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records_loaded",
				Help:      "Number of records in the loaded view",
			},
		),
		draftsSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drafts_saved_total",
				Help:      "Total number of drafts written",
			},
		),
		draftsTrimmed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drafts_trimmed_total",
				Help:      "Drafts removed by the retention cap",
			},
		),
		draftsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drafts_unreadable_total",
				Help:      "Draft files skipped while listing because they could not be parsed",
			},
		),
		exportItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_items_total",
				Help:      "Exported records by format and outcome",
			},
			[]string{"format", "outcome"},
		),
		exportBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_batches_total",
				Help:      "Finished export batches by terminal status",
			},
			[]string{"status"},
		),
		activeExports: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_exports",
				Help:      "Current number of running export batches",
			},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.saves,
		m.saveDuration,
		m.rollbacks,
		m.backupFailures,
		m.degradedWrites,
		m.recordsLoaded,
		m.draftsSaved,
		m.draftsTrimmed,
		m.draftsSkipped,
		m.exportItems,
		m.exportBatches,
		m.activeExports,
		m.errorsByClass,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Collection Metrics

// RecordSave records a collection save with its scope, outcome and duration.
func (m *Metrics) RecordSave(scope, outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.saves.WithLabelValues(scope, outcome).Inc()
	m.saveDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordRollback counts a verification rollback.
func (m *Metrics) RecordRollback() {
	if !m.enabled() {
		return
	}
	m.rollbacks.Inc()
}

// RecordBackupFailure counts a backup copy that could not be taken.
func (m *Metrics) RecordBackupFailure() {
	if !m.enabled() {
		return
	}
	m.backupFailures.Inc()
}

// RecordDegradedWrite counts a write that fell back to a non-atomic replace.
func (m *Metrics) RecordDegradedWrite() {
	if !m.enabled() {
		return
	}
	m.degradedWrites.Inc()
}

// SetRecordsLoaded sets the number of records in the loaded view.
func (m *Metrics) SetRecordsLoaded(n int) {
	if !m.enabled() {
		return
	}
	m.recordsLoaded.Set(float64(n))
}

// Draft Metrics

// RecordDraftSaved counts a written draft.
func (m *Metrics) RecordDraftSaved() {
	if !m.enabled() {
		return
	}
	m.draftsSaved.Inc()
}

// RecordDraftsTrimmed counts drafts removed by retention.
func (m *Metrics) RecordDraftsTrimmed(n int) {
	if !m.enabled() || n <= 0 {
		return
	}
	m.draftsTrimmed.Add(float64(n))
}

// RecordDraftSkipped counts an unreadable draft file.
func (m *Metrics) RecordDraftSkipped() {
	if !m.enabled() {
		return
	}
	m.draftsSkipped.Inc()
}

// Export Metrics

// RecordExportItem records a single exported record.
func (m *Metrics) RecordExportItem(format, outcome string) {
	if !m.enabled() {
		return
	}
	m.exportItems.WithLabelValues(format, outcome).Inc()
}

// RecordExportStarted marks an export batch as running.
func (m *Metrics) RecordExportStarted() {
	if !m.enabled() {
		return
	}
	m.activeExports.Inc()
}

// RecordExportCompleted records the terminal status of an export batch.
func (m *Metrics) RecordExportCompleted(status string) {
	if !m.enabled() {
		return
	}
	m.exportBatches.WithLabelValues(status).Inc()
	m.activeExports.Dec()
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if !m.enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. It is a no-op
// when metrics are disabled or no listen address is configured.
func (m *Metrics) StartMetricsServer() error {
	if !m.enabled() || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
