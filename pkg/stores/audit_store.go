package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// AuditStore journals repository mutations and export runs in SQLite.
// Unlike the collection store it is safe for concurrent use, because the
// export worker writes to it from its own goroutine.
type AuditStore struct {
	db   *sql.DB
	path string
}

// AuditConfig holds audit store configuration.
type AuditConfig struct {
	Path string
}

// NewAuditStore creates a new audit store instance.
func NewAuditStore(cfg AuditConfig) (*AuditStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &AuditStore{path: cfg.Path}, nil
}

// Init opens the database connection.
func (s *AuditStore) Init(ctx context.Context) error {
	dsn := s.path
	if s.path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", s.path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" to one
	// database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *AuditStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *AuditStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateAuditEntry appends an audit entry
func (s *AuditStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit (action, actor, project, target_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.Action,
		entry.Actor,
		entry.Project,
		entry.TargetID,
		entry.Details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAuditEntries lists audit entries, newest first, with optional
// action and project filters and pagination
func (s *AuditStore) ListAuditEntries(ctx context.Context, action, project *string, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, actor, project, target_id, details, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		  AND (? IS NULL OR project = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, project, project, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.Project,
			&entry.TargetID,
			&entry.Details,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// CreateExportRun records the start of an export batch
func (s *AuditStore) CreateExportRun(ctx context.Context, run *ExportRun) error {
	query := `
		INSERT INTO export_runs (id, format, destination, status, total, succeeded, failed, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Format,
		run.Destination,
		run.Status,
		run.Total,
		run.Succeeded,
		run.Failed,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create export run: %w", err)
	}

	return nil
}

// FinishExportRun stores the terminal status and tallies of a run
func (s *AuditStore) FinishExportRun(ctx context.Context, id string, status ExportStatus, succeeded, failed int, errMsg *string) error {
	query := `
		UPDATE export_runs
		SET status = ?, succeeded = ?, failed = ?, completed_at = ?, error = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, succeeded, failed, time.Now().UTC(), errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update export run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("export run not found: %s", id)
	}

	return nil
}

// GetExportRun retrieves an export run by ID
func (s *AuditStore) GetExportRun(ctx context.Context, id string) (*ExportRun, error) {
	query := `
		SELECT id, format, destination, status, total, succeeded, failed, started_at, completed_at, error
		FROM export_runs
		WHERE id = ?
	`

	run := &ExportRun{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Format,
		&run.Destination,
		&run.Status,
		&run.Total,
		&run.Succeeded,
		&run.Failed,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("export run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export run: %w", err)
	}

	return run, nil
}

// ListExportRuns lists export runs, newest first
func (s *AuditStore) ListExportRuns(ctx context.Context, limit, offset int) ([]*ExportRun, error) {
	query := `
		SELECT id, format, destination, status, total, succeeded, failed, started_at, completed_at, error
		FROM export_runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list export runs: %w", err)
	}
	defer rows.Close()

	runs := []*ExportRun{}
	for rows.Next() {
		run := &ExportRun{}
		err := rows.Scan(
			&run.ID,
			&run.Format,
			&run.Destination,
			&run.Status,
			&run.Total,
			&run.Succeeded,
			&run.Failed,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating export runs: %w", err)
	}

	return runs, nil
}

// RecordExportItem stores the outcome of one record in a run
func (s *AuditStore) RecordExportItem(ctx context.Context, item *ExportItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO export_items (run_id, record_id, output_path, error, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		item.RunID,
		item.RecordID,
		item.OutputPath,
		item.Error,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record export item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get export item ID: %w", err)
	}

	item.ID = id
	return nil
}

// ListExportItems lists the items of a run in insertion order
func (s *AuditStore) ListExportItems(ctx context.Context, runID string) ([]*ExportItem, error) {
	query := `
		SELECT id, run_id, record_id, output_path, error, created_at
		FROM export_items
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list export items: %w", err)
	}
	defer rows.Close()

	items := []*ExportItem{}
	for rows.Next() {
		item := &ExportItem{}
		if err := rows.Scan(
			&item.ID,
			&item.RunID,
			&item.RecordID,
			&item.OutputPath,
			&item.Error,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan export item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating export items: %w", err)
	}

	return items, nil
}

// HealthCheck verifies the database connection is healthy
func (s *AuditStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
