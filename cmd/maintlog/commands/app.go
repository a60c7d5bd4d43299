package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maintlog/maintlog/pkg/config"
	"github.com/maintlog/maintlog/pkg/repository"
	"github.com/maintlog/maintlog/pkg/stores"
	"github.com/maintlog/maintlog/pkg/telemetry"
)

// app holds everything one command invocation needs.
type app struct {
	cfg        *config.Config
	tel        *telemetry.Telemetry
	collection *stores.CollectionStore
	drafts     *stores.DraftStore
	audit      *stores.AuditStore
	watcher    *stores.ChangeWatcher
	repo       *repository.Repository
	ctx        context.Context
}

// openApp loads configuration, wires the stores and the repository and
// loads the collection for the active project.
func openApp(cmd *cobra.Command) (*app, error) {
	a, err := wireApp(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.repo.Load(a.ctx); err != nil {
		if !a.repo.Loaded() {
			a.Close()
			return nil, fmt.Errorf("failed to load reports for project %q: %w", a.cfg.Project, err)
		}
		printWarning("collection unreadable (%v); showing an empty list. Run 'maintlog restore' to recover the backup.", err)
	}
	return a, nil
}

// wireApp builds the app without loading the collection.
func wireApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("project") {
		cfg.Project = project
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(buildVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a := &app{cfg: cfg, tel: tel, ctx: tel.WithContext(cmd.Context())}
	tel.Events.Subscribe(logEvents(tel.Logger.Component("events")), nil)

	a.collection, err = stores.NewCollectionStore(stores.CollectionConfig{
		Path:           cfg.CollectionPath(),
		AllowNonAtomic: cfg.Storage.AllowNonAtomic,
		Logger:         tel.Logger.Component("store"),
		Metrics:        tel.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.drafts, err = stores.NewDraftStore(stores.DraftConfig{
		Dir:       cfg.DraftsDir(),
		MaxDrafts: cfg.Drafts.MaxDrafts,
		Logger:    tel.Logger.Component("drafts"),
		Metrics:   tel.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.watcher, err = stores.NewChangeWatcher(stores.WatcherConfig{
		Path:   cfg.CollectionPath(),
		Logger: tel.Logger.Component("watch"),
		Events: tel.Events,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	var recorder repository.AuditRecorder
	if cfg.Audit.Enabled {
		a.audit, err = openAudit(a.ctx, cfg.AuditPath())
		if err != nil {
			// The journal is optional; the reports are not.
			log.Warn().Err(err).Msg("Audit journal unavailable, continuing without it")
			a.audit = nil
		} else {
			recorder = a.audit
		}
	}

	a.repo, err = repository.New(repository.Options{
		Collection: a.collection,
		Drafts:     a.drafts,
		Audit:      recorder,
		Events:     tel.Events,
		Metrics:    tel.Metrics,
		Logger:     tel.Logger.Component("repository"),
		Actor:      cfg.Actor,
		AfterSave:  a.watcher.MarkOwnWrite,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.repo.SetProject(cfg.Project)

	log.Debug().
		Str("data_dir", cfg.DataDir).
		Str("project", cfg.Project).
		Bool("audit", a.audit != nil).
		Msg("maintlog initialized")
	return a, nil
}

func openAudit(ctx context.Context, path string) (*stores.AuditStore, error) {
	store, err := stores.NewAuditStore(stores.AuditConfig{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// requireAudit returns the audit store or a readable error.
func (a *app) requireAudit() (*stores.AuditStore, error) {
	if a.audit == nil {
		return nil, errors.New("audit journal is disabled or unavailable (see audit.enabled)")
	}
	return a.audit, nil
}

// Close flushes telemetry and closes the audit journal.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.tel.Shutdown(ctx); err != nil {
		log.Debug().Err(err).Msg("telemetry shutdown incomplete")
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close audit journal")
		}
	}
}
