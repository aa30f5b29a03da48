// Package app constructs the docindex components from a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/engine"
	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/jobs"
	"github.com/dshills/docindex-mcp/internal/logging"
	"github.com/dshills/docindex-mcp/internal/staging"
	"github.com/dshills/docindex-mcp/internal/storage"
)

// App holds the wired components. Close releases what Build opened.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Engine   engine.Engine
	Staging  *staging.Manager
	Indexer  *indexer.Indexer
	Jobs     *jobs.Registry
	Store    storage.Storage // nil when jobs.persist is off
	closed   bool
}

// Build creates the working directory, the engine, the staging manager, the
// indexer, the job store and the job registry
func Build(cfg *config.Config, logger *log.Logger) (*App, error) {
	logger = logging.OrDiscard(logger)

	if err := os.MkdirAll(cfg.WorkingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	eng, err := engine.New(cfg.EngineOptions(), logger.WithPrefix("engine"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	stage := staging.NewManager(cfg.StagingDir, logger.WithPrefix("staging"))
	idx := indexer.New(eng, stage, cfg.IndexerConfig(), logger.WithPrefix("indexer"))

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Engine:  eng,
		Staging: stage,
		Indexer: idx,
	}

	var jobStore storage.JobStore
	if cfg.Jobs.Persist {
		store, err := openStore(cfg.ResolvedDBPath())
		if err != nil {
			return nil, err
		}
		a.Store = store
		jobStore = store
	}
	a.Jobs = jobs.NewRegistry(jobStore, cfg.JobsRegistryConfig(), logger.WithPrefix("jobs"))

	logger.Debug("application built",
		"engine", cfg.Engine.Kind,
		"workers", cfg.Indexing.MaxWorkers,
		"output", cfg.ResolvedOutputDir(),
		"persist", cfg.Jobs.Persist,
		"driver", storage.DriverName,
	)
	return a, nil
}

func openStore(dbPath string) (*storage.SQLiteStorage, error) {
	if dbPath != config.MemoryDB {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job storage: %w", err)
	}
	return store, nil
}

// PruneJobs removes persisted jobs older than jobs.retention. A zero
// retention keeps everything.
func (a *App) PruneJobs(ctx context.Context) {
	retention := a.Config.Jobs.Retention
	if retention <= 0 {
		return
	}
	n, err := a.Jobs.Prune(ctx, retention)
	if err != nil {
		a.Logger.Warn("failed to prune jobs", "err", err)
		return
	}
	if n > 0 {
		a.Logger.Info("pruned old jobs", "count", n, "retention", retention)
	}
}

// EngineHealth reports whether the engine is reachable: "reachable",
// "unreachable", or "unknown" when the engine cannot tell
func (a *App) EngineHealth(ctx context.Context) string {
	checker, ok := a.Engine.(engine.HealthChecker)
	if !ok {
		return "unknown"
	}
	if err := checker.Health(ctx); err != nil {
		a.Logger.Debug("engine health check failed", "err", err)
		return "unreachable"
	}
	return "reachable"
}

// Close waits for running jobs and closes the job store
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	a.Jobs.Wait()

	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close job storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
