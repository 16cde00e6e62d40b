// Package engine orchestrates the ETL pipeline: it owns the DuckDB session,
// runs SQL scripts through the segment/normalize pipeline, ingests CSV
// folders, and records an audit trail of every run.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/na399/MIMIC/internal/adapter"
	"github.com/na399/MIMIC/internal/config"
	"github.com/na399/MIMIC/internal/state"
)

// Engine orchestrates script execution and ingestion against one warehouse.
type Engine struct {
	// Database adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	cfg    *config.Config
	logger *slog.Logger
	store  state.Store

	// run is the active audit run, nil between runs.
	run *state.Run
}

// New creates a new engine with a lazy database connection. The audit store
// is opened and migrated immediately.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "database", cfg.DuckDB.Database, "state", cfg.StatePath)

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = config.DefaultStateFile
	}
	if statePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore()
	if err := store.Open(statePath); err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate audit store: %w", err)
	}

	return &Engine{
		db: nil, // Lazy
		// Variables may appear in the configured path itself.
		dbConfig: adapter.Config{Path: Substitute(cfg.DuckDB.Database, cfg.Variables)},
		cfg:      cfg,
		logger:   logger,
		store:    store,
	}, nil
}

// ensureDBConnected lazily connects to the warehouse and applies session
// settings, attachments, and pre-SQL.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to warehouse", "database", e.dbConfig.Path)

	if e.dbConfig.Path != "" && e.dbConfig.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(e.dbConfig.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if e.db == nil {
		e.db = adapter.NewDuckDB()
	}
	if err := e.db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	e.dbConnected = true

	if err := e.applySessionConfig(ctx); err != nil {
		return err
	}

	e.logger.Debug("warehouse connected")
	return nil
}

// applySessionConfig applies SET options, attachments, and pre-SQL files in
// that order. Empty settings are skipped. Variable references are resolved
// in setting values and paths, not just script text.
func (e *Engine) applySessionConfig(ctx context.Context) error {
	d := e.cfg.DuckDB
	vars := e.vars()

	settings := []struct {
		name  string
		value string
	}{
		{"threads", intSetting(d.Threads)},
		{"memory_limit", stringSetting(Substitute(d.MemoryLimit, vars))},
		{"temp_directory", stringSetting(Substitute(d.TempDirectory, vars))},
		{"max_expression_depth", intSetting(d.MaxExpressionDepth)},
	}
	for _, s := range settings {
		if s.value == "" {
			continue
		}
		if err := e.db.Exec(ctx, fmt.Sprintf("SET %s = %s", s.name, s.value)); err != nil {
			return fmt.Errorf("failed to set %s: %w", s.name, err)
		}
	}

	for alias, path := range d.Attachments {
		path = Substitute(path, vars)
		attach := fmt.Sprintf("ATTACH DATABASE IF NOT EXISTS '%s' AS %s (READ_ONLY)",
			strings.ReplaceAll(path, "'", "''"), alias)
		if err := e.db.Exec(ctx, attach); err != nil {
			return fmt.Errorf("failed to attach %s as %s: %w", path, alias, err)
		}
		e.logger.Debug("attached database", "alias", alias, "path", path)
	}

	for _, script := range d.PreSQL {
		script = Substitute(script, vars)
		if err := e.runScriptFile(ctx, script); err != nil {
			return fmt.Errorf("pre-sql %s: %w", script, err)
		}
	}

	return nil
}

func intSetting(v int) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

func stringSetting(v string) string {
	if v == "" {
		return ""
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// Store returns the audit store.
func (e *Engine) Store() state.Store {
	return e.store
}

// withRun wraps fn in an audit run: create, connect, execute, complete.
// The run is created before the connection so pre-SQL statements are
// attributed to it.
func (e *Engine) withRun(ctx context.Context, workflow string, fn func(context.Context) error) error {
	run, err := e.store.CreateRun(workflow)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	e.run = run
	defer func() { e.run = nil }()

	e.logger.Debug("created run", "run_id", run.ID, "workflow", workflow)

	if err := e.ensureDBConnected(ctx); err != nil {
		_ = e.store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		return err
	}

	if err := fn(ctx); err != nil {
		e.logger.Info("run failed", "run_id", run.ID, "error", err.Error())
		_ = e.store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		return err
	}

	e.logger.Info("run completed", "run_id", run.ID)
	_ = e.store.CompleteRun(run.ID, state.RunStatusCompleted, "")
	return nil
}
