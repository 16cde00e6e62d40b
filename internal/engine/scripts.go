package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/na399/MIMIC/internal/dialect"
	"github.com/na399/MIMIC/internal/sqltext"
	"github.com/na399/MIMIC/internal/state"
)

// Substitute replaces @name variable references in SQL text. Replacement is
// plain text, single pass, longest name first, so @schema_source does not
// clobber @schema. The replacer resolves overlaps by argument order, hence
// the explicit sort.
func Substitute(sql string, vars map[string]string) string {
	if len(vars) == 0 {
		return sql
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, "@"+name, vars[name])
	}
	return strings.NewReplacer(pairs...).Replace(sql)
}

// vars returns the substitution variables for the current run: configured
// variables plus built-ins. Configured variables never shadow built-ins.
func (e *Engine) vars() map[string]string {
	merged := make(map[string]string, len(e.cfg.Variables)+3)
	for name, value := range e.cfg.Variables {
		merged[name] = value
	}

	stem := filepath.Base(e.dbConfig.Path)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	merged["duckdb_catalog"] = stem

	if e.run != nil {
		merged["run_id"] = e.run.ID
		merged["run_started_at"] = e.run.StartedAt.Format(time.RFC3339)
	} else {
		merged["run_id"] = uuid.New().String()
		merged["run_started_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	return merged
}

// RunWorkflow executes a named workflow from the configuration as one audit
// run.
func (e *Engine) RunWorkflow(ctx context.Context, name string) error {
	wf, ok := e.cfg.Workflows[name]
	if !ok {
		available := make([]string, 0, len(e.cfg.Workflows))
		for n := range e.cfg.Workflows {
			available = append(available, n)
		}
		return fmt.Errorf("unknown workflow %q (available: %s)", name, strings.Join(available, ", "))
	}

	e.logger.Info("starting workflow", "workflow", name, "scripts", len(wf.Scripts))
	return e.withRun(ctx, name, func(ctx context.Context) error {
		for _, script := range wf.Scripts {
			if err := e.runScriptFile(ctx, script); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunScripts executes an explicit list of script paths as one audit run.
func (e *Engine) RunScripts(ctx context.Context, scripts []string) error {
	return e.withRun(ctx, "scripts", func(ctx context.Context) error {
		for _, script := range scripts {
			if err := e.runScriptFile(ctx, script); err != nil {
				return err
			}
		}
		return nil
	})
}

// runScriptFile reads one legacy SQL script, substitutes variables, splits
// it into statements, normalizes each to the warehouse dialect, and executes
// them in order. The first failing statement aborts the script.
func (e *Engine) runScriptFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", path, err)
	}

	substituted := Substitute(string(raw), e.vars())
	statements := sqltext.SplitStatements(substituted)

	e.logger.Info("running script", "script", path, "statements", len(statements))

	for i, stmt := range statements {
		normalized := dialect.Normalize(stmt)

		start := time.Now()
		execErr := e.db.Exec(ctx, normalized)
		executionMS := time.Since(start).Milliseconds()

		status := "success"
		errMsg := ""
		if execErr != nil {
			status = "failed"
			errMsg = execErr.Error()
		}
		e.recordStatement(path, i, status, errMsg, executionMS)

		if execErr != nil {
			e.logger.Error("statement failed", "script", path, "index", i, "error", execErr)
			return fmt.Errorf("script %s statement %d: %w", path, i, execErr)
		}
		e.logger.Debug("statement executed", "script", path, "index", i, "exec_ms", executionMS)
	}

	return nil
}

// recordStatement writes one statement execution to the audit store. Audit
// failures are logged, never fatal.
func (e *Engine) recordStatement(script string, index int, status, errMsg string, executionMS int64) {
	runID := ""
	if e.run != nil {
		runID = e.run.ID
	}
	exec := &state.StatementExecution{
		RunID:       runID,
		Script:      script,
		Index:       index,
		Status:      status,
		Error:       errMsg,
		ExecutionMS: executionMS,
	}
	if err := e.store.RecordStatement(exec); err != nil {
		e.logger.Warn("failed to record statement", "script", script, "index", index, "error", err)
	}
}
