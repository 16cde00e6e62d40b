package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/na399/MIMIC/internal/ingest"
	"github.com/na399/MIMIC/internal/schema"
	"github.com/na399/MIMIC/internal/state"
)

// IngestFolder loads every CSV file in a folder into the given schema as
// one audit run. Files with a table definition in the DDL catalog go
// through the typed loader; the rest fall back to read_csv_auto type
// inference. Table name is the file stem, lower-cased unless keep-case is
// configured.
func (e *Engine) IngestFolder(ctx context.Context, dir, schemaName string) error {
	files, err := discoverCSVFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no csv files found in %s", dir)
	}

	var catalog schema.Catalog
	if e.cfg.Ingest.DDL != "" {
		catalog, err = schema.LoadCached(e.cfg.Ingest.DDL)
		if err != nil {
			return fmt.Errorf("failed to load ddl catalog: %w", err)
		}
	}

	e.logger.Info("ingesting folder", "dir", dir, "schema", schemaName, "files", len(files))

	return e.withRun(ctx, "ingest", func(ctx context.Context) error {
		loader := ingest.NewLoader(e.db, catalog, e.logger)

		if err := e.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schemaName); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", schemaName, err)
		}

		for _, file := range files {
			table := tableNameForFile(file, e.cfg.Ingest.KeepCase)
			mode := "inferred"
			if catalog != nil {
				if _, ok := catalog.Lookup(schemaName, table); ok {
					mode = "typed"
				} else {
					e.logger.Warn("table not in ddl catalog, inferring types",
						"file", file, "table", schemaName+"."+table)
				}
			}

			if err := e.ingestFile(ctx, loader, mode, file, schemaName, table); err != nil {
				e.recordLoad(file, schemaName+"."+table, mode, "failed", err.Error())
				return err
			}
			e.recordLoad(file, schemaName+"."+table, mode, "success", "")
		}
		return nil
	})
}

// LoadFile loads a single CSV file through the typed loader as one audit
// run. The table must be present in the DDL catalog.
func (e *Engine) LoadFile(ctx context.Context, file, schemaName, table string, opts ingest.Options) error {
	if e.cfg.Ingest.DDL == "" {
		return fmt.Errorf("typed load of %s requires a ddl catalog", file)
	}
	catalog, err := schema.LoadCached(e.cfg.Ingest.DDL)
	if err != nil {
		return fmt.Errorf("failed to load ddl catalog: %w", err)
	}

	if table == "" {
		table = tableNameForFile(file, opts.KeepCase)
	}

	return e.withRun(ctx, "load", func(ctx context.Context) error {
		loader := ingest.NewLoader(e.db, catalog, e.logger)
		if err := loader.LoadFile(ctx, file, schemaName, table, opts); err != nil {
			e.recordLoad(file, schemaName+"."+table, "typed", "failed", err.Error())
			return err
		}
		e.recordLoad(file, schemaName+"."+table, "typed", "success", "")
		return nil
	})
}

// ingestFile loads one file, typed when the catalog knows the table,
// inferred otherwise.
func (e *Engine) ingestFile(ctx context.Context, loader *ingest.Loader, mode, file, schemaName, table string) error {
	if mode == "typed" {
		opts := ingest.Options{
			OnExists: ingest.OnExists(e.cfg.Ingest.OnExists),
			RowLimit: e.cfg.Ingest.RowLimit,
			KeepCase: e.cfg.Ingest.KeepCase,
		}
		return loader.LoadFile(ctx, file, schemaName, table, opts)
	}
	return e.inferredLoad(ctx, file, schemaName, table)
}

// inferredLoad creates the table from read_csv_auto's sniffed types. A
// pre-existing view with the same name is dropped first, since CREATE OR
// REPLACE TABLE cannot replace a view.
func (e *Engine) inferredLoad(ctx context.Context, file, schemaName, table string) error {
	relType, err := e.db.RelationType(ctx, schemaName, table)
	if err != nil {
		return err
	}
	if relType == "VIEW" {
		if err := e.db.Exec(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s.%s", schemaName, table)); err != nil {
			return err
		}
	}

	localPath, cleanup, err := ingest.MaterializeLocal(file)
	if err != nil {
		return err
	}
	defer cleanup()

	options := `ALL_VARCHAR=FALSE, HEADER=TRUE, DELIM=',', QUOTE='"', ESCAPE='"'`
	if e.cfg.Ingest.SampleSize > 0 {
		options = fmt.Sprintf("SAMPLE_SIZE=%d, %s", e.cfg.Ingest.SampleSize, options)
	}
	create := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s.%s AS SELECT * FROM read_csv_auto('%s', %s)",
		schemaName, table, strings.ReplaceAll(localPath, "'", "''"), options)

	if err := e.db.Exec(ctx, create); err != nil {
		return fmt.Errorf("inferred load of %s into %s.%s: %w", file, schemaName, table, err)
	}
	return nil
}

// discoverCSVFiles lists *.csv, *.csv.gz and *.csv.zip in dir, sorted by
// name for deterministic load order.
func discoverCSVFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.csv", "*.csv.gz", "*.csv.zip"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// tableNameForFile derives the destination table name from the file stem.
func tableNameForFile(path string, keepCase bool) string {
	name := filepath.Base(path)
	for _, ext := range []string{".zip", ".gz", ".csv"} {
		name = strings.TrimSuffix(name, ext)
	}
	if !keepCase {
		name = strings.ToLower(name)
	}
	return name
}

// recordLoad writes one file load to the audit store. Audit failures are
// logged, never fatal.
func (e *Engine) recordLoad(file, table, mode, status, errMsg string) {
	runID := ""
	if e.run != nil {
		runID = e.run.ID
	}
	load := &state.Load{
		RunID:  runID,
		File:   file,
		Table:  table,
		Mode:   mode,
		Status: status,
		Error:  errMsg,
	}
	if err := e.store.RecordLoad(load); err != nil {
		e.logger.Warn("failed to record load", "file", file, "error", err)
	}
}
