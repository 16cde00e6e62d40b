// Package ingest loads typed CSV files into DuckDB tables whose columns
// and types come from a parsed schema catalog. The loader reconciles each
// file's header against the catalog, resolves the existing-table policy,
// and picks between a raw bulk-copy path and a cast-and-select path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/na399/MIMIC/internal/adapter"
	"github.com/na399/MIMIC/internal/schema"
)

// OnExists selects what to do when the destination table already exists.
type OnExists string

const (
	// OnExistsFail raises before any mutating call.
	OnExistsFail OnExists = "fail"
	// OnExistsSkip leaves the existing relation untouched.
	OnExistsSkip OnExists = "skip"
	// OnExistsReplace drops the existing table or view and recreates it.
	OnExistsReplace OnExists = "replace"
	// OnExistsAppend inserts into the existing table. Appending into a
	// view is a hard failure.
	OnExistsAppend OnExists = "append"
)

// Mode selects the execution path.
type Mode string

const (
	// ModeAuto uses the bulk-copy path when the header exactly matches the
	// schema column order and no row limit is set, and the cast-and-select
	// path otherwise.
	ModeAuto Mode = "auto"
	// ModeCopy forces the bulk-copy path; incompatible with row limits and
	// with headers that deviate from schema order.
	ModeCopy Mode = "copy"
	// ModeInsert forces the cast-and-select path.
	ModeInsert Mode = "insert"
)

// Options control a single file load.
type Options struct {
	OnExists OnExists
	Mode     Mode
	// RowLimit caps the number of inserted rows; 0 means unlimited.
	RowLimit int
	// KeepCase preserves the header's original casing instead of
	// lower-casing it to match the catalog convention.
	KeepCase bool
}

// ErrNotInCatalog reports that the requested table has no usable schema in
// the catalog. Callers typically fall back to type inference.
var ErrNotInCatalog = errors.New("table not present in schema catalog")

// Loader loads CSV files according to an immutable schema catalog.
type Loader struct {
	db      adapter.Adapter
	catalog schema.Catalog
	logger  *slog.Logger
}

// NewLoader creates a loader bound to a database and a parsed catalog.
func NewLoader(db adapter.Adapter, catalog schema.Catalog, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{db: db, catalog: catalog, logger: logger}
}

// LoadFile loads one CSV file into schemaName.tableName. Preconditions are
// validated before any engine call: a row limit combined with ModeCopy, or
// a ModeCopy header that deviates from schema order, fail with no side
// effects.
func (l *Loader) LoadFile(ctx context.Context, path, schemaName, tableName string, opts Options) error {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	if opts.OnExists == "" {
		opts.OnExists = OnExistsFail
	}
	if opts.Mode == ModeCopy && opts.RowLimit > 0 {
		return fmt.Errorf("load %s: row limit %d is incompatible with copy mode", path, opts.RowLimit)
	}

	tbl, ok := l.catalog.Lookup(schemaName, tableName)
	if !ok {
		return fmt.Errorf("load %s into %s.%s: %w", path, schemaName, tableName, ErrNotInCatalog)
	}

	header, err := ReadHeader(path)
	if err != nil {
		return err
	}
	if !opts.KeepCase {
		for i, name := range header {
			header[i] = strings.ToLower(name)
		}
	}

	loadable := l.reconcileHeader(header, tbl, path)
	if len(loadable) == 0 {
		l.logger.Warn("no loadable columns, skipping file",
			"file", path, "table", schemaName+"."+tableName)
		return nil
	}

	aligned := headerMatchesSchema(loadable, header, tbl)
	if opts.Mode == ModeCopy && !aligned {
		return fmt.Errorf("load %s: copy mode requires the header to match the %s.%s schema column order exactly",
			path, schemaName, tableName)
	}

	exists, err := l.resolveExisting(ctx, schemaName, tableName, opts.OnExists)
	if err != nil {
		return err
	}
	if opts.OnExists == OnExistsSkip && exists {
		l.logger.Info("table exists, skipping file", "file", path, "table", schemaName+"."+tableName)
		return nil
	}

	if !exists || opts.OnExists == OnExistsReplace {
		if err := l.createTable(ctx, tbl); err != nil {
			return err
		}
	}

	localPath, cleanup, err := MaterializeLocal(path)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.Mode == ModeCopy || (opts.Mode == ModeAuto && aligned && opts.RowLimit == 0) {
		return l.copyInto(ctx, localPath, tbl)
	}
	return l.insertInto(ctx, localPath, tbl, loadable, opts.RowLimit)
}

// reconcileHeader drops header columns absent from the schema (with a
// warning) and returns the loadable intersection in header order. Schema
// columns absent from the header are left NULL by the insert path.
func (l *Loader) reconcileHeader(header []string, tbl schema.Table, path string) []string {
	known := make(map[string]bool, len(tbl.Columns))
	for _, c := range tbl.Columns {
		known[c.Name] = true
	}

	var loadable []string
	for _, name := range header {
		if !known[strings.ToLower(name)] {
			l.logger.Warn("csv column not in schema, dropping",
				"file", path, "table", tbl.Schema+"."+tbl.Name, "column", name)
			continue
		}
		loadable = append(loadable, name)
	}
	return loadable
}

// headerMatchesSchema reports whether the full header equals the schema
// column order exactly, which is what the raw copy path requires.
func headerMatchesSchema(loadable, header []string, tbl schema.Table) bool {
	if len(loadable) != len(header) || len(header) != len(tbl.Columns) {
		return false
	}
	for i, c := range tbl.Columns {
		if !strings.EqualFold(header[i], c.Name) {
			return false
		}
	}
	return true
}

// resolveExisting applies the existing-table policy up to (but not
// including) table creation. It returns whether a relation still exists
// after policy handling.
func (l *Loader) resolveExisting(ctx context.Context, schemaName, tableName string, policy OnExists) (bool, error) {
	relType, err := l.db.RelationType(ctx, schemaName, tableName)
	if err != nil {
		return false, err
	}
	if relType == "" {
		return false, nil
	}

	qualified := schemaName + "." + tableName
	switch policy {
	case OnExistsFail:
		return true, fmt.Errorf("table %s already exists (on-exists policy %q)", qualified, policy)
	case OnExistsSkip:
		return true, nil
	case OnExistsAppend:
		if relType == "VIEW" {
			return true, fmt.Errorf("cannot append into %s: existing relation is a view", qualified)
		}
		return true, nil
	case OnExistsReplace:
		drop := "DROP TABLE IF EXISTS " + qualified
		if relType == "VIEW" {
			drop = "DROP VIEW IF EXISTS " + qualified
		}
		if err := l.db.Exec(ctx, drop); err != nil {
			return true, err
		}
		return false, nil
	default:
		return true, fmt.Errorf("unknown on-exists policy %q for %s", policy, qualified)
	}
}

// createTable creates the destination schema and table with the full
// catalog column list, in catalog order.
func (l *Loader) createTable(ctx context.Context, tbl schema.Table) error {
	if err := l.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+tbl.Schema); err != nil {
		return err
	}
	defs := make([]string, len(tbl.Columns))
	for i, c := range tbl.Columns {
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(c.Name), c.Type)
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)",
		tbl.Schema, tbl.Name, strings.Join(defs, ", "))
	return l.db.Exec(ctx, create)
}

// copyInto uses DuckDB's raw CSV copy. Valid only when the header order
// equals the schema order; the caller guarantees that.
func (l *Loader) copyInto(ctx context.Context, path string, tbl schema.Table) error {
	copySQL := fmt.Sprintf(
		`COPY %s.%s FROM %s (FORMAT CSV, HEADER, DELIMITER ',', QUOTE '"', ESCAPE '"')`,
		tbl.Schema, tbl.Name, quoteString(path))
	if err := l.db.Exec(ctx, copySQL); err != nil {
		return fmt.Errorf("copy %s into %s.%s: %w", path, tbl.Schema, tbl.Name, err)
	}
	return nil
}

// insertInto reads the CSV as all-varchar and inserts the loadable columns
// with per-column casts, leaving schema columns absent from the header
// NULL. A positive rowLimit caps the insert.
func (l *Loader) insertInto(ctx context.Context, path string, tbl schema.Table, loadable []string, rowLimit int) error {
	types := make(map[string]string, len(tbl.Columns))
	for _, c := range tbl.Columns {
		types[c.Name] = c.Type
	}

	cols := make([]string, len(loadable))
	exprs := make([]string, len(loadable))
	for i, name := range loadable {
		key := strings.ToLower(name)
		cols[i] = quoteIdent(key)
		exprs[i] = castExpr(quoteIdent(name), types[key])
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s.%s (%s) SELECT %s FROM read_csv(%s, ALL_VARCHAR=TRUE, HEADER=TRUE, DELIM=',', QUOTE='"', ESCAPE='"')`,
		tbl.Schema, tbl.Name, strings.Join(cols, ", "), strings.Join(exprs, ", "), quoteString(path))
	if rowLimit > 0 {
		insert = fmt.Sprintf("%s LIMIT %d", insert, rowLimit)
	}
	if err := l.db.Exec(ctx, insert); err != nil {
		return fmt.Errorf("insert %s into %s.%s: %w", path, tbl.Schema, tbl.Name, err)
	}
	return nil
}

// castExpr builds the per-column cast. Character types pass through
// verbatim so values like "001" keep their leading zeros; everything else
// goes through a null-safe, failure-tolerant cast where an empty CSV field
// becomes NULL instead of a cast error.
func castExpr(ident, typeExpr string) string {
	if isCharacterType(typeExpr) {
		return ident
	}
	return fmt.Sprintf("TRY_CAST(NULLIF(%s, '') AS %s)", ident, typeExpr)
}

func isCharacterType(typeExpr string) bool {
	upper := strings.ToUpper(strings.TrimSpace(typeExpr))
	for _, prefix := range []string{"VARCHAR", "CHAR", "CHARACTER", "TEXT", "STRING"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
