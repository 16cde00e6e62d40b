// Package adapter provides the database adapter interface and the DuckDB
// implementation used by the ETL engine and the CSV loader.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds the configuration for opening a database.
type Config struct {
	// Path is the database file path. Use ":memory:" for an in-memory
	// database.
	Path string

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// Relation is a table or view visible in information_schema.
type Relation struct {
	Name string
	// Type is the information_schema table_type: "BASE TABLE" or "VIEW".
	Type string
}

// Rows wraps sql.Rows so callers do not depend on database/sql directly.
type Rows struct {
	*sql.Rows
}

// Adapter is the narrow engine surface the ETL core needs. Statement text
// is prepared by the caller; the adapter never rewrites SQL.
type Adapter interface {
	// Connect opens the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection.
	Close() error

	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// RelationType reports the information_schema table_type of
	// schema.table ("BASE TABLE", "VIEW"), or "" when it does not exist.
	RelationType(ctx context.Context, schemaName, tableName string) (string, error)

	// ListRelations returns all tables and views in a schema, ordered by
	// name.
	ListRelations(ctx context.Context, schemaName string) ([]Relation, error)
}
