package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDB implements Adapter for an embedded DuckDB database.
type DuckDB struct {
	db     *sql.DB
	config Config
}

// NewDuckDB creates a new DuckDB adapter instance.
func NewDuckDB() *DuckDB {
	return &DuckDB{}
}

// Connect opens the DuckDB database. Use ":memory:" as the path for an
// in-memory database.
func (a *DuckDB) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	dsn := path
	if cfg.ReadOnly {
		dsn = path + "?access_mode=read_only"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.db = db
	a.config = cfg
	return nil
}

// Close closes the DuckDB connection.
func (a *DuckDB) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (a *DuckDB) Exec(ctx context.Context, sqlStr string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}
	if _, err := a.db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a SQL statement that returns rows.
func (a *DuckDB) Query(ctx context.Context, sqlStr string) (*Rows, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := a.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{Rows: rows}, nil
}

// RelationType looks up schema.table in information_schema and returns its
// table_type, or "" when the relation does not exist.
func (a *DuckDB) RelationType(ctx context.Context, schemaName, tableName string) (string, error) {
	if a.db == nil {
		return "", fmt.Errorf("database connection not established")
	}

	query := `
		SELECT table_type
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
		LIMIT 1
	`
	var relType string
	err := a.db.QueryRowContext(ctx, query, schemaName, tableName).Scan(&relType)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query relation type for %s.%s: %w", schemaName, tableName, err)
	}
	return relType, nil
}

// ListRelations returns all tables and views in a schema, ordered by name.
func (a *DuckDB) ListRelations(ctx context.Context, schemaName string) ([]Relation, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	query := `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name
	`
	rows, err := a.db.QueryContext(ctx, query, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations in %s: %w", schemaName, err)
	}
	defer func() { _ = rows.Close() }()

	var relations []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.Name, &r.Type); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return relations, nil
}

// Ensure DuckDB implements the Adapter interface
var _ Adapter = (*DuckDB)(nil)
