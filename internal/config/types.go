// Package config provides configuration for the ETL pipeline: the DuckDB
// warehouse, session settings, the DDL catalog, ingestion sources, and
// named workflows of SQL scripts.
package config

// DuckDBConfig holds warehouse connection and session configuration.
type DuckDBConfig struct {
	// Database is the warehouse file path, or ":memory:".
	Database string `koanf:"database"`

	// Session settings applied after connect. Empty values are skipped.
	Threads            int    `koanf:"threads"`
	MemoryLimit        string `koanf:"memory_limit"`
	TempDirectory      string `koanf:"temp_directory"`
	MaxExpressionDepth int    `koanf:"max_expression_depth"`

	// Attachments are extra databases attached read-only at session start,
	// keyed by alias.
	Attachments map[string]string `koanf:"attachments"`

	// PreSQL statements run once per session, after settings and attachments.
	PreSQL []string `koanf:"pre_sql"`
}

// IngestConfig holds CSV ingestion configuration.
type IngestConfig struct {
	// SourceDir is the folder scanned for CSV files.
	SourceDir string `koanf:"source_dir"`

	// Schema is the destination schema for ingested tables.
	Schema string `koanf:"schema"`

	// DDL is the path to the CREATE TABLE script that types the ingested
	// tables. Empty means all loads fall back to type inference.
	DDL string `koanf:"ddl"`

	// OnExists is the default policy when a destination table exists:
	// fail, skip, replace or append.
	OnExists string `koanf:"on_exists"`

	// KeepCase preserves CSV header casing instead of lower-casing it.
	KeepCase bool `koanf:"keep_case"`

	// RowLimit caps rows per file; 0 means unlimited.
	RowLimit int `koanf:"row_limit"`

	// SampleSize is the read_csv_auto sniffer sample size used on the
	// inference path; 0 uses the engine default.
	SampleSize int `koanf:"sample_size"`
}

// Workflow is an ordered list of SQL script paths executed as one unit.
type Workflow struct {
	Description string   `koanf:"description"`
	Scripts     []string `koanf:"scripts"`
}

// Config is the root configuration.
type Config struct {
	DuckDB DuckDBConfig `koanf:"duckdb"`
	Ingest IngestConfig `koanf:"ingest"`

	// Variables are substituted into SQL scripts as @name references.
	Variables map[string]string `koanf:"variables"`

	// Workflows maps workflow name to its script list.
	Workflows map[string]Workflow `koanf:"workflows"`

	// StatePath is the SQLite run-audit database path.
	StatePath string `koanf:"state_path"`

	Verbose bool `koanf:"verbose"`
}
