package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/na399/MIMIC/internal/adapter"
	"github.com/na399/MIMIC/internal/config"
)

// fakeDB records executed SQL and serves canned relation metadata.
type fakeDB struct {
	execs     []string
	relTypes  map[string]string
	relations map[string][]adapter.Relation
	// failOn makes Exec fail for any statement containing the substring.
	failOn string
}

func (f *fakeDB) Connect(context.Context, adapter.Config) error { return nil }
func (f *fakeDB) Close() error                                  { return nil }

func (f *fakeDB) Exec(_ context.Context, sql string) error {
	f.execs = append(f.execs, sql)
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return errors.New("injected failure")
	}
	return nil
}

func (f *fakeDB) Query(context.Context, string) (*adapter.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) RelationType(_ context.Context, schemaName, tableName string) (string, error) {
	return f.relTypes[schemaName+"."+tableName], nil
}

func (f *fakeDB) ListRelations(_ context.Context, schemaName string) ([]adapter.Relation, error) {
	return f.relations[schemaName], nil
}

func newTestEngine(t *testing.T, cfg *config.Config, db *fakeDB) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.StatePath = ":memory:"
	if cfg.DuckDB.Database == "" {
		cfg.DuckDB.Database = ":memory:"
	}

	e, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	e.db = db
	return e
}

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSubstitute(t *testing.T) {
	vars := map[string]string{
		"schema":        "main",
		"schema_source": "raw_hosp",
	}

	got := Substitute("SELECT * FROM @schema_source.patients, @schema.concept", vars)
	assert.Equal(t, "SELECT * FROM raw_hosp.patients, main.concept", got)
}

func TestSubstitute_NoVariables(t *testing.T) {
	assert.Equal(t, "SELECT 1", Substitute("SELECT 1", nil))
}

func TestSubstitute_PrefixVariables(t *testing.T) {
	// Names sharing a prefix must not clobber each other regardless of
	// map iteration order.
	vars := map[string]string{
		"s":                 "x",
		"schema":            "main",
		"schema_source":     "raw_hosp",
		"schema_source_icu": "raw_icu",
	}

	for i := 0; i < 50; i++ {
		got := Substitute("@schema_source_icu @schema_source @schema @s", vars)
		require.Equal(t, "raw_icu raw_hosp main x", got)
	}
}

func TestEngine_BuiltinVariables(t *testing.T) {
	cfg := &config.Config{
		Variables: map[string]string{"schema_target": "omop"},
	}
	cfg.DuckDB.Database = "warehouse/mimiciv.duckdb"
	e := newTestEngine(t, cfg, &fakeDB{})

	vars := e.vars()
	assert.Equal(t, "mimiciv", vars["duckdb_catalog"])
	assert.Equal(t, "omop", vars["schema_target"])
	assert.NotEmpty(t, vars["run_id"])
	assert.NotEmpty(t, vars["run_started_at"])
}

func TestEngine_RunWorkflow(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "01.sql", `
CREATE TABLE @schema_target.person (person_id INT64);
-- a comment that must not execute
INSERT INTO @schema_target.person
SELECT CAST(subject_id AS STRING) FROM src;
`)

	cfg := &config.Config{
		Variables: map[string]string{"schema_target": "omop"},
		Workflows: map[string]config.Workflow{
			"omop": {Scripts: []string{filepath.Join(dir, "01.sql")}},
		},
	}
	db := &fakeDB{}
	e := newTestEngine(t, cfg, db)

	require.NoError(t, e.RunWorkflow(context.Background(), "omop"))

	require.Len(t, db.execs, 2)
	// Variables substituted before segmentation, dialect normalized after.
	assert.Contains(t, db.execs[0], "CREATE TABLE omop.person (person_id BIGINT)")
	assert.Contains(t, db.execs[1], "CAST(subject_id AS VARCHAR)")

	run, err := e.store.GetLatestRun("omop")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "completed", string(run.Status))

	execs, err := e.store.StatementsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "success", execs[0].Status)
	assert.Equal(t, 0, execs[0].Index)
	assert.Equal(t, 1, execs[1].Index)
}

func TestEngine_RunWorkflow_Unknown(t *testing.T) {
	cfg := &config.Config{
		Workflows: map[string]config.Workflow{"omop": {}},
	}
	e := newTestEngine(t, cfg, &fakeDB{})

	err := e.RunWorkflow(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown workflow")
	assert.Contains(t, err.Error(), "omop")
}

func TestEngine_RunScripts_FailureRecorded(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "bad.sql", "SELECT 1;\nSELECT broken_column;\nSELECT 3;\n")

	db := &fakeDB{failOn: "broken_column"}
	e := newTestEngine(t, nil, db)

	err := e.RunScripts(context.Background(), []string{script})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 1")

	// Third statement never ran.
	assert.Len(t, db.execs, 2)

	run, err := e.store.GetLatestRun("scripts")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "failed", string(run.Status))

	execs, err := e.store.StatementsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "success", execs[0].Status)
	assert.Equal(t, "failed", execs[1].Status)
	assert.Contains(t, execs[1].Error, "injected failure")
}

func TestEngine_SessionConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.DuckDB = config.DuckDBConfig{
		Database:           filepath.Join(t.TempDir(), "mimiciv.duckdb"),
		Threads:            4,
		MemoryLimit:        "8GB",
		MaxExpressionDepth: 5000,
		Attachments:        map[string]string{"vocab": "data/vocab.duckdb"},
	}
	db := &fakeDB{}
	e := newTestEngine(t, cfg, db)

	require.NoError(t, e.ensureDBConnected(context.Background()))

	joined := strings.Join(db.execs, "\n")
	assert.Contains(t, joined, "SET threads = 4")
	assert.Contains(t, joined, "SET memory_limit = '8GB'")
	assert.Contains(t, joined, "SET max_expression_depth = 5000")
	assert.NotContains(t, joined, "temp_directory")
	assert.Contains(t, joined, "ATTACH DATABASE IF NOT EXISTS 'data/vocab.duckdb' AS vocab (READ_ONLY)")

	// Second call is a no-op.
	n := len(db.execs)
	require.NoError(t, e.ensureDBConnected(context.Background()))
	assert.Len(t, db.execs, n)
}

func TestEngine_SessionConfig_Variables(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.sql", "INSTALL icu;\n")

	cfg := &config.Config{
		Variables: map[string]string{
			"mem":      "4GB",
			"data_dir": dir,
		},
	}
	cfg.DuckDB = config.DuckDBConfig{
		Database:      "@data_dir/warehouse.duckdb",
		MemoryLimit:   "@mem",
		TempDirectory: "@data_dir/tmp",
		Attachments:   map[string]string{"vocab": "@data_dir/vocab.duckdb"},
		PreSQL:        []string{"@data_dir/init.sql"},
	}
	db := &fakeDB{}
	e := newTestEngine(t, cfg, db)

	require.NoError(t, e.ensureDBConnected(context.Background()))

	// The database path is resolved before connecting, and the catalog
	// built-in reflects the resolved path.
	assert.Equal(t, dir+"/warehouse.duckdb", e.dbConfig.Path)
	assert.Equal(t, "warehouse", e.vars()["duckdb_catalog"])

	joined := strings.Join(db.execs, "\n")
	assert.Contains(t, joined, "SET memory_limit = '4GB'")
	assert.Contains(t, joined, "SET temp_directory = '"+dir+"/tmp'")
	assert.Contains(t, joined, "ATTACH DATABASE IF NOT EXISTS '"+dir+"/vocab.duckdb' AS vocab (READ_ONLY)")
	assert.Contains(t, joined, "INSTALL icu")
	assert.NotContains(t, joined, "@data_dir")
	assert.NotContains(t, joined, "@mem")
}

func TestEngine_IngestFolder_Inferred(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patients.csv"), []byte("subject_id\n1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admissions.csv"), []byte("hadm_id\n2\n"), 0o600))

	cfg := &config.Config{}
	cfg.Ingest.SampleSize = 30000
	// patients exists as a view and must be dropped before the CTAS.
	db := &fakeDB{relTypes: map[string]string{"raw_hosp.patients": "VIEW"}}
	e := newTestEngine(t, cfg, db)

	require.NoError(t, e.IngestFolder(context.Background(), dir, "raw_hosp"))

	joined := strings.Join(db.execs, "\n")
	assert.Contains(t, joined, "CREATE SCHEMA IF NOT EXISTS raw_hosp")
	assert.Contains(t, joined, "DROP VIEW IF EXISTS raw_hosp.patients")
	assert.Contains(t, joined, "CREATE OR REPLACE TABLE raw_hosp.admissions AS SELECT * FROM read_csv_auto(")
	assert.Contains(t, joined, "SAMPLE_SIZE=30000")

	// Files load in sorted order: admissions before patients.
	var ctas []string
	for _, sql := range db.execs {
		if strings.Contains(sql, "read_csv_auto") {
			ctas = append(ctas, sql)
		}
	}
	require.Len(t, ctas, 2)
	assert.Contains(t, ctas[0], "admissions")
	assert.Contains(t, ctas[1], "patients")

	run, err := e.store.GetLatestRun("ingest")
	require.NoError(t, err)
	require.NotNil(t, run)
	loads, err := e.store.LoadsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, loads, 2)
	assert.Equal(t, "inferred", loads[0].Mode)
	assert.Equal(t, "success", loads[0].Status)
}

func TestEngine_IngestFolder_Typed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patients.csv"),
		[]byte("subject_id,note\n1,x\n"), 0o600))

	ddl := filepath.Join(t.TempDir(), "ddl.sql")
	require.NoError(t, os.WriteFile(ddl, []byte(`
CREATE TABLE raw_hosp.patients (
    subject_id BIGINT,
    note VARCHAR
);
`), 0o600))

	cfg := &config.Config{}
	cfg.Ingest.DDL = ddl
	cfg.Ingest.OnExists = "replace"
	db := &fakeDB{relTypes: map[string]string{}}
	e := newTestEngine(t, cfg, db)

	require.NoError(t, e.IngestFolder(context.Background(), dir, "raw_hosp"))

	joined := strings.Join(db.execs, "\n")
	assert.Contains(t, joined, `CREATE TABLE IF NOT EXISTS raw_hosp.patients ("subject_id" BIGINT, "note" VARCHAR)`)
	assert.Contains(t, joined, "COPY raw_hosp.patients FROM")
	assert.NotContains(t, joined, "read_csv_auto")

	run, err := e.store.GetLatestRun("ingest")
	require.NoError(t, err)
	loads, err := e.store.LoadsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, "typed", loads[0].Mode)
}

func TestEngine_IngestFolder_Empty(t *testing.T) {
	e := newTestEngine(t, nil, &fakeDB{})

	err := e.IngestFolder(context.Background(), t.TempDir(), "raw_hosp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no csv files")
}

func TestEngine_CreateSchemaViews(t *testing.T) {
	db := &fakeDB{relations: map[string][]adapter.Relation{
		"raw_hosp": {
			{Name: "admissions", Type: "BASE TABLE"},
			{Name: "patients", Type: "BASE TABLE"},
		},
		"raw_icu": {
			{Name: "old_view", Type: "VIEW"},
			{Name: "old_table", Type: "BASE TABLE"},
		},
	}}
	e := newTestEngine(t, nil, db)

	require.NoError(t, e.CreateSchemaViews(context.Background(), "raw_hosp", "raw_icu"))

	joined := strings.Join(db.execs, "\n")
	assert.Contains(t, joined, "DROP VIEW IF EXISTS raw_icu.old_view")
	assert.Contains(t, joined, "DROP TABLE IF EXISTS raw_icu.old_table")
	assert.Contains(t, joined, "CREATE OR REPLACE VIEW raw_icu.patients AS SELECT * FROM raw_hosp.patients")
	assert.Contains(t, joined, "CREATE OR REPLACE VIEW raw_icu.admissions AS SELECT * FROM raw_hosp.admissions")
}

func TestEngine_CreateSchemaViews_EmptySource(t *testing.T) {
	e := newTestEngine(t, nil, &fakeDB{relations: map[string][]adapter.Relation{}})

	err := e.CreateSchemaViews(context.Background(), "raw_hosp", "raw_icu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no relations")
}

func TestEngine_MaterializeViews(t *testing.T) {
	db := &fakeDB{relations: map[string][]adapter.Relation{
		"omop": {
			{Name: "concept", Type: "BASE TABLE"},
			{Name: "person", Type: "VIEW"},
		},
	}}
	e := newTestEngine(t, nil, db)

	require.NoError(t, e.MaterializeViews(context.Background(), "omop"))

	require.Len(t, db.execs, 3)
	assert.Equal(t, "CREATE TABLE omop.__tmp_materialized AS SELECT * FROM omop.person", db.execs[0])
	assert.Equal(t, "DROP VIEW omop.person", db.execs[1])
	assert.Equal(t, "ALTER TABLE omop.__tmp_materialized RENAME TO person", db.execs[2])
}

func TestEngine_VerifyTables(t *testing.T) {
	db := &fakeDB{relations: map[string][]adapter.Relation{
		"vocab": {
			{Name: "concept", Type: "BASE TABLE"},
			{Name: "vocabulary", Type: "BASE TABLE"},
		},
	}}
	e := newTestEngine(t, nil, db)
	ctx := context.Background()

	require.NoError(t, e.VerifyTables(ctx, "vocab", []string{"concept", "VOCABULARY"}))

	err := e.VerifyTables(ctx, "vocab", []string{"concept", "domain", "concept_relationship"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain")
	assert.Contains(t, err.Error(), "concept_relationship")
	assert.NotContains(t, err.Error(), "missing required tables: concept,")
}

func TestTableNameForFile(t *testing.T) {
	tests := []struct {
		path     string
		keepCase bool
		want     string
	}{
		{"data/patients.csv", false, "patients"},
		{"data/ADMISSIONS.csv.gz", false, "admissions"},
		{"data/ADMISSIONS.csv.gz", true, "ADMISSIONS"},
		{"d_icd_diagnoses.csv.zip", false, "d_icd_diagnoses"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tableNameForFile(tt.path, tt.keepCase), tt.path)
	}
}

func TestEngine_New_CreatesStateDir(t *testing.T) {
	cfg := &config.Config{
		StatePath: filepath.Join(t.TempDir(), "nested", "state.db"),
	}
	cfg.DuckDB.Database = "data/mimiciv.duckdb"

	e, err := New(cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	_, statErr := os.Stat(filepath.Dir(cfg.StatePath))
	assert.NoError(t, statErr)
}

func TestEngine_PreSQL(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.sql", "INSTALL icu;\nLOAD icu;\n")

	cfg := &config.Config{}
	cfg.DuckDB.PreSQL = []string{filepath.Join(dir, "init.sql")}
	db := &fakeDB{}
	e := newTestEngine(t, cfg, db)

	script := writeScript(t, dir, "main.sql", "SELECT 1;\n")
	require.NoError(t, e.RunScripts(context.Background(), []string{script}))

	require.Len(t, db.execs, 3)
	assert.Equal(t, "INSTALL icu", db.execs[0])
	assert.Equal(t, "LOAD icu", db.execs[1])
	assert.Equal(t, "SELECT 1", db.execs[2])

	// Pre-SQL statements are attributed to the run.
	run, err := e.store.GetLatestRun("scripts")
	require.NoError(t, err)
	execs, err := e.store.StatementsForRun(run.ID)
	require.NoError(t, err)
	assert.Len(t, execs, 3)
}

func TestEngine_Vars_BuiltinsNotShadowed(t *testing.T) {
	cfg := &config.Config{
		Variables: map[string]string{"duckdb_catalog": "bogus"},
	}
	cfg.DuckDB.Database = "warehouse/mimiciv.duckdb"
	e := newTestEngine(t, cfg, &fakeDB{})

	assert.Equal(t, "mimiciv", e.vars()["duckdb_catalog"])
}
