package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite audit store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Run operations ---

// CreateRun creates a new pipeline run in the running state.
func (s *SQLiteStore) CreateRun(workflow string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:        generateID(),
		Workflow:  workflow,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, workflow, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Workflow, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// CompleteRun marks a run as completed with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, now, errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// GetLatestRun retrieves the most recent run for a workflow.
// Returns nil without error when no runs exist.
func (s *SQLiteStore) GetLatestRun(workflow string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, workflow, status, started_at, completed_at, error
		 FROM runs WHERE workflow = ? ORDER BY started_at DESC LIMIT 1`,
		workflow,
	).Scan(&run.ID, &run.Workflow, &run.Status, &run.StartedAt, &completedAt, &errMsg)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}

	return run, nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, workflow, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var completedAt sql.NullTime
		var errMsg sql.NullString

		if err := rows.Scan(&run.ID, &run.Workflow, &run.Status, &run.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// --- Statement operations ---

// RecordStatement records one executed SQL statement.
func (s *SQLiteStore) RecordStatement(exec *StatementExecution) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if exec.ID == "" {
		exec.ID = generateID()
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now().UTC()
	}

	var errorPtr *string
	if exec.Error != "" {
		errorPtr = &exec.Error
	}

	_, err := s.db.Exec(
		`INSERT INTO statement_executions (id, run_id, script, stmt_index, status, error, execution_ms, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.RunID, exec.Script, exec.Index, exec.Status, errorPtr, exec.ExecutionMS, exec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record statement: %w", err)
	}

	return nil
}

// StatementsForRun retrieves all statement executions for a run, in
// execution order.
func (s *SQLiteStore) StatementsForRun(runID string) ([]*StatementExecution, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, script, stmt_index, status, error, execution_ms, executed_at
		 FROM statement_executions WHERE run_id = ? ORDER BY executed_at, stmt_index`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get statements: %w", err)
	}
	defer rows.Close()

	var execs []*StatementExecution
	for rows.Next() {
		e := &StatementExecution{}
		var errMsg sql.NullString

		if err := rows.Scan(&e.ID, &e.RunID, &e.Script, &e.Index, &e.Status, &errMsg, &e.ExecutionMS, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		if errMsg.Valid {
			e.Error = errMsg.String
		}
		execs = append(execs, e)
	}

	return execs, rows.Err()
}

// --- Load operations ---

// RecordLoad records one ingested CSV file.
func (s *SQLiteStore) RecordLoad(load *Load) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if load.ID == "" {
		load.ID = generateID()
	}
	if load.LoadedAt.IsZero() {
		load.LoadedAt = time.Now().UTC()
	}

	var errorPtr *string
	if load.Error != "" {
		errorPtr = &load.Error
	}

	_, err := s.db.Exec(
		`INSERT INTO loads (id, run_id, file, target_table, mode, status, error, loaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		load.ID, load.RunID, load.File, load.Table, load.Mode, load.Status, errorPtr, load.LoadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record load: %w", err)
	}

	return nil
}

// LoadsForRun retrieves all file loads for a run, in load order.
func (s *SQLiteStore) LoadsForRun(runID string) ([]*Load, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, file, target_table, mode, status, error, loaded_at
		 FROM loads WHERE run_id = ? ORDER BY loaded_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get loads: %w", err)
	}
	defer rows.Close()

	var loads []*Load
	for rows.Next() {
		l := &Load{}
		var errMsg sql.NullString

		if err := rows.Scan(&l.ID, &l.RunID, &l.File, &l.Table, &l.Mode, &l.Status, &errMsg, &l.LoadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan load: %w", err)
		}
		if errMsg.Valid {
			l.Error = errMsg.String
		}
		loads = append(loads, l)
	}

	return loads, rows.Err()
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
