// Package state records an audit trail of ETL runs in SQLite: one row per
// run, one row per executed SQL statement, and one row per ingested file.
// The audit database is separate from the DuckDB warehouse so a run history
// survives warehouse rebuilds.
package state

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the ETL pipeline.
type Run struct {
	ID          string
	Workflow    string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StatementExecution is one SQL statement executed during a run.
type StatementExecution struct {
	ID          string
	RunID       string
	Script      string
	Index       int
	Status      string
	Error       string
	ExecutionMS int64
	ExecutedAt  time.Time
}

// Load is one CSV file loaded into a table during a run.
type Load struct {
	ID       string
	RunID    string
	File     string
	Table    string
	Mode     string
	Status   string
	Error    string
	LoadedAt time.Time
}

// Store persists the run audit trail.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	CreateRun(workflow string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun(workflow string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	RecordStatement(exec *StatementExecution) error
	StatementsForRun(runID string) ([]*StatementExecution, error)

	RecordLoad(load *Load) error
	LoadsForRun(runID string) ([]*Load, error)
}
