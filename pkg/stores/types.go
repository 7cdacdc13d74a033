package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus represents the status of a playbook run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents one execution of a playbook, real or dry-run
type Run struct {
	ID          string     `json:"id"`
	Playbook    string     `json:"playbook"`
	PlayName    string     `json:"play_name"`
	Strategy    string     `json:"strategy"`
	DryRun      bool       `json:"dry_run"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskRecord is the persisted outcome of a single task on a single host.
// Records are append-only and ordered by Seq within a run.
type TaskRecord struct {
	Seq       int64     `json:"seq"`
	RunID     string    `json:"run_id"`
	Host      string    `json:"host"`
	Task      string    `json:"task"`
	Module    string    `json:"module"`
	Status    string    `json:"status"`
	ExecHost  string    `json:"exec_host"`
	FactHost  string    `json:"fact_host"`
	Msg       string    `json:"msg"`
	Data      *string   `json:"data,omitempty"` // JSON blob
	Error     *string   `json:"error,omitempty"`
	Planned   bool      `json:"planned"`
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ms"`
}

// HostSummary tallies per-host outcomes for a finished run
type HostSummary struct {
	RunID       string `json:"run_id"`
	Host        string `json:"host"`
	OK          int    `json:"ok"`
	Changed     int    `json:"changed"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	Unreachable int    `json:"unreachable"`
}

// Store defines the interface for the run history layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FinishRun(ctx context.Context, id string, status RunStatus, errMsg *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// TaskRecord operations
	AppendResult(ctx context.Context, rec *TaskRecord) error
	ListResults(ctx context.Context, runID string) ([]*TaskRecord, error)

	// Recap operations
	SaveRecap(ctx context.Context, runID string, summaries []*HostSummary) error
	GetRecap(ctx context.Context, runID string) ([]*HostSummary, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
