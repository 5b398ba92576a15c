package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kyleking/qik-trak/internal/orchestrator"
)

// ErrRunNotFound is returned when no journaled run matches an ID
var ErrRunNotFound = errors.New("run not found")

// Journal defines the interface for run journal operations
type Journal interface {
	Initialize(ctx context.Context) error
	SaveRun(ctx context.Context, report *orchestrator.Report) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetRun(ctx context.Context, idPrefix string) (*RunRecord, error)
	ListOperations(ctx context.Context, runID string) ([]OperationRecord, error)
	Prune(ctx context.Context, keep int) (int, error)
	Stats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

// RunRecord represents a synchronization run as stored in the journal
type RunRecord struct {
	ID            string        `json:"id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Schema        string        `json:"schema"`
	Database      string        `json:"database"`
	Status        string        `json:"status"`
	Tables        int           `json:"tables"`
	ForeignKeys   int           `json:"foreign_keys"`
	Views         int           `json:"views"`
	Relationships int           `json:"relationships"`
	Succeeded     int           `json:"succeeded"`
	Idempotent    int           `json:"idempotent"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	FatalError    string        `json:"fatal_error,omitempty"`
	Phases        []PhaseRecord `json:"phases,omitempty"`
}

// Duration returns the wall time of the run
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// PhaseRecord is the stored duration of one phase
type PhaseRecord struct {
	Phase    string        `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// OperationRecord is one stored item result
type OperationRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Phase     string    `json:"phase"`
	Operation string    `json:"operation"`
	Target    string    `json:"target"`
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the journal contents
type Stats struct {
	TotalRuns       int       `json:"total_runs"`
	FailedRuns      int       `json:"failed_runs"`
	TotalOperations int       `json:"total_operations"`
	LastRunAt       time.Time `json:"last_run_at"`
	SizeBytes       int64     `json:"size_bytes"`
}
