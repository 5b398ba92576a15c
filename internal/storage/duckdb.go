package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/kyleking/qik-trak/internal/logging"
	"github.com/kyleking/qik-trak/internal/orchestrator"
	"github.com/kyleking/qik-trak/internal/types"
)

// DuckDBJournal implements the Journal interface using DuckDB
type DuckDBJournal struct {
	db     *sql.DB
	path   string
	logger *logging.Logger
}

// NewDuckDBJournal opens (creating if needed) the journal database at dbPath
func NewDuckDBJournal(dbPath string) (*DuckDBJournal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	return &DuckDBJournal{db: db, path: dbPath, logger: logging.Nop()}, nil
}

// Path returns the journal database file
func (j *DuckDBJournal) Path() string {
	return j.path
}

// Initialize creates or upgrades the journal schema
func (j *DuckDBJournal) Initialize(ctx context.Context) error {
	return NewMigrationManager(j.db, j.logger).MigrateUp(ctx)
}

// SaveRun stores a run report with every item result and phase timing
func (j *DuckDBJournal) SaveRun(ctx context.Context, report *orchestrator.Report) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	var fatal sql.NullString
	if report.Fatal != nil {
		fatal = sql.NullString{String: report.Fatal.Error(), Valid: true}
	}

	var finished sql.NullTime
	if !report.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: report.FinishedAt, Valid: true}
	}

	insertRunSQL := `
	INSERT INTO runs (
		id, started_at, finished_at, schema_name, database_name, status,
		tables_count, foreign_keys_count, views_count, relationships_count,
		succeeded, idempotent, failed, skipped, fatal_error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, insertRunSQL,
		report.RunID, report.StartedAt, finished, report.Schema, report.Database, report.Status(),
		len(report.Tables), report.ForeignKeys, len(report.Views), report.Relationships,
		report.Count(types.OutcomeSuccess), report.Count(types.OutcomeIdempotent),
		report.Count(types.OutcomeFailed), report.Count(types.OutcomeSkipped), fatal,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}

	insertOperationSQL := `
	INSERT INTO operations (id, run_id, seq, phase, operation, target, outcome, message)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for i, res := range report.Results {
		var message sql.NullString
		if res.Err != nil {
			message = sql.NullString{String: res.Err.Error(), Valid: true}
		}

		_, err = tx.ExecContext(ctx, insertOperationSQL,
			uuid.New().String(), report.RunID, i, string(res.Phase), res.Operation, res.Target, string(res.Outcome), message)
		if err != nil {
			return fmt.Errorf("failed to insert operation %d of run %s: %w", i, report.RunID, err)
		}
	}

	for i, timing := range report.Phases {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO phase_timings (run_id, seq, phase, duration_ms) VALUES (?, ?, ?, ?)",
			report.RunID, i, string(timing.Phase), timing.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert phase timing %s: %w", timing.Phase, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", report.RunID, err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":     report.RunID,
		"operations": len(report.Results),
	}).Debug("Saved run to journal")

	return nil
}

const selectRunColumns = `
	SELECT id, started_at, finished_at, schema_name, database_name, status,
		   COALESCE(tables_count, 0), COALESCE(foreign_keys_count, 0),
		   COALESCE(views_count, 0), COALESCE(relationships_count, 0),
		   COALESCE(succeeded, 0), COALESCE(idempotent, 0),
		   COALESCE(failed, 0), COALESCE(skipped, 0),
		   COALESCE(fatal_error, '')
	FROM runs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		run      RunRecord
		finished sql.NullTime
	)

	err := row.Scan(
		&run.ID, &run.StartedAt, &finished, &run.Schema, &run.Database, &run.Status,
		&run.Tables, &run.ForeignKeys, &run.Views, &run.Relationships,
		&run.Succeeded, &run.Idempotent, &run.Failed, &run.Skipped,
		&run.FatalError,
	)
	if err != nil {
		return run, err
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}

	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less returns every run.
func (j *DuckDBJournal) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := selectRunColumns + " ORDER BY started_at DESC"

	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"

		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer rows.Close()

	var runs []RunRecord

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun returns the run whose ID starts with idPrefix, with its phase timings.
// The prefix is matched literally; LIKE wildcards in it have no special meaning.
func (j *DuckDBJournal) GetRun(ctx context.Context, idPrefix string) (*RunRecord, error) {
	if idPrefix == "" {
		return nil, fmt.Errorf("run id is required")
	}

	rows, err := j.db.QueryContext(ctx, selectRunColumns+" WHERE starts_with(id, ?) ORDER BY started_at DESC LIMIT 2", idPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	var matches []RunRecord

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		matches = append(matches, run)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, idPrefix)
	case 1:
	default:
		return nil, fmt.Errorf("run id %q is ambiguous", idPrefix)
	}

	run := matches[0]

	phases, err := j.listPhases(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	run.Phases = phases

	return &run, nil
}

func (j *DuckDBJournal) listPhases(ctx context.Context, runID string) ([]PhaseRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT phase, duration_ms FROM phase_timings WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query phase timings: %w", err)
	}

	defer rows.Close()

	var phases []PhaseRecord

	for rows.Next() {
		var (
			phase string
			ms    int64
		)

		if err := rows.Scan(&phase, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan phase timing: %w", err)
		}

		phases = append(phases, PhaseRecord{Phase: phase, Duration: time.Duration(ms) * time.Millisecond})
	}

	return phases, rows.Err()
}

// ListOperations returns the item results of a run in the order they were recorded
func (j *DuckDBJournal) ListOperations(ctx context.Context, runID string) ([]OperationRecord, error) {
	query := `
	SELECT id, run_id, seq, phase, operation, target, outcome, COALESCE(message, ''), created_at
	FROM operations WHERE run_id = ? ORDER BY seq`

	rows, err := j.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}

	defer rows.Close()

	var ops []OperationRecord

	for rows.Next() {
		var op OperationRecord
		if err := rows.Scan(&op.ID, &op.RunID, &op.Seq, &op.Phase, &op.Operation,
			&op.Target, &op.Outcome, &op.Message, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// Prune deletes every run but the most recent keep runs and returns how many were removed
func (j *DuckDBJournal) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}

	query := `
	SELECT id FROM (
		SELECT id, row_number() OVER (ORDER BY started_at DESC) AS position FROM runs
	) WHERE position > ?`

	rows, err := j.db.QueryContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to query runs to prune: %w", err)
	}

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan run id: %w", err)
		}

		ids = append(ids, id)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		for _, stmt := range []string{
			"DELETE FROM operations WHERE run_id = ?",
			"DELETE FROM phase_timings WHERE run_id = ?",
			"DELETE FROM runs WHERE id = ?",
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return 0, fmt.Errorf("failed to prune run %s: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	return len(ids), nil
}

// Stats returns journal statistics
func (j *DuckDBJournal) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}

	err = j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE status <> ?", orchestrator.StatusCompleted).
		Scan(&stats.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed run count: %w", err)
	}

	err = j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operations").Scan(&stats.TotalOperations)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation count: %w", err)
	}

	var lastRun sql.NullTime

	err = j.db.QueryRowContext(ctx, "SELECT MAX(started_at) FROM runs").Scan(&lastRun)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last run time: %w", err)
	}

	if lastRun.Valid {
		stats.LastRunAt = lastRun.Time
	}

	if info, err := os.Stat(j.path); err == nil {
		stats.SizeBytes = info.Size()
	}

	return stats, nil
}

// Clear removes every journaled run
func (j *DuckDBJournal) Clear(ctx context.Context) error {
	for _, table := range []string{"operations", "phase_timings", "runs"} {
		if _, err := j.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	return nil
}

// Close closes the database connection
func (j *DuckDBJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}

	return j.db.Close()
}
