package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/qik-trak/internal/config"
	"github.com/kyleking/qik-trak/internal/orchestrator"
	"github.com/kyleking/qik-trak/internal/types"
)

func newTestReport(startedAt time.Time) *orchestrator.Report {
	return &orchestrator.Report{
		RunID:         uuid.New().String(),
		Schema:        "public",
		Database:      "default",
		StartedAt:     startedAt,
		FinishedAt:    startedAt.Add(2 * time.Second),
		Tables:        []string{"order", "customer"},
		ForeignKeys:   1,
		Views:         []string{"order_summary"},
		Relationships: 1,
		Phases: []orchestrator.PhaseTiming{
			{Phase: orchestrator.PhaseUntrack, Duration: 120 * time.Millisecond},
			{Phase: orchestrator.PhaseTrackTables, Duration: 340 * time.Millisecond},
		},
		Results: []orchestrator.Result{
			{Phase: orchestrator.PhaseUntrack, Operation: "pg_untrack_table", Target: "order", Outcome: types.OutcomeSuccess},
			{Phase: orchestrator.PhaseUntrack, Operation: "pg_untrack_table", Target: "customer", Outcome: types.OutcomeIdempotent},
			{
				Phase:     orchestrator.PhaseTrackTables,
				Operation: "pg_track_table",
				Target:    "order",
				Outcome:   types.OutcomeFailed,
				Err:       errors.New("permission denied"),
			},
		},
	}
}

func TestDuckDBJournalSaveAndGetRun(t *testing.T) {
	journal := NewTestJournal(t)
	ctx := context.Background()

	report := newTestReport(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, journal.SaveRun(ctx, report))

	run, err := journal.GetRun(ctx, report.RunID)
	require.NoError(t, err)

	assert.Equal(t, report.RunID, run.ID)
	assert.Equal(t, "public", run.Schema)
	assert.Equal(t, "default", run.Database)
	assert.Equal(t, orchestrator.StatusCompletedWithFailures, run.Status)
	assert.Equal(t, 2, run.Tables)
	assert.Equal(t, 1, run.ForeignKeys)
	assert.Equal(t, 1, run.Views)
	assert.Equal(t, 1, run.Relationships)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Idempotent)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 0, run.Skipped)
	assert.Empty(t, run.FatalError)
	assert.WithinDuration(t, report.StartedAt, run.StartedAt, time.Millisecond)
	assert.WithinDuration(t, report.FinishedAt, run.FinishedAt, time.Millisecond)
	assert.Equal(t, 2*time.Second, run.Duration().Round(time.Second))

	assert.Equal(t, []PhaseRecord{
		{Phase: string(orchestrator.PhaseUntrack), Duration: 120 * time.Millisecond},
		{Phase: string(orchestrator.PhaseTrackTables), Duration: 340 * time.Millisecond},
	}, run.Phases)

	// Prefix lookup
	byPrefix, err := journal.GetRun(ctx, report.RunID[:8])
	require.NoError(t, err)
	assert.Equal(t, report.RunID, byPrefix.ID)
}

func TestDuckDBJournalFatalRun(t *testing.T) {
	journal := NewTestJournal(t)
	ctx := context.Background()

	report := &orchestrator.Report{
		RunID:     uuid.New().String(),
		Schema:    "public",
		Database:  "default",
		StartedAt: time.Now(),
		Fatal:     errors.New("failed to list tables"),
	}
	require.NoError(t, journal.SaveRun(ctx, report))

	run, err := journal.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusFailed, run.Status)
	assert.Equal(t, "failed to list tables", run.FatalError)
	assert.True(t, run.FinishedAt.IsZero())
	assert.Zero(t, run.Duration())
	assert.Empty(t, run.Phases)
}

func TestDuckDBJournalListOperations(t *testing.T) {
	journal := NewTestJournal(t)
	ctx := context.Background()

	report := newTestReport(time.Now())
	require.NoError(t, journal.SaveRun(ctx, report))

	ops, err := journal.ListOperations(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, ops, 3)

	for i, op := range ops {
		assert.Equal(t, i, op.Seq)
		assert.Equal(t, report.RunID, op.RunID)
		assert.Equal(t, report.Results[i].Target, op.Target)
		assert.Equal(t, string(report.Results[i].Outcome), op.Outcome)
	}

	assert.Empty(t, ops[0].Message)
	assert.Equal(t, "permission denied", ops[2].Message)

	none, err := journal.ListOperations(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDuckDBJournalListRuns(t *testing.T) {
	journal := NewTestJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []string

	for i := range 5 {
		report := newTestReport(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, journal.SaveRun(ctx, report))

		ids = append(ids, report.RunID)
	}

	runs, err := journal.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[3], runs[1].ID)
	assert.Equal(t, ids[2], runs[2].ID)

	all, err := journal.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestDuckDBJournalGetRunErrors(t *testing.T) {
	journal := NewTestJournal(t)
	ctx := context.Background()

	_, err := journal.GetRun(ctx, "")
	require.Error(t, err)

	_, err = journal.GetRun(ctx, "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)

	first := newTestReport(time.Now())
	first.RunID = "abc-111"
	second := newTestReport(time.Now().Add(time.Minute))
	second.RunID = "abc-222"

	require.NoError(t, journal.SaveRun(ctx, first))
	require.NoError(t, journal.SaveRun(ctx, second))

	_, err = journal.GetRun(ctx, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	for _, prefix := range []string{"%", "_", "abc%", "abc-_"} {
		_, err = journal.GetRun(ctx, prefix)
		assert.ErrorIs(t, err, ErrRunNotFound, "prefix %q", prefix)
	}

	run, err := journal.GetRun(ctx, "abc-2")
	require.NoError(t, err)
	assert.Equal(t, "abc-222", run.ID)
}

func TestDuckDBJournalSaveRunRequiresReport(t *testing.T) {
	journal := NewTestJournal(t)

	require.Error(t, journal.SaveRun(context.Background(), nil))
}

func TestDuckDBJournalPrune(t *testing.T) {
	journal := NewTestJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var newest string

	for i := range 4 {
		report := newTestReport(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, journal.SaveRun(ctx, report))

		newest = report.RunID
	}

	removed, err := journal.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	runs, err := journal.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, newest, runs[0].ID)

	stats, err := journal.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 3, stats.TotalOperations)

	removed, err = journal.Prune(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = journal.Prune(ctx, -1)
	require.Error(t, err)
}

func TestDuckDBJournalStatsAndClear(t *testing.T) {
	journal := NewTestJournal(t)
	ctx := context.Background()

	stats, err := journal.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRuns)
	assert.True(t, stats.LastRunAt.IsZero())

	startedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.SaveRun(ctx, newTestReport(startedAt)))
	require.NoError(t, journal.SaveRun(ctx, &orchestrator.Report{
		RunID:     uuid.New().String(),
		Schema:    "public",
		Database:  "default",
		StartedAt: startedAt.Add(-time.Hour),
		Results: []orchestrator.Result{
			{Phase: orchestrator.PhaseUntrack, Operation: "pg_untrack_table", Target: "order", Outcome: types.OutcomeSuccess},
		},
	}))

	stats, err = journal.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailedRuns)
	assert.Equal(t, 4, stats.TotalOperations)
	assert.WithinDuration(t, startedAt, stats.LastRunAt, time.Millisecond)
	assert.Positive(t, stats.SizeBytes)

	require.NoError(t, journal.Clear(ctx))

	runs, err := journal.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNewDuckDBJournalFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")

	journal, err := NewDuckDBJournalFromConfig(config.JournalConfig{Enabled: true, Path: path}, nil)
	require.NoError(t, err)

	defer journal.Close()

	assert.Equal(t, path, journal.Path())
	require.NoError(t, journal.Initialize(context.Background()))

	_, err = NewDuckDBJournalFromConfig(config.JournalConfig{}, nil)
	require.Error(t, err)
}

func TestDuckDBJournalCloseNil(t *testing.T) {
	var journal *DuckDBJournal

	assert.NoError(t, journal.Close())
}
