package cmd

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/orchestrator"
	"github.com/kyleking/qik-trak/internal/storage"
	"github.com/kyleking/qik-trak/internal/types"
)

func journaledReport(id string, startedAt time.Time, failed bool) *orchestrator.Report {
	report := &orchestrator.Report{
		RunID:      id,
		Schema:     "public",
		Database:   "default",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(2 * time.Second),
		Tables:     []string{"order", "customer"},
		Phases: []orchestrator.PhaseTiming{
			{Phase: orchestrator.PhaseUntrack, Duration: 300 * time.Millisecond},
			{Phase: orchestrator.PhaseTrackTables, Duration: 700 * time.Millisecond},
		},
		Results: []orchestrator.Result{
			{Phase: orchestrator.PhaseTrackTables, Operation: "pg_track_table", Target: "order", Outcome: types.OutcomeSuccess},
			{Phase: orchestrator.PhaseTrackTables, Operation: "pg_track_table", Target: "customer", Outcome: types.OutcomeIdempotent},
		},
	}

	if failed {
		report.Results = append(report.Results, orchestrator.Result{
			Phase: orchestrator.PhaseViews, Operation: "create_view", Target: "device_alert",
			Outcome: types.OutcomeFailed, Err: fmt.Errorf("syntax error at or near FROM"),
		})
	}

	return report
}

func seedJournal(t *testing.T, reports ...*orchestrator.Report) storage.Journal {
	t.Helper()

	journal := storage.NewTestJournal(t)

	for _, r := range reports {
		require.NoError(t, journal.SaveRun(context.Background(), r))
	}

	return journal
}

func TestRunHistoryList(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty journal", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, runHistoryList(ctx, &buf, seedJournal(t), 10))
		assert.Contains(t, buf.String(), "No runs recorded yet")
	})

	t.Run("lists newest first", func(t *testing.T) {
		journal := seedJournal(t,
			journaledReport("aaaaaaaa-1111", base, false),
			journaledReport("bbbbbbbb-2222", base.Add(time.Hour), true),
		)

		var buf bytes.Buffer

		require.NoError(t, runHistoryList(ctx, &buf, journal, 10))

		out := buf.String()
		assert.Contains(t, out, "ID")
		assert.Contains(t, out, orchestrator.StatusCompleted)
		assert.Contains(t, out, orchestrator.StatusCompletedWithFailures)
		assert.Less(t, strings.Index(out, "bbbbbbbb"), strings.Index(out, "aaaaaaaa"))
		assert.NotContains(t, out, "1111")
	})

	t.Run("respects limit", func(t *testing.T) {
		journal := seedJournal(t,
			journaledReport("aaaaaaaa-1111", base, false),
			journaledReport("bbbbbbbb-2222", base.Add(time.Hour), false),
		)

		var buf bytes.Buffer

		require.NoError(t, runHistoryList(ctx, &buf, journal, 1))
		assert.Contains(t, buf.String(), "bbbbbbbb")
		assert.NotContains(t, buf.String(), "aaaaaaaa")
	})
}

func TestRunHistoryDetail(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	journal := seedJournal(t, journaledReport("cccccccc-3333", base, true))

	t.Run("by prefix", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, runHistoryDetail(ctx, &buf, journal, "cccc"))

		out := buf.String()
		assert.Contains(t, out, "Run cccccccc-3333")
		assert.Contains(t, out, "Duration: 2s")
		assert.Contains(t, out, "Phases:")
		assert.Contains(t, out, string(orchestrator.PhaseTrackTables))
		assert.Contains(t, out, "Operations:")
		assert.Contains(t, out, "device_alert")
		assert.Contains(t, out, "syntax error at or near FROM")
	})

	t.Run("unknown run", func(t *testing.T) {
		var buf bytes.Buffer

		err := runHistoryDetail(ctx, &buf, journal, "ffff")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
		assert.NotEmpty(t, errors.Suggestions(err))
	})
}

func TestRunPrune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var reports []*orchestrator.Report
	for i := 0; i < 3; i++ {
		reports = append(reports, journaledReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour), false))
	}

	journal := seedJournal(t, reports...)

	var buf bytes.Buffer

	require.NoError(t, runPrune(ctx, &buf, journal, 1))
	assert.Contains(t, buf.String(), "Removed 2 runs, kept the latest 1.")

	runs, err := journal.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)

	err = runPrune(ctx, &buf, journal, -1)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestRunStats(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty journal", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, runStats(ctx, &buf, seedJournal(t)))
		assert.Contains(t, buf.String(), "Total Runs: 0")
		assert.Contains(t, buf.String(), "Last Run: Never")
	})

	t.Run("with runs", func(t *testing.T) {
		journal := seedJournal(t,
			journaledReport("run-1", base, false),
			journaledReport("run-2", base.Add(time.Hour), true),
		)

		var buf bytes.Buffer

		require.NoError(t, runStats(ctx, &buf, journal))

		out := buf.String()
		assert.Contains(t, out, "Total Runs: 2")
		assert.Contains(t, out, "Failed Runs: 1")
		assert.Contains(t, out, "Recorded Operations: 5")
		assert.NotContains(t, out, "Last Run: Never")
	})
}

func TestRunClear(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("already empty", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, runClear(ctx, &buf, strings.NewReader(""), seedJournal(t), false))
		assert.Contains(t, buf.String(), "Journal is already empty.")
	})

	t.Run("cancelled without confirmation", func(t *testing.T) {
		journal := seedJournal(t, journaledReport("run-1", base, false))

		var buf bytes.Buffer

		require.NoError(t, runClear(ctx, &buf, strings.NewReader("no\n"), journal, false))
		assert.Contains(t, buf.String(), "Operation cancelled.")

		stats, err := journal.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalRuns)
	})

	t.Run("confirmed", func(t *testing.T) {
		journal := seedJournal(t, journaledReport("run-1", base, false))

		var buf bytes.Buffer

		require.NoError(t, runClear(ctx, &buf, strings.NewReader("yes\n"), journal, false))
		assert.Contains(t, buf.String(), "Journal cleared successfully.")

		stats, err := journal.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalRuns)
	})

	t.Run("forced", func(t *testing.T) {
		journal := seedJournal(t, journaledReport("run-1", base, false))

		var buf bytes.Buffer

		require.NoError(t, runClear(ctx, &buf, strings.NewReader(""), journal, true))
		assert.NotContains(t, buf.String(), "Type 'yes'")
		assert.Contains(t, buf.String(), "Journal cleared successfully.")
	})
}
