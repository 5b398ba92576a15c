package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/qik-trak/internal/storage"
)

func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:        "stats",
		Usage:       "Display journal statistics",
		Description: `Show how many runs the journal holds, how many failed, when the last run happened and the journal size.`,
		Flags:       globalFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withJournal(ctx, cmd, func(journal storage.Journal) error {
				return runStats(ctx, outputWriter(cmd), journal)
			})
		},
	}
}

func runStats(ctx context.Context, w io.Writer, journal storage.Journal) error {
	stats, err := journal.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	fmt.Fprintf(w, "Journal Statistics\n")
	fmt.Fprintf(w, "==================\n\n")

	fmt.Fprintf(w, "Total Runs: %d\n", stats.TotalRuns)
	fmt.Fprintf(w, "Failed Runs: %d\n", stats.FailedRuns)
	fmt.Fprintf(w, "Recorded Operations: %d\n", stats.TotalOperations)
	fmt.Fprintf(w, "Journal Size: %.2f MB\n", float64(stats.SizeBytes)/(1024*1024))

	if !stats.LastRunAt.IsZero() {
		fmt.Fprintf(w, "Last Run: %s\n", stats.LastRunAt.Local().Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintf(w, "Last Run: Never\n")
	}

	return nil
}
