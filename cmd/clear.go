package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/qik-trak/internal/storage"
)

func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:        "clear",
		Usage:       "Delete every journaled run",
		Description: `Remove all runs and operations from the journal. This action requires confirmation.`,
		Flags: append(globalFlags(),
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "skip confirmation prompt"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withJournal(ctx, cmd, func(journal storage.Journal) error {
				return runClear(ctx, outputWriter(cmd), os.Stdin, journal, cmd.Bool("force"))
			})
		},
	}
}

func runClear(ctx context.Context, w io.Writer, in io.Reader, journal storage.Journal, force bool) error {
	stats, err := journal.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	if stats.TotalRuns == 0 {
		fmt.Fprintln(w, "Journal is already empty.")
		return nil
	}

	fmt.Fprintf(w, "This will delete:\n")
	fmt.Fprintf(w, "  • %d runs\n", stats.TotalRuns)
	fmt.Fprintf(w, "  • %d recorded operations\n", stats.TotalOperations)

	if !force {
		fmt.Fprintf(w, "\nAre you sure you want to clear the journal? This action cannot be undone.\n")
		fmt.Fprintf(w, "Type 'yes' to confirm: ")

		reader := bufio.NewReader(in)

		response, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Fprintln(w, "Operation cancelled.")
			return nil
		}
	}

	if err := journal.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}

	fmt.Fprintln(w, "Journal cleared successfully.")

	return nil
}
