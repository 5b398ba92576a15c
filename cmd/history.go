package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/logging"
	"github.com/kyleking/qik-trak/internal/storage"
)

const defaultHistoryLimit = 20

func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect journaled synchronization runs",
		Description: `List recent runs recorded in the local journal, or show the phases and every
item result of one run with --run. Run IDs may be abbreviated to any unique prefix.`,
		Flags: append(globalFlags(),
			&cli.IntFlag{Name: "limit", Value: defaultHistoryLimit, Usage: "maximum number of runs to list"},
			&cli.StringFlag{Name: "run", Usage: "show the details of one run"},
		),
		Commands: []*cli.Command{
			StatsCommand(),
			PruneCommand(),
			ClearCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withJournal(ctx, cmd, func(journal storage.Journal) error {
				w := outputWriter(cmd)

				if id := cmd.String("run"); id != "" {
					return runHistoryDetail(ctx, w, journal, id)
				}

				return runHistoryList(ctx, w, journal, int(cmd.Int("limit")))
			})
		},
	}
}

// withJournal opens the configured journal for the duration of fn
func withJournal(ctx context.Context, cmd *cli.Command, fn func(storage.Journal) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	journal, err := openJournal(ctx, cfg, logging.Nop())
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeFileSystem, "failed to open run journal").
			WithSuggestion("Check journal.path / QIKTRAK_JOURNAL_PATH")
	}

	defer journal.Close()

	return fn(journal)
}

func runHistoryList(ctx context.Context, w io.Writer, journal storage.Journal, limit int) error {
	runs, err := journal.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet. Run 'qik-trak sync' with journaling enabled.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Started", "Status", "Schema", "Succeeded", "Idempotent", "Failed", "Duration"})

	for _, run := range runs {
		t.AppendRow(table.Row{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Status,
			run.Schema,
			run.Succeeded,
			run.Idempotent,
			run.Failed,
			run.Duration().Round(time.Millisecond),
		})
	}

	t.Render()

	return nil
}

func runHistoryDetail(ctx context.Context, w io.Writer, journal storage.Journal, idPrefix string) error {
	run, err := journal.GetRun(ctx, idPrefix)
	if err != nil {
		if stderrors.Is(err, storage.ErrRunNotFound) {
			return errors.Newf(errors.ErrTypeValidation, "no journaled run matches %q", idPrefix).
				WithSuggestion("List recent runs with: qik-trak history")
		}

		return fmt.Errorf("failed to load run: %w", err)
	}

	ops, err := journal.ListOperations(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load operations: %w", err)
	}

	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  Status: %s\n", run.Status)
	fmt.Fprintf(w, "  Started: %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Duration: %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Schema: %s  Source: %s\n", run.Schema, run.Database)
	fmt.Fprintf(w, "  Tables: %d  Foreign keys: %d  Views: %d  Relationships: %d\n",
		run.Tables, run.ForeignKeys, run.Views, run.Relationships)

	if run.FatalError != "" {
		fmt.Fprintf(w, "  Aborted: %s\n", run.FatalError)
	}

	if len(run.Phases) > 0 {
		fmt.Fprintln(w, "\nPhases:")

		pt := table.NewWriter()
		pt.SetOutputMirror(w)
		pt.SetStyle(table.StyleLight)
		pt.AppendHeader(table.Row{"Phase", "Duration"})

		for _, p := range run.Phases {
			pt.AppendRow(table.Row{p.Phase, p.Duration.Round(time.Millisecond)})
		}

		pt.Render()
	}

	if len(ops) == 0 {
		return nil
	}

	fmt.Fprintln(w, "\nOperations:")

	ot := table.NewWriter()
	ot.SetOutputMirror(w)
	ot.SetStyle(table.StyleLight)
	ot.AppendHeader(table.Row{"#", "Phase", "Operation", "Target", "Outcome", "Message"})

	for _, op := range ops {
		ot.AppendRow(table.Row{op.Seq, op.Phase, op.Operation, op.Target, op.Outcome, op.Message})
	}

	ot.Render()

	return nil
}

func PruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete all but the most recent runs",
		Flags: append(globalFlags(),
			&cli.IntFlag{Name: "keep", Value: defaultHistoryLimit, Usage: "number of runs to keep"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withJournal(ctx, cmd, func(journal storage.Journal) error {
				return runPrune(ctx, outputWriter(cmd), journal, int(cmd.Int("keep")))
			})
		},
	}
}

func runPrune(ctx context.Context, w io.Writer, journal storage.Journal, keep int) error {
	if keep < 0 {
		return errors.New(errors.ErrTypeValidation, "--keep must not be negative")
	}

	removed, err := journal.Prune(ctx, keep)
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}

	fmt.Fprintf(w, "Removed %d runs, kept the latest %d.\n", removed, keep)

	return nil
}
