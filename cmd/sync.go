package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/qik-trak/internal/config"
	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/hasura"
	"github.com/kyleking/qik-trak/internal/logging"
	"github.com/kyleking/qik-trak/internal/orchestrator"
	"github.com/kyleking/qik-trak/internal/postgres"
	"github.com/kyleking/qik-trak/internal/types"
)

func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Rebuild tracking metadata for the target schema",
		Description: `Wait for the GraphQL engine, untrack every table in the schema, run the configured
SQL scripts and JSON views, then track every table and view and create object and array
relationships for each foreign key and declared view relationship.`,
		Flags: append(globalFlags(),
			&cli.BoolFlag{Name: "strict", Usage: "exit with an error when any item fails"},
			&cli.BoolFlag{Name: "no-wait", Usage: "skip the readiness wait"},
			&cli.IntFlag{Name: "concurrency", Usage: "metadata calls in flight per phase"},
			&cli.BoolFlag{Name: "journal", Usage: "record the run in the local journal"},
			&cli.BoolFlag{Name: "dump-sql", Usage: "log the SQL of every compiled view"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Logging)
			if err != nil {
				return errors.Wrap(err, errors.ErrTypeConfig, "failed to create logger")
			}

			defer logger.Close()

			return runSync(ctx, outputWriter(cmd), cfg, logger, hasura.NewClientFromConfig(cfg))
		},
	}
}

// runSync performs one synchronization through client and prints its summary to w
func runSync(ctx context.Context, w io.Writer, cfg *config.Config, logger *logging.Logger, client *hasura.Client) error {
	introspector, closeIntrospector, err := newIntrospector(ctx, cfg, client)
	if err != nil {
		return err
	}

	defer closeIntrospector()

	var gateway orchestrator.Gateway = client
	if isTerminal(os.Stderr) {
		gateway = &spinnerGateway{Gateway: client, out: os.Stderr, endpoint: client.Endpoint()}
	}

	report, runErr := orchestrator.New(cfg, gateway, introspector, logger).Run(ctx)

	if cfg.Journal.Enabled {
		recordRun(context.WithoutCancel(ctx), cfg, logger, report)
	}

	printSummary(w, report)

	if runErr != nil {
		return runErr
	}

	if cfg.Strict && report.HasFailures() {
		return errors.Newf(errors.ErrTypeMetadata, "%d items failed in strict mode", len(report.Failures())).
			WithSuggestion("Run with --log-level debug to see every metadata call").
			WithSuggestion("Inspect a journaled run with: qik-trak history --run " + shortID(report.RunID))
	}

	return nil
}

// newIntrospector uses a direct database connection when one is configured, run_sql otherwise
func newIntrospector(ctx context.Context, cfg *config.Config, client *hasura.Client) (orchestrator.Introspector, func(), error) {
	if cfg.DatabaseURL == "" {
		return hasura.NewIntrospector(client, cfg.TargetSchema), func() {}, nil
	}

	if err := client.RequireCredentials(); err != nil {
		return nil, nil, err
	}

	pg, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.TargetSchema)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to connect for introspection").
			WithSuggestion("Check databaseUrl / DATABASE_URL, or unset it to introspect through the GraphQL engine")
	}

	return pg, func() { _ = pg.Close() }, nil
}

// recordRun stores the report in the journal; journal problems never fail the run
func recordRun(ctx context.Context, cfg *config.Config, logger *logging.Logger, report *orchestrator.Report) {
	journal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Run journal unavailable")
		return
	}

	defer journal.Close()

	if err := journal.SaveRun(ctx, report); err != nil {
		logger.WithError(err).Warn("Failed to record run in journal")
	}
}

// spinnerGateway shows a spinner while the engine is not ready yet
type spinnerGateway struct {
	orchestrator.Gateway
	out      io.Writer
	endpoint string
}

func (g *spinnerGateway) WaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return g.Gateway.WaitReady(ctx, timeout)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(g.out))
	s.Suffix = " Waiting for " + g.endpoint
	s.Start()

	defer s.Stop()

	return g.Gateway.WaitReady(ctx, timeout)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printSummary writes the counts and every failure of a run
func printSummary(w io.Writer, report *orchestrator.Report) {
	if report == nil {
		return
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	bold := color.New(color.Bold)

	status := report.Status()

	statusColor := green
	switch status {
	case orchestrator.StatusCompletedWithFailures:
		statusColor = yellow
	case orchestrator.StatusFailed:
		statusColor = red
	}

	_, _ = bold.Fprintf(w, "Synchronization ")
	_, _ = statusColor.Fprintf(w, "%s", status)
	fmt.Fprintf(w, " in %s (run %s)\n", report.Duration().Round(time.Millisecond), shortID(report.RunID))

	fmt.Fprintf(w, "  Schema: %s  Source: %s\n", report.Schema, report.Database)
	fmt.Fprintf(w, "  Tables: %d  Foreign keys: %d  Views: %d  Relationships: %d\n",
		len(report.Tables), report.ForeignKeys, len(report.Views), report.Relationships)
	fmt.Fprintf(w, "  Succeeded: %d  Already in place: %d  Failed: %d  Skipped: %d\n",
		report.Count(types.OutcomeSuccess), report.Count(types.OutcomeIdempotent),
		report.Count(types.OutcomeFailed), report.Count(types.OutcomeSkipped))

	if report.Fatal != nil {
		_, _ = red.Fprintf(w, "\nAborted: %v\n", report.Fatal)
	}

	failures := report.Failures()
	if len(failures) == 0 {
		return
	}

	fmt.Fprintln(w, "\nFailures:")

	for _, f := range failures {
		_, _ = red.Fprintf(w, "  ✗ ")
		fmt.Fprintf(w, "[%s] %s %s: %v\n", f.Phase, f.Operation, f.Target, f.Err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}
