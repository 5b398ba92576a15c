package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/qik-trak/internal/config"
	"github.com/kyleking/qik-trak/internal/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// NewRootCommand builds the qik-trak command tree
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "qik-trak",
		Usage: "Track the tables, views and relationships of a Postgres schema in Hasura",
		Description: `qik-trak rebuilds GraphQL engine metadata for one database schema: it untracks every
table, runs SQL scripts, materializes JSON flattening views, then tracks every table and
creates object and array relationships from foreign keys and view declarations.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			SyncCommand(),
			ViewsCommand(),
			ConfigCommand(),
			HistoryCommand(),
		},
	}
}

// Execute runs the CLI with the process arguments; Ctrl-C cancels the running command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().Run(ctx, os.Args)
	if err != nil {
		printError(os.Stderr, err)
	}

	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	if suggestions := errors.Suggestions(err); len(suggestions) > 0 {
		fmt.Fprintln(w, "\nSuggestions:")

		for _, s := range suggestions {
			fmt.Fprintf(w, "  • %s\n", s)
		}
	}
}

// globalFlags are accepted by every command that loads configuration
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "JSON config file (default: ./" + config.DefaultConfigFile + ")"},
		&cli.StringFlag{Name: "env-file", Usage: "dotenv file loaded into the environment (default: ./" + config.DefaultEnvFile + ")"},
		&cli.StringFlag{Name: "endpoint", Usage: "GraphQL engine base URL"},
		&cli.StringFlag{Name: "admin-secret", Usage: "GraphQL engine admin secret"},
		&cli.StringFlag{Name: "schema", Usage: "database schema to track"},
		&cli.StringFlag{Name: "database", Usage: "metadata source name"},
		&cli.StringFlag{Name: "database-url", Usage: "Postgres URL used for introspection instead of run_sql"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.BoolFlag{Name: "silent", Usage: "disable log output"},
	}
}

var (
	stringOverrides = []string{"config", "env-file", "endpoint", "admin-secret", "schema", "database", "database-url", "log-level"}
	boolOverrides   = []string{"silent", "strict", "no-wait", "journal", "dump-sql"}
)

// flagOverrides collects the flags the user actually set
func flagOverrides(cmd *cli.Command) map[string]interface{} {
	overrides := make(map[string]interface{})

	for _, name := range stringOverrides {
		if cmd.IsSet(name) {
			overrides[name] = cmd.String(name)
		}
	}

	for _, name := range boolOverrides {
		if cmd.IsSet(name) {
			overrides[name] = cmd.Bool(name)
		}
	}

	if cmd.IsSet("concurrency") {
		overrides["concurrency"] = int(cmd.Int("concurrency"))
	}

	return overrides
}

// loadConfig resolves the configuration for cmd and expands every path in it
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigWithOverrides(flagOverrides(cmd))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration")
	}

	cfg.ExpandAllPaths()

	return cfg, nil
}

// outputWriter returns where command output goes
func outputWriter(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}

	return os.Stdout
}
