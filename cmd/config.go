package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/qik-trak/internal/config"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display the active configuration",
		Description: `Show the configuration after merging defaults, the config file, the .env file,
environment variables and command-line flags. The admin secret and database password are masked.`,
		Flags: append(globalFlags(),
			&cli.BoolFlag{Name: "json", Usage: "print the configuration as JSON"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return runConfig(ctx, outputWriter(cmd), cfg, cmd.Bool("json"))
		},
	}
}

func runConfig(_ context.Context, w io.Writer, cfg *config.Config, asJSON bool) error {
	masked := cfg.Masked()

	if asJSON {
		data, err := json.MarshalIndent(masked, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}

		fmt.Fprintln(w, string(data))

		return nil
	}

	fmt.Fprintln(w, "====================")
	fmt.Fprintln(w, "Active Configuration:")

	fmt.Fprintln(w, "\nGraphQL engine:")
	fmt.Fprintf(w, "  Endpoint: %s\n", valueOrUnset(masked.HasuraEndpoint))
	fmt.Fprintf(w, "  Admin Secret: %s\n", valueOrUnset(masked.HasuraAdminSecret))
	fmt.Fprintf(w, "  Source: %s\n", masked.TargetDatabase)

	fmt.Fprintln(w, "\nSchema:")
	fmt.Fprintf(w, "  Name: %s\n", masked.TargetSchema)
	fmt.Fprintf(w, "  Key Column Suffix: %s\n", masked.KeyColumnSuffix)
	fmt.Fprintf(w, "  Naming Style: %s\n", masked.NamingStyle)

	if masked.DatabaseURL != "" {
		fmt.Fprintf(w, "  Introspection: %s\n", masked.DatabaseURL)
	} else {
		fmt.Fprintln(w, "  Introspection: run_sql")
	}

	ops := masked.Operations
	fmt.Fprintln(w, "\nOperations:")
	fmt.Fprintf(w, "  Untrack: %t\n", ops.Untrack)
	fmt.Fprintf(w, "  Execute SQL Scripts: %t\n", ops.ExecuteSQLScripts)
	fmt.Fprintf(w, "  Create JSON Views: %t\n", ops.CreateJSONViews)
	fmt.Fprintf(w, "  Track Tables: %t\n", ops.TrackTables)
	fmt.Fprintf(w, "  Track Relationships: %t\n", ops.TrackRelationships)

	fmt.Fprintln(w, "\nFiles:")
	printList(w, "Before Scripts", masked.Scripts.BeforeViews)
	printList(w, "Views", masked.Views)
	printList(w, "After Scripts", masked.Scripts.AfterViews)

	fmt.Fprintln(w, "\nRuntime:")
	fmt.Fprintf(w, "  Concurrency: %d\n", masked.Runtime.Concurrency)
	fmt.Fprintf(w, "  Startup Timeout: %s\n", masked.Runtime.StartupTimeout)
	fmt.Fprintf(w, "  Request Timeout: %s\n", masked.Runtime.RequestTimeout)
	fmt.Fprintf(w, "  Strict: %t\n", masked.Strict)
	fmt.Fprintf(w, "  Dump View SQL: %t\n", masked.DumpViewSQL)

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", masked.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", masked.Logging.Format)
	fmt.Fprintf(w, "  Output: %s\n", masked.Logging.Output)

	if masked.Logging.Output == "file" {
		fmt.Fprintf(w, "  File: %s\n", masked.Logging.File)
	}

	fmt.Fprintln(w, "\nJournal:")
	fmt.Fprintf(w, "  Enabled: %t\n", masked.Journal.Enabled)
	fmt.Fprintf(w, "  Path: %s\n", masked.Journal.Path)

	return nil
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(w, "  %s: none\n", label)
		return
	}

	fmt.Fprintf(w, "  %s:\n", label)

	for _, item := range items {
		fmt.Fprintf(w, "    - %s\n", item)
	}
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(not set)"
	}

	return v
}
