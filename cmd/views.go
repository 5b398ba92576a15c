package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/views"
)

func ViewsCommand() *cli.Command {
	return &cli.Command{
		Name:      "views",
		Usage:     "Print the SQL of JSON flattening views",
		ArgsUsage: "[view-file...]",
		Description: `Compile view specification files into CREATE OR REPLACE VIEW statements without
contacting the GraphQL engine. Without arguments the configured views are compiled.`,
		Flags: globalFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			files := cmd.Args().Slice()
			if len(files) == 0 {
				files = cfg.Views
			}

			return runViews(ctx, outputWriter(cmd), cfg.TargetSchema, files)
		},
	}
}

func runViews(_ context.Context, w io.Writer, schema string, files []string) error {
	if len(files) == 0 {
		return errors.New(errors.ErrTypeValidation, "no view files to compile").
			WithSuggestion("Pass view files as arguments or set views / JSON_VIEWS_FOLDER in the configuration")
	}

	specs, err := views.LoadFiles(files)
	if err != nil {
		return err
	}

	for i, spec := range specs {
		statement, err := views.Compile(schema, spec)
		if err != nil {
			return fmt.Errorf("view %s: %w", spec.Name, err)
		}

		if i > 0 {
			fmt.Fprintln(w)
		}

		fmt.Fprintf(w, "-- view: %s\n", spec.Name)

		if spec.Description != "" {
			fmt.Fprintf(w, "-- %s\n", spec.Description)
		}

		fmt.Fprint(w, statement)
	}

	return nil
}
