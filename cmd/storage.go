package cmd

import (
	"context"
	"fmt"

	"github.com/kyleking/qik-trak/internal/config"
	"github.com/kyleking/qik-trak/internal/logging"
	"github.com/kyleking/qik-trak/internal/storage"
)

// openJournal opens and migrates the run journal configured in cfg
func openJournal(ctx context.Context, cfg *config.Config, logger *logging.Logger) (storage.Journal, error) {
	journal, err := storage.NewDuckDBJournalFromConfig(cfg.Journal, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := journal.Initialize(ctx); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	return journal, nil
}
