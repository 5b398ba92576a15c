package storage

import (
	"fmt"

	"github.com/kyleking/qik-trak/internal/config"
	"github.com/kyleking/qik-trak/internal/logging"
)

// NewDuckDBJournalFromConfig opens the journal configured in cfg
func NewDuckDBJournalFromConfig(cfg config.JournalConfig, logger *logging.Logger) (*DuckDBJournal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	journal, err := NewDuckDBJournal(config.ExpandPath(cfg.Path))
	if err != nil {
		return nil, err
	}

	if logger != nil {
		journal.logger = logger
	}

	return journal, nil
}
