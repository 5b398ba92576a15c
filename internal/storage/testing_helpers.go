package storage

import (
	"context"
	"path/filepath"
	"testing"
)

// NewTestJournal creates an initialized journal in a temporary directory.
// The journal is closed when the test finishes.
func NewTestJournal(t *testing.T) *DuckDBJournal {
	t.Helper()

	journal, err := NewDuckDBJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to create test journal: %v", err)
	}

	if err := journal.Initialize(context.Background()); err != nil {
		_ = journal.Close()
		t.Fatalf("failed to initialize test journal: %v", err)
	}

	t.Cleanup(func() {
		if err := journal.Close(); err != nil {
			t.Errorf("failed to close test journal: %v", err)
		}
	})

	return journal
}
