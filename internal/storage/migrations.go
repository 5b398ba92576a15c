package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/kyleking/qik-trak/internal/logging"
)

// Migration represents a journal schema migration
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationManager handles journal schema migrations
type MigrationManager struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewMigrationManager creates a new migration manager. A nil logger discards output.
func NewMigrationManager(db *sql.DB, logger *logging.Logger) *MigrationManager {
	if logger == nil {
		logger = logging.Nop()
	}

	return &MigrationManager{db: db, logger: logger}
}

// GetMigrations returns all available migrations in order
func (m *MigrationManager) GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create runs and operations",
			Up: `
				CREATE TABLE IF NOT EXISTS runs (
					id VARCHAR PRIMARY KEY,
					started_at TIMESTAMP NOT NULL,
					finished_at TIMESTAMP,
					schema_name VARCHAR NOT NULL,
					database_name VARCHAR NOT NULL,
					status VARCHAR NOT NULL,
					tables_count INTEGER DEFAULT 0,
					foreign_keys_count INTEGER DEFAULT 0,
					views_count INTEGER DEFAULT 0,
					relationships_count INTEGER DEFAULT 0,
					succeeded INTEGER DEFAULT 0,
					idempotent INTEGER DEFAULT 0,
					failed INTEGER DEFAULT 0,
					skipped INTEGER DEFAULT 0,
					fatal_error VARCHAR
				);

				CREATE TABLE IF NOT EXISTS operations (
					id VARCHAR PRIMARY KEY,
					run_id VARCHAR NOT NULL,
					seq INTEGER NOT NULL,
					phase VARCHAR NOT NULL,
					operation VARCHAR NOT NULL,
					target VARCHAR NOT NULL,
					outcome VARCHAR NOT NULL,
					message VARCHAR,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
				CREATE INDEX IF NOT EXISTS idx_operations_run_id ON operations(run_id);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_operations_run_id;
				DROP INDEX IF EXISTS idx_runs_started_at;
				DROP TABLE IF EXISTS operations;
				DROP TABLE IF EXISTS runs;
			`,
		},
		{
			Version:     2,
			Description: "Record phase timings",
			Up: `
				CREATE TABLE IF NOT EXISTS phase_timings (
					run_id VARCHAR NOT NULL,
					seq INTEGER NOT NULL,
					phase VARCHAR NOT NULL,
					duration_ms BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_phase_timings_run_id ON phase_timings(run_id);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_phase_timings_run_id;
				DROP TABLE IF EXISTS phase_timings;
			`,
		},
	}
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	_, err := m.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	query := "SELECT version FROM schema_migrations ORDER BY version"

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	defer rows.Close()

	var versions []int

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// IsMigrationApplied checks if a specific migration version has been applied
func (m *MigrationManager) IsMigrationApplied(ctx context.Context, version int) (bool, error) {
	query := "SELECT COUNT(*) FROM schema_migrations WHERE version = ?"

	var count int

	err := m.db.QueryRowContext(ctx, query, version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}

	return count > 0, nil
}

// ApplyMigration applies a single migration
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	applied, err := m.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}

	if applied {
		return fmt.Errorf("migration %d already applied", migration.Version)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, migration.Up)
	if err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		migration.Version, migration.Description)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// RollbackMigration rolls back a single migration
func (m *MigrationManager) RollbackMigration(ctx context.Context, migration Migration) error {
	applied, err := m.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}

	if !applied {
		return fmt.Errorf("migration %d not applied", migration.Version)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, migration.Down)
	if err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", migration.Version)
	if err != nil {
		return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations
func (m *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	appliedMap := make(map[int]bool)
	for _, version := range appliedVersions {
		appliedMap[version] = true
	}

	migrations := m.GetMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if appliedMap[migration.Version] {
			continue
		}

		m.logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying journal migration")

		if err := m.ApplyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// MigrateDown rolls back migrations to a specific version
func (m *MigrationManager) MigrateDown(ctx context.Context, targetVersion int) error {
	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	migrationMap := make(map[int]Migration)
	for _, migration := range m.GetMigrations() {
		migrationMap[migration.Version] = migration
	}

	sort.Sort(sort.Reverse(sort.IntSlice(appliedVersions)))

	for _, version := range appliedVersions {
		if version <= targetVersion {
			break
		}

		migration, exists := migrationMap[version]
		if !exists {
			return fmt.Errorf("migration %d not found", version)
		}

		m.logger.WithField("version", version).Debug("Rolling back journal migration")

		if err := m.RollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", version, err)
		}
	}

	return nil
}

// GetMigrationStatus returns the current migration status
func (m *MigrationManager) GetMigrationStatus(ctx context.Context) (map[int]MigrationStatus, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	defer rows.Close()

	appliedAt := make(map[int]time.Time)

	for rows.Next() {
		var (
			version int
			at      sql.NullTime
		)

		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}

		appliedAt[version] = at.Time
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	status := make(map[int]MigrationStatus)

	for _, migration := range m.GetMigrations() {
		at, applied := appliedAt[migration.Version]
		status[migration.Version] = MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     applied,
			AppliedAt:   at,
		}
	}

	return status, nil
}

// LatestVersion returns the highest known migration version
func (m *MigrationManager) LatestVersion() int {
	latest := 0

	for _, migration := range m.GetMigrations() {
		if migration.Version > latest {
			latest = migration.Version
		}
	}

	return latest
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
}
