// Package postgres introspects the target schema directly over a database connection,
// binding the schema name as a query parameter.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/types"
)

const tablesQuery = `
	SELECT table_name FROM information_schema.tables WHERE table_schema = $1
	UNION
	SELECT table_name FROM information_schema.views WHERE table_schema = $1
	ORDER BY table_name
`

const foreignKeysQuery = `
	SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
	FROM information_schema.table_constraints AS tc
	JOIN information_schema.key_column_usage AS kcu
	  ON tc.constraint_name = kcu.constraint_name AND kcu.constraint_schema = $1
	JOIN information_schema.constraint_column_usage AS ccu
	  ON ccu.constraint_name = tc.constraint_name AND ccu.constraint_schema = $1
	WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
	ORDER BY tc.table_name, kcu.column_name
`

// Introspector lists tables and foreign keys of one schema
type Introspector struct {
	db     *sql.DB
	schema string
}

// Open connects to databaseURL with the pgx driver
func Open(ctx context.Context, databaseURL, schema string) (*Introspector, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open postgres connection")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to ping postgres").
			WithSuggestion("Check that the database is reachable at databaseUrl")
	}

	return New(db, schema), nil
}

// New wraps an existing connection
func New(db *sql.DB, schema string) *Introspector {
	return &Introspector{db: db, schema: schema}
}

// Close releases the connection
func (i *Introspector) Close() error {
	if i.db == nil {
		return nil
	}

	return i.db.Close()
}

// ListTables returns every table and view in the schema, ordered by name
func (i *Introspector) ListTables(ctx context.Context) ([]types.SchemaTable, error) {
	rows, err := i.db.QueryContext(ctx, tablesQuery, i.schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to query tables")
	}
	defer func() { _ = rows.Close() }()

	var tables []types.SchemaTable

	for rows.Next() {
		var t types.SchemaTable
		if err := rows.Scan(&t.Name); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan table name")
		}

		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "error iterating tables")
	}

	return tables, nil
}

// ListForeignKeys returns one edge per foreign key column in the schema
func (i *Introspector) ListForeignKeys(ctx context.Context) ([]types.ForeignKeyEdge, error) {
	rows, err := i.db.QueryContext(ctx, foreignKeysQuery, i.schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to query foreign keys")
	}
	defer func() { _ = rows.Close() }()

	var edges []types.ForeignKeyEdge

	for rows.Next() {
		var e types.ForeignKeyEdge
		if err := rows.Scan(&e.ReferencingTable, &e.ReferencingColumn, &e.ReferencedTable, &e.ReferencedColumn); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan foreign key")
		}

		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "error iterating foreign keys")
	}

	return edges, nil
}
