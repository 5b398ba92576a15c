package hasura

import (
	"context"
	"fmt"

	"github.com/kyleking/qik-trak/internal/config"
	qerrors "github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/types"
	"github.com/kyleking/qik-trak/internal/views"
)

const tablesSQL = `SELECT table_name FROM information_schema.tables WHERE table_schema = %[1]s
UNION
SELECT table_name FROM information_schema.views WHERE table_schema = %[1]s
ORDER BY table_name;`

const foreignKeysSQL = `SELECT tc.table_name, kcu.column_name, ccu.table_name AS foreign_table_name, ccu.column_name AS foreign_column_name
FROM information_schema.table_constraints AS tc
JOIN information_schema.key_column_usage AS kcu
  ON tc.constraint_name = kcu.constraint_name AND kcu.constraint_schema = %[1]s
JOIN information_schema.constraint_column_usage AS ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.constraint_schema = %[1]s
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = %[1]s
ORDER BY tc.table_name, kcu.column_name;`

// SQLRunner executes SQL and returns rows with a leading header row
type SQLRunner interface {
	RunSQL(ctx context.Context, statement string) ([][]string, error)
}

// Introspector lists tables and foreign keys through run_sql
type Introspector struct {
	runner SQLRunner
	schema string
}

// NewIntrospector creates an introspector for one schema
func NewIntrospector(runner SQLRunner, schema string) *Introspector {
	return &Introspector{runner: runner, schema: schema}
}

// TablesQuery returns the table listing statement for schema
func TablesQuery(schema string) (string, error) {
	literal, err := schemaLiteral(schema)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(tablesSQL, literal), nil
}

// ForeignKeysQuery returns the foreign key listing statement for schema
func ForeignKeysQuery(schema string) (string, error) {
	literal, err := schemaLiteral(schema)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(foreignKeysSQL, literal), nil
}

func schemaLiteral(schema string) (string, error) {
	if !config.IsIdentifier(schema) {
		return "", qerrors.Newf(qerrors.ErrTypeValidation, "invalid schema name %q", schema)
	}

	return views.QuoteLiteral(schema), nil
}

// ListTables returns every table and view in the schema, ordered by name
func (i *Introspector) ListTables(ctx context.Context) ([]types.SchemaTable, error) {
	query, err := TablesQuery(i.schema)
	if err != nil {
		return nil, err
	}

	rows, err := i.runner.RunSQL(ctx, query)
	if err != nil {
		return nil, err
	}

	tables := make([]types.SchemaTable, 0, len(rows))

	for n, row := range skipHeader(rows) {
		if len(row) < 1 {
			return nil, qerrors.Newf(qerrors.ErrTypeQuery, "table listing row %d is empty", n+1)
		}

		tables = append(tables, types.SchemaTable{Name: row[0]})
	}

	return tables, nil
}

// ListForeignKeys returns one edge per foreign key column in the schema
func (i *Introspector) ListForeignKeys(ctx context.Context) ([]types.ForeignKeyEdge, error) {
	query, err := ForeignKeysQuery(i.schema)
	if err != nil {
		return nil, err
	}

	rows, err := i.runner.RunSQL(ctx, query)
	if err != nil {
		return nil, err
	}

	edges := make([]types.ForeignKeyEdge, 0, len(rows))

	for n, row := range skipHeader(rows) {
		if len(row) < 4 {
			return nil, qerrors.Newf(qerrors.ErrTypeQuery, "foreign key row %d has %d columns, want 4", n+1, len(row))
		}

		edges = append(edges, types.ForeignKeyEdge{
			ReferencingTable:  row[0],
			ReferencingColumn: row[1],
			ReferencedTable:   row[2],
			ReferencedColumn:  row[3],
		})
	}

	return edges, nil
}

func skipHeader(rows [][]string) [][]string {
	if len(rows) == 0 {
		return nil
	}

	return rows[1:]
}
