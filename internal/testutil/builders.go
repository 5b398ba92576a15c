package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kyleking/qik-trak/internal/types"
	"github.com/kyleking/qik-trak/internal/views"
)

// EdgeOption is a functional option for configuring test foreign key edges
type EdgeOption func(*types.ForeignKeyEdge)

// WithReferencedColumn sets the referenced (primary key) column
func WithReferencedColumn(column string) EdgeOption {
	return func(e *types.ForeignKeyEdge) {
		e.ReferencedColumn = column
	}
}

// NewTestEdge creates a foreign key edge referencing the "id" column of referenced
func NewTestEdge(referencing, column, referenced string, opts ...EdgeOption) types.ForeignKeyEdge {
	edge := types.ForeignKeyEdge{
		ReferencingTable:  referencing,
		ReferencingColumn: column,
		ReferencedTable:   referenced,
		ReferencedColumn:  "id",
	}

	for _, opt := range opts {
		opt(&edge)
	}

	return edge
}

// NewTestTables creates schema tables with the given names, in order
func NewTestTables(names ...string) []types.SchemaTable {
	tables := make([]types.SchemaTable, len(names))
	for i, n := range names {
		tables[i] = types.SchemaTable{Name: n}
	}

	return tables
}

// ViewOption is a functional option for configuring test view specifications
type ViewOption func(*views.ViewSpec)

// WithViewDescription sets the view description
func WithViewDescription(desc string) ViewOption {
	return func(v *views.ViewSpec) {
		v.Description = desc
	}
}

// WithFrom sets the FROM fragment of the view body
func WithFrom(from string) ViewOption {
	return func(v *views.ViewSpec) {
		v.Query.From = from
	}
}

// WithWhere sets the WHERE fragment of the view body
func WithWhere(where string) ViewOption {
	return func(v *views.ViewSpec) {
		v.Query.Where = where
	}
}

// WithJSONValues casts the given values out of jsonColumn
func WithJSONValues(jsonColumn string, values ...views.JSONValue) ViewOption {
	return func(v *views.ViewSpec) {
		v.Columns = &views.JSONColumns{JSONColumn: jsonColumn, JSONValues: values}
	}
}

// WithViewRelationship appends a declared relationship
func WithViewRelationship(r views.ViewRelationship) ViewOption {
	return func(v *views.ViewSpec) {
		v.Relationships = append(v.Relationships, r)
	}
}

// NewTestView creates a minimal valid view selecting from the events table
func NewTestView(name string, opts ...ViewOption) views.ViewSpec {
	view := views.ViewSpec{
		Name: name,
		Query: views.Query{
			Select: "SELECT id,",
			From:   "FROM events",
		},
	}

	for _, opt := range opts {
		opt(&view)
	}

	return view
}

// WriteViewFile writes the views as a view specification document and returns its path
func WriteViewFile(t *testing.T, dir, name string, specs ...views.ViewSpec) string {
	t.Helper()

	data, err := json.MarshalIndent(views.File{Views: specs}, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal views: %v", err)
	}

	return WriteFile(t, dir, name, string(data))
}

// WriteFile writes content under dir and returns the full path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}

	return path
}
