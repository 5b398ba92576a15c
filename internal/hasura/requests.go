package hasura

import (
	"github.com/kyleking/qik-trak/internal/types"
)

// Metadata operation types
const (
	OpUntrackTable             = "pg_untrack_table"
	OpTrackTable               = "pg_track_table"
	OpCreateObjectRelationship = "pg_create_object_relationship"
	OpCreateArrayRelationship  = "pg_create_array_relationship"
	OpRunSQL                   = "run_sql"
)

// Request is the envelope shared by /v1/metadata and /v2/query
type Request struct {
	Type string      `json:"type"`
	Args interface{} `json:"args"`
}

// TableRef names a table within a source
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// RunSQLArgs are the arguments of run_sql
type RunSQLArgs struct {
	Source string `json:"source"`
	SQL    string `json:"sql"`
}

// UntrackTableArgs are the arguments of pg_untrack_table
type UntrackTableArgs struct {
	Source  string   `json:"source"`
	Table   TableRef `json:"table"`
	Cascade bool     `json:"cascade"`
}

// TrackTableArgs are the arguments of pg_track_table
type TrackTableArgs struct {
	Source        string              `json:"source"`
	Table         TableRef            `json:"table"`
	Configuration *TableConfiguration `json:"configuration,omitempty"`
}

// TableConfiguration customizes how a tracked table is exposed
type TableConfiguration struct {
	CustomName string `json:"custom_name,omitempty"`
}

// RelationshipArgs are the arguments of both relationship create operations
type RelationshipArgs struct {
	Source string            `json:"source"`
	Table  TableRef          `json:"table"`
	Name   string            `json:"name"`
	Using  RelationshipUsing `json:"using"`
}

// RelationshipUsing selects a foreign key constraint or a manual column mapping
type RelationshipUsing struct {
	ForeignKeyConstraintOn interface{}          `json:"foreign_key_constraint_on,omitempty"`
	ManualConfiguration    *ManualConfiguration `json:"manual_configuration,omitempty"`
}

// ArrayForeignKey points an array relationship at the referencing table's key column
type ArrayForeignKey struct {
	Table  TableRef `json:"table"`
	Column string   `json:"column"`
}

// ManualConfiguration maps columns for relationships without a constraint, such as views
type ManualConfiguration struct {
	RemoteTable   TableRef          `json:"remote_table"`
	ColumnMapping map[string]string `json:"column_mapping"`
}

// NewUntrackTableArgs builds pg_untrack_table arguments; dependent metadata is removed too
func NewUntrackTableArgs(source, schema, table string) UntrackTableArgs {
	return UntrackTableArgs{
		Source:  source,
		Table:   TableRef{Schema: schema, Name: table},
		Cascade: true,
	}
}

// NewTrackTableArgs builds pg_track_table arguments exposing the table under its own name
func NewTrackTableArgs(source, schema, table string) TrackTableArgs {
	return TrackTableArgs{
		Source:        source,
		Table:         TableRef{Schema: schema, Name: table},
		Configuration: &TableConfiguration{CustomName: table},
	}
}

// NewObjectRelationshipArgs builds the many-to-one relationship kept on the referencing table
func NewObjectRelationshipArgs(source, schema, name string, d types.RelationshipDescriptor) RelationshipArgs {
	args := RelationshipArgs{
		Source: source,
		Table:  TableRef{Schema: schema, Name: d.ReferencingTable},
		Name:   name,
	}

	if d.Source == types.SourceView {
		args.Using.ManualConfiguration = &ManualConfiguration{
			RemoteTable:   TableRef{Schema: schema, Name: d.ReferencedTable},
			ColumnMapping: map[string]string{d.ReferencingColumn: d.ReferencedColumn},
		}
	} else {
		args.Using.ForeignKeyConstraintOn = d.ReferencingColumn
	}

	return args
}

// NewArrayRelationshipArgs builds the one-to-many relationship kept on the referenced table
func NewArrayRelationshipArgs(source, schema, name string, d types.RelationshipDescriptor) RelationshipArgs {
	args := RelationshipArgs{
		Source: source,
		Table:  TableRef{Schema: schema, Name: d.ReferencedTable},
		Name:   name,
	}

	if d.Source == types.SourceView {
		args.Using.ManualConfiguration = &ManualConfiguration{
			RemoteTable:   TableRef{Schema: schema, Name: d.ReferencingTable},
			ColumnMapping: map[string]string{d.ReferencedColumn: d.ReferencingColumn},
		}
	} else {
		args.Using.ForeignKeyConstraintOn = ArrayForeignKey{
			Table:  TableRef{Schema: schema, Name: d.ReferencingTable},
			Column: d.ReferencingColumn,
		}
	}

	return args
}
