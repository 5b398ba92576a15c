package types

import (
	"fmt"
	"strings"
)

// SchemaTable is a table or view found in the target schema
type SchemaTable struct {
	Name string `json:"name"`
}

// ForeignKeyEdge is one column of a foreign key constraint
type ForeignKeyEdge struct {
	ReferencingTable  string `json:"referencingTable"`
	ReferencingColumn string `json:"referencingColumn"`
	ReferencedTable   string `json:"referencedTable"`
	ReferencedColumn  string `json:"referencedColumn"`
}

// Source records where a relationship descriptor came from
type Source string

const (
	SourceForeignKey Source = "foreign-key"
	SourceView       Source = "view"
)

// RelationshipDescriptor is the unit consumed by relationship tracking.
// The referencing side holds the key column, the referenced side is the "one" side.
type RelationshipDescriptor struct {
	ReferencingTable  string `json:"referencingTable"`
	ReferencingColumn string `json:"referencingColumn"`
	ReferencedTable   string `json:"referencedTable"`
	ReferencedColumn  string `json:"referencedColumn"`
	Source            Source `json:"source"`
}

// Descriptor converts a foreign key edge into a relationship descriptor
func (e ForeignKeyEdge) Descriptor() RelationshipDescriptor {
	return RelationshipDescriptor{
		ReferencingTable:  e.ReferencingTable,
		ReferencingColumn: e.ReferencingColumn,
		ReferencedTable:   e.ReferencedTable,
		ReferencedColumn:  e.ReferencedColumn,
		Source:            SourceForeignKey,
	}
}

// Validate checks that every table and column name is present
func (d RelationshipDescriptor) Validate() error {
	var missing []string

	if d.ReferencingTable == "" {
		missing = append(missing, "referencingTable")
	}

	if d.ReferencingColumn == "" {
		missing = append(missing, "referencingColumn")
	}

	if d.ReferencedTable == "" {
		missing = append(missing, "referencedTable")
	}

	if d.ReferencedColumn == "" {
		missing = append(missing, "referencedColumn")
	}

	if len(missing) > 0 {
		return fmt.Errorf("relationship %s is missing %s", d, strings.Join(missing, ", "))
	}

	return nil
}

// Key identifies the underlying column pair regardless of where the descriptor came from
func (d RelationshipDescriptor) Key() string {
	return d.ReferencingTable + "." + d.ReferencingColumn + "->" + d.ReferencedTable + "." + d.ReferencedColumn
}

func (d RelationshipDescriptor) String() string {
	return d.Key()
}

// TableNames returns the names of the given tables in order
func TableNames(tables []SchemaTable) []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}

	return names
}
