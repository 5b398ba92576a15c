// Package views compiles declarative JSON flattening view specifications into SQL.
package views

import (
	"encoding/json"
	"os"

	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/types"
)

// ViewSpec describes a view that surfaces JSON values as typed SQL columns
type ViewSpec struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Query         Query              `json:"query"`
	Columns       *JSONColumns       `json:"columns,omitempty"`
	Relationships []ViewRelationship `json:"relationships,omitempty"`
}

// Query holds the SQL fragments of the view body, each including its keyword
type Query struct {
	Select  string `json:"select"`
	From    string `json:"from"`
	Join    string `json:"join"`
	Where   string `json:"where"`
	OrderBy string `json:"orderBy"`
}

// JSONColumns lists the values cast out of a JSON column
type JSONColumns struct {
	JSONColumn string      `json:"jsonColumn"`
	JSONValues []JSONValue `json:"jsonValues"`
}

// JSONValue maps one JSON key to a typed SQL column
type JSONValue struct {
	JSONName string `json:"jsonName"`
	SQLName  string `json:"sqlName"`
	SQLType  string `json:"sqlType"`
}

// ViewRelationship declares a relationship involving the view. The side left empty
// is the view itself: without referencingTable the view holds the key column,
// without referencedTable the view is the referenced side.
type ViewRelationship struct {
	ReferencingTable  string `json:"referencingTable,omitempty"`
	ReferencingColumn string `json:"referencingColumn"`
	ReferencedTable   string `json:"referencedTable,omitempty"`
	ReferencedColumn  string `json:"referencedColumn"`
}

// File is the on-disk view specification document
type File struct {
	Views []ViewSpec `json:"views"`
}

// Validate checks the fields the compiler relies on
func (v ViewSpec) Validate() error {
	if v.Name == "" {
		return errors.New(errors.ErrTypeValidation, "view name is required")
	}

	if v.Query.Select == "" || v.Query.From == "" {
		return errors.Newf(errors.ErrTypeValidation, "view %q needs query.select and query.from", v.Name)
	}

	if v.Columns != nil {
		if v.Columns.JSONColumn == "" && len(v.Columns.JSONValues) > 0 {
			return errors.Newf(errors.ErrTypeValidation, "view %q declares jsonValues without a jsonColumn", v.Name)
		}

		for i, jv := range v.Columns.JSONValues {
			if jv.JSONName == "" || jv.SQLName == "" || jv.SQLType == "" {
				return errors.Newf(errors.ErrTypeValidation,
					"view %q jsonValues[%d] needs jsonName, sqlName and sqlType", v.Name, i)
			}
		}
	}

	return nil
}

// ExtractRelationships returns one descriptor per declared relationship, tagged as view-sourced
func ExtractRelationships(v ViewSpec) ([]types.RelationshipDescriptor, error) {
	out := make([]types.RelationshipDescriptor, 0, len(v.Relationships))

	for i, r := range v.Relationships {
		d := types.RelationshipDescriptor{
			ReferencingTable:  r.ReferencingTable,
			ReferencingColumn: r.ReferencingColumn,
			ReferencedTable:   r.ReferencedTable,
			ReferencedColumn:  r.ReferencedColumn,
			Source:            types.SourceView,
		}

		switch {
		case d.ReferencingTable == "" && d.ReferencedTable == "":
			return nil, errors.Newf(errors.ErrTypeValidation,
				"view %q relationships[%d] must name the other table", v.Name, i)
		case d.ReferencingTable == "":
			d.ReferencingTable = v.Name
		case d.ReferencedTable == "":
			d.ReferencedTable = v.Name
		case d.ReferencingTable != v.Name && d.ReferencedTable != v.Name:
			return nil, errors.Newf(errors.ErrTypeValidation,
				"view %q relationships[%d] does not involve the view", v.Name, i)
		}

		if err := d.Validate(); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeValidation, "view %q relationships[%d]", v.Name, i)
		}

		out = append(out, d)
	}

	return out, nil
}

// LoadFile reads a view specification document. A bare view object is accepted too.
func LoadFile(path string) ([]ViewSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeFileSystem, "failed to read view file %s", path)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeValidation, "failed to parse view file %s", path)
	}

	if file.Views == nil {
		var single ViewSpec
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeValidation, "failed to parse view file %s", path)
		}

		if single.Name == "" {
			return nil, errors.Newf(errors.ErrTypeValidation, "view file %s contains no views", path)
		}

		file.Views = []ViewSpec{single}
	}

	for _, v := range file.Views {
		if err := v.Validate(); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeValidation, "invalid view in %s", path).
				WithSuggestion("Check the view name and its query.select and query.from fragments")
		}
	}

	return file.Views, nil
}

// LoadFiles loads every file in order and concatenates their views
func LoadFiles(paths []string) ([]ViewSpec, error) {
	var all []ViewSpec

	for _, p := range paths {
		specs, err := LoadFile(p)
		if err != nil {
			return nil, err
		}

		all = append(all, specs...)
	}

	return all, nil
}
