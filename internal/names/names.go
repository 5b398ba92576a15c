// Package names derives relationship names from relationship descriptors.
//
// The object relationship lives on the referencing table and is named after the
// key column without its identifier suffix (order.customer_id -> order.customer).
// The array relationship lives on the referenced table and is named after the
// referencing table (customer.order).
package names

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/types"
)

// DefaultKeyColumnSuffix is used when no suffix is configured
const DefaultKeyColumnSuffix = "_id"

// Style controls how derived names are rendered
type Style string

const (
	StyleSnake Style = "snake"
	StyleCamel Style = "camel"
)

// Policy derives relationship names
type Policy struct {
	Suffix string
	Style  Style
}

// NewPolicy creates a naming policy, filling an empty suffix with the default
func NewPolicy(suffix string, style Style) Policy {
	if suffix == "" {
		suffix = DefaultKeyColumnSuffix
	}

	if style == "" {
		style = StyleSnake
	}

	return Policy{Suffix: suffix, Style: style}
}

// StripSuffix removes one trailing occurrence of suffix from column
func StripSuffix(column, suffix string) string {
	if suffix == "" {
		return column
	}

	return strings.TrimSuffix(column, suffix)
}

// ObjectRelationshipName names the many-to-one side, kept on d.ReferencingTable
func (p Policy) ObjectRelationshipName(d types.RelationshipDescriptor) string {
	return p.render(StripSuffix(d.ReferencingColumn, p.Suffix))
}

// ArrayRelationshipName names the one-to-many side, kept on d.ReferencedTable
func (p Policy) ArrayRelationshipName(d types.RelationshipDescriptor) string {
	return p.render(d.ReferencingTable)
}

func (p Policy) render(name string) string {
	if p.Style == StyleCamel && name != "" {
		return CamelCase(name)
	}

	return name
}

// CamelCase converts snake or kebab case to lower camel case (foreign_key_name -> foreignKeyName)
func CamelCase(input string) string {
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})

	var b strings.Builder

	for i, w := range words {
		if i == 0 {
			b.WriteString(w)
			continue
		}

		r, size := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(w[size:])
	}

	return b.String()
}

// Registry claims relationship names per table and reports collisions
type Registry struct {
	mu    sync.Mutex
	owner map[string]map[string]string
}

// NewRegistry creates an empty name registry
func NewRegistry() *Registry {
	return &Registry{owner: make(map[string]map[string]string)}
}

// Claim reserves name on table for the given owner key. Claiming the same name again
// with the same owner is allowed; a different owner or an empty name is a conflict.
func (r *Registry) Claim(table, name, owner string) error {
	if name == "" {
		return errors.NewNamingConflict(table, name, "derived from "+owner)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names, ok := r.owner[table]
	if !ok {
		names = make(map[string]string)
		r.owner[table] = names
	}

	if existing, taken := names[name]; taken && existing != owner {
		return errors.NewNamingConflict(table, name, "is already used by "+existing)
	}

	names[name] = owner

	return nil
}
