package views

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kyleking/qik-trak/internal/errors"
)

var trailingComma = regexp.MustCompile(`,\s*$`)

// Compile renders the DROP / CREATE / COMMENT statements for a view in schema.
// Query fragments are used verbatim; identifiers and string literals are quoted.
func Compile(schema string, v ViewSpec) (string, error) {
	if schema == "" {
		return "", errors.Newf(errors.ErrTypeValidation, "schema is required to compile view %q", v.Name)
	}

	if err := v.Validate(); err != nil {
		return "", err
	}

	qualified := QuoteIdent(schema) + "." + QuoteIdent(v.Name)

	selectList := stripTrailingComma(v.Query.Select)
	casts := stripTrailingComma(CastColumns(v.Columns))

	if casts != "" {
		selectList += ",\n" + casts
	}

	body := []string{selectList}
	for _, fragment := range []string{v.Query.From, v.Query.Join, v.Query.Where, v.Query.OrderBy} {
		if f := strings.TrimSpace(fragment); f != "" {
			body = append(body, f)
		}
	}

	var b strings.Builder

	fmt.Fprintf(&b, "DROP VIEW IF EXISTS %s;\n", qualified)
	fmt.Fprintf(&b, "CREATE VIEW %s AS\n%s;\n", qualified, strings.Join(body, "\n"))
	fmt.Fprintf(&b, "COMMENT ON VIEW %s IS %s;\n", qualified, QuoteLiteral(v.Description))

	return b.String(), nil
}

// CastColumns renders the JSON cast column list; nil columns yield an empty string
func CastColumns(c *JSONColumns) string {
	if c == nil {
		return ""
	}

	parts := make([]string, 0, len(c.JSONValues))
	for _, jv := range c.JSONValues {
		parts = append(parts, fmt.Sprintf("CAST(%s ->> %s AS %s) AS %s",
			c.JSONColumn, QuoteLiteral(jv.JSONName), jv.SQLType, QuoteIdent(jv.SQLName)))
	}

	return strings.Join(parts, ",\n")
}

// QuoteIdent quotes a SQL identifier, doubling embedded double quotes
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a SQL string literal, doubling embedded single quotes
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func stripTrailingComma(fragment string) string {
	return trailingComma.ReplaceAllString(strings.TrimSpace(fragment), "")
}
