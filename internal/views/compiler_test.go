package views

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/qik-trak/internal/errors"
)

func deviceReading() ViewSpec {
	return ViewSpec{
		Name:        "device_reading",
		Description: "Readings reported by devices",
		Query: Query{
			Select:  "SELECT id, device_id, received_at,",
			From:    "FROM public.device_message",
			OrderBy: "ORDER BY received_at",
		},
		Columns: &JSONColumns{
			JSONColumn: "message",
			JSONValues: []JSONValue{{JSONName: "reading", SQLName: "reading_value", SQLType: "numeric"}},
		},
	}
}

func TestCompileDeviceReading(t *testing.T) {
	sql, err := Compile("public", deviceReading())
	require.NoError(t, err)

	expected := `DROP VIEW IF EXISTS "public"."device_reading";
CREATE VIEW "public"."device_reading" AS
SELECT id, device_id, received_at,
CAST(message ->> 'reading' AS numeric) AS "reading_value"
FROM public.device_message
ORDER BY received_at;
COMMENT ON VIEW "public"."device_reading" IS 'Readings reported by devices';
`
	assert.Equal(t, expected, sql)

	rels, err := ExtractRelationships(deviceReading())
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestCompileStatementOrder(t *testing.T) {
	sql, err := Compile("iot", deviceReading())
	require.NoError(t, err)

	drop := strings.Index(sql, "DROP VIEW IF EXISTS")
	create := strings.Index(sql, "CREATE VIEW")
	comment := strings.Index(sql, "COMMENT ON VIEW")

	assert.True(t, drop >= 0 && drop < create && create < comment, sql)
	assert.Contains(t, sql, `"iot"."device_reading"`)
}

func TestCompileIsDeterministic(t *testing.T) {
	first, err := Compile("public", deviceReading())
	require.NoError(t, err)

	second, err := Compile("public", deviceReading())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompileWithoutColumns(t *testing.T) {
	v := deviceReading()
	v.Columns = nil

	sql, err := Compile("public", v)
	require.NoError(t, err)

	assert.NotContains(t, sql, "CAST(")
	assert.Contains(t, sql, "SELECT id, device_id, received_at\nFROM public.device_message")
}

func TestCastColumnExactText(t *testing.T) {
	cols := &JSONColumns{
		JSONColumn: "payload",
		JSONValues: []JSONValue{{JSONName: "temp", SQLName: "temperature", SQLType: "numeric"}},
	}

	assert.Equal(t, `CAST(payload ->> 'temp' AS numeric) AS "temperature"`, CastColumns(cols))

	v := deviceReading()
	v.Columns = cols

	sql, err := Compile("public", v)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(sql, `CAST(payload ->> 'temp' AS numeric) AS "temperature"`))
}

func TestCastColumnsJoinedWithCommas(t *testing.T) {
	cols := &JSONColumns{
		JSONColumn: "message",
		JSONValues: []JSONValue{
			{JSONName: "a", SQLName: "col_a", SQLType: "text"},
			{JSONName: "b", SQLName: "col_b", SQLType: "integer"},
		},
	}

	assert.Equal(t,
		"CAST(message ->> 'a' AS text) AS \"col_a\",\nCAST(message ->> 'b' AS integer) AS \"col_b\"",
		CastColumns(cols))
	assert.Empty(t, CastColumns(nil))
	assert.Empty(t, CastColumns(&JSONColumns{JSONColumn: "message"}))
}

func TestCompileEscapesNamesAndDescription(t *testing.T) {
	v := deviceReading()
	v.Name = `odd"name`
	v.Description = "it's quoted"

	sql, err := Compile("public", v)
	require.NoError(t, err)

	assert.Contains(t, sql, `"public"."odd""name"`)
	assert.Contains(t, sql, `IS 'it''s quoted';`)
}

func TestCompileRejectsInvalidSpecs(t *testing.T) {
	_, err := Compile("", deviceReading())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	v := deviceReading()
	v.Query.From = ""
	_, err = Compile("public", v)
	assert.Error(t, err)

	v = deviceReading()
	v.Columns.JSONValues[0].SQLType = ""
	_, err = Compile("public", v)
	assert.Error(t, err)
}

func TestStripTrailingComma(t *testing.T) {
	assert.Equal(t, "SELECT a, b", stripTrailingComma("  SELECT a, b ,  \n"))
	assert.Equal(t, "", stripTrailingComma(","))
	assert.Equal(t, "", stripTrailingComma(""))
}
