package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/types"
)

func TestListTables(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		expected  []types.SchemaTable
		errMsg    string
	}{
		{
			name: "tables and views",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
					WithArgs("public").
					WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
						AddRow("customer").
						AddRow("device_reading").
						AddRow("order"))
			},
			expected: []types.SchemaTable{{Name: "customer"}, {Name: "device_reading"}, {Name: "order"}},
		},
		{
			name: "empty schema",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT table_name").
					WithArgs("public").
					WillReturnRows(sqlmock.NewRows([]string{"table_name"}))
			},
		},
		{
			name: "query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT table_name").WithArgs("public").WillReturnError(assert.AnError)
			},
			errMsg: "failed to query tables",
		},
		{
			name: "row error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT table_name").
					WithArgs("public").
					WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
						AddRow("customer").
						RowError(0, assert.AnError))
			},
			errMsg: "error iterating tables",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.setupMock(mock)

			tables, err := New(db, "public").ListTables(context.Background())
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.True(t, errors.IsType(err, errors.ErrTypeDatabase))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, tables)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListForeignKeys(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.table_constraints").
		WithArgs("sales").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "table_name", "column_name"}).
			AddRow("order", "customer_id", "customer", "id").
			AddRow("order_item", "order_id", "order", "id"))

	edges, err := New(db, "sales").ListForeignKeys(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []types.ForeignKeyEdge{
		{ReferencingTable: "order", ReferencingColumn: "customer_id", ReferencedTable: "customer", ReferencedColumn: "id"},
		{ReferencingTable: "order_item", ReferencingColumn: "order_id", ReferencedTable: "order", ReferencedColumn: "id"},
	}, edges)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForeignKeysBindsSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hostile := "public'; DROP TABLE customer; --"

	mock.ExpectQuery("FROM information_schema.table_constraints").
		WithArgs(hostile).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d"}))

	edges, err := New(db, hostile).ListForeignKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, edges)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForeignKeysScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.table_constraints").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).AddRow("order", "customer_id"))

	_, err = New(db, "public").ListForeignKeys(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan foreign key")
	assert.True(t, errors.IsType(err, errors.ErrTypeDatabase))
}

func TestClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectClose()

	require.NoError(t, New(db, "public").Close())
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, (&Introspector{}).Close())
}
