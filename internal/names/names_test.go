package names

import (
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/qik-trak/internal/errors"
	"github.com/kyleking/qik-trak/internal/testutil"
	"github.com/kyleking/qik-trak/internal/types"
)

func TestStripSuffix(t *testing.T) {
	tests := []struct {
		column string
		suffix string
		want   string
	}{
		{"customer_id", "_id", "customer"},
		{"leader_id", "_id", "leader"},
		{"id_id", "_id", "id"},
		{"customer_id_id", "_id", "customer_id"},
		{"customer", "_id", "customer"},
		{"_id_customer", "_id", "_id_customer"},
		{"customerKey", "Key", "customer"},
		{"customer_id", "", "customer_id"},
		{"_id", "_id", ""},
	}

	for _, tt := range tests {
		t.Run(tt.column+"/"+tt.suffix, func(t *testing.T) {
			assert.Equal(t, tt.want, StripSuffix(tt.column, tt.suffix))
		})
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy("", "")

	assert.Equal(t, DefaultKeyColumnSuffix, p.Suffix)
	assert.Equal(t, StyleSnake, p.Style)

	p = NewPolicy("_fk", StyleCamel)
	assert.Equal(t, "_fk", p.Suffix)
	assert.Equal(t, StyleCamel, p.Style)
}

func TestRelationshipNames(t *testing.T) {
	d := types.RelationshipDescriptor{
		ReferencingTable:  "order",
		ReferencingColumn: "customer_id",
		ReferencedTable:   "customer",
		ReferencedColumn:  "id",
		Source:            types.SourceForeignKey,
	}

	p := NewPolicy("_id", StyleSnake)

	assert.Equal(t, "customer", p.ObjectRelationshipName(d))
	assert.Equal(t, "order", p.ArrayRelationshipName(d))
}

func TestRelationshipNamesWithoutSuffix(t *testing.T) {
	d := types.RelationshipDescriptor{
		ReferencingTable:  "team",
		ReferencingColumn: "leader",
		ReferencedTable:   "person",
		ReferencedColumn:  "id",
	}

	p := NewPolicy("_id", StyleSnake)

	assert.Equal(t, "leader", p.ObjectRelationshipName(d))
}

func TestCamelStyle(t *testing.T) {
	d := types.RelationshipDescriptor{
		ReferencingTable:  "order_item",
		ReferencingColumn: "parent_order_id",
		ReferencedTable:   "order",
		ReferencedColumn:  "id",
	}

	p := NewPolicy("_id", StyleCamel)

	assert.Equal(t, "parentOrder", p.ObjectRelationshipName(d))
	assert.Equal(t, "orderItem", p.ArrayRelationshipName(d))
}

func TestCamelCase(t *testing.T) {
	tests := map[string]string{
		"foreign_key_name": "foreignKeyName",
		"FOREIGN-KEY":      "foreignKey",
		"order":            "order",
		"__leading":        "leading",
		"":                 "",
		"straße_übersicht": "straßeÜbersicht",
		"été_élève":        "étéÉlève",
		"кат_ёлка":         "катЁлка",
	}

	for in, want := range tests {
		got := CamelCase(in)
		assert.Equal(t, want, got, in)
		assert.True(t, utf8.ValidString(got), in)
	}
}

func TestRegistryClaim(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Claim("customer", "order", "order.customer_id->customer.id"))
	require.NoError(t, r.Claim("customer", "order", "order.customer_id->customer.id"), "same owner may claim again")
	require.NoError(t, r.Claim("supplier", "order", "order.supplier_id->supplier.id"), "names are per table")

	err := r.Claim("customer", "order", "order.billing_customer_id->customer.id")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNamingConflict))
	assert.Contains(t, err.Error(), "order.customer_id->customer.id")
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	err := NewRegistry().Claim("order", "", "order._id->customer.id")

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNamingConflict))
}

func TestRegistryConcurrentClaims(t *testing.T) {
	r := NewRegistry()

	var (
		mu        sync.Mutex
		conflicts int
	)

	testutil.AssertNoRaces(t, func() {
		if err := r.Claim("customer", "order", "order.customer_id->customer.id"); err != nil {
			t.Errorf("same owner rejected: %v", err)
		}

		if err := r.Claim("customer", "order", "order.billing_customer_id->customer.id"); err != nil {
			mu.Lock()
			conflicts++
			mu.Unlock()
		}
	}, testutil.TestConcurrency*5)

	assert.Equal(t, testutil.TestConcurrency*5, conflicts)
}
