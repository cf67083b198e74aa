package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/posbridge/pkg/errors"
)

func TestWiden(t *testing.T) {
	tests := []struct {
		a, b, want FieldType
	}{
		{FieldTypeBoolean, FieldTypeBoolean, FieldTypeBoolean},
		{FieldTypeBoolean, FieldTypeInteger, FieldTypeInteger},
		{FieldTypeInteger, FieldTypeFloat, FieldTypeFloat},
		{FieldTypeFloat, FieldTypeString, FieldTypeString},
		{FieldTypeBoolean, FieldTypeString, FieldTypeString},
		{FieldTypeTimestamp, FieldTypeTimestamp, FieldTypeTimestamp},
		{FieldTypeTimestamp, FieldTypeString, FieldTypeString},
		{FieldTypeTimestamp, FieldTypeInteger, FieldTypeString},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Widen(tt.a, tt.b), "Widen(%s, %s)", tt.a, tt.b)
		assert.Equal(t, tt.want, Widen(tt.b, tt.a), "Widen(%s, %s)", tt.b, tt.a)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		ft    FieldType
		want  interface{}
	}{
		{"integral float to int64", float64(7), FieldTypeInteger, int64(7)},
		{"fractional float to integer fails", 7.5, FieldTypeInteger, nil},
		{"numeric string to integer", "42", FieldTypeInteger, int64(42)},
		{"int to float", float64(3), FieldTypeFloat, float64(3)},
		{"numeric string to float", "3.14", FieldTypeFloat, 3.14},
		{"bool passthrough", true, FieldTypeBoolean, true},
		{"bool from string", "true", FieldTypeBoolean, true},
		{"garbage to boolean fails", "yes please", FieldTypeBoolean, nil},
		{"valid timestamp kept", "2026-08-01T10:00:00Z", FieldTypeTimestamp, "2026-08-01T10:00:00Z"},
		{"invalid timestamp fails", "yesterday", FieldTypeTimestamp, nil},
		{"number formatted as string", 2.5, FieldTypeString, "2.5"},
		{"bool formatted as string", false, FieldTypeString, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.value, tt.ft))
		})
	}
}

func TestProjectDropsUndeclaredAndCoerces(t *testing.T) {
	s := &EntitySchema{
		Entity:      "article",
		PrimaryKeys: []string{"article_id"},
		Columns: map[string]FieldType{
			"article_id": FieldTypeString,
			"quantity":   FieldTypeInteger,
			"active":     FieldTypeBoolean,
		},
	}

	out, err := s.Project(map[string]interface{}{
		"article_id": "a1",
		"quantity":   float64(5),
		"active":     true,
		"internal":   "dropped",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"article_id": "a1",
		"quantity":   int64(5),
		"active":     true,
	}, out)
	assert.NotContains(t, out, "internal")
}

func TestProjectMissingColumnBecomesNull(t *testing.T) {
	s := &EntitySchema{
		Entity:      "customer",
		PrimaryKeys: []string{"customer_id"},
		Columns: map[string]FieldType{
			"customer_id": FieldTypeString,
			"email":       FieldTypeString,
		},
	}

	out, err := s.Project(map[string]interface{}{"customer_id": "c1"})
	require.NoError(t, err)
	assert.Nil(t, out["email"])
}

func TestProjectMissingPrimaryKeyFails(t *testing.T) {
	s := &EntitySchema{
		Entity:      "sale",
		PrimaryKeys: []string{"sale_id"},
		Columns: map[string]FieldType{
			"sale_id": FieldTypeString,
			"total":   FieldTypeFloat,
		},
	}

	_, err := s.Project(map[string]interface{}{"total": 9.99})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestValidate(t *testing.T) {
	valid := &EntitySchema{
		Entity:      "shop",
		PrimaryKeys: []string{"shop_id"},
		Columns:     map[string]FieldType{"shop_id": FieldTypeString},
	}
	require.NoError(t, valid.Validate())

	noPK := &EntitySchema{
		Entity:  "shop",
		Columns: map[string]FieldType{"shop_id": FieldTypeString},
	}
	assert.Error(t, noPK.Validate())

	pkNotDeclared := &EntitySchema{
		Entity:      "shop",
		PrimaryKeys: []string{"shop_id"},
		Columns:     map[string]FieldType{"name": FieldTypeString},
	}
	assert.Error(t, pkNotDeclared.Validate())

	badType := &EntitySchema{
		Entity:      "shop",
		PrimaryKeys: []string{"shop_id"},
		Columns:     map[string]FieldType{"shop_id": FieldType("decimal")},
	}
	assert.Error(t, badType.Validate())
}
