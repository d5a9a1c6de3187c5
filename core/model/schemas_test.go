package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-tech/adminpanel/core"
)

func schemaDescriptor(t *testing.T) *Descriptor {
	cfg := EntityConfiguration{
		Entity: "users",
		Columns: []Column{
			{Name: "id", Type: "serial", PrimaryKey: true},
			{Name: "email", Type: "text"},
			{Name: "age", Type: "integer", Nullable: true},
			{Name: "role", Type: "text", Enum: []string{"viewer", "editor"}, Default: "'viewer'"},
			{Name: "tags", Type: "text[]", Nullable: true},
			{Name: "joined_at", Type: "timestamptz", Default: "now()"},
		},
		EnabledOperations: []core.Operation{
			core.OperationGetList, core.OperationGetOne,
			core.OperationCreate, core.OperationUpdate, core.OperationDelete,
		},
		Filters: []FilterGroup{{
			Condition: "age >= :min_age",
			Filters:   []Filter{{Title: "Minimum age", FieldType: FieldInteger, BindParam: "min_age"}},
		}},
	}
	d, err := Build(cfg)
	require.NoError(t, err)
	return d
}

func TestValidateCreate(t *testing.T) {
	d := schemaDescriptor(t)

	assert.NoError(t, d.ValidateCreate([]byte(`{"email": "a@b.c"}`)))
	assert.NoError(t, d.ValidateCreate([]byte(`{"email": "a@b.c", "age": 5, "role": "editor", "tags": ["x"]}`)))
	// nullable optional fields accept an explicit null
	assert.NoError(t, d.ValidateCreate([]byte(`{"email": "a@b.c", "age": null}`)))

	// the one required field is missing
	err := d.ValidateCreate([]byte(`{"age": 5}`))
	require.Error(t, err)
	verr, ok := err.(ValidationError)
	require.True(t, ok)
	assert.NotEmpty(t, verr.Fields)

	// unknown properties are rejected, the key column included
	assert.Error(t, d.ValidateCreate([]byte(`{"email": "a@b.c", "ghost": 1}`)))
	assert.Error(t, d.ValidateCreate([]byte(`{"email": "a@b.c", "id": 7}`)))

	// type mismatches
	assert.Error(t, d.ValidateCreate([]byte(`{"email": 5}`)))
	assert.Error(t, d.ValidateCreate([]byte(`{"email": "a@b.c", "age": "five"}`)))
	assert.Error(t, d.ValidateCreate([]byte(`{"email": "a@b.c", "role": "admin"}`)))
	assert.Error(t, d.ValidateCreate([]byte(`{"email": "a@b.c", "tags": [1, 2]}`)))

	// required fields do not accept null
	assert.Error(t, d.ValidateCreate([]byte(`{"email": null}`)))

	assert.Error(t, d.ValidateCreate([]byte(`[]`)))
	assert.Error(t, d.ValidateCreate([]byte(`not json`)))
}

func TestValidateUpdate(t *testing.T) {
	d := schemaDescriptor(t)

	// everything is optional on update, including the empty object
	assert.NoError(t, d.ValidateUpdate([]byte(`{}`)))
	assert.NoError(t, d.ValidateUpdate([]byte(`{"age": 7}`)))
	// nullable columns can be cleared, non-nullable ones cannot
	assert.NoError(t, d.ValidateUpdate([]byte(`{"age": null}`)))
	assert.Error(t, d.ValidateUpdate([]byte(`{"email": null}`)))

	assert.Error(t, d.ValidateUpdate([]byte(`{"ghost": 1}`)))
	assert.Error(t, d.ValidateUpdate([]byte(`{"id": 9}`)))
	assert.Error(t, d.ValidateUpdate([]byte(`{"age": "nine"}`)))
}

func TestValidateFilters(t *testing.T) {
	d := schemaDescriptor(t)

	assert.NoError(t, d.ValidateFilters([]byte(`{}`)))
	assert.NoError(t, d.ValidateFilters([]byte(`{"min_age": 18}`)))
	assert.NoError(t, d.ValidateFilters([]byte(`{"min_age": null}`)))

	assert.Error(t, d.ValidateFilters([]byte(`{"min_age": "x"}`)))
	assert.Error(t, d.ValidateFilters([]byte(`{"ghost": 1}`)))
	assert.Error(t, d.ValidateFilters([]byte(`"min_age"`)))
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError{Detail: "invalid create payload"}
	assert.Equal(t, "invalid create payload", err.Error())

	err.Fields = []FieldError{{Field: "email", Message: "is required"}}
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "is required")
}
