/*
Package model implements the schema synthesis engine of the admin backend.

Given a declarative entity configuration - columns with native postgres
types, a primary key, per-operation column subsets and filter groups - it
derives an immutable Descriptor: the field visibility matrix, generated
JSON schemas for create/update/filters payloads, response projections and
the introspection document served by the admin API.
*/
package model

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// FieldType is the closed taxonomy of API field types a storage column
// maps to.
type FieldType string

// all supported field types
const (
	FieldInteger  FieldType = "integer"
	FieldBoolean  FieldType = "boolean"
	FieldFloat    FieldType = "float"
	FieldString   FieldType = "string"
	FieldEnum     FieldType = "enum"
	FieldDateTime FieldType = "datetime"
	FieldArray    FieldType = "array"
)

// Column describes one persisted attribute of an entity. Columns are
// value types and are compared by name, never by identity.
type Column struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Nullable   bool     `json:"nullable"`
	PrimaryKey bool     `json:"primary_key"`
	Default    string   `json:"default"`
	Enum       []string `json:"enum,omitempty"`
}

// integer-ish and float-ish native type names, lowercased
var integerTypes = map[string]bool{
	"int": true, "int2": true, "int4": true, "int8": true,
	"smallint": true, "integer": true, "bigint": true,
	"serial": true, "smallserial": true, "bigserial": true,
}

var floatTypes = map[string]bool{
	"real": true, "float": true, "float4": true, "float8": true,
	"double precision": true, "numeric": true, "decimal": true,
}

var booleanTypes = map[string]bool{
	"bool": true, "boolean": true,
}

var datetimeTypes = map[string]bool{
	"date": true, "time": true, "timestamp": true,
	"timestamptz": true, "timestamp with time zone": true,
	"timestamp without time zone": true,
}

// FieldType maps the column's native storage type to the field type
// taxonomy. The mapping is total: unrecognized native types fall back to
// FieldString, they never fail. The field types drive schema generation
// and best-effort admin UI rendering, so a safe default beats an error.
func (c Column) FieldType() FieldType {
	if len(c.Enum) > 0 {
		return FieldEnum
	}
	native := strings.ToLower(strings.TrimSpace(c.Type))
	// the array suffix must win before the parameter list is stripped,
	// or varchar(16)[] would degrade to varchar
	if strings.HasSuffix(native, "[]") {
		return FieldArray
	}
	if i := strings.IndexRune(native, '('); i > 0 { // varchar(255), numeric(10,2)
		native = strings.TrimSpace(native[:i])
	}
	switch {
	case integerTypes[native]:
		return FieldInteger
	case floatTypes[native]:
		return FieldFloat
	case booleanTypes[native]:
		return FieldBoolean
	case datetimeTypes[native]:
		return FieldDateTime
	default:
		return FieldString
	}
}

// Required reports whether the column must be supplied on create: it has
// no default value expression and does not accept null.
func (c Column) Required() bool {
	return c.Default == "" && !c.Nullable
}

// CannotConvertError is returned when a request value cannot be coerced
// to a column's declared field type.
type CannotConvertError struct {
	Value  interface{}
	Target FieldType
}

func (e CannotConvertError) Error() string {
	return fmt.Sprintf("cannot convert %v (%T) to %s", e.Value, e.Value, e.Target)
}

// Coerce converts a decoded JSON value or a raw string parameter to the
// Go representation matching the field type. A nil value stays nil.
func (ft FieldType) Coerce(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	var (
		coerced interface{}
		err     error
	)
	switch ft {
	case FieldInteger:
		coerced, err = cast.ToInt64E(value)
	case FieldFloat:
		coerced, err = cast.ToFloat64E(value)
	case FieldBoolean:
		coerced, err = cast.ToBoolE(value)
	case FieldDateTime:
		coerced, err = cast.ToTimeE(value)
	case FieldArray:
		coerced, err = cast.ToStringSliceE(value)
	default: // string, enum
		coerced, err = cast.ToStringE(value)
	}
	if err != nil {
		return nil, CannotConvertError{Value: value, Target: ft}
	}
	return coerced, nil
}
