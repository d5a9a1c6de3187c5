package model

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a request payload that does not match a
// generated schema.
type ValidationError struct {
	Detail string       `json:"detail"`
	Fields []FieldError `json:"fields,omitempty"`
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Detail
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return e.Detail + ": " + strings.Join(parts, "; ")
}

// jsonSchemaType renders the JSON schema fragment for one field. Only
// nullable fields accept null, so a payload cannot null out a column the
// table would reject.
func jsonSchemaType(ft FieldType, enum []string, nullable bool) map[string]interface{} {
	var fragment map[string]interface{}
	switch ft {
	case FieldInteger:
		fragment = map[string]interface{}{"type": "integer"}
	case FieldFloat:
		fragment = map[string]interface{}{"type": "number"}
	case FieldBoolean:
		fragment = map[string]interface{}{"type": "boolean"}
	case FieldDateTime:
		fragment = map[string]interface{}{"type": "string", "format": "date-time"}
	case FieldArray:
		fragment = map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
	case FieldEnum:
		fragment = map[string]interface{}{"type": "string", "enum": enum}
	default:
		fragment = map[string]interface{}{"type": "string"}
	}
	if nullable {
		fragment["type"] = []interface{}{fragment["type"], "null"}
	}
	return fragment
}

// compileSchemas builds and compiles the generated JSON schemas: the
// create payload (required fields mandatory, no unknown properties), the
// update payload (everything optional) and the flat filters input shape.
// This happens once at registration; the compiled schemas are reused for
// every request.
func (d *Descriptor) compileSchemas() error {
	var err error
	d.createSchema, err = compileObjectSchema(d.createFields, true)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	d.updateSchema, err = compileObjectSchema(d.updateFields, false)
	if err != nil {
		return fmt.Errorf("update schema: %w", err)
	}

	properties := map[string]interface{}{}
	for _, g := range d.Filters {
		for _, f := range g.Filters {
			// null deactivates the filter's group, so it is always legal
			properties[f.BindParam] = jsonSchemaType(f.FieldType, nil, true)
		}
	}
	doc := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	d.filtersSchema, err = compileSchema(doc)
	if err != nil {
		return fmt.Errorf("filters schema: %w", err)
	}
	return nil
}

func compileObjectSchema(fields []Column, withRequired bool) (*gojsonschema.Schema, error) {
	properties := map[string]interface{}{}
	var required []string
	for _, c := range fields {
		properties[c.Name] = jsonSchemaType(c.FieldType(), c.Enum, c.Nullable)
		if withRequired && c.Required() {
			required = append(required, c.Name)
		}
	}
	doc := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return compileSchema(doc)
}

func compileSchema(doc map[string]interface{}) (*gojsonschema.Schema, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
}

// ValidateCreate checks a create request body against the generated
// create schema.
func (d *Descriptor) ValidateCreate(body []byte) error {
	return validate(d.createSchema, body, "invalid create payload")
}

// ValidateUpdate checks a partial update request body against the
// generated update schema.
func (d *Descriptor) ValidateUpdate(body []byte) error {
	return validate(d.updateSchema, body, "invalid update payload")
}

// ValidateFilters checks the decoded filters payload against the flat
// filters input shape.
func (d *Descriptor) ValidateFilters(body []byte) error {
	return validate(d.filtersSchema, body, "cannot parse filters")
}

func validate(schema *gojsonschema.Schema, body []byte, detail string) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return ValidationError{Detail: detail + ": " + err.Error()}
	}
	if result.Valid() {
		return nil
	}
	verr := ValidationError{Detail: detail}
	for _, re := range result.Errors() {
		verr.Fields = append(verr.Fields, FieldError{Field: re.Field(), Message: re.Description()})
	}
	return verr
}
