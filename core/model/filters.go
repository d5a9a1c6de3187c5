package model

import (
	"fmt"
	"strings"
)

// Filter is one named, typed bind parameter of a filter group.
type Filter struct {
	Title     string    `json:"title"`
	FieldType FieldType `json:"field_type"`
	BindParam string    `json:"bindparam"`
}

// FilterGroup is a composable query predicate fragment. Condition is a
// SQL fragment whose bind parameters are written as :name, for example
//
//	"age >= :age_from AND age <= :age_to"
//
// Activation is all or nothing: the group only applies to a query when
// every declared bind parameter has a non-null value supplied by the
// request. A group without filters is always active; that is the only
// way to declare an unconditional predicate.
type FilterGroup struct {
	Condition string   `json:"condition"`
	Filters   []Filter `json:"filters"`
}

// Active reports whether the group applies given the supplied filter
// values. Missing keys and explicit nulls both deactivate the group.
func (g FilterGroup) Active(values map[string]interface{}) bool {
	for _, f := range g.Filters {
		value, ok := values[f.BindParam]
		if !ok || value == nil {
			return false
		}
	}
	return true
}

// Bind rewrites the group's condition for splicing into a query: every
// :name placeholder becomes a positional ? marker, and the corresponding
// coerced values are returned in occurrence order. Bind must only be
// called for active groups.
func (g FilterGroup) Bind(values map[string]interface{}) (string, []interface{}, error) {
	types := make(map[string]FieldType, len(g.Filters))
	for _, f := range g.Filters {
		types[f.BindParam] = f.FieldType
	}

	var sb strings.Builder
	var args []interface{}
	cond := g.Condition
	for i := 0; i < len(cond); i++ {
		ch := cond[i]
		if ch == ':' && i+1 < len(cond) && cond[i+1] == ':' {
			// a postgres cast, not a placeholder
			sb.WriteString("::")
			i++
			continue
		}
		if ch != ':' || i+1 >= len(cond) || !isIdentByte(cond[i+1]) {
			sb.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(cond) && isIdentByte(cond[j]) {
			j++
		}
		name := cond[i+1 : j]
		ft, declared := types[name]
		if !declared {
			return "", nil, fmt.Errorf("filter group condition references undeclared parameter :%s", name)
		}
		value, err := ft.Coerce(values[name])
		if err != nil {
			return "", nil, err
		}
		args = append(args, value)
		sb.WriteByte('?')
		i = j - 1
	}
	return sb.String(), args, nil
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// validate checks the group declaration at registration time.
func (g FilterGroup) validate(seen map[string]bool) error {
	if strings.TrimSpace(g.Condition) == "" {
		return fmt.Errorf("filter group condition must not be empty")
	}
	for _, f := range g.Filters {
		if f.BindParam == "" {
			return fmt.Errorf("filter %q lacks a bindparam", f.Title)
		}
		if seen[f.BindParam] {
			return fmt.Errorf("duplicate filter bindparam %q", f.BindParam)
		}
		seen[f.BindParam] = true
	}
	// a bind with no values must resolve every placeholder
	if _, _, err := g.Bind(map[string]interface{}{}); err != nil {
		return err
	}
	return nil
}
