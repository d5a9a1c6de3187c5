package model

import (
	"fmt"
	"strings"

	"github.com/meridian-tech/adminpanel/core"
	"github.com/xeipuuv/gojsonschema"
)

// Descriptor is the registration-time computed configuration of one
// entity: resolved column subsets, the field visibility matrix and the
// compiled request schemas. Descriptors are immutable after Build and
// safe for unsynchronized concurrent reads.
type Descriptor struct {
	Entity string
	Title  string
	Emoji  string

	PKey       Column
	SoftDelete *Column
	Columns    []Column // non-excluded columns in configuration order
	Filters    []FilterGroup

	enabled  map[core.Operation]bool
	sortable map[string]bool

	listFields   []Column
	getFields    []Column
	createFields []Column
	updateFields []Column

	createSchema  *gojsonschema.Schema
	updateSchema  *gojsonschema.Schema
	filtersSchema *gojsonschema.Schema
}

// Build computes the descriptor for one entity configuration. All
// configuration errors are reported here, at registration time; a
// descriptor that builds successfully never fails configuration checks
// at request time.
func Build(cfg EntityConfiguration) (*Descriptor, error) {
	if cfg.Entity == "" {
		return nil, fmt.Errorf("entity configuration lacks a table name")
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("entity %q has no columns", cfg.Entity)
	}

	byName := make(map[string]Column, len(cfg.Columns))
	for _, c := range cfg.Columns {
		if c.Name == "" {
			return nil, fmt.Errorf("entity %q has a column without a name", cfg.Entity)
		}
		if _, ok := byName[c.Name]; ok {
			return nil, fmt.Errorf("entity %q declares column %q twice", cfg.Entity, c.Name)
		}
		byName[c.Name] = c
	}

	d := &Descriptor{
		Entity:  cfg.Entity,
		Title:   cfg.Title,
		Emoji:   cfg.Emoji,
		Filters: cfg.Filters,
	}
	if d.Title == "" {
		d.Title = strings.ToUpper(cfg.Entity[:1]) + cfg.Entity[1:]
	}
	if d.Emoji == "" {
		d.Emoji = "🗂"
	}

	pkey, err := resolvePKey(cfg, byName)
	if err != nil {
		return nil, err
	}
	d.PKey = pkey

	excluded := map[string]bool{}
	for _, name := range cfg.ExcludedColumns {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("entity %q excludes unknown column %q", cfg.Entity, name)
		}
		excluded[name] = true
	}
	if excluded[pkey.Name] {
		return nil, fmt.Errorf("entity %q must not exclude its primary key %q", cfg.Entity, pkey.Name)
	}
	for _, c := range cfg.Columns {
		if !excluded[c.Name] {
			d.Columns = append(d.Columns, c)
		}
	}

	d.enabled = map[core.Operation]bool{}
	ops := cfg.EnabledOperations
	if len(ops) == 0 {
		ops = core.AllOperations()
	}
	for _, op := range ops {
		if !op.Valid() {
			return nil, fmt.Errorf("entity %q enables unknown operation %q", cfg.Entity, op)
		}
		d.enabled[op] = true
	}

	// subset defaults per the registration contract
	var keyNames, nonKeyNames []string
	for _, c := range d.Columns {
		if c.PrimaryKey || c.Name == pkey.Name {
			keyNames = append(keyNames, c.Name)
		} else {
			nonKeyNames = append(nonKeyNames, c.Name)
		}
	}
	allNames := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		allNames = append(allNames, c.Name)
	}

	listNames, err := subset(cfg.Entity, "list_columns", cfg.ListColumns, allNames, byName, excluded)
	if err != nil {
		return nil, err
	}
	getNames, err := subset(cfg.Entity, "get_columns", cfg.GetColumns, allNames, byName, excluded)
	if err != nil {
		return nil, err
	}
	createNames, err := subset(cfg.Entity, "create_columns", cfg.CreateColumns, nonKeyNames, byName, excluded)
	if err != nil {
		return nil, err
	}
	updateNames, err := subset(cfg.Entity, "update_columns", cfg.UpdateColumns, nonKeyNames, byName, excluded)
	if err != nil {
		return nil, err
	}
	sortableNames, err := subset(cfg.Entity, "sortable_columns", cfg.SortableColumns, keyNames, byName, excluded)
	if err != nil {
		return nil, err
	}

	if !contains(listNames, pkey.Name) {
		return nil, fmt.Errorf("entity %q: primary key %q must be part of the list columns", cfg.Entity, pkey.Name)
	}

	if cfg.SoftDeleteColumn != "" {
		col, ok := byName[cfg.SoftDeleteColumn]
		if !ok {
			return nil, fmt.Errorf("entity %q: soft delete column %q does not exist", cfg.Entity, cfg.SoftDeleteColumn)
		}
		if col.FieldType() != FieldBoolean {
			return nil, fmt.Errorf("entity %q: soft delete column %q must be boolean, got %s",
				cfg.Entity, col.Name, col.FieldType())
		}
		d.SoftDelete = &col
	}
	if d.enabled[core.OperationSoftDelete] && d.SoftDelete == nil {
		return nil, fmt.Errorf("entity %q: soft delete is enabled but no soft_delete_column is set", cfg.Entity)
	}

	d.sortable = map[string]bool{}
	for _, name := range sortableNames {
		d.sortable[name] = true
	}

	// the field visibility matrix: a column appears in an operation's
	// field list only when the operation is enabled and the column is in
	// that operation's subset
	for _, c := range d.Columns {
		if d.enabled[core.OperationGetList] && contains(listNames, c.Name) {
			d.listFields = append(d.listFields, c)
		}
		if d.enabled[core.OperationGetOne] && contains(getNames, c.Name) {
			d.getFields = append(d.getFields, c)
		}
		if d.enabled[core.OperationCreate] && contains(createNames, c.Name) {
			d.createFields = append(d.createFields, c)
		}
		if d.enabled[core.OperationUpdate] && contains(updateNames, c.Name) {
			d.updateFields = append(d.updateFields, c)
		}
	}

	seen := map[string]bool{}
	for _, g := range cfg.Filters {
		if err := g.validate(seen); err != nil {
			return nil, fmt.Errorf("entity %q: %w", cfg.Entity, err)
		}
	}

	if err := d.compileSchemas(); err != nil {
		return nil, fmt.Errorf("entity %q: %w", cfg.Entity, err)
	}
	return d, nil
}

// resolvePKey finds the primary key column: the explicit pkey_column if
// set, else the single column flagged primary_key, else a column named
// "id". Failure to resolve is a hard configuration error.
func resolvePKey(cfg EntityConfiguration, byName map[string]Column) (Column, error) {
	if cfg.PKeyColumn != "" {
		col, ok := byName[cfg.PKeyColumn]
		if !ok {
			return Column{}, fmt.Errorf("entity %q: pkey column %q does not exist", cfg.Entity, cfg.PKeyColumn)
		}
		return col, nil
	}
	var flagged []Column
	for _, c := range cfg.Columns {
		if c.PrimaryKey {
			flagged = append(flagged, c)
		}
	}
	if len(flagged) == 1 {
		return flagged[0], nil
	}
	if len(flagged) > 1 {
		return Column{}, fmt.Errorf("entity %q has a composite primary key, set pkey_column explicitly", cfg.Entity)
	}
	if col, ok := byName["id"]; ok {
		return col, nil
	}
	return Column{}, fmt.Errorf("cannot determine pkey column for entity %q, set it manually", cfg.Entity)
}

func subset(entity, kind string, names, defaults []string, byName map[string]Column, excluded map[string]bool) ([]string, error) {
	if len(names) == 0 {
		return defaults, nil
	}
	result := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("entity %q: %s references unknown column %q", entity, kind, name)
		}
		if excluded[name] {
			return nil, fmt.Errorf("entity %q: %s references excluded column %q", entity, kind, name)
		}
		result = append(result, name)
	}
	return result, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Enabled reports whether the operation was enabled at registration.
func (d *Descriptor) Enabled(op core.Operation) bool {
	return d.enabled[op]
}

// Sortable reports whether list results may be sorted by the column.
func (d *Descriptor) Sortable(column string) bool {
	return d.sortable[column]
}

// Fields returns the ordered column projection for an operation's
// request or response shape.
func (d *Descriptor) Fields(op core.Operation) []Column {
	switch op {
	case core.OperationGetList:
		return d.listFields
	case core.OperationGetOne:
		return d.getFields
	case core.OperationCreate:
		return d.createFields
	case core.OperationUpdate:
		return d.updateFields
	}
	return nil
}

// ReadFields is the response projection for single-item operations: the
// get columns when get_one is enabled, all non-excluded columns
// otherwise (create and update responses reuse the get shape).
func (d *Descriptor) ReadFields() []Column {
	if len(d.getFields) > 0 {
		return d.getFields
	}
	return d.Columns
}

// Column returns the column with the given name, if it exists. The
// soft-delete column stays resolvable even when it is excluded from
// responses, the engine writes it through the override path.
func (d *Descriptor) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	if d.SoftDelete != nil && d.SoftDelete.Name == name {
		return *d.SoftDelete, true
	}
	return Column{}, false
}

// ActiveFilters resolves the all-or-nothing filter activation for the
// supplied values: it returns the bound conditions and arguments of
// every active group.
func (d *Descriptor) ActiveFilters(values map[string]interface{}) ([]string, [][]interface{}, error) {
	var conds []string
	var args [][]interface{}
	for _, g := range d.Filters {
		if !g.Active(values) {
			continue
		}
		cond, groupArgs, err := g.Bind(values)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, cond)
		args = append(args, groupArgs)
	}
	return conds, args, nil
}
