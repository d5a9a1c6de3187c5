package model

// FilterInfo describes one filter parameter for the admin frontend.
type FilterInfo struct {
	Title     string    `json:"title"`
	Name      string    `json:"name"`
	FieldType FieldType `json:"field_type"`
}

// ColumnInfo is the per-column visibility and sortability matrix entry.
type ColumnInfo struct {
	ColumnType        FieldType `json:"column_type"`
	Nullable          bool      `json:"nullable"`
	IsGetAvailable    bool      `json:"is_get_available"`
	IsListAvailable   bool      `json:"is_list_available"`
	IsCreateAvailable bool      `json:"is_create_available"`
	IsUpdateAvailable bool      `json:"is_update_available"`
	IsSortable        bool      `json:"is_sortable"`
}

// ModelInfo is the introspection document for one registered entity,
// served by the aggregator endpoint.
type ModelInfo struct {
	Title            string                `json:"title"`
	Emoji            string                `json:"emoji"`
	PKeyColumn       string                `json:"pkey_column"`
	SoftDeleteColumn string                `json:"soft_delete_column,omitempty"`
	Filters          []FilterInfo          `json:"filters"`
	Columns          map[string]ColumnInfo `json:"columns"`
}

// Info derives the introspection document from the descriptor.
func (d *Descriptor) Info() ModelInfo {
	info := ModelInfo{
		Title:      d.Title,
		Emoji:      d.Emoji,
		PKeyColumn: d.PKey.Name,
		Filters:    []FilterInfo{},
		Columns:    map[string]ColumnInfo{},
	}
	if d.SoftDelete != nil {
		info.SoftDeleteColumn = d.SoftDelete.Name
	}
	for _, g := range d.Filters {
		for _, f := range g.Filters {
			info.Filters = append(info.Filters, FilterInfo{
				Title:     f.Title,
				Name:      f.BindParam,
				FieldType: f.FieldType,
			})
		}
	}
	for _, c := range d.Columns {
		info.Columns[c.Name] = ColumnInfo{
			ColumnType:        c.FieldType(),
			Nullable:          c.Nullable,
			IsGetAvailable:    inFields(d.getFields, c.Name),
			IsListAvailable:   inFields(d.listFields, c.Name),
			IsCreateAvailable: inFields(d.createFields, c.Name),
			IsUpdateAvailable: inFields(d.updateFields, c.Name),
			IsSortable:        d.sortable[c.Name],
		}
	}
	return info
}

func inFields(fields []Column, name string) bool {
	for _, c := range fields {
		if c.Name == name {
			return true
		}
	}
	return false
}
