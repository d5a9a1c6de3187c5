package model

import (
	"github.com/meridian-tech/adminpanel/core"
)

// EntityConfiguration is the declarative description of one entity
// exposed through the admin surface. It is part of the backend's JSON
// configuration document.
//
// Column subsets are given by column name. Unset subsets get defaults:
// list and get expose all columns, create and update expose all non-key
// columns, sortable is restricted to the key columns.
type EntityConfiguration struct {
	Entity            string           `json:"entity"`
	Title             string           `json:"title"`
	Emoji             string           `json:"emoji"`
	PKeyColumn        string           `json:"pkey_column"`
	Columns           []Column         `json:"columns"`
	EnabledOperations []core.Operation `json:"enabled_operations"`
	ListColumns       []string         `json:"list_columns"`
	GetColumns        []string         `json:"get_columns"`
	CreateColumns     []string         `json:"create_columns"`
	UpdateColumns     []string         `json:"update_columns"`
	SortableColumns   []string         `json:"sortable_columns"`
	SoftDeleteColumn  string           `json:"soft_delete_column"`
	ExcludedColumns   []string         `json:"excluded_columns"`
	Filters           []FilterGroup    `json:"filters"`
}
