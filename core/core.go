package core

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Operation represents one generated admin operation for an entity.
type Operation string

// all supported admin operations
const (
	OperationGetList    Operation = "get_list"
	OperationGetOne     Operation = "get_one"
	OperationCreate     Operation = "create"
	OperationUpdate     Operation = "update"
	OperationSoftDelete Operation = "soft_delete"
	OperationDelete     Operation = "delete"
)

// AllOperations returns every supported operation. This is the default
// set of enabled operations for a registered entity.
func AllOperations() []Operation {
	return []Operation{
		OperationGetList,
		OperationGetOne,
		OperationCreate,
		OperationUpdate,
		OperationSoftDelete,
		OperationDelete,
	}
}

// Valid reports whether o is one of the supported operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationGetList, OperationGetOne, OperationCreate,
		OperationUpdate, OperationSoftDelete, OperationDelete:
		return true
	}
	return false
}

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	if !o.Valid() {
		return fmt.Errorf("%s is not valid Operation", s)
	}
	return nil
}

// Notification describes one successful mutation of an entity. ItemID
// carries the native primary key value; Payload holds the resulting
// record, or nil for hard deletes.
type Notification struct {
	Entity    string                 `json:"entity"`
	Operation Operation              `json:"operation"`
	ItemID    interface{}            `json:"item_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Notifier receives mutation notifications. Implementations must be safe
// for concurrent use; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
