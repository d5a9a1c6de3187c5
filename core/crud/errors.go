package crud

import "fmt"

// NotFoundError is returned when a get, update or delete target does not
// exist after the shaping hook has been applied.
type NotFoundError struct {
	Entity string
	ItemID interface{}
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("can't find %s with id %v", e.Entity, e.ItemID)
}

// NothingToUpdateError is returned when update is invoked with neither a
// payload nor overrides. No-op updates are rejected, not silently
// accepted.
type NothingToUpdateError struct {
	Entity string
	ItemID interface{}
}

func (e NothingToUpdateError) Error() string {
	return fmt.Sprintf("nothing to update at item %v of %s", e.ItemID, e.Entity)
}

// DatabaseError wraps a storage-layer failure such as a constraint
// violation. The original cause is kept for diagnostics.
type DatabaseError struct {
	Op  string
	Err error
}

func (e DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e DatabaseError) Unwrap() error {
	return e.Err
}
