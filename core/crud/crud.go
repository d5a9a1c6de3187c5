package crud

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/meridian-tech/adminpanel/core"
	"github.com/meridian-tech/adminpanel/core/csql"
	"github.com/meridian-tech/adminpanel/core/model"
)

// Engine executes the generated CRUD operations of one entity against
// the storage layer. It holds no request state; a single Engine is
// shared by all requests of an entity.
//
// The shaping hook - when set - is applied to every generated query
// right after the base query is built, so an external caller can impose
// row-level scoping on all operations.
type Engine struct {
	DB   *csql.DB
	Desc *model.Descriptor
	Hook func(Query) Query
}

// ListParams are the parsed query parameters of a list request.
type ListParams struct {
	Page               int
	PageSize           int
	SortBy             string // empty means primary key
	SortAsc            bool
	IncludeSoftDeleted bool
	FilterValues       map[string]interface{}
}

func (e *Engine) table() string {
	return e.DB.Schema + "." + quote(e.Desc.Entity)
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}

func (e *Engine) shape(q Query) Query {
	if e.Hook != nil {
		return e.Hook(q)
	}
	return q
}

// baseQuery builds the shaped single-item query for the given primary
// key value and result projection.
func (e *Engine) baseQuery(fields []model.Column, id interface{}) Query {
	q := NewQuery(e.table()).
		Select(columnNames(fields)...).
		Where(quote(e.Desc.PKey.Name)+" = ?", id)
	return e.shape(q)
}

// GetOne returns the record with the given primary key value, or
// NotFoundError when no row matches after the shaping hook is applied.
func (e *Engine) GetOne(ctx context.Context, id interface{}) (map[string]interface{}, error) {
	fields := e.Desc.ReadFields()
	stmt, args := e.baseQuery(fields, id).SQL()

	values, object := scanValuesAndObject(fields)
	err := e.DB.QueryRowContext(ctx, stmt, args...).Scan(values...)
	if err == csql.ErrNoRows {
		return nil, NotFoundError{Entity: e.Desc.Entity, ItemID: id}
	}
	if err != nil {
		return nil, DatabaseError{Op: "get", Err: err}
	}
	return object(), nil
}

// Create persists a new record from the validated field values and
// returns it re-read from storage, so server-computed defaults and
// timestamps are included.
func (e *Engine) Create(ctx context.Context, fields map[string]interface{}) (map[string]interface{}, error) {
	var insertColumns []string
	var insertArgs []interface{}
	for _, c := range e.Desc.Fields(core.OperationCreate) {
		value, supplied := fields[c.Name]
		if !supplied {
			continue
		}
		coerced, err := c.FieldType().Coerce(value)
		if err != nil {
			return nil, err
		}
		insertColumns = append(insertColumns, quote(c.Name))
		insertArgs = append(insertArgs, driverValue(c, coerced))
	}

	readFields := e.Desc.ReadFields()
	stmt := "INSERT INTO " + e.table()
	if len(insertColumns) == 0 {
		stmt += " DEFAULT VALUES"
	} else {
		stmt += " (" + join(insertColumns) + ") VALUES (" + parameterString(0, len(insertArgs)) + ")"
	}
	stmt += " RETURNING " + join(columnNames(readFields))

	values, object := scanValuesAndObject(readFields)
	if err := e.DB.QueryRowContext(ctx, stmt, insertArgs...).Scan(values...); err != nil {
		return nil, DatabaseError{Op: "create", Err: err}
	}
	return object(), nil
}

// Update loads the record, applies every supplied field plus the given
// overrides and persists the result. It fails with NotFoundError when
// the record does not exist and with NothingToUpdateError when there is
// nothing to apply. Overrides bypass the update column subset; they
// drive the soft-delete and restore paths.
func (e *Engine) Update(ctx context.Context, id interface{}, fields, overrides map[string]interface{}) (map[string]interface{}, error) {
	if _, err := e.GetOne(ctx, id); err != nil {
		return nil, err
	}
	if len(fields) == 0 && len(overrides) == 0 {
		return nil, NothingToUpdateError{Entity: e.Desc.Entity, ItemID: id}
	}

	var setColumns []string
	var setArgs []interface{}
	for _, c := range e.Desc.Fields(core.OperationUpdate) {
		value, supplied := fields[c.Name]
		if !supplied {
			continue
		}
		coerced, err := c.FieldType().Coerce(value)
		if err != nil {
			return nil, err
		}
		setColumns = append(setColumns, quote(c.Name))
		setArgs = append(setArgs, driverValue(c, coerced))
	}
	for name, value := range overrides {
		c, ok := e.Desc.Column(name)
		if !ok {
			continue
		}
		coerced, err := c.FieldType().Coerce(value)
		if err != nil {
			return nil, err
		}
		setColumns = append(setColumns, quote(c.Name))
		setArgs = append(setArgs, driverValue(c, coerced))
	}
	if len(setColumns) == 0 {
		return nil, NothingToUpdateError{Entity: e.Desc.Entity, ItemID: id}
	}

	readFields := e.Desc.ReadFields()
	stmt, args := e.baseQuery(readFields, id).UpdateSQL(setColumns, setArgs)

	values, object := scanValuesAndObject(readFields)
	err := e.DB.QueryRowContext(ctx, stmt, args...).Scan(values...)
	if err == csql.ErrNoRows {
		return nil, NotFoundError{Entity: e.Desc.Entity, ItemID: id}
	}
	if err != nil {
		return nil, DatabaseError{Op: "update", Err: err}
	}
	return object(), nil
}

// SoftDelete hides the record by setting the soft-delete column to its
// hidden value.
func (e *Engine) SoftDelete(ctx context.Context, id interface{}) (map[string]interface{}, error) {
	return e.Update(ctx, id, nil, map[string]interface{}{e.Desc.SoftDelete.Name: false})
}

// Restore undoes a soft delete.
func (e *Engine) Restore(ctx context.Context, id interface{}) (map[string]interface{}, error) {
	return e.Update(ctx, id, nil, map[string]interface{}{e.Desc.SoftDelete.Name: true})
}

// Delete removes the record, failing with NotFoundError when it does not
// exist.
func (e *Engine) Delete(ctx context.Context, id interface{}) error {
	if _, err := e.GetOne(ctx, id); err != nil {
		return err
	}
	stmt, args := e.shape(NewQuery(e.table()).Where(quote(e.Desc.PKey.Name)+" = ?", id)).DeleteSQL()
	if _, err := e.DB.ExecContext(ctx, stmt, args...); err != nil {
		return DatabaseError{Op: "delete", Err: err}
	}
	return nil
}

// DeleteMany removes all records matching the given primary key values
// with a single set-based statement. Keys that match nothing are
// silently skipped; an empty key list is a no-op.
func (e *Engine) DeleteMany(ctx context.Context, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	q := e.shape(NewQuery(e.table()).Where(quote(e.Desc.PKey.Name)+" = ANY(?)", idsArray(ids)))
	stmt, args := q.DeleteSQL()
	if _, err := e.DB.ExecContext(ctx, stmt, args...); err != nil {
		return DatabaseError{Op: "bulk delete", Err: err}
	}
	return nil
}

// SoftDeleteMany hides all records matching the given primary key values
// with a single set-based statement.
func (e *Engine) SoftDeleteMany(ctx context.Context, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	q := e.shape(NewQuery(e.table()).Where(quote(e.Desc.PKey.Name)+" = ANY(?)", idsArray(ids)))
	stmt, args := q.UpdateSQL([]string{quote(e.Desc.SoftDelete.Name)}, []interface{}{false})
	if _, err := e.DB.ExecContext(ctx, stmt, args...); err != nil {
		return DatabaseError{Op: "bulk soft delete", Err: err}
	}
	return nil
}

// List returns one page of records plus the total row count. The page
// and the count are two independent round trips with no shared snapshot;
// under concurrent writes the total may not match the sum of all pages
// observable at the same instant. This staleness window is a documented
// trade-off, not a defect.
func (e *Engine) List(ctx context.Context, p ListParams) (int, []map[string]interface{}, error) {
	fields := e.Desc.Fields(core.OperationGetList)
	q := NewQuery(e.table()).Select(columnNames(fields)...)

	if !p.IncludeSoftDeleted && e.Desc.SoftDelete != nil {
		q = q.Where(quote(e.Desc.SoftDelete.Name)+" = ?", true)
	}

	conds, condArgs, err := e.Desc.ActiveFilters(p.FilterValues)
	if err != nil {
		return 0, nil, err
	}
	for i := range conds {
		q = q.Where(conds[i], condArgs[i]...)
	}
	q = e.shape(q)

	sortColumn := e.Desc.PKey.Name
	if p.SortBy != "" {
		sortColumn = p.SortBy
	}
	pageStmt, pageArgs := q.OrderBy(quote(sortColumn), p.SortAsc).Paginate(p.Page, p.PageSize).SQL()

	rows, err := e.DB.QueryContext(ctx, pageStmt, pageArgs...)
	if err != nil {
		return 0, nil, DatabaseError{Op: "list", Err: err}
	}
	defer rows.Close()

	items := []map[string]interface{}{}
	for rows.Next() {
		values, object := scanValuesAndObject(fields)
		if err := rows.Scan(values...); err != nil {
			return 0, nil, DatabaseError{Op: "list", Err: err}
		}
		items = append(items, object())
	}
	if err := rows.Err(); err != nil {
		return 0, nil, DatabaseError{Op: "list", Err: err}
	}

	countStmt, countArgs := q.CountSQL()
	var total int
	if err := e.DB.QueryRowContext(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return 0, nil, DatabaseError{Op: "count", Err: err}
	}
	return total, items, nil
}

func columnNames(fields []model.Column) []string {
	names := make([]string, len(fields))
	for i, c := range fields {
		names[i] = quote(c.Name)
	}
	return names
}

func join(columns []string) string {
	result := ""
	for i, c := range columns {
		if i > 0 {
			result += ", "
		}
		result += c
	}
	return result
}

// idsArray converts coerced primary key values to a typed pq array.
func idsArray(ids []interface{}) interface{} {
	intIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, ok := id.(int64)
		if !ok {
			intIDs = nil
			break
		}
		intIDs = append(intIDs, n)
	}
	if intIDs != nil {
		return pq.Array(intIDs)
	}
	stringIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		s, ok := id.(string)
		if !ok {
			return pq.Array(ids)
		}
		stringIDs = append(stringIDs, s)
	}
	return pq.Array(stringIDs)
}

// driverValue converts a coerced value to its database/sql
// representation. Arrays need the pq wrapper.
func driverValue(c model.Column, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	if c.FieldType() == model.FieldArray {
		if slice, ok := value.([]string); ok {
			return pq.Array(slice)
		}
	}
	return value
}

// scanValuesAndObject creates scan destinations for one row of the given
// projection plus a closure converting them into a plain JSON-ready
// object. NULLs become nil.
func scanValuesAndObject(fields []model.Column) ([]interface{}, func() map[string]interface{}) {
	values := make([]interface{}, len(fields))
	for i, c := range fields {
		switch c.FieldType() {
		case model.FieldInteger:
			values[i] = &sql.NullInt64{}
		case model.FieldFloat:
			values[i] = &sql.NullFloat64{}
		case model.FieldBoolean:
			values[i] = &sql.NullBool{}
		case model.FieldDateTime:
			values[i] = &sql.NullTime{}
		case model.FieldArray:
			values[i] = &pq.StringArray{}
		default:
			values[i] = &sql.NullString{}
		}
	}
	object := func() map[string]interface{} {
		result := make(map[string]interface{}, len(fields))
		for i, c := range fields {
			result[c.Name] = plainValue(values[i])
		}
		return result
	}
	return values, object
}

func plainValue(scanned interface{}) interface{} {
	switch v := scanned.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullFloat64:
		if v.Valid {
			return v.Float64
		}
	case *sql.NullBool:
		if v.Valid {
			return v.Bool
		}
	case *sql.NullTime:
		if v.Valid {
			return v.Time.UTC().Format(time.RFC3339Nano)
		}
	case *pq.StringArray:
		if *v != nil {
			return []string(*v)
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	}
	return nil
}
