/*
Package crud executes the generated admin operations against postgres.

The package is built around an immutable Query value: every refinement -
predicates, sorting, pagination - returns a new Query, which makes the
caller-supplied shaping hook a plain function from Query to Query and
keeps composed queries testable without a database.
*/
package crud

import (
	"strconv"
	"strings"
)

// Query is an immutable select/update/delete statement builder.
// Predicates use ? placeholders which are renumbered to postgres $n
// parameters when the statement is rendered.
type Query struct {
	table   string
	columns []string
	conds   []string
	args    []interface{}
	orderBy string
	asc     bool
	page    int
	limit   int
}

// NewQuery starts a query on the given (schema-qualified) table.
func NewQuery(table string) Query {
	return Query{table: table, asc: true}
}

// Select returns a new query with the given result columns.
func (q Query) Select(columns ...string) Query {
	q.columns = append([]string(nil), columns...)
	return q
}

// Where returns a new query with the condition ANDed in. The condition
// uses ? placeholders for its arguments.
func (q Query) Where(cond string, args ...interface{}) Query {
	q.conds = append(append([]string(nil), q.conds...), cond)
	q.args = append(append([]interface{}(nil), q.args...), args...)
	return q
}

// OrderBy returns a new query ordered by the column.
func (q Query) OrderBy(column string, ascending bool) Query {
	q.orderBy = column
	q.asc = ascending
	return q
}

// Paginate returns a new query limited to one page. Pages are 1-based;
// the offset is (page-1)*size.
func (q Query) Paginate(page, size int) Query {
	q.page = page
	q.limit = size
	return q
}

// SQL renders the select statement and its parameters.
func (q Query) SQL() (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(q.columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(q.table)
	args := q.writeWhere(&sb, 0)
	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.orderBy)
		if q.asc {
			sb.WriteString(" ASC")
		} else {
			sb.WriteString(" DESC")
		}
	}
	if q.limit > 0 {
		n := len(args)
		sb.WriteString(" LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2))
		args = append(args, q.limit, (q.page-1)*q.limit)
	}
	return sb.String(), args
}

// CountSQL renders a count statement with the same predicates but
// without ordering and pagination.
func (q Query) CountSQL() (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT count(*) FROM ")
	sb.WriteString(q.table)
	args := q.writeWhere(&sb, 0)
	return sb.String(), args
}

// DeleteSQL renders a delete statement with the query's predicates.
func (q Query) DeleteSQL() (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(q.table)
	args := q.writeWhere(&sb, 0)
	return sb.String(), args
}

// UpdateSQL renders an update statement setting the given columns to the
// given values, constrained by the query's predicates. When the query
// has result columns they are returned via RETURNING.
func (q Query) UpdateSQL(setColumns []string, setArgs []interface{}) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(q.table)
	sb.WriteString(" SET ")
	for i, col := range setColumns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col + " = $" + strconv.Itoa(i+1))
	}
	args := append([]interface{}(nil), setArgs...)
	args = append(args, q.writeWhere(&sb, len(setArgs))...)
	if len(q.columns) > 0 {
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(q.columns, ", "))
	}
	return sb.String(), args
}

// writeWhere renders the WHERE clause with placeholders renumbered
// starting after offset and returns the full argument list so far.
func (q Query) writeWhere(sb *strings.Builder, offset int) []interface{} {
	if len(q.conds) > 0 {
		sb.WriteString(" WHERE ")
		n := offset
		for i, cond := range q.conds {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString("(")
			sb.WriteString(renumber(cond, &n))
			sb.WriteString(")")
		}
	}
	return append([]interface{}(nil), q.args...)
}

// renumber replaces each ? in the fragment with the next $n parameter.
func renumber(fragment string, n *int) string {
	var sb strings.Builder
	for i := 0; i < len(fragment); i++ {
		if fragment[i] == '?' {
			*n++
			sb.WriteString("$" + strconv.Itoa(*n))
		} else {
			sb.WriteByte(fragment[i])
		}
	}
	return sb.String()
}

// returns $offset+1,...,$offset+n
func parameterString(offset, n int) string {
	result := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			result += ","
		}
		result += "$" + strconv.Itoa(offset+i+1)
	}
	return result
}
