package storage

import (
	"fmt"
	"strings"
)

// Op is a filter comparison operator.
type Op string

// Supported filter operators.
const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpNull   Op = "null"
	OpNotNul Op = "notnull"
)

// Cond is a single filter condition on a named field.
type Cond struct {
	Field string
	Op    Op
	Value interface{}
}

// Filters is a conjunction of conditions.
type Filters []Cond

// Where appends a condition and returns the extended filter set.
func (f Filters) Where(field string, op Op, value interface{}) Filters {
	return append(f, Cond{Field: field, Op: op, Value: value})
}

// Page describes a pagination request.
type Page struct {
	Page     int
	PageSize int
}

// Normalize clamps the page request to sane values.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 25
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p
}

// LimitOffset converts the page request to SQL limit/offset.
func (p Page) LimitOffset() (int, int) {
	p = p.Normalize()
	return p.PageSize, (p.Page - 1) * p.PageSize
}

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

// buildWhere renders a WHERE clause from filters using a field-to-column
// whitelist. Unknown fields are rejected so caller-supplied filter names can
// never reach SQL.
func buildWhere(filters Filters, columns map[string]string) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var (
		clauses []string
		args    []interface{}
	)

	for _, c := range filters {
		col, ok := columns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown filter field %q", ErrInvalidData, c.Field)
		}

		switch c.Op {
		case OpNull:
			clauses = append(clauses, col+" IS NULL")
		case OpNotNul:
			clauses = append(clauses, col+" IS NOT NULL")
		default:
			op, ok := sqlOps[c.Op]
			if !ok {
				return "", nil, fmt.Errorf("%w: unknown filter op %q", ErrInvalidData, c.Op)
			}
			args = append(args, c.Value)
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", col, op, len(args)))
		}
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
