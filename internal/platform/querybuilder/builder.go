package querybuilder

import (
	"fmt"
	"strconv"
	"strings"
)

// argList collects positional arguments and hands out $n placeholders in
// order. Postgres numbering starts at 1.
type argList struct {
	values []any
}

func (a *argList) bind(value any) string {
	a.values = append(a.values, value)
	return "$" + strconv.Itoa(len(a.values))
}

// rewrite replaces each ? in expr with the next $n placeholder, binding
// exprArgs in order. Extra ? marks beyond the args are left untouched.
func (a *argList) rewrite(expr string, exprArgs []any) string {
	if len(exprArgs) == 0 {
		return expr
	}
	var out strings.Builder
	next := 0
	for i := 0; i < len(expr); i++ {
		if expr[i] == '?' && next < len(exprArgs) {
			out.WriteString(a.bind(exprArgs[next]))
			next++
			continue
		}
		out.WriteByte(expr[i])
	}
	return out.String()
}

type Condition interface {
	render(args *argList) string
}

type eqCondition struct {
	column string
	value  any
}

func Eq(column string, value any) Condition {
	return eqCondition{column: column, value: value}
}

func (c eqCondition) render(args *argList) string {
	return c.column + " = " + args.bind(c.value)
}

type inCondition struct {
	column string
	values []any
}

func In(column string, values []any) Condition {
	return inCondition{column: column, values: values}
}

func (c inCondition) render(args *argList) string {
	// An empty IN list matches nothing rather than producing invalid SQL.
	if len(c.values) == 0 {
		return "1=0"
	}
	placeholders := make([]string, len(c.values))
	for i, v := range c.values {
		placeholders[i] = args.bind(v)
	}
	return c.column + " IN (" + strings.Join(placeholders, ", ") + ")"
}

type exprCondition struct {
	expr string
	args []any
}

func Expr(expr string, args ...any) Condition {
	return exprCondition{expr: expr, args: args}
}

func (c exprCondition) render(args *argList) string {
	return args.rewrite(c.expr, c.args)
}

func renderWhere(conditions []Condition, args *argList) string {
	if len(conditions) == 0 {
		return ""
	}
	parts := make([]string, len(conditions))
	for i, c := range conditions {
		parts[i] = c.render(args)
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

type SelectBuilder struct {
	columns []string
	table   string
	where   []Condition
	orderBy []string
	limit   int
	offset  int
}

func Select(columns ...string) *SelectBuilder {
	return &SelectBuilder{columns: append([]string(nil), columns...)}
}

func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.table = table
	return b
}

func (b *SelectBuilder) Where(conditions ...Condition) *SelectBuilder {
	b.where = append(b.where, conditions...)
	return b
}

func (b *SelectBuilder) OrderBy(parts ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, parts...)
	return b
}

func (b *SelectBuilder) Limit(limit int) *SelectBuilder {
	b.limit = limit
	return b
}

func (b *SelectBuilder) Offset(offset int) *SelectBuilder {
	b.offset = offset
	return b
}

func (b *SelectBuilder) ToSQL() (string, []any, error) {
	if len(b.columns) == 0 {
		return "", nil, fmt.Errorf("select columns are required")
	}
	if strings.TrimSpace(b.table) == "" {
		return "", nil, fmt.Errorf("select table is required")
	}

	var args argList
	sql := "SELECT " + strings.Join(b.columns, ", ") + " FROM " + b.table
	sql += renderWhere(b.where, &args)
	if len(b.orderBy) > 0 {
		sql += " ORDER BY " + strings.Join(b.orderBy, ", ")
	}
	if b.limit > 0 {
		sql += " LIMIT " + strconv.Itoa(b.limit)
	}
	if b.offset > 0 {
		sql += " OFFSET " + strconv.Itoa(b.offset)
	}

	return sql, args.values, nil
}

type InsertBuilder struct {
	table   string
	columns []string
	rows    [][]any
	suffix  string
}

func InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

func (b *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	b.columns = append([]string(nil), columns...)
	return b
}

func (b *InsertBuilder) Values(values ...any) *InsertBuilder {
	b.rows = append(b.rows, append([]any(nil), values...))
	return b
}

// Suffix appends trailing SQL, typically an ON CONFLICT clause.
func (b *InsertBuilder) Suffix(sql string) *InsertBuilder {
	b.suffix = strings.TrimSpace(sql)
	return b
}

func (b *InsertBuilder) ToSQL() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" {
		return "", nil, fmt.Errorf("insert table is required")
	}
	if len(b.columns) == 0 {
		return "", nil, fmt.Errorf("insert columns are required")
	}
	if len(b.rows) == 0 {
		return "", nil, fmt.Errorf("insert values are required")
	}

	var args argList
	rows := make([]string, len(b.rows))
	for rowIdx, row := range b.rows {
		if len(row) != len(b.columns) {
			return "", nil, fmt.Errorf("insert row %d has %d values, expected %d", rowIdx, len(row), len(b.columns))
		}
		placeholders := make([]string, len(row))
		for colIdx, value := range row {
			placeholders[colIdx] = args.bind(value)
		}
		rows[rowIdx] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	sql := "INSERT INTO " + b.table + " (" + strings.Join(b.columns, ", ") + ") VALUES " + strings.Join(rows, ", ")
	if b.suffix != "" {
		sql += " " + args.rewrite(b.suffix, nil)
	}

	return sql, args.values, nil
}

type setClause struct {
	column string
	value  any
	expr   *exprCondition
}

type UpdateBuilder struct {
	table string
	sets  []setClause
	where []Condition
}

func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

func (b *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	b.sets = append(b.sets, setClause{column: column, value: value})
	return b
}

func (b *UpdateBuilder) SetExpr(column, expr string, args ...any) *UpdateBuilder {
	b.sets = append(b.sets, setClause{
		column: column,
		expr:   &exprCondition{expr: expr, args: args},
	})
	return b
}

func (b *UpdateBuilder) Where(conditions ...Condition) *UpdateBuilder {
	b.where = append(b.where, conditions...)
	return b
}

func (b *UpdateBuilder) ToSQL() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" {
		return "", nil, fmt.Errorf("update table is required")
	}
	if len(b.sets) == 0 {
		return "", nil, fmt.Errorf("update sets are required")
	}

	var args argList
	sets := make([]string, len(b.sets))
	for i, s := range b.sets {
		if s.expr != nil {
			sets[i] = s.column + " = " + args.rewrite(s.expr.expr, s.expr.args)
			continue
		}
		sets[i] = s.column + " = " + args.bind(s.value)
	}

	sql := "UPDATE " + b.table + " SET " + strings.Join(sets, ", ")
	sql += renderWhere(b.where, &args)

	return sql, args.values, nil
}
