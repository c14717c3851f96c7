package resultset

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/planner"
)

// ResultSet is a lazy, restartable cursor over rows of T. No query runs
// until the set is materialised by Count/Any/First/Single or iterated
// via All; every chaining method (Where/Select/OrderBy/Skip/Take)
// returns a new value, leaving the receiver untouched.
type ResultSet[T any] struct {
	exec Executor
	dia  dialect.Dialect
	reg  *mapping.Registry
	pl   *planner.Planner
	q    planner.Query
}

// New constructs a ResultSet over q, not yet executed.
func New[T any](exec Executor, dia dialect.Dialect, reg *mapping.Registry, pl *planner.Planner, q planner.Query) *ResultSet[T] {
	return &ResultSet[T]{exec: exec, dia: dia, reg: reg, pl: pl, q: q}
}

func (r *ResultSet[T]) clone() *ResultSet[T] {
	nr := *r
	return &nr
}

// Where ANDs an additional predicate onto the set.
func (r *ResultSet[T]) Where(e planner.Expr) *ResultSet[T] {
	nr := r.clone()
	if nr.q.Where == nil {
		nr.q.Where = e
	} else {
		nr.q.Where = planner.And(nr.q.Where, e)
	}
	return nr
}

// Select reduces the projection to the given fields.
func (r *ResultSet[T]) Select(fields ...planner.Field) *ResultSet[T] {
	nr := r.clone()
	nr.q.Projection = fields
	return nr
}

// OrderBy appends an ascending ORDER BY entry.
func (r *ResultSet[T]) OrderBy(f planner.Field) *ResultSet[T] {
	nr := r.clone()
	nr.q.Order = append(append([]planner.Order(nil), r.q.Order...), planner.Order{Target: f})
	return nr
}

// OrderByDescending appends a descending ORDER BY entry.
func (r *ResultSet[T]) OrderByDescending(f planner.Field) *ResultSet[T] {
	nr := r.clone()
	nr.q.Order = append(append([]planner.Order(nil), r.q.Order...), planner.Order{Target: f, Desc: true})
	return nr
}

// GroupBy aggregates rows sharing the same values of fields into a single
// row each, per SQL GROUP BY semantics.
func (r *ResultSet[T]) GroupBy(fields ...planner.Field) *ResultSet[T] {
	nr := r.clone()
	nr.q.GroupBy = append(append([]planner.Field(nil), r.q.GroupBy...), fields...)
	return nr
}

// Having ANDs an additional predicate evaluated after GroupBy, the way
// SQL HAVING filters grouped rows rather than the ungrouped source rows
// Where filters.
func (r *ResultSet[T]) Having(e planner.Expr) *ResultSet[T] {
	nr := r.clone()
	if nr.q.Having == nil {
		nr.q.Having = e
	} else {
		nr.q.Having = planner.And(nr.q.Having, e)
	}
	return nr
}

// Skip sets the row-skip count.
func (r *ResultSet[T]) Skip(n int) *ResultSet[T] {
	nr := r.clone()
	nr.q.Skip = &n
	return nr
}

// Take sets the row-count cap.
func (r *ResultSet[T]) Take(n int) *ResultSet[T] {
	nr := r.clone()
	nr.q.Take = &n
	return nr
}

func (r *ResultSet[T]) planSQL() (*planner.PlanResult, error) {
	return r.pl.Select(r.q)
}

// All materialises every row.
func (r *ResultSet[T]) All(ctx context.Context) ([]T, error) {
	plan, err := r.planSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.exec.QueryRows(ctx, plan.SQL, plan.Params)
	if err != nil {
		return nil, kernelerr.DbError(plan.SQL, plan.Params, "", err)
	}
	defer rows.Close()

	tm, err := r.reg.Get(r.q.Root)
	if err != nil {
		return nil, err
	}
	var out []T
	for rows.Next() {
		row, err := scanInto[T](rows, tm)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, kernelerr.Wrap(kernelerr.KindDbError, "iterating result rows", err)
	}
	return out, nil
}

// Count executes a row-count query without materialising rows.
func (r *ResultSet[T]) Count(ctx context.Context) (int64, error) {
	plan, err := r.planSQL()
	if err != nil {
		return 0, err
	}
	countSQL := r.dia.RewritePlaceholders(r.dia.CountWrap(plan.GenericSQL))
	rows, err := r.exec.QueryRows(ctx, countSQL, plan.Params)
	if err != nil {
		return 0, kernelerr.DbError(countSQL, plan.Params, "", err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, kernelerr.Wrap(kernelerr.KindDbError, "scanning count result", err)
		}
	}
	return n, nil
}

// Any reports whether the set has at least one matching row.
func (r *ResultSet[T]) Any(ctx context.Context) (bool, error) {
	plan, err := r.planSQL()
	if err != nil {
		return false, err
	}
	existsSQL := r.dia.RewritePlaceholders(r.dia.ExistsWrap(plan.GenericSQL))
	rows, err := r.exec.QueryRows(ctx, existsSQL, plan.Params)
	if err != nil {
		return false, kernelerr.DbError(existsSQL, plan.Params, "", err)
	}
	defer rows.Close()
	var v int64
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return false, kernelerr.Wrap(kernelerr.KindDbError, "scanning exists result", err)
		}
	}
	return v != 0, nil
}

// Sum returns the sum of field across every matching row, 0 if none
// match.
func (r *ResultSet[T]) Sum(ctx context.Context, field planner.Field) (float64, error) {
	return r.aggregateScalar(ctx, "SUM", field)
}

// Avg returns the average of field across every matching row, 0 if none
// match.
func (r *ResultSet[T]) Avg(ctx context.Context, field planner.Field) (float64, error) {
	return r.aggregateScalar(ctx, "AVG", field)
}

// Max returns the largest value of field across every matching row, 0 if
// none match.
func (r *ResultSet[T]) Max(ctx context.Context, field planner.Field) (float64, error) {
	return r.aggregateScalar(ctx, "MAX", field)
}

// Min returns the smallest value of field across every matching row, 0 if
// none match.
func (r *ResultSet[T]) Min(ctx context.Context, field planner.Field) (float64, error) {
	return r.aggregateScalar(ctx, "MIN", field)
}

// aggregateScalar wraps the planned statement as a derived table and
// scans a single aggregate value from it, the same subquery shape
// CountWrap uses for COUNT(*): SELECT <fn>(col) FROM (<stmt>) Q0.
func (r *ResultSet[T]) aggregateScalar(ctx context.Context, fn string, field planner.Field) (float64, error) {
	if len(field.Path) != 1 {
		return 0, kernelerr.Mapping("planner: aggregate functions only support a direct column reference")
	}
	tm, err := r.reg.Get(r.q.Root)
	if err != nil {
		return 0, err
	}
	col, ok := tm.ColumnByField(field.Path[0])
	if !ok {
		return 0, kernelerr.Mapping("%s has no mapped field %q", tm.TableName, field.Path[0])
	}

	nr := r.clone()
	nr.q.Projection = []planner.Field{field}
	nr.q.IncludeSecret = true

	plan, err := nr.planSQL()
	if err != nil {
		return 0, err
	}
	aggSQL := r.dia.RewritePlaceholders(fmt.Sprintf("SELECT %s(%s) FROM (%s) Q0", fn, r.dia.QuoteIdentifier(col.ColumnName), plan.GenericSQL))
	rows, err := r.exec.QueryRows(ctx, aggSQL, plan.Params)
	if err != nil {
		return 0, kernelerr.DbError(aggSQL, plan.Params, "", err)
	}
	defer rows.Close()
	var v sql.NullFloat64
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return 0, kernelerr.Wrap(kernelerr.KindDbError, "scanning aggregate result", err)
		}
	}
	return v.Float64, rows.Err()
}

// First returns the first matching row, applying an implicit Take(1).
func (r *ResultSet[T]) First(ctx context.Context) (T, error) {
	rows, err := r.Take(1).All(ctx)
	var zero T
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, kernelerr.NoRows
	}
	return rows[0], nil
}

// FirstOrDefault is First without erroring when no row matches.
func (r *ResultSet[T]) FirstOrDefault(ctx context.Context) (T, bool, error) {
	rows, err := r.Take(1).All(ctx)
	var zero T
	if err != nil {
		return zero, false, err
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	return rows[0], true, nil
}

// Single requires exactly one matching row, failing with MoreThanOne
// otherwise.
func (r *ResultSet[T]) Single(ctx context.Context) (T, error) {
	rows, err := r.Take(2).All(ctx)
	var zero T
	if err != nil {
		return zero, err
	}
	switch len(rows) {
	case 0:
		return zero, kernelerr.NoRows
	case 1:
		return rows[0], nil
	default:
		return zero, kernelerr.MoreThanOne
	}
}

// SingleOrDefault is Single without erroring when no row matches; it
// still fails with MoreThanOne for more than one match.
func (r *ResultSet[T]) SingleOrDefault(ctx context.Context) (T, bool, error) {
	rows, err := r.Take(2).All(ctx)
	var zero T
	if err != nil {
		return zero, false, err
	}
	switch len(rows) {
	case 0:
		return zero, false, nil
	case 1:
		return rows[0], true, nil
	default:
		return zero, false, kernelerr.MoreThanOne
	}
}

// Keys returns the primary-key values of every matching row without
// loading full rows.
func (r *ResultSet[T]) Keys(ctx context.Context) ([]any, error) {
	tm, err := r.reg.Get(r.q.Root)
	if err != nil {
		return nil, err
	}
	pkFields := make([]planner.Field, len(tm.PrimaryKeys))
	for i, pk := range tm.PrimaryKeys {
		pkFields[i] = planner.Field{Path: []string{pk.FieldName}}
	}
	nr := r.clone()
	nr.q.Projection = pkFields
	nr.q.IncludeSecret = true

	plan, err := nr.planSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.exec.QueryRows(ctx, plan.SQL, plan.Params)
	if err != nil {
		return nil, kernelerr.DbError(plan.SQL, plan.Params, "", err)
	}
	defer rows.Close()

	var keys []any
	for rows.Next() {
		vals := make([]any, len(pkFields))
		ptrs := make([]any, len(pkFields))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, kernelerr.Wrap(kernelerr.KindDbError, "scanning key row", err)
		}
		if len(vals) == 1 {
			keys = append(keys, vals[0])
		} else {
			keys = append(keys, vals)
		}
	}
	return keys, rows.Err()
}

// Union combines this set with other via SQL UNION (duplicates removed).
func (r *ResultSet[T]) Union(ctx context.Context, other *ResultSet[T]) ([]T, error) {
	return r.combine(ctx, other, "UNION")
}

// Intersect combines this set with other via SQL INTERSECT.
func (r *ResultSet[T]) Intersect(ctx context.Context, other *ResultSet[T]) ([]T, error) {
	return r.combine(ctx, other, "INTERSECT")
}

func (r *ResultSet[T]) combine(ctx context.Context, other *ResultSet[T], op string) ([]T, error) {
	left, err := r.planSQL()
	if err != nil {
		return nil, err
	}
	right, err := other.planSQL()
	if err != nil {
		return nil, err
	}
	combinedSQL := r.dia.RewritePlaceholders(fmt.Sprintf("%s %s %s", left.GenericSQL, op, right.GenericSQL))
	params := append(append([]any(nil), left.Params...), right.Params...)

	rows, err := r.exec.QueryRows(ctx, combinedSQL, params)
	if err != nil {
		return nil, kernelerr.DbError(combinedSQL, params, "", err)
	}
	defer rows.Close()

	tm, err := r.reg.Get(r.q.Root)
	if err != nil {
		return nil, err
	}
	var out []T
	for rows.Next() {
		row, err := scanInto[T](rows, tm)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
