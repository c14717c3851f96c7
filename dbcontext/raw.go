package dbcontext

import (
	"context"
)

// ExecuteNonQuery runs a raw, already-dialect-neutral ('?' placeholder)
// SQL statement that returns no rows — an escape hatch for DDL and
// statements the planner has no typed shape for.
func (c *DataContext) ExecuteNonQuery(ctx context.Context, sqlText string, params ...any) (Result, error) {
	if err := c.checkUsable(); err != nil {
		return Result{}, err
	}
	finalSQL := c.p.dia.RewritePlaceholders(sqlText)
	res, err := c.execRaw(ctx, finalSQL, params)
	if err != nil {
		return Result{}, c.classifyWrite(finalSQL, params, err)
	}
	rows, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return Result{RowsAffected: rows, LastInsertID: lastID}, nil
}

// ExecuteScalar runs a raw SQL query expected to return exactly one
// column of one row, scanning it into T.
func ExecuteScalar[T any](ctx context.Context, c *DataContext, sqlText string, params ...any) (T, error) {
	var out T
	if err := c.checkUsable(); err != nil {
		return out, err
	}
	finalSQL := c.p.dia.RewritePlaceholders(sqlText)
	row, err := c.queryRowRaw(ctx, finalSQL, params)
	if err != nil {
		return out, c.classifyWrite(finalSQL, params, err)
	}
	if err := row.Scan(&out); err != nil {
		return out, c.classifyWrite(finalSQL, params, err)
	}
	return out, nil
}
