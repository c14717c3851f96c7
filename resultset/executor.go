// Package resultset implements the lazy, restartable query cursor from
// spec §4.6: a result set built from a planned SELECT statement that
// supports further filtering, projection, ordering, paging, set
// combination, scalar convenience queries, and freezing into a stateful
// key list for resumable paging.
package resultset

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/mapping"
)

// Executor is the minimal surface a ResultSet needs from its owning data
// context: run a query, and open a cloned context to load dependent rows
// while the primary reader is still open (some engines forbid more than
// one active reader per connection). dbcontext.DataContext satisfies
// this interface structurally; resultset never imports dbcontext.
type Executor interface {
	QueryRows(ctx context.Context, sql string, params []any) (*sql.Rows, error)
	OpenClonedContext(ctx context.Context) (Executor, error)
}

// scanInto materialises one row into a new T using the mapping's
// column-name-to-field-index table. T must be a struct type registered
// with reg.
func scanInto[T any](rows *sql.Rows, tm *mapping.TableMapping) (T, error) {
	var out T
	cols, err := rows.Columns()
	if err != nil {
		return out, kernelerr.Wrap(kernelerr.KindDbError, "reading result columns", err)
	}

	v := reflect.ValueOf(&out).Elem()
	dests := make([]any, len(cols))
	for i, colName := range cols {
		col, ok := tm.ColumnByName(colName)
		if !ok {
			var discard any
			dests[i] = &discard
			continue
		}
		dests[i] = v.Field(col.FieldIndex()).Addr().Interface()
	}

	if err := rows.Scan(dests...); err != nil {
		return out, kernelerr.Wrap(kernelerr.KindDbError, "scanning result row", err)
	}
	return out, nil
}
