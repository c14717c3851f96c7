package dbcontext

import (
	"context"
	"reflect"

	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/planner"
	"github.com/santedb-go/relorm/resultset"
)

// Set is the context-bound query cursor returned by Query[T]. It wraps
// resultset.ResultSet[T] with the two concerns that live above the
// planner/resultset layer: application-level decryption of encrypted
// columns on every row read, and per-context identity caching keyed by
// primary key (spec §4.5/§4.8 — "the adapter plugs into the data
// context's value-binding and row-reading paths," not into ResultSet
// generically, since ResultSet has no notion of encryption).
type Set[T any] struct {
	c    *DataContext
	rs   *resultset.ResultSet[T]
	tm   *mapping.TableMapping
}

// Query opens a cursor over the rows of T matching predicate (every row
// when predicate is nil).
func Query[T any](c *DataContext, predicate planner.Expr) *Set[T] {
	t := rootType[T]()
	tm, _ := c.p.reg.Get(t) // resolved lazily; a bad T surfaces on first terminal op
	pl := planner.New(c.p.reg, c.p.dia).WithEncryption(c.p.enc)
	rs := resultset.New[T](c, c.p.dia, c.p.reg, pl, planner.Query{Root: t, Where: predicate})
	return &Set[T]{c: c, rs: rs, tm: tm}
}

func (s *Set[T]) clone(rs *resultset.ResultSet[T]) *Set[T] {
	return &Set[T]{c: s.c, rs: rs, tm: s.tm}
}

func (s *Set[T]) Where(e planner.Expr) *Set[T]  { return s.clone(s.rs.Where(e)) }
func (s *Set[T]) Select(f ...planner.Field) *Set[T] { return s.clone(s.rs.Select(f...)) }
func (s *Set[T]) OrderBy(f planner.Field) *Set[T]   { return s.clone(s.rs.OrderBy(f)) }
func (s *Set[T]) OrderByDescending(f planner.Field) *Set[T] {
	return s.clone(s.rs.OrderByDescending(f))
}
func (s *Set[T]) Skip(n int) *Set[T] { return s.clone(s.rs.Skip(n)) }
func (s *Set[T]) Take(n int) *Set[T] { return s.clone(s.rs.Take(n)) }
func (s *Set[T]) GroupBy(f ...planner.Field) *Set[T] { return s.clone(s.rs.GroupBy(f...)) }
func (s *Set[T]) Having(e planner.Expr) *Set[T]      { return s.clone(s.rs.Having(e)) }

func (s *Set[T]) All(ctx context.Context) ([]T, error) {
	rows, err := s.rs.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if err := s.c.decryptRow(s.tm, &rows[i]); err != nil {
			return nil, err
		}
		s.c.rememberValue(s.tm, rows[i])
	}
	return rows, nil
}

func (s *Set[T]) First(ctx context.Context) (T, error) {
	row, err := s.rs.First(ctx)
	if err != nil {
		return row, err
	}
	if err := s.c.decryptRow(s.tm, &row); err != nil {
		return row, err
	}
	s.c.rememberValue(s.tm, row)
	return row, nil
}

func (s *Set[T]) FirstOrDefault(ctx context.Context) (T, bool, error) {
	row, ok, err := s.rs.FirstOrDefault(ctx)
	if err != nil || !ok {
		return row, ok, err
	}
	if err := s.c.decryptRow(s.tm, &row); err != nil {
		return row, ok, err
	}
	s.c.rememberValue(s.tm, row)
	return row, ok, nil
}

func (s *Set[T]) Single(ctx context.Context) (T, error) {
	row, err := s.rs.Single(ctx)
	if err != nil {
		return row, err
	}
	if err := s.c.decryptRow(s.tm, &row); err != nil {
		return row, err
	}
	s.c.rememberValue(s.tm, row)
	return row, nil
}

func (s *Set[T]) SingleOrDefault(ctx context.Context) (T, bool, error) {
	row, ok, err := s.rs.SingleOrDefault(ctx)
	if err != nil || !ok {
		return row, ok, err
	}
	if err := s.c.decryptRow(s.tm, &row); err != nil {
		return row, ok, err
	}
	s.c.rememberValue(s.tm, row)
	return row, ok, nil
}

func (s *Set[T]) Count(ctx context.Context) (int64, error) { return s.rs.Count(ctx) }
func (s *Set[T]) Any(ctx context.Context) (bool, error)    { return s.rs.Any(ctx) }
func (s *Set[T]) Keys(ctx context.Context) ([]any, error)  { return s.rs.Keys(ctx) }

func (s *Set[T]) Sum(ctx context.Context, f planner.Field) (float64, error) { return s.rs.Sum(ctx, f) }
func (s *Set[T]) Avg(ctx context.Context, f planner.Field) (float64, error) { return s.rs.Avg(ctx, f) }
func (s *Set[T]) Max(ctx context.Context, f planner.Field) (float64, error) { return s.rs.Max(ctx, f) }
func (s *Set[T]) Min(ctx context.Context, f planner.Field) (float64, error) { return s.rs.Min(ctx, f) }

// AsStateful freezes this set's matching primary keys into a
// resultset.StatefulQuerySet for resumable, persisted paging (spec §4.6).
func (s *Set[T]) AsStateful(ctx context.Context, svc resultset.QueryPersistenceService, id string) (*resultset.StatefulQuerySet[T], error) {
	return s.rs.AsStateful(ctx, svc, id)
}

// Get loads the single row of T identified by pk, consulting the
// per-context cache first when EnableCache(T) has been called.
func Get[T any](ctx context.Context, c *DataContext, pk any) (T, error) {
	t := rootType[T]()
	var zero T
	if c.cacheOn[t] {
		if v, ok := c.cache[cacheKey{t: t, pk: pk}]; ok {
			return v.(T), nil
		}
	}
	tm, err := c.p.reg.Get(t)
	if err != nil {
		return zero, err
	}
	if len(tm.PrimaryKeys) != 1 {
		return zero, kernelerr.InvalidState("Get requires a single-column primary key on %s", tm.TableName)
	}
	row, err := Query[T](c, planner.Eq([]string{tm.PrimaryKeys[0].FieldName}, pk)).First(ctx)
	if err != nil {
		return zero, err
	}
	return row, nil
}

// EnableCache turns on per-context identity caching for T: after this
// call, Get[T] and every write (Insert/Update) populate the cache, and
// Update/Delete invalidate the cached entry for the written row.
func EnableCache[T any](c *DataContext) {
	c.cacheOn[rootType[T]()] = true
}

// decryptRow replaces every ApplicationEncrypted field's scanned value
// with its plaintext, in place. A no-op when no encryption adapter is
// configured or the mapping has no encrypted columns.
func (c *DataContext) decryptRow(tm *mapping.TableMapping, row any) error {
	if c.p.enc == nil || tm == nil {
		return nil
	}
	v := reflect.ValueOf(row).Elem()
	for _, col := range tm.Columns {
		if !col.ApplicationEncrypted {
			continue
		}
		fv := v.Field(col.FieldIndex())
		plain, err := c.p.enc.DecryptValue(fv.Interface())
		if err != nil {
			return err
		}
		if err := setField(v, col.FieldIndex(), plain); err != nil {
			return err
		}
	}
	return nil
}

func (c *DataContext) rememberValue(tm *mapping.TableMapping, row any) {
	if tm == nil || len(tm.PrimaryKeys) != 1 {
		return
	}
	t := tm.GoType
	if !c.cacheOn[t] {
		return
	}
	v := reflect.ValueOf(row)
	pkVal := v.Field(tm.PrimaryKeys[0].FieldIndex()).Interface()
	c.cache[cacheKey{t: t, pk: pkVal}] = row
}
