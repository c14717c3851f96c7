package resultset

import (
	"context"
	"reflect"

	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/planner"
)

// QueryPersistenceService is the external collaborator that stores a
// stateful query's key list across requests/contexts. The core only
// consumes this contract; nothing in this module implements it.
type QueryPersistenceService interface {
	IsRegistered(ctx context.Context, id string) (bool, error)
	RegisterQuerySet(ctx context.Context, id string, keys []any, sourceSQL string, totalCount int64) error
	QueryResultTotalQuantity(ctx context.Context, id string) (int64, error)
	QueryResultKeys(ctx context.Context, id string, offset, count int) ([]any, error)
}

// StatefulQuerySet is a persisted, ordered sequence of primary-key
// values tied to an opaque stateful id, resumable across contexts.
type StatefulQuerySet[T any] struct {
	svc       QueryPersistenceService
	id        string
	sourceSQL string
	rehydrate func(ctx context.Context, keys []any) ([]T, error)
}

// Count returns the total number of keys registered under this
// stateful id.
func (s *StatefulQuerySet[T]) Count(ctx context.Context) (int64, error) {
	return s.svc.QueryResultTotalQuantity(ctx, s.id)
}

// Page fetches the rows for the key range [offset, offset+count) and
// rehydrates them into T via the owning ResultSet's primary-key lookup.
func (s *StatefulQuerySet[T]) Page(ctx context.Context, offset, count int) ([]T, error) {
	keys, err := s.svc.QueryResultKeys(ctx, s.id, offset, count)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return s.rehydrate(ctx, keys)
}

// AsStateful freezes the current key set under id, or rebuilds a
// StatefulQuerySet from an id the persistence service already knows
// about. Per spec: if id is known, rebuild from the stored key list;
// otherwise materialise the current key set, register it, and return
// a fresh stateful set.
func (r *ResultSet[T]) AsStateful(ctx context.Context, svc QueryPersistenceService, id string) (*StatefulQuerySet[T], error) {
	if svc == nil {
		return nil, kernelerr.InvalidState("AsStateful requires a non-nil query persistence service")
	}

	rehydrate := func(ctx context.Context, keys []any) ([]T, error) {
		return r.rehydrateByKeys(ctx, keys)
	}

	known, err := svc.IsRegistered(ctx, id)
	if err != nil {
		return nil, err
	}
	if known {
		return &StatefulQuerySet[T]{svc: svc, id: id, rehydrate: rehydrate}, nil
	}

	keys, err := r.Keys(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := r.planSQL()
	if err != nil {
		return nil, err
	}
	if err := svc.RegisterQuerySet(ctx, id, keys, plan.SQL, int64(len(keys))); err != nil {
		return nil, err
	}
	return &StatefulQuerySet[T]{svc: svc, id: id, sourceSQL: plan.SQL, rehydrate: rehydrate}, nil
}

// rehydrateByKeys loads full rows for the given primary-key values in
// one round trip, then reorders the result to match keys (the
// underlying OR'd-equality query has no guaranteed row order).
func (r *ResultSet[T]) rehydrateByKeys(ctx context.Context, keys []any) ([]T, error) {
	tm, err := r.reg.Get(r.q.Root)
	if err != nil {
		return nil, err
	}
	if len(tm.PrimaryKeys) != 1 {
		return nil, kernelerr.InvalidState("stateful rehydration requires a single-column primary key")
	}
	pkPath := []string{tm.PrimaryKeys[0].FieldName}

	exprs := make([]planner.Expr, len(keys))
	for i, k := range keys {
		exprs[i] = planner.Eq(pkPath, k)
	}

	nr := r.clone()
	nr.q.Where = planner.Or(exprs...)
	nr.q.Skip, nr.q.Take = nil, nil
	rows, err := nr.All(ctx)
	if err != nil {
		return nil, err
	}

	pkIndex := tm.PrimaryKeys[0].FieldIndex()
	byKey := make(map[any]T, len(rows))
	for _, row := range rows {
		byKey[fieldValue(row, pkIndex)] = row
	}

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if v, ok := byKey[k]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// fieldValue reads the struct field at index idx off row, boxed as any
// so it can be used as a map key matching the primary-key values
// returned by Keys.
func fieldValue(row any, idx int) any {
	return reflect.ValueOf(row).Field(idx).Interface()
}
