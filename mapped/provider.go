// Package mapped implements the Mapped Query Provider from spec §4.7: a
// thin translation layer binding a user-facing domain type M to the ORM
// record type D it is persisted as, so callers can express queries in
// terms of M while the kernel below still only ever sees D.
package mapped

import (
	"context"
	"reflect"

	"github.com/santedb-go/relorm/dbcontext"
	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/planner"
)

// FieldMap substitutes a domain-level property path for the record-level
// path the planner understands, implementing mapExpression's "outboard
// mapping table" (spec §4.7). A domain field absent from the map passes
// through unchanged, so the common case — domain and record field names
// matching — needs no entry.
type FieldMap map[string][]string

// Option configures a Provider at construction time, following the
// client's own functional-option constructor (teacher orm/client.go's
// ClientOption).
type Option[M, D any] func(*Provider[M, D])

// WithFieldMap installs the domain-to-record property substitution table.
func WithFieldMap[M, D any](fm FieldMap) Option[M, D] {
	return func(p *Provider[M, D]) { p.fields = fm }
}

// WithVersionFilter installs getCurrentVersionFilter for a versioned
// entity: a predicate over the record type's fields, selecting only the
// current version of each logical record. fn takes no alias; the planner
// qualifies the predicate's fields against the root table. It is ANDed onto every
// query this provider executes.
func WithVersionFilter[M, D any](fn func() planner.Expr) Option[M, D] {
	return func(p *Provider[M, D]) { p.versionFilter = fn }
}

// Provider binds M to D: ExecuteQuery runs an M-level predicate through
// the data context and rehydrates matching rows into M via ToModel.
type Provider[M, D any] struct {
	c             *dbcontext.DataContext
	fields        FieldMap
	toModel       func(D) M
	versionFilter func() planner.Expr
}

// New constructs a Provider. toModel rehydrates one record instance into
// the domain type; it may itself issue further context queries to load
// related domain objects (spec §4.7: "may recursively load relations").
func New[M, D any](c *dbcontext.DataContext, toModel func(D) M, opts ...Option[M, D]) *Provider[M, D] {
	p := &Provider[M, D]{c: c, toModel: toModel, fields: FieldMap{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExecuteQuery translates predicate from domain-level field paths to
// record-level ones, folds in the current-version filter if configured,
// and returns the matching rows rehydrated into M.
func (p *Provider[M, D]) ExecuteQuery(ctx context.Context, predicate planner.Expr) ([]M, error) {
	mapped, err := p.mapExpression(predicate)
	if err != nil {
		return nil, err
	}
	if vf := p.GetCurrentVersionFilter(); vf != nil {
		if mapped == nil {
			mapped = vf
		} else {
			mapped = planner.And(mapped, vf)
		}
	}

	rows, err := dbcontext.Query[D](p.c, mapped).All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]M, len(rows))
	for i, row := range rows {
		out[i] = p.ToModelInstance(row)
	}
	return out, nil
}

// ToModelInstance rehydrates one record row into its domain instance.
func (p *Provider[M, D]) ToModelInstance(row D) M {
	return p.toModel(row)
}

// GetCurrentVersionFilter returns the configured current-version
// predicate, or nil when this provider's entity isn't versioned.
func (p *Provider[M, D]) GetCurrentVersionFilter() planner.Expr {
	if p.versionFilter == nil {
		return nil
	}
	return p.versionFilter()
}

// mapExpression walks expr, substituting every Field's Path through the
// configured FieldMap. Non-Field leaves (Lit) and structural nodes
// (Binary/Logical/Not/IsNull/IsNotNull/Call/Any) are reconstructed with
// their children mapped, never inspected for domain-specific meaning —
// the provider only ever renames property paths.
func (p *Provider[M, D]) mapExpression(expr planner.Expr) (planner.Expr, error) {
	if expr == nil {
		return nil, nil
	}
	switch n := expr.(type) {
	case planner.Field:
		return p.mapField(n), nil
	case planner.Lit:
		return n, nil
	case planner.Binary:
		left, err := p.mapExpression(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := p.mapExpression(n.Right)
		if err != nil {
			return nil, err
		}
		return planner.Binary{Op: n.Op, Left: left, Right: right}, nil
	case planner.IsNull:
		return planner.IsNull{Target: p.mapField(n.Target)}, nil
	case planner.IsNotNull:
		return planner.IsNotNull{Target: p.mapField(n.Target)}, nil
	case planner.Logical:
		exprs := make([]planner.Expr, len(n.Exprs))
		for i, sub := range n.Exprs {
			mapped, err := p.mapExpression(sub)
			if err != nil {
				return nil, err
			}
			exprs[i] = mapped
		}
		return planner.Logical{Op: n.Op, Exprs: exprs}, nil
	case planner.Not:
		target, err := p.mapExpression(n.Target)
		if err != nil {
			return nil, err
		}
		return planner.Not{Target: target}, nil
	case planner.Call:
		return planner.Call{Func: n.Func, Column: p.mapField(n.Column), Arg: n.Arg}, nil
	case planner.Any:
		pred, err := p.mapExpression(n.Predicate)
		if err != nil {
			return nil, err
		}
		return planner.Any{Path: n.Path, Predicate: pred}, nil
	default:
		return nil, kernelerr.Mapping("mapped: unsupported expression %T in domain predicate", expr)
	}
}

func (p *Provider[M, D]) mapField(f planner.Field) planner.Field {
	if len(f.Path) == 0 {
		return f
	}
	if mapped, ok := p.fields[f.Path[0]]; ok {
		return planner.Field{Path: append(append([]string(nil), mapped...), f.Path[1:]...)}
	}
	return f
}

// domainType reports D's reflect.Type, used by callers that need to
// resolve the bound record mapping directly (e.g. to build a
// getCurrentVersionFilter closure over the record's own column names).
func domainType[D any]() reflect.Type {
	return reflect.TypeOf((*D)(nil)).Elem()
}
