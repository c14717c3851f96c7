package planner

import (
	"reflect"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/encryption"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/sqlbuilder"
)

// Planner produces deterministic SELECT statements: the same expression
// plus mapping state always produces byte-identical SQL.
type Planner struct {
	reg *mapping.Registry
	dia dialect.Dialect
	enc *encryption.Adapter
}

func New(reg *mapping.Registry, dia dialect.Dialect) *Planner {
	return &Planner{reg: reg, dia: dia}
}

// WithEncryption installs the application-level-encryption adapter used
// to encrypt literal operands compared against ApplicationEncrypted
// columns (translateBinary's equality case), so those predicates bind
// against the same ciphertext the write path stored.
func (p *Planner) WithEncryption(enc *encryption.Adapter) *Planner {
	p.enc = enc
	return p
}

// Query is the full shape of one planned SELECT: predicate, projection,
// ordering, and paging.
type Query struct {
	Root       reflect.Type
	Resolver   TypeResolver
	Where      Expr
	Projection []Field // empty means "default: every non-secret column"
	GroupBy    []Field
	Having     Expr
	Order      []Order
	Skip       *int
	Take       *int
	// IncludeSecret overrides the secret-column exclusion of the default
	// (empty) projection. An explicit Projection includes any secret
	// column it names whether or not this is set.
	IncludeSecret bool
}

// PlanResult is a planned statement ready for placeholder rewriting and
// execution.
type PlanResult struct {
	SQL    string
	Params []any
	// GenericSQL is the same statement before dialect placeholder
	// rewriting (still using '?'). Callers that must concatenate two
	// independently-planned statements (set combination, count/exists
	// wrapping) need this form: rewriting each half separately would
	// renumber engines using positional placeholders (pgnet's $1, $2,
	// ...) starting at 1 in both halves, colliding when combined.
	// Combine GenericSQL strings, then call Dialect.RewritePlaceholders
	// once on the result.
	GenericSQL string
	// ClientProjection reports that the caller applies the projection
	// client-side over full rows. Select never sets it: every projected
	// Field must resolve to a column.
	ClientProjection bool
}

// Select plans a SELECT statement for q.
func (p *Planner) Select(q Query) (*PlanResult, error) {
	rootMapping, err := p.reg.Get(q.Root)
	if err != nil {
		return nil, err
	}

	b := sqlbuilder.New(p.dia.QuoteIdentifier(rootMapping.TableName), "t0")
	state := newPlanState(p.reg, p.dia, q.Resolver, rootMapping, "t0", b)
	state.enc = p.enc

	if err := p.applyAlwaysJoin(state, rootMapping); err != nil {
		return nil, err
	}

	result := &PlanResult{}

	cols, err := p.resolveProjection(state, rootMapping, q.Projection, q.IncludeSecret, result)
	if err != nil {
		return nil, err
	}
	b.Select(cols...)

	if q.Where != nil {
		pred, err := state.translate(q.Where)
		if err != nil {
			return nil, err
		}
		b.Where(pred)
	}

	if len(q.GroupBy) > 0 {
		groupCols := make([]string, len(q.GroupBy))
		for i, f := range q.GroupBy {
			jt, col, err := state.resolveColumn(f)
			if err != nil {
				return nil, err
			}
			groupCols[i] = state.qualify(jt.alias, col.ColumnName)
		}
		b.GroupBy(groupCols...)
	}

	if q.Having != nil {
		pred, err := state.translate(q.Having)
		if err != nil {
			return nil, err
		}
		b.Having(pred)
	}

	for _, o := range q.Order {
		jt, col, err := state.resolveColumn(o.Target)
		if err != nil {
			return nil, err
		}
		dir := sqlbuilder.Asc
		if o.Desc {
			dir = sqlbuilder.Desc
		}
		b.OrderBy(state.qualify(jt.alias, col.ColumnName), dir)
	}

	// Skip/Take without explicit ordering needs a deterministic
	// tiebreaker on the first primary-key column for stable paging.
	if (q.Skip != nil || q.Take != nil) && !b.HasOrderBy() {
		pkCol := primaryKeyColumn(rootMapping)
		b.OrderBy(state.qualify("t0", pkCol), sqlbuilder.Asc)
	}

	if q.Skip != nil {
		b.Offset(*q.Skip)
	}
	if q.Take != nil {
		b.Limit(*q.Take)
	}

	sql, params, err := b.Build(p.dia)
	if err != nil {
		return nil, err
	}
	result.GenericSQL = sql
	result.SQL = p.dia.RewritePlaceholders(sql)
	result.Params = params
	return result, nil
}

// applyAlwaysJoin folds in tables the root mapping declares must always
// be joined, regardless of whether the predicate/projection references
// them. The joined table is registered under its table name so a later
// Field path hop using that same name (as a TypeResolver key) reuses it
// instead of joining twice.
func (p *Planner) applyAlwaysJoin(state *planState, root *mapping.TableMapping) error {
	for _, tableName := range root.AlwaysJoin {
		key := "." + tableName
		if _, ok := state.joined[key]; ok {
			continue
		}
		jp, err := p.reg.ResolveJoinByTable(root.GoType, tableName)
		if err != nil {
			return err
		}
		target, err := p.reg.Get(jp.To.GoType)
		if err != nil {
			return err
		}
		state.joined[key] = state.joinTo(state.joined[""], target, jp)
	}
	return nil
}

// resolveProjection builds the SELECT column list: either the caller's
// explicit Field list, or every non-secret column on the root mapping.
// A requested Field that does not resolve to a column is returned as an
// error; there is no client-side projection fallback, and
// ClientProjection is left false.
func (p *Planner) resolveProjection(state *planState, root *mapping.TableMapping, fields []Field, includeSecret bool, result *PlanResult) ([]string, error) {
	if len(fields) == 0 {
		cols, err := p.reg.ColumnsFor(root.GoType, includeSecret)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(cols))
		for i, c := range cols {
			out[i] = state.qualify("t0", c.ColumnName) + " AS " + c.ColumnName
		}
		return out, nil
	}

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		jt, col, err := state.resolveColumn(f)
		if err != nil {
			return nil, err
		}
		out = append(out, state.qualify(jt.alias, col.ColumnName)+" AS "+col.ColumnName)
	}
	return out, nil
}
