// Package pgnet implements the networked-engine dialect on top of lib/pq.
package pgnet

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/mapping"
)

const Invariant = "pgnet"

type Dialect struct {
	*dialect.Base
}

func init() {
	dialect.Register(Invariant, New())
}

func New() *Dialect {
	d := &Dialect{Base: dialect.NewBase(Invariant,
		dialect.ReturnedInsertsAsParms,
		dialect.AutoGenerateSequences,
		dialect.MaterializedViews,
		dialect.StoredProcedures,
		dialect.IlikeOperator,
	)}
	d.RegisterFilterFunction("contains", dialect.FilterFunctionFunc(containsFilter))
	d.RegisterFilterFunction("startswith", dialect.FilterFunctionFunc(startsWithFilter))
	d.RegisterFilterFunction("endswith", dialect.FilterFunctionFunc(endsWithFilter))
	return d
}

func (d *Dialect) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (d *Dialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

// RewritePlaceholders converts the builder's generic '?' into Postgres's
// numbered $1, $2, ... form, numbered left to right.
func (d *Dialect) RewritePlaceholders(sql string) string {
	idx := 0
	var out []rune
	for _, r := range sql {
		if r == '?' {
			idx++
			out = append(out, []rune(fmt.Sprintf("$%d", idx))...)
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// LikeKeyword returns the native ILIKE operator when ignoreCase is set,
// and LIKE otherwise. The planner does not call it: ignore-case equality
// is rendered with LOWER() on every dialect, pgnet included.
func (d *Dialect) LikeKeyword(ignoreCase bool) string {
	if ignoreCase {
		return "ILIKE"
	}
	return "LIKE"
}

func (d *Dialect) ExistsWrap(innerSQL string) string {
	return fmt.Sprintf("SELECT EXISTS(%s)", innerSQL)
}

func (d *Dialect) RenderLimitOffset(limit, offset *int) string {
	switch {
	case limit != nil && offset != nil:
		return fmt.Sprintf("LIMIT %d OFFSET %d", *limit, *offset)
	case limit != nil:
		return fmt.Sprintf("LIMIT %d", *limit)
	case offset != nil:
		return fmt.Sprintf("OFFSET %d", *offset)
	default:
		return ""
	}
}

func (d *Dialect) MapType(t mapping.SchemaType) string {
	switch t {
	case mapping.Uuid:
		return "UUID"
	case mapping.Binary:
		return "BYTEA"
	default:
		return dialect.MapBaseType(t)
	}
}

func (d *Dialect) WrapUUIDParam(placeholder string) string {
	return fmt.Sprintf("%s::uuid", placeholder)
}

func (d *Dialect) Open(ctx context.Context, dataSource string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSource)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func containsFilter(column string, operand any, _ mapping.SchemaType) (string, []any, error) {
	return column + " LIKE ?", []any{fmt.Sprintf("%%%v%%", operand)}, nil
}

func startsWithFilter(column string, operand any, _ mapping.SchemaType) (string, []any, error) {
	return column + " LIKE ?", []any{fmt.Sprintf("%v%%", operand)}, nil
}

func endsWithFilter(column string, operand any, _ mapping.SchemaType) (string, []any, error) {
	return column + " LIKE ?", []any{fmt.Sprintf("%%%v", operand)}, nil
}
