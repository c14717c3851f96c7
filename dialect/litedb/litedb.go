// Package litedb implements the lightweight in-process engine dialect on
// top of modernc.org/sqlite (pure Go, no cgo) — the spec's second engine
// kind, distinct from filedb's cgo-backed embedded file database even
// though both speak SQLite's SQL dialect.
package litedb

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/mapping"
)

const Invariant = "litedb"

type Dialect struct {
	*dialect.Base
}

func init() {
	dialect.Register(Invariant, New())
}

func New() *Dialect {
	d := &Dialect{Base: dialect.NewBase(Invariant,
		dialect.AutoGenerateTimestamps,
		dialect.FetchOffset,
		dialect.ReturnedInsertsAsParms,
		dialect.StrictSubQueryColumnNames,
	)}
	d.RegisterFilterFunction("contains", dialect.FilterFunctionFunc(containsFilter))
	d.RegisterFilterFunction("startswith", dialect.FilterFunctionFunc(startsWithFilter))
	d.RegisterFilterFunction("endswith", dialect.FilterFunctionFunc(endsWithFilter))
	return d
}

func (d *Dialect) QuoteIdentifier(name string) string { return "`" + name + "`" }

func (d *Dialect) Placeholder(int) string { return "?" }

func (d *Dialect) RewritePlaceholders(sql string) string { return sql }

func (d *Dialect) LikeKeyword(ignoreCase bool) string { return "LIKE" }

func (d *Dialect) BooleanLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (d *Dialect) ExistsWrap(innerSQL string) string {
	return fmt.Sprintf("SELECT CASE WHEN EXISTS(%s) THEN 1 ELSE 0 END", innerSQL)
}

func (d *Dialect) RenderLimitOffset(limit, offset *int) string {
	switch {
	case limit != nil && offset != nil:
		return fmt.Sprintf("LIMIT %d OFFSET %d", *limit, *offset)
	case limit != nil:
		return fmt.Sprintf("LIMIT %d", *limit)
	case offset != nil:
		return fmt.Sprintf("LIMIT -1 OFFSET %d", *offset)
	default:
		return ""
	}
}

func (d *Dialect) MapType(t mapping.SchemaType) string {
	switch t {
	case mapping.Uuid:
		return "TEXT"
	case mapping.Boolean:
		return "INTEGER"
	default:
		return dialect.MapBaseType(t)
	}
}

// Open establishes the lightweight in-process engine's connection.
// Unlike filedb, this driver requires no cgo toolchain, making it the
// preferred choice for the "lightweight" engine kind the spec
// distinguishes from the embedded file database.
func (d *Dialect) Open(ctx context.Context, dataSource string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
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
