// Package filedb implements the embedded file-database dialect on top of
// mattn/go-sqlite3 (cgo), the "embedded file database" engine kind from
// the spec's closed set of three relational engines.
package filedb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/mapping"
)

const Invariant = "filedb"

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

// ExistsWrap follows the embedded-engine form from spec §4.3: a CASE
// expression selected with no FROM clause, since SQLite has no bare
// boolean SELECT EXISTS(...) result column idiom as clean as Postgres's.
func (d *Dialect) ExistsWrap(innerSQL string) string {
	return fmt.Sprintf("SELECT CASE WHEN EXISTS(%s) THEN 1 ELSE 0 END", innerSQL)
}

// RenderLimitOffset accounts for SQLite requiring a LIMIT clause
// whenever OFFSET is used (FetchOffset feature flag).
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

func (d *Dialect) Open(ctx context.Context, dataSource string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSource)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1) // embedded file engine: one writer, matches sqlite's locking model
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
