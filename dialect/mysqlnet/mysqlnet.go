// Package mysqlnet implements the networked-engine dialect on top of
// go-sql-driver/mysql.
package mysqlnet

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/mapping"
)

const Invariant = "mysqlnet"

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
	)}
	d.RegisterFilterFunction("contains", dialect.FilterFunctionFunc(containsFilter))
	d.RegisterFilterFunction("startswith", dialect.FilterFunctionFunc(startsWithFilter))
	d.RegisterFilterFunction("endswith", dialect.FilterFunctionFunc(endsWithFilter))
	return d
}

func (d *Dialect) QuoteIdentifier(name string) string { return "`" + name + "`" }

func (d *Dialect) Placeholder(int) string { return "?" }

func (d *Dialect) RewritePlaceholders(sql string) string { return sql }

// LikeKeyword: MySQL's default collation is case-insensitive already, so
// ignoreCase needs no ILIKE substitute; IlikeOperator is left unset.
func (d *Dialect) LikeKeyword(ignoreCase bool) string { return "LIKE" }

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
		// MySQL requires a LIMIT row count before OFFSET; the maximum
		// unsigned bound stands in for "no limit."
		return fmt.Sprintf("LIMIT 18446744073709551615 OFFSET %d", *offset)
	default:
		return ""
	}
}

func (d *Dialect) MapType(t mapping.SchemaType) string {
	switch t {
	case mapping.Uuid:
		return "CHAR(36)"
	case mapping.Boolean:
		return "TINYINT(1)"
	default:
		return dialect.MapBaseType(t)
	}
}

// WrapUUIDParam wraps the placeholder in a conversion function for
// engines whose native UUID column type doesn't round-trip a bound Go
// string automatically.
func (d *Dialect) WrapUUIDParam(placeholder string) string {
	return fmt.Sprintf("CHAR_TO_UUID(%s)", placeholder)
}

func (d *Dialect) Open(ctx context.Context, dataSource string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dataSource)
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
