// Package dialect generalises one engine's SQL dialect quirks behind a
// single interface: feature flags, keyword spellings, count/exists
// wrapping, placeholder rewriting, type mapping, and a named
// filter-function registry. Concrete engines live in sub-packages
// (filedb, litedb, mysqlnet, pgnet), each registering itself by
// invariant name on import, the way the core registers table mappings.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/mapping"
)

// Feature is one of the closed set of capability flags a dialect can
// advertise.
type Feature string

const (
	AutoGenerateTimestamps    Feature = "AutoGenerateTimestamps"
	FetchOffset               Feature = "FetchOffset"
	ReturnedInsertsAsParms    Feature = "ReturnedInsertsAsParms"
	StrictSubQueryColumnNames Feature = "StrictSubQueryColumnNames"
	AutoGenerateSequences     Feature = "AutoGenerateSequences"
	MaterializedViews         Feature = "MaterializedViews"
	StoredProcedures          Feature = "StoredProcedures"
	LimitOffsetUsesTop        Feature = "LimitOffsetUsesTop"
	IlikeOperator             Feature = "IlikeOperator"
)

// FilterFunction is a named, dialect-scoped predicate-generating plugin.
// Given the column it applies to, the caller-supplied operand, and the
// operand's neutral schema type, it
// returns the SQL fragment (with its own placeholders already counted
// into params) implementing the named filter.
type FilterFunction interface {
	Apply(column string, operand any, operandType mapping.SchemaType) (sql string, params []any, err error)
}

// FilterFunctionFunc adapts a plain function to FilterFunction.
type FilterFunctionFunc func(column string, operand any, operandType mapping.SchemaType) (string, []any, error)

func (f FilterFunctionFunc) Apply(column string, operand any, operandType mapping.SchemaType) (string, []any, error) {
	return f(column, operand, operandType)
}

// Dialect is the per-engine statement factory: keyword spellings,
// feature flags, identifier/placeholder rendering, type mapping, and
// filter-function lookup. sqlbuilder.Builder.Build accepts any Dialect
// as its LimitOffsetRenderer.
type Dialect interface {
	Name() string
	HasFeature(f Feature) bool

	QuoteIdentifier(name string) string
	Placeholder(index int) string
	// RewritePlaceholders rewrites the builder's '?' placeholders into
	// this engine's native form, numbered left to right starting at 1.
	RewritePlaceholders(sql string) string

	LikeKeyword(ignoreCase bool) string
	LowerFunc() string
	UpperFunc() string
	BooleanLiteral(v bool) string
	CreateViewKeyword() string
	CreateOrAlterKeyword() string

	CountWrap(innerSQL string) string
	ExistsWrap(innerSQL string) string
	// RenderLimitOffset satisfies sqlbuilder.LimitOffsetRenderer.
	RenderLimitOffset(limit, offset *int) string

	MapType(t mapping.SchemaType) string
	// WrapUUIDParam wraps a placeholder for engines that require UUID
	// values bound as strings via a conversion function.
	WrapUUIDParam(placeholder string) string

	FilterFunction(name string) (FilterFunction, error)

	// Open establishes the underlying *sql.DB for this engine from a
	// parsed DSN/file path.
	Open(ctx context.Context, dataSource string) (*sql.DB, error)

	// ClassifyWriteError inspects a raw driver error from an insert or
	// update and, when it recognises the engine's constraint-violation
	// shape, returns the matching kernelerr kind (ConstraintViolation,
	// NotNullViolation, UniqueViolation); otherwise a generic DbError.
	ClassifyWriteError(sql string, params []any, err error) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Dialect{}
)

// Register makes a dialect available by invariant name ("filedb",
// "litedb", "mysqlnet", "pgnet", ...). Each concrete dialect package
// calls this from its own init(), mirroring the way the mapping
// registry publishes built mappings on first use.
func Register(invariant string, d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[invariant] = d
}

// Lookup resolves a dialect by invariant name.
func Lookup(invariant string) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[invariant]
	if !ok {
		return nil, kernelerr.New(kernelerr.KindMapping, fmt.Sprintf("no dialect registered for invariant %q", invariant))
	}
	return d, nil
}
