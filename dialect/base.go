package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/mapping"
)

// Base provides the shared scaffolding every concrete dialect embeds:
// feature-flag storage, a filter-function registry, and the
// rarely-overridden keyword spellings (LOWER/UPPER/boolean literals).
// Concrete dialects override quoting, placeholder rewriting, type
// mapping, and Open.
type Base struct {
	name     string
	features map[Feature]bool

	filterMu sync.RWMutex
	filters  map[string]FilterFunction
}

// NewBase constructs a Base with the given enabled features.
func NewBase(name string, enabled ...Feature) *Base {
	b := &Base{
		name:     name,
		features: make(map[Feature]bool, len(enabled)),
		filters:  make(map[string]FilterFunction),
	}
	for _, f := range enabled {
		b.features[f] = true
	}
	return b
}

func (b *Base) Name() string { return b.name }

func (b *Base) HasFeature(f Feature) bool { return b.features[f] }

func (b *Base) LowerFunc() string { return "LOWER" }
func (b *Base) UpperFunc() string { return "UPPER" }

func (b *Base) BooleanLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (b *Base) CreateViewKeyword() string      { return "CREATE VIEW" }
func (b *Base) CreateOrAlterKeyword() string   { return "CREATE OR REPLACE VIEW" }

func (b *Base) CountWrap(innerSQL string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) Q0", innerSQL)
}

// RegisterFilterFunction adds a named filter-function plugin to this
// dialect. Concrete dialects call this from their constructor to build
// up their dialect-scoped set.
func (b *Base) RegisterFilterFunction(name string, fn FilterFunction) {
	b.filterMu.Lock()
	defer b.filterMu.Unlock()
	b.filters[name] = fn
}

func (b *Base) FilterFunction(name string) (FilterFunction, error) {
	b.filterMu.RLock()
	defer b.filterMu.RUnlock()
	fn, ok := b.filters[name]
	if !ok {
		return nil, kernelerr.UnsupportedFilter(b.name, name)
	}
	return fn, nil
}

func (b *Base) WrapUUIDParam(placeholder string) string { return placeholder }

// ClassifyWriteError is the fallback: a generic DbError. Concrete
// dialects override this to recognise their engine's native
// constraint-violation error shape.
func (b *Base) ClassifyWriteError(sql string, params []any, err error) error {
	return kernelerr.DbError(sql, params, "", err)
}

// MapBaseType covers the common SQL-92 mappings most engines share;
// concrete dialects override only the cases that diverge.
func MapBaseType(t mapping.SchemaType) string {
	switch t {
	case mapping.Binary:
		return "BLOB"
	case mapping.Boolean:
		return "BOOLEAN"
	case mapping.Date:
		return "DATE"
	case mapping.DateTime, mapping.Timestamp:
		return "TIMESTAMP"
	case mapping.Decimal:
		return "DECIMAL(18,4)"
	case mapping.Float:
		return "DOUBLE PRECISION"
	case mapping.Integer:
		return "INTEGER"
	case mapping.String:
		return "VARCHAR(255)"
	case mapping.Uuid:
		return "VARCHAR(36)"
	default:
		return "VARCHAR(255)"
	}
}

// rewriteNumbered rewrites each '?' into fn(i), numbered left to right
// starting at 1, for $1/@p0-style placeholders. No dialect in this
// module calls it; pgnet renumbers with its own loop.
func rewriteNumbered(sql string, fn func(i int) string) string {
	var b strings.Builder
	idx := 0
	for _, r := range sql {
		if r == '?' {
			idx++
			b.WriteString(fn(idx))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func itoa(i int) string { return strconv.Itoa(i) }
