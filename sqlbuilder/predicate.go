package sqlbuilder

import (
	"fmt"
	"strings"
)

// Predicate is anything that can render itself as a SQL fragment plus its
// positional parameters. Builder.Where/And/Or accept one.
type Predicate interface {
	ToSQL() (string, []any)
}

// Raw is a leaf predicate carrying pre-rendered SQL text and parameters.
type Raw struct {
	SQL    string
	Params []any
}

func (p Raw) ToSQL() (string, []any) { return p.SQL, p.Params }

// Eq/NotEq/Lt/Lte/Gt/Gte/Like build the common binary-comparison leaves the
// planner emits for column comparisons.
func Eq(col string, v any) Raw    { return cmp(col, "=", v) }
func NotEq(col string, v any) Raw { return cmp(col, "<>", v) }
func Lt(col string, v any) Raw    { return cmp(col, "<", v) }
func Lte(col string, v any) Raw   { return cmp(col, "<=", v) }
func Gt(col string, v any) Raw    { return cmp(col, ">", v) }
func Gte(col string, v any) Raw   { return cmp(col, ">=", v) }
func Like(col, op string, v any) Raw {
	return cmp(col, op, v)
}

func cmp(col, op string, v any) Raw {
	return Raw{SQL: fmt.Sprintf("%s %s ?", col, op), Params: []any{v}}
}

// IsNull/IsNotNull build the null-comparison leaves spec §4.4 calls for.
func IsNull(col string) Raw    { return Raw{SQL: col + " IS NULL"} }
func IsNotNull(col string) Raw { return Raw{SQL: col + " IS NOT NULL"} }

// And combines predicates with AND, each wrapped in parentheses.
func And(preds ...Predicate) Raw { return combine("AND", preds) }

// Or combines predicates with OR, each wrapped in parentheses.
func Or(preds ...Predicate) Raw { return combine("OR", preds) }

// NotP negates a predicate.
func NotP(p Predicate) Raw {
	sql, params := p.ToSQL()
	if sql == "" {
		return Raw{}
	}
	return Raw{SQL: "NOT (" + sql + ")", Params: params}
}

func combine(conjunction string, preds []Predicate) Raw {
	var parts []string
	var params []any
	for _, p := range preds {
		sql, ps := p.ToSQL()
		if sql == "" {
			continue
		}
		parts = append(parts, "("+sql+")")
		params = append(params, ps...)
	}
	if len(parts) == 0 {
		return Raw{}
	}
	return Raw{SQL: strings.Join(parts, " "+conjunction+" "), Params: params}
}
