// Package sqlbuilder assembles dialect-neutral SQL text and positional
// parameters. It mirrors the accumulation rules a hand-written query
// builder would use: fragments append left to right, a WHERE clause
// accumulates via AND once opened, and the whole thing flattens
// deterministically on Build.
package sqlbuilder

import (
	"fmt"
	"strconv"
	"strings"
)

// OrderDir is the sort direction for an ORDER BY entry.
type OrderDir int

const (
	Asc OrderDir = iota
	Desc
)

func (d OrderDir) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

type orderEntry struct {
	col string
	dir OrderDir
}

// LimitOffsetRenderer lets a dialect control how LIMIT/OFFSET (or TOP) is
// rendered, since the spelling and position vary by engine. Builder never
// imports the dialect package directly to avoid a cycle; a dialect type
// satisfies this interface structurally.
type LimitOffsetRenderer interface {
	RenderLimitOffset(limit, offset *int) string
}

// Builder accumulates SELECT-shaped SQL text. It is clone-cheap: Clone
// returns an independent copy so ResultSet operations like Where/Union/
// Intersect can branch off an existing builder without mutating it.
type Builder struct {
	selectCols []string
	from       string
	fromAlias  string
	joins      []string
	joinParams []any

	textParts  []string
	textParams []any

	hasWhere    bool
	whereSQL    string
	whereParams []any

	groupBy []string
	having  string
	havingParams []any

	orderBy []orderEntry

	limit  *int
	offset *int
}

// New starts a builder selecting from the given table (optionally
// aliased).
func New(table, alias string) *Builder {
	return &Builder{from: table, fromAlias: alias}
}

// Clone returns an independent copy; mutating the copy never affects b.
func (b *Builder) Clone() *Builder {
	nb := *b
	nb.selectCols = append([]string(nil), b.selectCols...)
	nb.joins = append([]string(nil), b.joins...)
	nb.joinParams = append([]any(nil), b.joinParams...)
	nb.textParts = append([]string(nil), b.textParts...)
	nb.textParams = append([]any(nil), b.textParams...)
	nb.groupBy = append([]string(nil), b.groupBy...)
	nb.havingParams = append([]any(nil), b.havingParams...)
	nb.orderBy = append([]orderEntry(nil), b.orderBy...)
	if b.limit != nil {
		l := *b.limit
		nb.limit = &l
	}
	if b.offset != nil {
		o := *b.offset
		nb.offset = &o
	}
	return &nb
}

// Select sets the projection column list; omitted or empty means "*".
func (b *Builder) Select(cols ...string) *Builder {
	b.selectCols = cols
	return b
}

// Join appends a JOIN clause fragment (already rendered by the caller,
// since join style varies by kind: inner/left, direct/associative).
func (b *Builder) Join(clause string, params ...any) *Builder {
	b.joins = append(b.joins, clause)
	b.joinParams = append(b.joinParams, params...)
	return b
}

// Append appends a raw text fragment with its positional parameters. The
// builder validates that the number of '?' placeholders in text matches
// len(params).
func (b *Builder) Append(text string, params ...any) error {
	if n := strings.Count(text, "?"); n != len(params) {
		return fmt.Errorf("sqlbuilder: fragment %q expects %d params, got %d", text, n, len(params))
	}
	b.textParts = append(b.textParts, text)
	b.textParams = append(b.textParams, params...)
	return nil
}

// AppendStatement appends a nested builder's rendered SQL and parameters.
func (b *Builder) AppendStatement(sub *Builder) error {
	sql, params, err := sub.Build(nil)
	if err != nil {
		return err
	}
	b.textParts = append(b.textParts, sql)
	b.textParams = append(b.textParams, params...)
	return nil
}

// Where appends WHERE, or AND if a WHERE already exists at the current
// top level, wrapping the predicate in parentheses.
func (b *Builder) Where(p Predicate) *Builder {
	return b.accumulate("AND", p)
}

// And is identical to Where: both open or extend the same accumulated
// clause with AND semantics.
func (b *Builder) And(p Predicate) *Builder { return b.accumulate("AND", p) }

// Or extends the accumulated clause with OR semantics.
func (b *Builder) Or(p Predicate) *Builder { return b.accumulate("OR", p) }

func (b *Builder) accumulate(conjunction string, p Predicate) *Builder {
	sql, params := p.ToSQL()
	if sql == "" {
		return b
	}
	if !b.hasWhere {
		b.whereSQL = "(" + sql + ")"
		b.hasWhere = true
	} else {
		b.whereSQL = fmt.Sprintf("%s %s (%s)", b.whereSQL, conjunction, sql)
	}
	b.whereParams = append(b.whereParams, params...)
	return b
}

// Having appends a HAVING predicate, used after GroupBy.
func (b *Builder) Having(p Predicate) *Builder {
	sql, params := p.ToSQL()
	if sql == "" {
		return b
	}
	if b.having == "" {
		b.having = "(" + sql + ")"
	} else {
		b.having = fmt.Sprintf("%s AND (%s)", b.having, sql)
	}
	b.havingParams = append(b.havingParams, params...)
	return b
}

// OrderBy appends an ORDER BY entry; call order is preserved.
func (b *Builder) OrderBy(col string, dir OrderDir) *Builder {
	b.orderBy = append(b.orderBy, orderEntry{col: col, dir: dir})
	return b
}

// GroupBy sets the GROUP BY column list.
func (b *Builder) GroupBy(cols ...string) *Builder {
	b.groupBy = append(b.groupBy, cols...)
	return b
}

// Limit sets a row-count cap.
func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

// Offset sets a row-skip count.
func (b *Builder) Offset(n int) *Builder {
	b.offset = &n
	return b
}

// HasOrderBy reports whether any ORDER BY entry has been set; the planner
// uses this to decide whether it must inject a deterministic tiebreaker
// before Skip/Take.
func (b *Builder) HasOrderBy() bool { return len(b.orderBy) > 0 }

// Build flattens the accumulated fragments into SQL text and an ordered
// parameter slice. renderer, if non-nil, controls LIMIT/OFFSET spelling
// (e.g. TOP vs LIMIT/OFFSET); when nil, the generic "LIMIT n OFFSET m"
// form is used.
func (b *Builder) Build(renderer LimitOffsetRenderer) (string, []any, error) {
	var sql strings.Builder
	var params []any

	cols := "*"
	if len(b.selectCols) > 0 {
		cols = strings.Join(b.selectCols, ", ")
	}
	sql.WriteString("SELECT ")
	sql.WriteString(cols)
	if b.from != "" {
		sql.WriteString(" FROM ")
		sql.WriteString(b.from)
		if b.fromAlias != "" {
			sql.WriteString(" ")
			sql.WriteString(b.fromAlias)
		}
	}
	for _, j := range b.joins {
		sql.WriteString(" ")
		sql.WriteString(j)
	}
	params = append(params, b.joinParams...)

	if b.hasWhere {
		sql.WriteString(" WHERE ")
		sql.WriteString(b.whereSQL)
		params = append(params, b.whereParams...)
	}

	for _, tp := range b.textParts {
		sql.WriteString(" ")
		sql.WriteString(tp)
	}
	params = append(params, b.textParams...)

	if len(b.groupBy) > 0 {
		sql.WriteString(" GROUP BY ")
		sql.WriteString(strings.Join(b.groupBy, ", "))
	}
	if b.having != "" {
		sql.WriteString(" HAVING ")
		sql.WriteString(b.having)
		params = append(params, b.havingParams...)
	}
	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			parts[i] = o.col + " " + o.dir.String()
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil || b.offset != nil {
		if renderer != nil {
			sql.WriteString(" ")
			sql.WriteString(renderer.RenderLimitOffset(b.limit, b.offset))
		} else {
			sql.WriteString(genericLimitOffset(b.limit, b.offset))
		}
	}

	return normalizeWhitespace(sql.String()), params, nil
}

func genericLimitOffset(limit, offset *int) string {
	var s strings.Builder
	if limit != nil {
		s.WriteString(" LIMIT ")
		s.WriteString(strconv.Itoa(*limit))
	}
	if offset != nil {
		s.WriteString(" OFFSET ")
		s.WriteString(strconv.Itoa(*offset))
	}
	return s.String()
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// CountWrap wraps an already-built SELECT statement as a row-count query:
// SELECT COUNT(*) FROM (<stmt>) Q0, matching the §4.3 count-wrapping
// contract shared by every dialect.
func CountWrap(innerSQL string) string {
	return "SELECT COUNT(*) FROM (" + innerSQL + ") Q0"
}
