package sqlbuilder

import "strings"

// InsertStmt is a dialect-neutral INSERT; dialects render RETURNING or a
// post-insert SELECT for auto-generated values on top of this shape.
type InsertStmt struct {
	Table      string
	Columns    []string
	Values     []any
	Returning  []string // not rendered by Build; dbcontext.Insert appends its own RETURNING clause
}

// Build renders "INSERT INTO t (a, b) VALUES (?, ?)" and its params.
func (s *InsertStmt) Build() (string, []any) {
	placeholders := make([]string, len(s.Values))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	var sql strings.Builder
	sql.WriteString("INSERT INTO ")
	sql.WriteString(s.Table)
	sql.WriteString(" (")
	sql.WriteString(strings.Join(s.Columns, ", "))
	sql.WriteString(") VALUES (")
	sql.WriteString(strings.Join(placeholders, ", "))
	sql.WriteString(")")
	return sql.String(), s.Values
}

// UpdateStmt is a dialect-neutral UPDATE ... WHERE <predicate>.
type UpdateStmt struct {
	Table string
	Set   []ColumnValue
	Where Predicate
}

// ColumnValue is one SET assignment, preserved in insertion order so
// generated SQL is deterministic.
type ColumnValue struct {
	Column string
	Value  any
}

func (s *UpdateStmt) Build() (string, []any) {
	setParts := make([]string, len(s.Set))
	params := make([]any, 0, len(s.Set))
	for i, cv := range s.Set {
		setParts[i] = cv.Column + " = ?"
		params = append(params, cv.Value)
	}
	var sql strings.Builder
	sql.WriteString("UPDATE ")
	sql.WriteString(s.Table)
	sql.WriteString(" SET ")
	sql.WriteString(strings.Join(setParts, ", "))
	if s.Where != nil {
		if whereSQL, whereParams := s.Where.ToSQL(); whereSQL != "" {
			sql.WriteString(" WHERE ")
			sql.WriteString(whereSQL)
			params = append(params, whereParams...)
		}
	}
	return sql.String(), params
}

// DeleteStmt is a dialect-neutral DELETE FROM ... WHERE <predicate>.
type DeleteStmt struct {
	Table string
	Where Predicate
}

func (s *DeleteStmt) Build() (string, []any) {
	var sql strings.Builder
	sql.WriteString("DELETE FROM ")
	sql.WriteString(s.Table)
	var params []any
	if s.Where != nil {
		if whereSQL, whereParams := s.Where.ToSQL(); whereSQL != "" {
			sql.WriteString(" WHERE ")
			sql.WriteString(whereSQL)
			params = append(params, whereParams...)
		}
	}
	return sql.String(), params
}
