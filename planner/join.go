package planner

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/encryption"
	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/sqlbuilder"
)

// TypeResolver maps the non-terminal hop names a Field path can use
// ("B" in a.B.c) to the Go type that hop navigates to. The planner has
// no notion of named relation fields on its own — mapping.TableMapping
// tracks only column-level foreign keys and table-level associations —
// so the caller supplies this alongside the predicate/projection tree.
type TypeResolver map[string]reflect.Type

// joinedTable is one table bound into the FROM/JOIN clause list.
type joinedTable struct {
	alias   string
	mapping *mapping.TableMapping
}

// planState tracks the joins accumulated while translating one SELECT.
type planState struct {
	reg      *mapping.Registry
	dia      dialect.Dialect
	resolver TypeResolver
	enc      *encryption.Adapter

	builder *sqlbuilder.Builder

	aliasN int
	// joined indexes resolved hops by the dotted path prefix leading to
	// them ("" for root, "B" for the first hop, "B.C" for the second...),
	// so repeated references to the same relation reuse one join.
	joined map[string]*joinedTable
}

func newPlanState(reg *mapping.Registry, dia dialect.Dialect, resolver TypeResolver, root *mapping.TableMapping, rootAlias string, b *sqlbuilder.Builder) *planState {
	return &planState{
		reg: reg, dia: dia, resolver: resolver, builder: b,
		joined: map[string]*joinedTable{"": {alias: rootAlias, mapping: root}},
	}
}

func (s *planState) nextAlias() string {
	s.aliasN++
	return fmt.Sprintf("t%d", s.aliasN)
}

// resolveHops walks every hop but the last in path, joining tables as
// needed, and returns the joinedTable the final (column) segment lives
// on.
func (s *planState) resolveHops(path []string) (*joinedTable, error) {
	cur := s.joined[""]
	prefix := ""
	for _, hop := range path[:len(path)-1] {
		key := prefix + "." + hop
		if jt, ok := s.joined[key]; ok {
			cur = jt
			prefix = key
			continue
		}
		hopType, ok := s.resolver[hop]
		if !ok {
			return nil, kernelerr.Mapping("no type registered for join hop %q", hop)
		}
		jp, err := s.reg.ResolveJoin(cur.mapping.GoType, hopType)
		if err != nil {
			return nil, err
		}
		target, err := s.reg.Get(hopType)
		if err != nil {
			return nil, err
		}
		jt := s.joinTo(cur, target, jp)
		s.joined[key] = jt
		cur = jt
		prefix = key
	}
	return cur, nil
}

// joinTo allocates a fresh alias for to, appends the JOIN clause
// implementing jp, and returns the resulting joinedTable.
func (s *planState) joinTo(from *joinedTable, to *mapping.TableMapping, jp *mapping.JoinPath) *joinedTable {
	alias := s.nextAlias()
	s.addJoin(from, alias, to, jp)
	return &joinedTable{alias: alias, mapping: to}
}

// addJoin appends the JOIN clause implementing jp, quoting identifiers
// through the active dialect and appending any declared join filter to
// the ON clause.
func (s *planState) addJoin(from *joinedTable, toAlias string, to *mapping.TableMapping, jp *mapping.JoinPath) {
	q := s.dia.QuoteIdentifier
	var onParts []string
	switch jp.Kind {
	case mapping.JoinDirect:
		// FK column lives on `from`, referencing `to`'s primary key.
		onParts = append(onParts, fmt.Sprintf("%s.%s = %s.%s",
			from.alias, q(jp.FKColumn.ColumnName), toAlias, q(jp.FKColumn.ForeignKey.TargetColumn)))
	case mapping.JoinReverse:
		// FK column lives on `to`, referencing `from`'s primary key.
		onParts = append(onParts, fmt.Sprintf("%s.%s = %s.%s",
			toAlias, q(jp.FKColumn.ColumnName), from.alias, q(jp.FKColumn.ForeignKey.TargetColumn)))
	case mapping.JoinAssociative:
		assocAlias := s.nextAlias()
		onParts = append(onParts, fmt.Sprintf("%s.%s = %s.%s",
			from.alias, q(primaryKeyColumn(from.mapping)), assocAlias, q(jp.Assoc.LocalColumn)))
		s.builder.Join(fmt.Sprintf("JOIN %s %s ON %s", q(jp.Assoc.AssocTableName), assocAlias, onParts[0]))
		onParts = []string{fmt.Sprintf("%s.%s = %s.%s",
			assocAlias, q(jp.Assoc.TargetColumn), toAlias, q(primaryKeyColumn(to)))}
	}
	for _, col := range to.Columns {
		if col.JoinFilter != nil {
			onParts = append(onParts, fmt.Sprintf("%s.%s = %v", toAlias, q(col.JoinFilter.Column), quoteLiteral(col.JoinFilter.Value)))
		}
	}
	s.builder.Join(fmt.Sprintf("JOIN %s %s ON %s", q(to.TableName), toAlias, strings.Join(onParts, " AND ")))
}

func primaryKeyColumn(tm *mapping.TableMapping) string {
	if len(tm.PrimaryKeys) == 0 {
		return ""
	}
	return tm.PrimaryKeys[0].ColumnName
}

// quoteLiteral renders a join-filter constant inline; join filters are
// schema-declared constants, never user input, so this does not need a
// bound parameter.
func quoteLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// resolveColumn resolves a full Field path to its owning joinedTable and
// ColumnMapping.
func (s *planState) resolveColumn(f Field) (*joinedTable, *mapping.ColumnMapping, error) {
	if len(f.Path) == 0 {
		return nil, nil, kernelerr.Mapping("empty field path")
	}
	jt, err := s.resolveHops(f.Path)
	if err != nil {
		return nil, nil, err
	}
	colName := f.Path[len(f.Path)-1]
	col, ok := jt.mapping.ColumnByField(colName)
	if !ok {
		col, ok = jt.mapping.ColumnByName(colName)
	}
	if !ok {
		return nil, nil, kernelerr.Mapping("no column %q on table %s", colName, jt.mapping.TableName)
	}
	return jt, col, nil
}
