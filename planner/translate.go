package planner

import (
	"fmt"

	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/sqlbuilder"
)

// translate converts one Expr node into a sqlbuilder.Predicate, joining
// tables as member-access chains are encountered.
func (s *planState) translate(e Expr) (sqlbuilder.Predicate, error) {
	switch n := e.(type) {
	case Binary:
		return s.translateBinary(n)
	case IsNull:
		jt, col, err := s.resolveColumn(n.Target)
		if err != nil {
			return nil, err
		}
		return sqlbuilder.IsNull(s.qualify(jt.alias, col.ColumnName)), nil
	case IsNotNull:
		jt, col, err := s.resolveColumn(n.Target)
		if err != nil {
			return nil, err
		}
		return sqlbuilder.IsNotNull(s.qualify(jt.alias, col.ColumnName)), nil
	case Logical:
		preds := make([]sqlbuilder.Predicate, 0, len(n.Exprs))
		for _, sub := range n.Exprs {
			p, err := s.translate(sub)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		if n.Op == LogOr {
			return sqlbuilder.Or(preds...), nil
		}
		return sqlbuilder.And(preds...), nil
	case Not:
		p, err := s.translate(n.Target)
		if err != nil {
			return nil, err
		}
		return sqlbuilder.NotP(p), nil
	case Call:
		return s.translateCall(n)
	case Any:
		return s.translateAny(n)
	default:
		return nil, kernelerr.Mapping("planner: unsupported expression %T", e)
	}
}

func (s *planState) translateBinary(n Binary) (sqlbuilder.Predicate, error) {
	field, isField := n.Left.(Field)
	if !isField {
		return nil, kernelerr.Mapping("planner: binary comparison left side must be a field reference")
	}
	jt, col, err := s.resolveColumn(field)
	if err != nil {
		return nil, err
	}
	if col.ApplicationEncrypted && n.Op != OpEq {
		return nil, kernelerr.UnsupportedEncryptedPredicate
	}
	lit, isLit := n.Right.(Lit)
	if !isLit {
		return nil, kernelerr.Mapping("planner: binary comparison right side must be a literal")
	}
	if col.ApplicationEncrypted {
		if s.enc == nil {
			return nil, kernelerr.UnsupportedEncryptedPredicate
		}
		encVal, err := s.enc.EncryptForQuery(jt.mapping.TableName, col.ColumnName, lit.Value)
		if err != nil {
			return nil, err
		}
		lit = Lit{Value: encVal}
	}
	qualified := s.qualify(jt.alias, col.ColumnName)
	if col.DataType == mapping.String && col.IgnoreCase && n.Op == OpEq {
		return sqlbuilder.Raw{
			SQL:    fmt.Sprintf("%s(%s) = %s(?)", s.dia.LowerFunc(), qualified, s.dia.LowerFunc()),
			Params: []any{lit.Value},
		}, nil
	}
	placeholder := "?"
	if col.DataType == mapping.Uuid {
		placeholder = s.dia.WrapUUIDParam(placeholder)
	}
	return sqlbuilder.Raw{SQL: fmt.Sprintf("%s %s %s", qualified, string(n.Op), placeholder), Params: []any{lit.Value}}, nil
}

func (s *planState) translateCall(n Call) (sqlbuilder.Predicate, error) {
	jt, col, err := s.resolveColumn(n.Column)
	if err != nil {
		return nil, err
	}
	if col.ApplicationEncrypted {
		return nil, kernelerr.UnsupportedEncryptedPredicate
	}
	fn, err := s.dia.FilterFunction(n.Func)
	if err != nil {
		return nil, err
	}
	sql, params, err := fn.Apply(s.qualify(jt.alias, col.ColumnName), n.Arg, col.DataType)
	if err != nil {
		return nil, err
	}
	return sqlbuilder.Raw{SQL: sql, Params: params}, nil
}

// translateAny emits the EXISTS traversal for a.Bs.Any(predicate):
// EXISTS (SELECT 1 FROM assoc JOIN B ... WHERE assoc.a_id = t0.pk AND
// <sub-predicate>).
func (s *planState) translateAny(n Any) (sqlbuilder.Predicate, error) {
	if len(n.Path) == 0 {
		return nil, kernelerr.Mapping("planner: Any requires a non-empty relation path")
	}
	root := s.joined[""]
	hopType, ok := s.resolver[n.Path[0]]
	if !ok {
		return nil, kernelerr.Mapping("no type registered for join hop %q", n.Path[0])
	}
	jp, err := s.reg.ResolveJoin(root.mapping.GoType, hopType)
	if err != nil {
		return nil, err
	}
	target, err := s.reg.Get(hopType)
	if err != nil {
		return nil, err
	}

	sub := sqlbuilder.New(s.dia.QuoteIdentifier(target.TableName), "sub0")
	sub.Select("1")

	q := s.dia.QuoteIdentifier
	switch jp.Kind {
	case mapping.JoinDirect:
		sub.Where(sqlbuilder.Raw{SQL: fmt.Sprintf("sub0.%s = %s.%s", q(jp.FKColumn.ForeignKey.TargetColumn), root.alias, q(jp.FKColumn.ColumnName))})
	case mapping.JoinReverse:
		sub.Where(sqlbuilder.Raw{SQL: fmt.Sprintf("sub0.%s = %s.%s", q(jp.FKColumn.ColumnName), root.alias, q(primaryKeyColumn(root.mapping)))})
	case mapping.JoinAssociative:
		sub = sqlbuilder.New(q(jp.Assoc.AssocTableName), "assoc0")
		sub.Select("1")
		sub.Join(fmt.Sprintf("JOIN %s sub0 ON sub0.%s = assoc0.%s", q(target.TableName), q(primaryKeyColumn(target)), q(jp.Assoc.TargetColumn)))
		sub.Where(sqlbuilder.Raw{SQL: fmt.Sprintf("assoc0.%s = %s.%s", q(jp.Assoc.LocalColumn), root.alias, q(primaryKeyColumn(root.mapping)))})
	}

	subState := &planState{
		reg: s.reg, dia: s.dia, resolver: s.resolver, enc: s.enc, builder: sub,
		joined: map[string]*joinedTable{"": {alias: "sub0", mapping: target}},
	}
	pred, err := subState.translate(n.Predicate)
	if err != nil {
		return nil, err
	}
	sub.Where(pred)

	innerSQL, params, err := sub.Build(nil)
	if err != nil {
		return nil, err
	}
	return sqlbuilder.Raw{SQL: fmt.Sprintf("EXISTS (%s)", innerSQL), Params: params}, nil
}

func (s *planState) qualify(alias, column string) string {
	return alias + "." + s.dia.QuoteIdentifier(column)
}
