// Package planner translates a typed predicate/projection/order
// expression over one or more mapped types into a SELECT statement,
// resolving member-access chains into joins via the mapping registry.
package planner

// Expr is a node in the predicate/value expression tree a caller builds
// to describe a query. The tree is deliberately small: binary
// comparisons, logical combinators, field references (member-access
// chains), literals, named filter-function calls, and collection
// traversal (Any).
type Expr interface{ isExpr() }

// Field references a column reached by a (possibly multi-hop) member
// access chain rooted at the query's primary type, e.g. Field("B", "C")
// for `a.B.C`. An empty path is invalid; a one-element path names a
// column on the root type.
type Field struct{ Path []string }

func (Field) isExpr() {}

// Lit is a constant value operand.
type Lit struct{ Value any }

func (Lit) isExpr() {}

// BinOp is the closed set of binary comparison operators the planner
// recognizes.
type BinOp string

const (
	OpEq    BinOp = "="
	OpNotEq BinOp = "<>"
	OpLt    BinOp = "<"
	OpLte   BinOp = "<="
	OpGt    BinOp = ">"
	OpGte   BinOp = ">="
)

// Binary is a binary comparison between two expressions, almost always
// a Field on the left and a Lit on the right.
type Binary struct {
	Op          BinOp
	Left, Right Expr
}

func (Binary) isExpr() {}

// IsNull/IsNotNull are the null-comparison leaves spec §4.4 calls out
// specially (never rendered as "= NULL").
type IsNull struct{ Target Field }
type IsNotNull struct{ Target Field }

func (IsNull) isExpr()    {}
func (IsNotNull) isExpr() {}

// LogicalOp combines a list of sub-expressions.
type LogicalOp string

const (
	LogAnd LogicalOp = "AND"
	LogOr  LogicalOp = "OR"
)

type Logical struct {
	Op    LogicalOp
	Exprs []Expr
}

func (Logical) isExpr() {}

// Not negates a sub-expression.
type Not struct{ Target Expr }

func (Not) isExpr() {}

// Call is a named filter-function pseudo-call: fn(col, arg1, ...). The
// planner resolves Func through the dialect's filter-function registry,
// which renders the complete predicate fragment for that column and
// operand — there is no separate comparison operator layered on top,
// since the registered function itself always produces a boolean SQL
// expression.
type Call struct {
	Func   string
	Column Field
	Arg    any
}

func (Call) isExpr() {}

// Any emits an EXISTS traversal over an associative or direct
// collection relation: a.Bs.Any(predicate). Path names the relation
// (resolved via the mapping registry's associative-table declarations),
// Predicate is evaluated with the joined table as its implicit root.
type Any struct {
	Path      []string
	Predicate Expr
}

func (Any) isExpr() {}

// Order is one ORDER BY entry over a field reference.
type Order struct {
	Target Field
	Desc   bool
}

// And/Or/NotExpr are convenience constructors.
func And(exprs ...Expr) Expr { return Logical{Op: LogAnd, Exprs: exprs} }
func Or(exprs ...Expr) Expr  { return Logical{Op: LogOr, Exprs: exprs} }
func NotExpr(e Expr) Expr    { return Not{Target: e} }

func Eq(path []string, v any) Expr    { return Binary{Op: OpEq, Left: Field{Path: path}, Right: Lit{Value: v}} }
func NotEq(path []string, v any) Expr { return Binary{Op: OpNotEq, Left: Field{Path: path}, Right: Lit{Value: v}} }
func Lt(path []string, v any) Expr    { return Binary{Op: OpLt, Left: Field{Path: path}, Right: Lit{Value: v}} }
func Lte(path []string, v any) Expr   { return Binary{Op: OpLte, Left: Field{Path: path}, Right: Lit{Value: v}} }
func Gt(path []string, v any) Expr    { return Binary{Op: OpGt, Left: Field{Path: path}, Right: Lit{Value: v}} }
func Gte(path []string, v any) Expr   { return Binary{Op: OpGte, Left: Field{Path: path}, Right: Lit{Value: v}} }
