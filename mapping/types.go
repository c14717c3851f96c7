package mapping

import "reflect"

// ForeignKeyRef is a column's declared foreign-key target.
type ForeignKeyRef struct {
	TargetTable  string
	TargetColumn string
}

// JoinFilter is a constant predicate automatically appended to a join's
// ON clause whenever the owning column's table is joined.
type JoinFilter struct {
	Column string
	Value  any
}

// ColumnMapping describes one mapped struct field.
type ColumnMapping struct {
	ColumnName           string
	FieldName            string
	DataType             SchemaType
	Nullable             bool
	PrimaryKey           bool
	AutoGenerated        bool
	NotNull              bool
	Secret               bool
	Unique               bool
	Hashed               bool
	ApplicationEncrypted bool
	IgnoreCase           bool
	PublicKey            bool
	PublicKeyRef         string
	ForeignKey           *ForeignKeyRef
	JoinFilter           *JoinFilter
	DefaultValue         any

	fieldIndex int // reflect.StructField index on the Go type
}

// FieldIndex exposes the reflect field index for value get/set; used by
// dbcontext/resultset row materialisation.
func (c *ColumnMapping) FieldIndex() int { return c.fieldIndex }

// AssocTable is a declared associative (link) table traversal from the
// owning mapping to a target table.
type AssocTable struct {
	AssocTableName string
	TargetTable    string
	LocalColumn    string // column on the assoc table referencing the owning table's pk
	TargetColumn   string // column on the assoc table referencing the target table's pk
}

// TableMapping is the stable, cached metadata for one mapped Go type.
type TableMapping struct {
	GoType      reflect.Type
	TableName   string
	Columns     []*ColumnMapping
	PrimaryKeys []*ColumnMapping
	// AlwaysJoin names tables that must be joined whenever this mapping
	// appears in a query, regardless of projection/predicate.
	AlwaysJoin   []string
	Associations []AssocTable
	SkipHints    []string
}

// ColumnByField looks up a column by its Go struct field name.
func (t *TableMapping) ColumnByField(name string) (*ColumnMapping, bool) {
	for _, c := range t.Columns {
		if c.FieldName == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnByName looks up a column by its physical column name.
func (t *TableMapping) ColumnByName(name string) (*ColumnMapping, bool) {
	for _, c := range t.Columns {
		if c.ColumnName == name {
			return c, true
		}
	}
	return nil, false
}

// JoinKind distinguishes the three ways resolveJoin can connect two
// mappings (see §4.1 tie-break order).
type JoinKind int

const (
	JoinDirect JoinKind = iota
	JoinReverse
	JoinAssociative
)

// JoinPath is the result of resolving a traversal from one mapping to
// another.
type JoinPath struct {
	Kind  JoinKind
	From  *TableMapping
	To    *TableMapping
	// FKColumn holds the foreign-key column driving JoinDirect/JoinReverse:
	// for JoinDirect it lives on From; for JoinReverse it lives on To.
	FKColumn *ColumnMapping
	Assoc    *AssocTable
}

// Tabler lets a mapped type declare its table name explicitly; types that
// don't implement it get a default name derived from the Go type name.
type Tabler interface {
	TableName() string
}

// AlwaysJoiner declares tables that must always be joined when this
// mapping is queried.
type AlwaysJoiner interface {
	AlwaysJoinWith() []string
}

// Associator declares associative-table traversals from this mapping.
type Associator interface {
	Associations() []AssocTable
}

// SkipHinter declares planner hints about query paths to avoid eager
// joining.
type SkipHinter interface {
	SkipHints() []string
}
