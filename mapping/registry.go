package mapping

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/santedb-go/relorm/kernelerr"
)

// Registry reflects record-type descriptors into TableMapping once, on
// first use, and caches the result process-wide. A Registry is safe for
// concurrent use: first-write-then-publish, read-mostly after that.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*TableMapping
	byTable map[string]*TableMapping
}

// NewRegistry creates an empty, process-wide-safe mapping registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*TableMapping),
		byTable: make(map[string]*TableMapping),
	}
}

// Get reflects T (a struct type, or pointer to struct) into a
// TableMapping, building it on first use and caching thereafter.
func (r *Registry) Get(t reflect.Type) (*TableMapping, error) {
	t = deref(t)

	r.mu.RLock()
	if tm, ok := r.byType[t]; ok {
		r.mu.RUnlock()
		return tm, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check after acquiring the write lock: another goroutine may have
	// published this mapping while we waited.
	if tm, ok := r.byType[t]; ok {
		return tm, nil
	}

	tm, err := r.build(t)
	if err != nil {
		return nil, err
	}
	r.byType[t] = tm
	r.byTable[tm.TableName] = tm
	return tm, nil
}

// MustGet panics on failure; useful in init()-time wiring where a
// mapping error is a programming error, not a runtime condition.
func (r *Registry) MustGet(t reflect.Type) *TableMapping {
	tm, err := r.Get(t)
	if err != nil {
		panic(err)
	}
	return tm
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func (r *Registry) build(t reflect.Type) (*TableMapping, error) {
	if t.Kind() != reflect.Struct {
		return nil, kernelerr.Mapping("type %s is not a struct", t)
	}

	tableName := defaultTableName(t.Name())
	if tabler, ok := reflect.New(t).Interface().(Tabler); ok {
		tableName = tabler.TableName()
	}

	tm := &TableMapping{GoType: t, TableName: tableName}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		tag := parseTag(f.Tag.Get("orm"))
		if tag.skip {
			continue
		}

		col := &ColumnMapping{
			ColumnName:    firstNonEmpty(tag.column, snakeCase(f.Name)),
			FieldName:     f.Name,
			DataType:      inferSchemaType(f.Type, tag.dataType),
			Nullable:      !tag.has("notnull") && !tag.has("pk"),
			PrimaryKey:    tag.has("pk"),
			AutoGenerated: tag.has("autogen"),
			NotNull:       tag.has("notnull"),
			Secret:        tag.has("secret"),
			Unique:        tag.has("unique"),
			Hashed:        tag.has("hashed"),
			ApplicationEncrypted: tag.has("encrypt"),
			IgnoreCase:    tag.has("ignorecase"),
			PublicKey:     tag.has("pubkey"),
			PublicKeyRef:  tag.publicKeyRef,
			fieldIndex:    i,
		}
		if tag.hasDefault {
			col.DefaultValue = coerceDefault(tag.defaultValue, col.DataType)
		}
		if tag.foreignKey != "" {
			if target, targetCol, ok := splitForeignKey(tag.foreignKey); ok {
				col.ForeignKey = &ForeignKeyRef{TargetTable: target, TargetColumn: targetCol}
			} else {
				return nil, kernelerr.Mapping("field %s.%s: malformed fk tag %q", t.Name(), f.Name, tag.foreignKey)
			}
		}
		if tag.joinFilter != "" {
			if jfCol, jfVal, ok := splitJoinFilter(tag.joinFilter); ok {
				col.JoinFilter = &JoinFilter{Column: jfCol, Value: jfVal}
			} else {
				return nil, kernelerr.Mapping("field %s.%s: malformed joinfilter tag %q", t.Name(), f.Name, tag.joinFilter)
			}
		}

		tm.Columns = append(tm.Columns, col)
		if col.PrimaryKey {
			tm.PrimaryKeys = append(tm.PrimaryKeys, col)
		}
	}

	if len(tm.PrimaryKeys) == 0 {
		return nil, kernelerr.Mapping("type %s declares no primary-key column", t.Name())
	}
	for _, col := range tm.Columns {
		if col.AutoGenerated && col.PrimaryKey && len(tm.PrimaryKeys) > 1 {
			return nil, kernelerr.Mapping("type %s: auto-generated column %s cannot be part of a composite primary key", t.Name(), col.FieldName)
		}
	}

	zero := reflect.New(t).Interface()
	if aj, ok := zero.(AlwaysJoiner); ok {
		tm.AlwaysJoin = aj.AlwaysJoinWith()
	}
	if assoc, ok := zero.(Associator); ok {
		tm.Associations = assoc.Associations()
	}
	if sh, ok := zero.(SkipHinter); ok {
		tm.SkipHints = sh.SkipHints()
	}

	return tm, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func inferSchemaType(goType reflect.Type, explicit string) SchemaType {
	if explicit != "" {
		return SchemaType(explicit)
	}
	switch goType.Kind() {
	case reflect.Bool:
		return Boolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.Slice:
		if goType.Elem().Kind() == reflect.Uint8 {
			return Binary
		}
		return String
	default:
		switch goType.String() {
		case "time.Time":
			return DateTime
		case "uuid.UUID":
			return Uuid
		}
		return String
	}
}

func coerceDefault(raw string, t SchemaType) any {
	switch t {
	case Integer:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case Float, Decimal:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case Boolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

// ColumnsFor returns the default projection list for T: every column
// except those flagged Secret, unless includeSecret is true.
func (r *Registry) ColumnsFor(t reflect.Type, includeSecret bool) ([]*ColumnMapping, error) {
	tm, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	if includeSecret {
		return tm.Columns, nil
	}
	out := make([]*ColumnMapping, 0, len(tm.Columns))
	for _, c := range tm.Columns {
		if !c.Secret {
			out = append(out, c)
		}
	}
	return out, nil
}

// AlwaysJoinTargets returns the TableMappings of every table T's mapping
// declares as always-join, resolved by table name.
func (r *Registry) AlwaysJoinTargets(t reflect.Type) ([]*TableMapping, error) {
	tm, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TableMapping, 0, len(tm.AlwaysJoin))
	for _, tableName := range tm.AlwaysJoin {
		if target, ok := r.byTable[tableName]; ok {
			out = append(out, target)
		}
	}
	return out, nil
}

// ResolveJoinByTable is ResolveJoin, but the target is named by table
// name rather than Go type — used for always-join resolution, where a
// mapping declares a target table without a caller-supplied type hop
// name to resolve it by.
func (r *Registry) ResolveJoinByTable(a reflect.Type, targetTable string) (*JoinPath, error) {
	r.mu.RLock()
	target, ok := r.byTable[targetTable]
	r.mu.RUnlock()
	if !ok {
		return nil, kernelerr.NoJoinPath("always-join target table %q is not a registered mapping", targetTable)
	}
	return r.ResolveJoin(a, target.GoType)
}

// ResolveJoin finds a traversal from A to B using the tie-break order
// from spec §4.1: (1) direct FK A->B, (2) direct FK B->A, (3) declared
// associative table on A targeting B. The first match wins.
func (r *Registry) ResolveJoin(a, b reflect.Type) (*JoinPath, error) {
	tmA, err := r.Get(a)
	if err != nil {
		return nil, err
	}
	tmB, err := r.Get(b)
	if err != nil {
		return nil, err
	}

	for _, col := range tmA.Columns {
		if col.ForeignKey != nil && col.ForeignKey.TargetTable == tmB.TableName {
			return &JoinPath{Kind: JoinDirect, From: tmA, To: tmB, FKColumn: col}, nil
		}
	}
	for _, col := range tmB.Columns {
		if col.ForeignKey != nil && col.ForeignKey.TargetTable == tmA.TableName {
			return &JoinPath{Kind: JoinReverse, From: tmA, To: tmB, FKColumn: col}, nil
		}
	}
	for i := range tmA.Associations {
		assoc := tmA.Associations[i]
		if assoc.TargetTable == tmB.TableName {
			return &JoinPath{Kind: JoinAssociative, From: tmA, To: tmB, Assoc: &tmA.Associations[i]}, nil
		}
	}

	return nil, kernelerr.NoJoinPath("no join path from %s to %s", tmA.TableName, tmB.TableName)
}

// DetectCycle reports whether a foreign-key chain starting at t revisits
// a table already on the path, per spec §3 ("cycles are permitted but
// the planner must detect them"). It does not error on a cycle; the
// caller decides how to bound traversal (e.g. stop following FKs once a
// table repeats).
func (r *Registry) DetectCycle(t reflect.Type) (cyclic bool, path []string, err error) {
	visited := make(map[string]bool)
	cur, err := r.Get(t)
	if err != nil {
		return false, nil, err
	}
	for {
		if visited[cur.TableName] {
			return true, path, nil
		}
		visited[cur.TableName] = true
		path = append(path, cur.TableName)

		var next *TableMapping
		for _, col := range cur.Columns {
			if col.ForeignKey == nil {
				continue
			}
			r.mu.RLock()
			target, ok := r.byTable[col.ForeignKey.TargetTable]
			r.mu.RUnlock()
			if ok {
				next = target
				break
			}
		}
		if next == nil {
			return false, path, nil
		}
		cur = next
	}
}
