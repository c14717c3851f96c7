package mapped_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santedb-go/relorm/dbcontext"
	_ "github.com/santedb-go/relorm/dialect/litedb"
	"github.com/santedb-go/relorm/mapped"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/planner"
)

// personRecord is the record type the data context actually persists.
type personRecord struct {
	ID        int64 `orm:"pk,autogen"`
	GivenName string
	Current   bool
}

func (personRecord) TableName() string { return "person_record" }

// Person is the domain-facing type callers of the provider deal in.
type Person struct {
	ID   int64
	Name string
}

func newProviderTestContext(t *testing.T) *dbcontext.DataContext {
	t.Helper()
	ctx := context.Background()
	reg := mapping.NewRegistry()
	c, err := dbcontext.Connect(ctx, "litedb", ":memory:", false, reg, nil, false)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.ExecuteNonQuery(ctx, `CREATE TABLE person_record (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		given_name TEXT,
		current INTEGER
	)`)
	require.NoError(t, err)
	return c
}

func toModel(r personRecord) Person {
	return Person{ID: r.ID, Name: r.GivenName}
}

func TestProviderExecuteQueryMapsDomainFieldToRecordColumn(t *testing.T) {
	ctx := context.Background()
	c := newProviderTestContext(t)

	require.NoError(t, c.Insert(ctx, &personRecord{GivenName: "Ada", Current: true}))
	require.NoError(t, c.Insert(ctx, &personRecord{GivenName: "Bob", Current: true}))

	p := mapped.New[Person, personRecord](c, toModel,
		mapped.WithFieldMap[Person, personRecord](mapped.FieldMap{
			"Name": {"GivenName"},
		}),
	)

	results, err := p.ExecuteQuery(ctx, planner.Eq([]string{"Name"}, "Ada"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Ada", results[0].Name)
}

func TestProviderExecuteQueryWithNoFieldMapPassesNameThrough(t *testing.T) {
	ctx := context.Background()
	c := newProviderTestContext(t)
	require.NoError(t, c.Insert(ctx, &personRecord{GivenName: "Carol", Current: true}))

	p := mapped.New[Person, personRecord](c, toModel)

	results, err := p.ExecuteQuery(ctx, planner.Eq([]string{"GivenName"}, "Carol"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Carol", results[0].Name)
}

func TestProviderAppliesVersionFilter(t *testing.T) {
	ctx := context.Background()
	c := newProviderTestContext(t)
	require.NoError(t, c.Insert(ctx, &personRecord{GivenName: "Old", Current: false}))
	require.NoError(t, c.Insert(ctx, &personRecord{GivenName: "New", Current: true}))

	p := mapped.New[Person, personRecord](c, toModel,
		mapped.WithVersionFilter[Person, personRecord](func() planner.Expr {
			return planner.Eq([]string{"Current"}, true)
		}),
	)

	results, err := p.ExecuteQuery(ctx, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "New", results[0].Name)
}

func TestProviderToModelInstance(t *testing.T) {
	p := mapped.New[Person, personRecord](nil, toModel)
	m := p.ToModelInstance(personRecord{ID: 7, GivenName: "Direct"})
	assert.Equal(t, Person{ID: 7, Name: "Direct"}, m)
}
