package dbcontext_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santedb-go/relorm/dbcontext"
	_ "github.com/santedb-go/relorm/dialect/litedb"
	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/planner"
)

type patient struct {
	ID        int64  `orm:"pk,autogen"`
	GivenName string `orm:"notnull"`
	FamilyName string
	Active    bool
}

func (patient) TableName() string { return "patient" }

func newTestContext(t *testing.T) *dbcontext.DataContext {
	t.Helper()
	ctx := context.Background()
	reg := mapping.NewRegistry()
	c, err := dbcontext.Connect(ctx, "litedb", ":memory:", false, reg, nil, false)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.ExecuteNonQuery(ctx, `CREATE TABLE patient (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		given_name TEXT NOT NULL,
		family_name TEXT,
		active INTEGER
	)`)
	require.NoError(t, err)
	return c
}

func TestInsertAssignsAutoGeneratedPrimaryKey(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	p := &patient{GivenName: "Ada", FamilyName: "Lovelace", Active: true}
	require.NoError(t, c.Insert(ctx, p))
	assert.NotZero(t, p.ID)
}

func TestGetRoundTripsInsertedRow(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	p := &patient{GivenName: "Grace", FamilyName: "Hopper"}
	require.NoError(t, c.Insert(ctx, p))

	got, err := dbcontext.Get[patient](ctx, c, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.GivenName)
	assert.Equal(t, "Hopper", got.FamilyName)
}

func TestGetMissingRowReturnsNoRows(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	_, err := dbcontext.Get[patient](ctx, c, int64(999))
	assert.ErrorIs(t, err, kernelerr.NoRows)
}

func TestUpdatePersistsChanges(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	p := &patient{GivenName: "Linus", FamilyName: "Torvalds"}
	require.NoError(t, c.Insert(ctx, p))

	p.FamilyName = "T."
	require.NoError(t, c.Update(ctx, p))

	got, err := dbcontext.Get[patient](ctx, c, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "T.", got.FamilyName)
}

func TestUpdateMissingRowReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	p := &patient{ID: 42, GivenName: "Ghost"}
	err := c.Update(ctx, p)
	assert.ErrorIs(t, err, kernelerr.NotFound)
}

func TestDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	p := &patient{GivenName: "Margaret", FamilyName: "Hamilton"}
	require.NoError(t, c.Insert(ctx, p))
	require.NoError(t, c.Delete(ctx, p))

	_, err := dbcontext.Get[patient](ctx, c, p.ID)
	assert.ErrorIs(t, err, kernelerr.NoRows)
}

func TestUpdateAllAppliesPatchToMatchingRows(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, c.Insert(ctx, &patient{GivenName: name, Active: false}))
	}

	res, err := dbcontext.UpdateAll[patient](ctx, c, nil, dbcontext.Patch{"Active": true})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.RowsAffected)

	rows, err := dbcontext.Query[patient](c, nil).All(ctx)
	require.NoError(t, err)
	for _, r := range rows {
		assert.True(t, r.Active)
	}
}

func TestDeleteWhereRemovesMatchingRows(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	require.NoError(t, c.Insert(ctx, &patient{GivenName: "keep"}))
	require.NoError(t, c.Insert(ctx, &patient{GivenName: "drop"}))

	pred := planner.Eq([]string{"GivenName"}, "drop")
	res, err := dbcontext.DeleteWhere[patient](ctx, c, pred)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)

	count, err := dbcontext.Query[patient](c, nil).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCreateManyBatchesInserts(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)

	records := []patient{
		{GivenName: "One"},
		{GivenName: "Two"},
		{GivenName: "Three"},
	}
	res, err := dbcontext.CreateMany[patient](ctx, c, records)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.RowsAffected)

	count, err := dbcontext.Query[patient](c, nil).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestEnableCacheReturnsSameInstanceAcrossGets(t *testing.T) {
	ctx := context.Background()
	c := newTestContext(t)
	dbcontext.EnableCache[patient](c)

	p := &patient{GivenName: "Cached"}
	require.NoError(t, c.Insert(ctx, p))

	first, err := dbcontext.Get[patient](ctx, c, p.ID)
	require.NoError(t, err)
	second, err := dbcontext.Get[patient](ctx, c, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
