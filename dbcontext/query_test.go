package dbcontext_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santedb-go/relorm/dbcontext"
	"github.com/santedb-go/relorm/planner"
)

type labResult struct {
	ID       int64 `orm:"pk,autogen"`
	TestCode string
	Value    float64
}

func (labResult) TableName() string { return "lab_result" }

func newLabResultContext(t *testing.T) *dbcontext.DataContext {
	t.Helper()
	c := newTestContext(t)
	_, err := c.ExecuteNonQuery(context.Background(), `CREATE TABLE lab_result (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_code TEXT,
		value REAL
	)`)
	require.NoError(t, err)
	return c
}

func TestAggregateScalarsComputeOverMatchingRows(t *testing.T) {
	ctx := context.Background()
	c := newLabResultContext(t)

	for _, v := range []float64{10, 20, 30} {
		require.NoError(t, c.Insert(ctx, &labResult{TestCode: "GLU", Value: v}))
	}

	field := planner.Field{Path: []string{"Value"}}
	q := dbcontext.Query[labResult](c, nil)

	sum, err := q.Sum(ctx, field)
	require.NoError(t, err)
	assert.Equal(t, 60.0, sum)

	avg, err := q.Avg(ctx, field)
	require.NoError(t, err)
	assert.Equal(t, 20.0, avg)

	max, err := q.Max(ctx, field)
	require.NoError(t, err)
	assert.Equal(t, 30.0, max)

	min, err := q.Min(ctx, field)
	require.NoError(t, err)
	assert.Equal(t, 10.0, min)
}

func TestAggregateScalarsOverEmptySetReturnZero(t *testing.T) {
	ctx := context.Background()
	c := newLabResultContext(t)

	sum, err := dbcontext.Query[labResult](c, nil).Sum(ctx, planner.Field{Path: []string{"Value"}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)
}

func TestGroupByHavingFiltersGroupedRows(t *testing.T) {
	ctx := context.Background()
	c := newLabResultContext(t)

	require.NoError(t, c.Insert(ctx, &labResult{TestCode: "GLU", Value: 1}))
	require.NoError(t, c.Insert(ctx, &labResult{TestCode: "GLU", Value: 2}))
	require.NoError(t, c.Insert(ctx, &labResult{TestCode: "HGB", Value: 3}))

	rows, err := dbcontext.Query[labResult](c, nil).
		GroupBy(planner.Field{Path: []string{"TestCode"}}).
		Having(planner.Eq([]string{"TestCode"}, "GLU")).
		Select(planner.Field{Path: []string{"TestCode"}}).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "GLU", rows[0].TestCode)
}
