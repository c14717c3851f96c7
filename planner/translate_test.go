package planner_test

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/dialect/litedb"
	"github.com/santedb-go/relorm/dialect/mysqlnet"
	"github.com/santedb-go/relorm/dialect/pgnet"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/planner"
)

type device struct {
	ID      int64 `orm:"pk,autogen"`
	AssetID uuid.UUID
}

func (device) TableName() string { return "device" }

// planDeviceEq plans a single equality predicate over AssetID (a Uuid
// column) against dia and returns the generic, pre-rewrite SQL.
func planDeviceEq(t *testing.T, dia dialect.Dialect) string {
	t.Helper()
	reg := mapping.NewRegistry()
	pl := planner.New(reg, dia)
	plan, err := pl.Select(planner.Query{
		Root:  reflect.TypeOf(device{}),
		Where: planner.Eq([]string{"AssetID"}, uuid.New()),
	})
	require.NoError(t, err)
	return plan.GenericSQL
}

// TestTranslateBinaryWrapsUUIDParamPerDialect confirms translateBinary
// consults Dialect.WrapUUIDParam for a Uuid-typed column instead of
// emitting a bare placeholder.
func TestTranslateBinaryWrapsUUIDParamPerDialect(t *testing.T) {
	require.Contains(t, planDeviceEq(t, mysqlnet.New()), "CHAR_TO_UUID(?)")
	require.Contains(t, planDeviceEq(t, pgnet.New()), "?::uuid")
	require.NotContains(t, planDeviceEq(t, litedb.New()), "CHAR_TO_UUID")
}
