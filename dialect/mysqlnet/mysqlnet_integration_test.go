package mysqlnet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/santedb-go/relorm/dbcontext"
	_ "github.com/santedb-go/relorm/dialect/mysqlnet"
	"github.com/santedb-go/relorm/mapping"
)

type widget struct {
	ID   int64 `orm:"pk,autogen"`
	Name string
}

func (widget) TableName() string { return "widget" }

// TestMySQLNetAgainstRealEngine exercises the mysqlnet dialect's
// placeholder/quoting/RETURNING-fallback behavior against an actual
// MySQL server, the way the pack's container-backed integration suites
// do, rather than against a fake driver.
func TestMySQLNetAgainstRealEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed mysqlnet test in short mode")
	}

	ctx := context.Background()
	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("relorm_test"),
		mysql.WithUsername("relorm"),
		mysql.WithPassword("relorm"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	c, err := dbcontext.Connect(ctx, "mysqlnet", dsn, false, mapping.NewRegistry(), nil, false)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ExecuteNonQuery(ctx, `CREATE TABLE widget (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		name VARCHAR(255)
	)`)
	require.NoError(t, err)

	w := &widget{Name: "gadget"}
	require.NoError(t, c.Insert(ctx, w))
	require.NotZero(t, w.ID)

	got, err := dbcontext.Get[widget](ctx, c, w.ID)
	require.NoError(t, err)
	require.Equal(t, "gadget", got.Name)
}
