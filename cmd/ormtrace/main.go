// Command ormtrace is a connection and SQL-tracing diagnostic tool for
// the relational mapping kernel: open a configured connection, ping it,
// or run a one-off raw statement with tracing enabled, without writing
// a Go program against the kernel's typed API.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/santedb-go/relorm/config"
	"github.com/santedb-go/relorm/dbcontext"
	_ "github.com/santedb-go/relorm/dialect/filedb"
	_ "github.com/santedb-go/relorm/dialect/litedb"
	_ "github.com/santedb-go/relorm/dialect/mysqlnet"
	_ "github.com/santedb-go/relorm/dialect/pgnet"
	"github.com/santedb-go/relorm/encryption"
	"github.com/santedb-go/relorm/logger"
	"github.com/santedb-go/relorm/mapping"
)

var version = "dev"

type commonFlags struct {
	configPath string
	connection string
	logLevel   string
	timeout    int
}

func main() {
	common := &commonFlags{}

	root := &cobra.Command{
		Use:   "ormtrace",
		Short: "Connection and SQL-tracing tool for the relational mapping kernel",
	}
	root.PersistentFlags().StringVar(&common.configPath, "config", "./relorm.toml", "Path to the TOML connection configuration")
	root.PersistentFlags().StringVar(&common.connection, "connection", "", "Named connection to use (required)")
	root.PersistentFlags().StringVar(&common.logLevel, "log-level", "info", "Logging level: debug|info|warn|error|none")
	root.PersistentFlags().IntVar(&common.timeout, "timeout", 30, "Connection/operation timeout in seconds")

	root.AddCommand(versionCmd())
	root.AddCommand(pingCmd(common))
	root.AddCommand(execCmd(common))
	root.AddCommand(queryCmd(common))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tool version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("ormtrace %s\n", version)
		},
	}
}

func pingCmd(common *commonFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Open the configured connection and verify it's reachable",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := timeoutCtx(common)
			defer cancel()
			c, err := connect(ctx, common)
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Println("connection OK")
			return nil
		},
	}
}

func execCmd(common *commonFlags) *cobra.Command {
	var trace bool
	cmd := &cobra.Command{
		Use:   "exec <sql> [params...]",
		Short: "Execute a raw non-query statement (INSERT/UPDATE/DELETE/DDL)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := timeoutCtx(common)
			defer cancel()
			common2 := *common
			c, err := connectTraced(ctx, &common2, trace)
			if err != nil {
				return err
			}
			defer c.Close()

			params := make([]any, len(args)-1)
			for i, a := range args[1:] {
				params[i] = a
			}
			res, err := c.ExecuteNonQuery(ctx, args[0], params...)
			if err != nil {
				return err
			}
			fmt.Printf("rows affected: %d\n", res.RowsAffected)
			if res.LastInsertID != 0 {
				fmt.Printf("last insert id: %d\n", res.LastInsertID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "Log the final SQL text and parameter types before executing")
	return cmd
}

func queryCmd(common *commonFlags) *cobra.Command {
	var trace bool
	cmd := &cobra.Command{
		Use:   "query <sql> [params...]",
		Short: "Run a raw SELECT and print the result rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := timeoutCtx(common)
			defer cancel()
			common2 := *common
			c, err := connectTraced(ctx, &common2, trace)
			if err != nil {
				return err
			}
			defer c.Close()

			params := make([]any, len(args)-1)
			for i, a := range args[1:] {
				params[i] = a
			}
			rows, err := c.QueryRows(ctx, args[0], params)
			if err != nil {
				return err
			}
			defer rows.Close()

			cols, err := rows.Columns()
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(cols, "\t"))

			n := 0
			for rows.Next() {
				vals := make([]any, len(cols))
				ptrs := make([]any, len(cols))
				for i := range vals {
					ptrs[i] = &vals[i]
				}
				if err := rows.Scan(ptrs...); err != nil {
					return err
				}
				strs := make([]string, len(vals))
				for i, v := range vals {
					strs[i] = fmt.Sprintf("%v", v)
				}
				fmt.Println(strings.Join(strs, "\t"))
				n++
			}
			fmt.Printf("\n(%d rows)\n", n)
			return rows.Err()
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "Log the final SQL text and parameter types before executing")
	return cmd
}

func timeoutCtx(common *commonFlags) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(common.timeout)*time.Second)
}

func connect(ctx context.Context, common *commonFlags) (*dbcontext.DataContext, error) {
	return connectTraced(ctx, common, false)
}

func connectTraced(ctx context.Context, common *commonFlags, forceTrace bool) (*dbcontext.DataContext, error) {
	l := logger.NewDefaultLogger("ormtrace")
	l.SetLevel(logger.ParseLogLevel(common.logLevel))
	logger.SetGlobalLogger(l)

	if common.connection == "" {
		return nil, fmt.Errorf("--connection is required")
	}

	doc, err := config.Load(common.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", common.configPath, err)
	}
	conn, err := doc.Get(common.connection)
	if err != nil {
		return nil, err
	}

	var enc *encryption.Adapter
	if conn.Encryption.Enabled {
		enc, err = buildEncryptionAdapter(conn.Encryption)
		if err != nil {
			return nil, err
		}
	}

	trace := conn.Trace || forceTrace
	reg := mapping.NewRegistry()
	return dbcontext.Connect(ctx, conn.Invariant, conn.ConnectionString, conn.ReadOnly, reg, enc, trace)
}

// buildEncryptionAdapter wires a connection's ALE configuration into an
// encryption.Adapter. The master key itself is never stored in the TOML
// document; this CLI expects it pre-provisioned via the
// ORMTRACE_MASTER_KEY_HEX environment variable for local diagnostic use
// — production callers build the Adapter themselves from their own
// certificate-backed key-management flow instead of going through this
// CLI at all.
func buildEncryptionAdapter(cfg config.ApplicationEncryption) (*encryption.Adapter, error) {
	hexKey := os.Getenv("ORMTRACE_MASTER_KEY_HEX")
	if hexKey == "" {
		return nil, fmt.Errorf("encryption is enabled for this connection but ORMTRACE_MASTER_KEY_HEX is not set")
	}
	key, err := decodeHexKey(hexKey)
	if err != nil {
		return nil, err
	}
	fields := make(map[encryption.FieldKey]encryption.Mode, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[encryption.FieldKey{Table: f.Table, Field: f.Field}] = encryption.Mode(f.Mode)
	}
	return encryption.NewAdapter(key, cfg.SaltSeed, fields)
}

func decodeHexKey(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("ORMTRACE_MASTER_KEY_HEX must have even length")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return nil, fmt.Errorf("ORMTRACE_MASTER_KEY_HEX: invalid hex at byte %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
