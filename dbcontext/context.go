// Package dbcontext implements the Data Context from spec §4.5: a
// scoped holder around one live database connection and an optional
// transaction, owning prepared-statement reuse, a per-context data
// cache, and disposal semantics. A DataContext is not safe for
// concurrent use (spec §5) — callers obtain a fresh context per unit of
// work, cloning one via OpenClonedContext when a dependent load needs a
// second active reader on an engine that forbids more than one per
// connection.
package dbcontext

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/santedb-go/relorm/dialect"
	"github.com/santedb-go/relorm/encryption"
	"github.com/santedb-go/relorm/kernelerr"
	"github.com/santedb-go/relorm/logger"
	"github.com/santedb-go/relorm/mapping"
	"github.com/santedb-go/relorm/resultset"
)

// Result carries the outcome of a non-row-returning statement (ExecuteNonQuery,
// UpdateAll, DeleteWhere).
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// provider is shared by a DataContext and every context OpenClonedContext
// produces from it: the underlying connection pool, the active dialect,
// the process-wide mapping registry, and an optional encryption adapter.
type provider struct {
	db    *sql.DB
	dia   dialect.Dialect
	reg   *mapping.Registry
	enc   *encryption.Adapter
	trace bool
}

// DataContext is the scoped holder described in spec §4.5/§3: one live
// connection, zero-or-one transaction, a prepared-statement cache keyed
// by SQL text, and a per-context data cache keyed by (type, primary key).
type DataContext struct {
	p        *provider
	conn     *sql.Conn
	tx       *sql.Tx
	readOnly bool
	opened   bool
	disposed bool

	prepared map[string]*sql.Stmt
	cache    map[cacheKey]any
	cacheOn  map[reflect.Type]bool
}

type cacheKey struct {
	t  reflect.Type
	pk any
}

// Connect opens a fresh provider against invariant/dataSource and
// returns an already-Open'd DataContext — the common case for a caller
// that doesn't need to share one connection pool across several
// contexts. Registry, enc, and trace configure the whole provider; every
// context cloned from this one (via OpenClonedContext) shares them.
func Connect(ctx context.Context, invariant, dataSource string, readOnly bool, reg *mapping.Registry, enc *encryption.Adapter, trace bool) (*DataContext, error) {
	dia, err := dialect.Lookup(invariant)
	if err != nil {
		return nil, err
	}
	db, err := dia.Open(ctx, dataSource)
	if err != nil {
		return nil, kernelerr.DbError(dataSource, nil, "", err)
	}
	if reg == nil {
		reg = mapping.NewRegistry()
	}
	p := &provider{db: db, dia: dia, reg: reg, enc: enc, trace: trace}
	dc := p.newContext(readOnly)
	if err := dc.Open(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return dc, nil
}

func (p *provider) newContext(readOnly bool) *DataContext {
	return &DataContext{
		p:        p,
		readOnly: readOnly,
		prepared: make(map[string]*sql.Stmt),
		cache:    make(map[cacheKey]any),
		cacheOn:  make(map[reflect.Type]bool),
	}
}

// Open pins a dedicated connection from the provider's pool. Idempotent
// within the same context, per spec §4.5.
func (c *DataContext) Open(ctx context.Context) error {
	if c.disposed {
		return kernelerr.InvalidState("data context is disposed")
	}
	if c.opened {
		return nil
	}
	conn, err := c.p.db.Conn(ctx)
	if err != nil {
		return kernelerr.DbError("", nil, "", err)
	}
	c.conn = conn
	c.opened = true
	return nil
}

// ReadOnly reports whether this context was opened with read-only
// intent (spec §6 connection configuration). The core does not itself
// refuse writes on a read-only context — that enforcement, if any, is a
// caller or connection-string concern — but exposes the flag so callers
// can assert it.
func (c *DataContext) ReadOnly() bool { return c.readOnly }

// Registry exposes the provider's mapping registry, used by the generic
// Query/Get helpers in query.go that cannot be methods on DataContext
// (Go forbids a generic type parameter on a method).
func (c *DataContext) Registry() *mapping.Registry { return c.p.reg }

// Dialect exposes the provider's active dialect.
func (c *DataContext) Dialect() dialect.Dialect { return c.p.dia }

// BeginTransaction starts the single transaction a context may hold at
// once; a nested call fails, per spec §4.5/§5.
func (c *DataContext) BeginTransaction(ctx context.Context) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	if c.tx != nil {
		return kernelerr.InvalidState("a transaction is already active on this context")
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return kernelerr.DbError("BEGIN", nil, "", err)
	}
	c.tx = tx
	return nil
}

// Commit commits the active transaction.
func (c *DataContext) Commit() error {
	if c.tx == nil {
		return kernelerr.InvalidState("no active transaction to commit")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return kernelerr.DbError("COMMIT", nil, "", err)
	}
	return nil
}

// Rollback rolls back the active transaction. The caller decides
// rollback vs. continuation after a failed statement (spec §7
// propagation policy); the core never does this automatically.
func (c *DataContext) Rollback() error {
	if c.tx == nil {
		return kernelerr.InvalidState("no active transaction to roll back")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil {
		return kernelerr.DbError("ROLLBACK", nil, "", err)
	}
	return nil
}

// InTransaction reports whether a transaction is currently active.
func (c *DataContext) InTransaction() bool { return c.tx != nil }

// OpenClonedContext returns a new context over a fresh connection from
// the same provider, with its own (initially absent) transaction scope —
// used by the result set to load dependent rows on engines that forbid
// more than one active reader per connection (spec §4.5/§5). Satisfies
// resultset.Executor.
func (c *DataContext) OpenClonedContext(ctx context.Context) (resultset.Executor, error) {
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	nc := c.p.newContext(c.readOnly)
	if err := nc.Open(ctx); err != nil {
		return nil, err
	}
	return nc, nil
}

// Close releases the connection and every cached prepared command,
// rolling back any transaction still active. Safe to call more than
// once.
func (c *DataContext) Close() error {
	if c.disposed {
		return nil
	}
	c.disposed = true
	for _, stmt := range c.prepared {
		stmt.Close()
	}
	c.prepared = nil
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *DataContext) checkUsable() error {
	if c.disposed {
		return kernelerr.InvalidState("operation on a disposed data context")
	}
	if !c.opened {
		return kernelerr.InvalidState("data context is not open; call Open first")
	}
	return nil
}

// QueryRows executes a SELECT and returns its cursor. Satisfies
// resultset.Executor.
func (c *DataContext) QueryRows(ctx context.Context, sqlText string, params []any) (*sql.Rows, error) {
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	c.trace(sqlText, params)
	if !isPreparable(params) {
		if c.tx != nil {
			return c.tx.QueryContext(ctx, sqlText, params...)
		}
		return c.conn.QueryContext(ctx, sqlText, params...)
	}
	stmt, err := c.stmtFor(ctx, sqlText)
	if err != nil {
		return nil, classifyCtxErr(err)
	}
	rows, err := stmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, classifyCtxErr(err)
	}
	return rows, nil
}

func (c *DataContext) execRaw(ctx context.Context, sqlText string, params []any) (sql.Result, error) {
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	c.trace(sqlText, params)
	if !isPreparable(params) {
		if c.tx != nil {
			return c.tx.ExecContext(ctx, sqlText, params...)
		}
		return c.conn.ExecContext(ctx, sqlText, params...)
	}
	stmt, err := c.stmtFor(ctx, sqlText)
	if err != nil {
		return nil, classifyCtxErr(err)
	}
	return stmt.ExecContext(ctx, params...)
}

func (c *DataContext) queryRowRaw(ctx context.Context, sqlText string, params []any) (*sql.Row, error) {
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	c.trace(sqlText, params)
	if !isPreparable(params) {
		if c.tx != nil {
			return c.tx.QueryRowContext(ctx, sqlText, params...), nil
		}
		return c.conn.QueryRowContext(ctx, sqlText, params...), nil
	}
	stmt, err := c.stmtFor(ctx, sqlText)
	if err != nil {
		return nil, classifyCtxErr(err)
	}
	return stmt.QueryRowContext(ctx, params...), nil
}

// stmtFor resolves a prepared statement for sqlText. Outside a
// transaction, statements are prepared once on this context's connection
// and cached by SQL text. Inside a transaction, a statement already
// cached from outside the transaction is rebound via Tx.StmtContext (the
// engine permits reuse); one with no outside-transaction counterpart is
// prepared directly against the transaction and left uncached, since it
// cannot outlive the transaction (spec §4.5/§5: "opening a transaction
// disables prepared-command caching for the duration where the engine
// forbids preparation inside transactions").
func (c *DataContext) stmtFor(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	if cached, ok := c.prepared[sqlText]; ok {
		if c.tx != nil {
			return c.tx.StmtContext(ctx, cached), nil
		}
		return cached, nil
	}
	if c.tx != nil {
		return c.tx.PrepareContext(ctx, sqlText)
	}
	stmt, err := c.conn.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	c.prepared[sqlText] = stmt
	return stmt, nil
}

// isPreparable reports whether every parameter is a primitive
// database/sql-bindable value. Spec §4.5: "commands with Object-typed
// parameters bypass preparation" — here, any parameter that isn't one of
// the small set database/sql binds natively counts as Object-typed.
func isPreparable(params []any) bool {
	for _, p := range params {
		switch p.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, []byte, time.Time:
			continue
		default:
			return false
		}
	}
	return true
}

// trace emits the final SQL and parameter types (never bound values) at
// Debug level when SQL tracing is enabled, per spec §7's propagation
// policy.
func (c *DataContext) trace(sqlText string, params []any) {
	if !c.p.trace {
		return
	}
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = reflect.TypeOf(p).String()
	}
	logger.TraceSQL(sqlText, types)
}

func classifyCtxErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return kernelerr.Cancelled
	}
	return kernelerr.DbError("", nil, "", err)
}
