package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// txKey is the context key under which an open transaction is stored.
type txKey struct{}

// Querier is the query surface shared by a connection and its transactions.
// Code that runs inside Conn.Run or Conn.WithinTx obtains one from GetQuerier
// and does not need to know whether a transaction is active.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var (
	_ Querier = (*sql.Conn)(nil)
	_ Querier = (*manualTx)(nil)
)

// manualTx is a transaction begun with an explicit BEGIN statement on the
// pinned connection. database/sql transactions discard their connection when
// their context is canceled, which would lose the connection's registered
// functions on every interrupt.
type manualTx struct {
	conn *Conn
}

func (m *manualTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return m.conn.conn.ExecContext(ctx, query, args...)
}

func (m *manualTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return m.conn.conn.QueryContext(ctx, query, args...)
}

func (m *manualTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return m.conn.conn.QueryRowContext(ctx, query, args...)
}

func (m *manualTx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return m.conn.conn.PrepareContext(ctx, query)
}

// txFromContext returns the transaction stored in ctx, if any.
func txFromContext(ctx context.Context) (*manualTx, bool) {
	tx, ok := ctx.Value(txKey{}).(*manualTx)
	return tx, ok
}

// InTx reports whether ctx carries an open transaction of c.
func (c *Conn) InTx(ctx context.Context) bool {
	tx, ok := txFromContext(ctx)
	return ok && tx.conn == c
}

// GetQuerier returns the active transaction of c if ctx carries one and the
// pinned connection otherwise. It is only valid inside Run or WithinTx.
func (c *Conn) GetQuerier(ctx context.Context) Querier {
	if tx, ok := txFromContext(ctx); ok && tx.conn == c {
		return tx
	}
	return c.conn
}

// WithinTx runs fn inside a transaction on c. The transaction commits when fn
// returns nil and rolls back otherwise.
//
// On writable connections the cooperative write lock, when configured, is
// held from before BEGIN until after COMMIT or ROLLBACK, so at most one write
// transaction is in flight per lock. Nested calls are rejected; the lock is
// not reentrant.
func (c *Conn) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return errors.New("nested transactions are not supported by SQLite")
	}

	opCtx, done := c.intr.bind(ctx)
	defer done()

	if c.mode.Writable() && c.writeLock != nil {
		if err := c.writeLock.Lock(opCtx); err != nil {
			return c.classify(opCtx, fmt.Errorf("failed to acquire write lock: %w", err))
		}
		defer c.writeLock.Unlock()
	}

	if err := c.acquire(opCtx); err != nil {
		return err
	}
	defer c.ops.Unlock()

	begin := fmt.Sprintf("BEGIN %s", strings.ToUpper(string(c.opts.TxLockMode)))
	return c.classify(opCtx, c.executeTx(opCtx, begin, fn))
}

// WithinReadTx runs fn inside a deferred transaction without the write lock.
// fn must not write; a write would upgrade the transaction behind the lock's
// back.
func (c *Conn) WithinReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return errors.New("nested transactions are not supported by SQLite")
	}

	opCtx, done := c.intr.bind(ctx)
	defer done()

	if err := c.acquire(opCtx); err != nil {
		return err
	}
	defer c.ops.Unlock()

	return c.classify(opCtx, c.executeTx(opCtx, "BEGIN DEFERRED", fn))
}

// executeTx runs one transaction on the pinned connection. The caller holds
// c.ops.
func (c *Conn) executeTx(ctx context.Context, begin string, fn func(ctx context.Context) error) error {
	if _, err := c.conn.ExecContext(ctx, begin); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// COMMIT and ROLLBACK must run even when ctx was interrupted.
	finishCtx := context.WithoutCancel(ctx)
	committed := false
	defer func() {
		if !committed {
			c.rollback(finishCtx)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, &manualTx{conn: c})); err != nil {
		return err
	}

	if _, err := c.conn.ExecContext(finishCtx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// rollback ends an open transaction. An interrupted write may already have
// been rolled back by SQLite itself, so "no transaction is active" is ignored.
func (c *Conn) rollback(ctx context.Context) {
	if _, err := c.conn.ExecContext(ctx, "ROLLBACK"); err != nil &&
		!strings.Contains(err.Error(), "no transaction is active") {
		c.logger.Warn("rollback failed", "error", err)
	}
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked")
}
