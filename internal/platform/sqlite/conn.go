package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"placesdb/internal/shared"
)

// runKey marks a context as already holding a connection inside Run.
type runKey struct{}

// Conn is one logical SQLite connection pinned to a single physical
// connection for its whole life. Registered functions and pragmas set by the
// connect hook therefore stay in effect for every statement.
//
// All statements issued through Run and WithinTx are serialized. Interrupt
// handles obtained from NewInterruptHandle may be used concurrently.
type Conn struct {
	db   *sql.DB
	conn *sql.Conn
	path string
	mode AccessMode
	opts DBOptions

	ops       *TxLock
	writeLock *TxLock
	intr      *interrupter
	logger    *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Path returns the database file the connection was opened against.
func (c *Conn) Path() string { return c.path }

// Mode returns the connection's access mode.
func (c *Conn) Mode() AccessMode { return c.mode }

// NewInterruptHandle returns a handle that aborts the operation currently
// running on c.
func (c *Conn) NewInterruptHandle() *InterruptHandle {
	return &InterruptHandle{i: c.intr}
}

// BeginInterruptScope captures the current interrupt generation.
func (c *Conn) BeginInterruptScope() InterruptScope {
	return InterruptScope{i: c.intr, start: c.intr.generation.Load()}
}

// Run executes fn with exclusive use of the connection. Statements inside fn
// go through GetQuerier(ctx) and are aborted by an interrupt of c.
// Rows and statements must not escape fn.
func (c *Conn) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(runKey{}) == c || c.InTx(ctx) {
		return fn(ctx)
	}

	opCtx, done := c.intr.bind(ctx)
	defer done()

	if err := c.acquire(opCtx); err != nil {
		return err
	}
	defer c.ops.Unlock()

	return c.classify(opCtx, fn(context.WithValue(opCtx, runKey{}, c)))
}

func (c *Conn) acquire(ctx context.Context) error {
	if ctx.Value(runKey{}) == c {
		return errors.New("sqlite: transaction cannot begin inside Run on the same connection")
	}
	if c.closed.Load() {
		return shared.ErrClosed
	}
	if err := c.ops.Lock(ctx); err != nil {
		return c.classify(ctx, err)
	}
	if c.closed.Load() {
		c.ops.Unlock()
		return shared.ErrClosed
	}
	return nil
}

// classify marks err as interrupted when the operation context was ended by
// an interrupt rather than by the caller.
func (c *Conn) classify(opCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(context.Cause(opCtx), shared.ErrInterrupted) {
		return shared.MarkKind(err, shared.KindInterrupted)
	}
	return err
}

// SchemaVersion returns the persisted schema version.
func (c *Conn) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := c.Run(ctx, func(ctx context.Context) error {
		var err error
		version, err = userVersion(ctx, c.GetQuerier(ctx))
		return err
	})
	return version, err
}

// Close waits for the running operation, if any, and closes the connection.
// Subsequent calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ops.Lock(context.Background())
		c.closed.Store(true)
		defer c.ops.Unlock()

		connErr := c.conn.Close()
		dbErr := c.db.Close()
		if err := errors.Join(connErr, dbErr); err != nil {
			c.closeErr = fmt.Errorf("failed to close sqlite database %s: %w", c.path, err)
		}
	})
	return c.closeErr
}
