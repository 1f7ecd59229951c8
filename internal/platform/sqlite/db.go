package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// AccessMode selects the open flags of a connection.
type AccessMode string

const (
	// AccessModeReadOnly opens an existing file with mode=ro. Transactions are deferred.
	AccessModeReadOnly AccessMode = "ro"
	// AccessModeReadWrite opens or creates the file. Transactions start with BEGIN IMMEDIATE.
	AccessModeReadWrite AccessMode = "rwc"
)

// Writable reports whether connections in this mode may begin write transactions.
func (m AccessMode) Writable() bool {
	return m != AccessModeReadOnly
}

// TxLockMode is the BEGIN flavour the driver issues for new transactions.
type TxLockMode string

const (
	TxLockDeferred  TxLockMode = "deferred"
	TxLockImmediate TxLockMode = "immediate"
)

// DBOptions configures one physical SQLite connection.
type DBOptions struct {
	// AccessMode is the open mode; defaults to AccessModeReadWrite.
	AccessMode AccessMode
	// TxLockMode defaults to immediate for writable modes and deferred otherwise.
	TxLockMode TxLockMode
	// BusyTimeout is how long the engine itself waits on a locked file.
	BusyTimeout time.Duration
	// PingTimeout bounds the first round trip after opening.
	PingTimeout time.Duration
	// NoMutex opens the connection without SQLite's internal mutex.
	// Conn serializes its own use, so this is safe.
	NoMutex bool
}

// DefaultDBOptions returns the settings used for read-write connections.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		AccessMode:  AccessModeReadWrite,
		BusyTimeout: 5 * time.Second,
		PingTimeout: 5 * time.Second,
		NoMutex:     true,
	}
}

// ReadOnlyDBOptions returns DefaultDBOptions switched to read-only access.
func ReadOnlyDBOptions() DBOptions {
	opts := DefaultDBOptions()
	opts.AccessMode = AccessModeReadOnly
	return opts
}

func (o DBOptions) normalized() DBOptions {
	if o.AccessMode == "" {
		o.AccessMode = AccessModeReadWrite
	}
	if o.TxLockMode == "" {
		if o.AccessMode.Writable() {
			o.TxLockMode = TxLockImmediate
		} else {
			o.TxLockMode = TxLockDeferred
		}
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}
	return o
}

// buildDSN builds a file: URI understood by both SQLite and go-sqlite3.
func buildDSN(dbPath string, opts DBOptions) string {
	params := []string{
		"mode=" + string(opts.AccessMode),
		"_txlock=" + string(opts.TxLockMode),
	}
	if opts.NoMutex {
		params = append(params, "_mutex=no")
	}
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", opts.BusyTimeout.Milliseconds()))
	}
	if dbPath == ":memory:" {
		// Private in-memory databases ignore mode=ro; keep them writable.
		params[0] = "mode=memory"
	}
	return "file:" + dbPath + "?" + strings.Join(params, "&")
}

// ConnectHook runs on the raw driver connection before database/sql sees it.
type ConnectHook func(conn *sqlite3.SQLiteConn) error

// connector hands database/sql connections from a driver carrying the hook.
type connector struct {
	dsn    string
	driver *sqlite3.SQLiteDriver
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

// openPool opens a pool that holds at most one physical connection and never
// recycles it, so per-connection state set by hook lives as long as the pool.
func openPool(ctx context.Context, dbPath string, opts DBOptions, hook ConnectHook) (*sql.DB, error) {
	opts = opts.normalized()

	if opts.AccessMode.Writable() && dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	db := sql.OpenDB(&connector{
		dsn:    buildDSN(dbPath, opts),
		driver: &sqlite3.SQLiteDriver{ConnectHook: hook},
	})
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", dbPath, err)
	}

	return db, nil
}

// Exec runs a statement directly on a raw driver connection.
// Connect hooks use it for pragmas.
func Exec(conn *sqlite3.SQLiteConn, query string) error {
	if _, err := conn.Exec(query, nil); err != nil {
		return fmt.Errorf("failed to execute %s: %w", query, err)
	}
	return nil
}
