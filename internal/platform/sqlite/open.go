package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"placesdb/internal/shared"
	"placesdb/pkg/retry"
)

// Initializer describes a schema that Open creates, upgrades and prepares.
//
// Init, UpgradeFrom and Finish run inside one write transaction; if any of
// them fails the transaction is rolled back and the file keeps its previous
// version. Prepare runs on every physical connection before it is used and
// must only set pragmas and register functions.
type Initializer interface {
	// Name identifies the schema in errors and logs.
	Name() string
	// EndVersion is the schema version the code expects.
	EndVersion() int
	// Prepare configures a raw connection.
	Prepare(conn *sqlite3.SQLiteConn) error
	// Init creates the EndVersion schema in an empty database.
	Init(ctx context.Context, q Querier) error
	// UpgradeFrom migrates an existing schema from version to EndVersion.
	UpgradeFrom(ctx context.Context, q Querier, version int) error
	// Finish runs once after Init or UpgradeFrom succeeded.
	Finish(ctx context.Context, q Querier) error
}

// OpenOptions configures Open.
type OpenOptions struct {
	DBOptions
	// WriteLock, when set, is held around every write transaction.
	// Connections that share a lock never run write transactions concurrently.
	WriteLock *TxLock
	// Retry bounds retries of the migration transaction on SQLITE_BUSY.
	Retry  retry.Config
	Logger *slog.Logger
}

func (o OpenOptions) normalized() OpenOptions {
	o.DBOptions = o.DBOptions.normalized()
	if o.Retry.MaxAttempts == 0 {
		o.Retry = retry.DefaultConfig()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Open opens the database at path and brings it to init.EndVersion().
//
// An empty database is created with Init. An older one is upgraded with
// UpgradeFrom. A database newer than EndVersion is rejected with
// shared.ErrIncompatibleVersion without being modified. Read-only
// connections never migrate and require the exact version.
func Open(ctx context.Context, path string, opts OpenOptions, init Initializer) (*Conn, error) {
	opts = opts.normalized()

	db, err := openPool(ctx, path, opts.DBOptions, init.Prepare)
	if err != nil {
		return nil, err
	}

	pinned, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to acquire sqlite connection: %w", err)
	}

	c := &Conn{
		db:        db,
		conn:      pinned,
		path:      path,
		mode:      opts.AccessMode,
		opts:      opts.DBOptions,
		ops:       NewTxLock(),
		writeLock: opts.WriteLock,
		intr:      newInterrupter(),
		logger:    opts.Logger,
	}

	if err := c.initialize(ctx, init, opts.Retry); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Conn) initialize(ctx context.Context, init Initializer, retryCfg retry.Config) error {
	target := init.EndVersion()

	if !c.mode.Writable() {
		version, err := c.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		if version != target {
			return fmt.Errorf("%w: %s is at version %d, read-only connections require %d",
				shared.ErrIncompatibleVersion, init.Name(), version, target)
		}
		return nil
	}

	retryCfg.OnRetry = func(attempt int, err error, next time.Duration) {
		c.logger.Warn("database busy during open, retrying",
			"schema", init.Name(), "attempt", attempt, "delay", next, "error", err)
	}

	return retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		return c.WithinTx(ctx, func(ctx context.Context) error {
			return c.migrate(ctx, init)
		})
	}, IsBusy)
}

func (c *Conn) migrate(ctx context.Context, init Initializer) error {
	q := c.GetQuerier(ctx)
	target := init.EndVersion()

	version, err := userVersion(ctx, q)
	if err != nil {
		return err
	}

	switch {
	case version == target:
		return nil
	case version > target:
		return fmt.Errorf("%w: %s is at version %d, newest supported is %d",
			shared.ErrIncompatibleVersion, init.Name(), version, target)
	case version == 0:
		if err := init.Init(ctx, q); err != nil {
			return hookError(init, "init", err)
		}
		c.logger.Info("schema created", "schema", init.Name(), "version", target, "mode", c.mode)
	default:
		if err := init.UpgradeFrom(ctx, q, version); err != nil {
			return hookError(init, fmt.Sprintf("upgrade from %d", version), err)
		}
		c.logger.Info("schema upgraded", "schema", init.Name(), "from", version, "to", target, "mode", c.mode)
	}

	if err := init.Finish(ctx, q); err != nil {
		return hookError(init, "finish", err)
	}

	if _, err := q.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return fmt.Errorf("failed to store schema version: %w", err)
	}
	return nil
}

func hookError(init Initializer, hook string, err error) error {
	if IsBusy(err) {
		return err
	}
	return shared.MarkKind(fmt.Errorf("%s %s: %w", init.Name(), hook, err), shared.KindMigration)
}

func userVersion(ctx context.Context, q Querier) (int, error) {
	var version int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
