package places

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"placesdb/internal/places/match"
	"placesdb/internal/platform/sqlite"
	"placesdb/internal/shared"
	"placesdb/pkg/retry"
)

const optimizeOnClose = "PRAGMA optimize(0x02)"

// Options configures connections opened by Open and API.
type Options struct {
	// Registry holds change counters and write locks; DefaultRegistry() if nil.
	Registry *Registry
	// Matcher backs autocomplete_match; match.Default{} if nil.
	Matcher match.Matcher
	Logger  *slog.Logger
	// BusyTimeout overrides how long SQLite waits on a locked file.
	BusyTimeout time.Duration
	// Retry bounds retries of the open transaction on SQLITE_BUSY.
	Retry retry.Config
	// Now is the clock behind now(); time.Now if nil.
	Now func() time.Time
	// CloseTimeout bounds the optimize run on Close.
	CloseTimeout time.Duration
}

func (o Options) normalized() Options {
	if o.Registry == nil {
		o.Registry = DefaultRegistry()
	}
	if o.Matcher == nil {
		o.Matcher = match.Default{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 5 * time.Second
	}
	return o
}

// DB is one places connection of a given type and owner.
type DB struct {
	conn     *sqlite.Conn
	kind     ConnectionType
	owner    OwnerID
	registry *Registry
	logger   *slog.Logger

	closeTimeout time.Duration
	optimizeStmt string
	onClose      func()

	closeOnce sync.Once
	closeErr  error
}

// Open opens path as a connection of type kind for owner, creating or
// upgrading the schema when kind is writable.
func Open(ctx context.Context, path string, kind ConnectionType, owner OwnerID, opts Options) (*DB, error) {
	if !kind.Valid() {
		return nil, shared.InvalidArgumentf("unknown connection type %d", int(kind))
	}
	opts = opts.normalized()
	logger := opts.Logger.With("component", "places", "conn", kind.String(), "owner", int64(owner))

	dbOpts := kind.dbOptions()
	if opts.BusyTimeout > 0 {
		dbOpts.BusyTimeout = opts.BusyTimeout
	}

	init := &initializer{
		kind: kind,
		funcs: &functions{
			owner:    owner,
			registry: opts.Registry,
			matcher:  opts.Matcher,
			now:      opts.Now,
		},
		logger: logger,
	}

	conn, err := sqlite.Open(ctx, path, sqlite.OpenOptions{
		DBOptions: dbOpts,
		WriteLock: opts.Registry.TxLock(owner),
		Retry:     opts.Retry,
		Logger:    logger,
	}, init)
	if err != nil {
		return nil, fmt.Errorf("failed to open places database %s: %w", path, err)
	}

	return &DB{
		conn:         conn,
		kind:         kind,
		owner:        owner,
		registry:     opts.Registry,
		logger:       logger,
		closeTimeout: opts.CloseTimeout,
		optimizeStmt: optimizeOnClose,
	}, nil
}

func (db *DB) Kind() ConnectionType { return db.kind }
func (db *DB) Owner() OwnerID       { return db.owner }
func (db *DB) Path() string         { return db.conn.Path() }

// NewInterruptHandle returns a handle that aborts the statement currently
// running on db from any goroutine.
func (db *DB) NewInterruptHandle() *sqlite.InterruptHandle {
	return db.conn.NewInterruptHandle()
}

// BeginInterruptScope captures the interrupt generation of db.
func (db *DB) BeginInterruptScope() sqlite.InterruptScope {
	return db.conn.BeginInterruptScope()
}

// BookmarkChangeTracker reports whether bookmarks of this owner changed after
// the tracker was created, through any connection.
func (db *DB) BookmarkChangeTracker() *ChangeTracker {
	return &ChangeTracker{registry: db.registry, snapshot: db.registry.Snapshot(db.owner)}
}

// Read runs fn with exclusive use of the connection outside a transaction.
func (db *DB) Read(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.conn.Run(ctx, fn)
}

// ReadTx runs fn inside a read transaction for a consistent snapshot.
func (db *DB) ReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.conn.WithinReadTx(ctx, fn)
}

// Write runs fn inside a write transaction under the owner's write lock.
func (db *DB) Write(ctx context.Context, fn func(ctx context.Context) error) error {
	if !db.kind.Writable() {
		return fmt.Errorf("%w: %s connection cannot write", shared.ErrReadOnly, db.kind)
	}
	return db.conn.WithinTx(ctx, fn)
}

// Querier returns the query surface for a context inside Read or Write.
func (db *DB) Querier(ctx context.Context) sqlite.Querier {
	return db.conn.GetQuerier(ctx)
}

// SchemaVersion returns the persisted schema version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return db.conn.SchemaVersion(ctx)
}

// MaintenanceReport is the outcome of RunMaintenance.
type MaintenanceReport struct {
	// WALFrames is the number of frames in the WAL after the checkpoint.
	WALFrames int
	// Checkpointed is the number of frames copied back into the database.
	Checkpointed int
	// Busy is set when the checkpoint could not run to completion.
	Busy bool
}

// RunMaintenance runs PRAGMA optimize and a passive WAL checkpoint while
// holding the owner's write lock, so it never races a write transaction of
// another connection.
func (db *DB) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport
	if !db.kind.Writable() {
		return report, fmt.Errorf("%w: maintenance needs a writable connection", shared.ErrReadOnly)
	}

	lock := db.registry.TxLock(db.owner)
	if err := lock.Lock(ctx); err != nil {
		return report, fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer lock.Unlock()

	err := db.conn.Run(ctx, func(ctx context.Context) error {
		q := db.conn.GetQuerier(ctx)
		if _, err := q.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
		var busy int
		if err := q.QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").
			Scan(&busy, &report.WALFrames, &report.Checkpointed); err != nil {
			return fmt.Errorf("wal checkpoint: %w", err)
		}
		report.Busy = busy != 0
		return nil
	})
	if err != nil {
		return MaintenanceReport{}, err
	}

	db.logger.Info("maintenance complete",
		"wal_frames", report.WALFrames, "checkpointed", report.Checkpointed, "busy", report.Busy)
	return report, nil
}

// Close runs a best-effort optimize and closes the connection. The optimize
// failure is logged and never returned. Close is safe to call more than once.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), db.closeTimeout)
		defer cancel()

		err := db.conn.Run(ctx, func(ctx context.Context) error {
			_, err := db.conn.GetQuerier(ctx).ExecContext(ctx, db.optimizeStmt)
			return err
		})
		if err != nil {
			db.logger.Warn("failed to execute pragma optimize (DB locked?)", "error", err)
		}

		db.closeErr = db.conn.Close()
		if db.onClose != nil {
			db.onClose()
		}
	})
	return db.closeErr
}

// ChangeTracker remembers a change counter snapshot.
type ChangeTracker struct {
	registry *Registry
	snapshot ChangeSnapshot
}

// Changed reports whether a bookmark change was noted since the tracker was
// created.
func (t *ChangeTracker) Changed() bool {
	return t.registry.ChangedSince(t.snapshot)
}

// Snapshot returns the snapshot the tracker compares against.
func (t *ChangeTracker) Snapshot() ChangeSnapshot {
	return t.snapshot
}
