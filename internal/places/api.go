package places

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"placesdb/internal/shared"
)

// apiTable maps canonical database paths to their open API. All handles for
// one path share an owner id, so their connections share change counters and
// the write lock.
type apiTable struct {
	mu     sync.Mutex
	byPath map[string]*API
}

var apis = apiTable{byPath: make(map[string]*API)}

// API owns one logical places database. At most one ReadWrite and one Sync
// connection are handed out at a time; ReadOnly connections are unlimited.
type API struct {
	path  string
	owner OwnerID
	opts  Options

	refs int // guarded by apis.mu

	mu        sync.Mutex
	writer    *DB // opened eagerly so the schema exists before readers open
	writerOut bool
	syncOut   bool
	closed    bool
}

// OpenAPI returns the API for path, opening the database on first use.
// Every successful call must be paired with Close.
//
// Options only take effect on first use; later calls share the existing API
// and its settings. A later call naming a different Registry fails with
// shared.ErrInvalidArgument.
func OpenAPI(ctx context.Context, path string, opts Options) (*API, error) {
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	apis.mu.Lock()
	defer apis.mu.Unlock()

	if api, ok := apis.byPath[canonical]; ok {
		if opts.Registry != nil && opts.Registry != api.opts.Registry {
			return nil, shared.InvalidArgumentf("%s is already open with another registry", canonical)
		}
		api.refs++
		return api, nil
	}

	opts = opts.normalized()
	owner := opts.Registry.NewOwnerID()
	writer, err := Open(ctx, canonical, ReadWrite, owner, opts)
	if err != nil {
		return nil, err
	}

	api := &API{path: canonical, owner: owner, opts: opts, refs: 1, writer: writer}
	apis.byPath[canonical] = api
	opts.Logger.Info("places api opened", "path", canonical, "owner", int64(owner))
	return api, nil
}

func canonicalPath(path string) (string, error) {
	if path == "" {
		return "", shared.InvalidArgumentf("empty database path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

func (a *API) Path() string        { return a.path }
func (a *API) Owner() OwnerID      { return a.owner }
func (a *API) Registry() *Registry { return a.opts.Registry }

// OpenConnection opens a connection of the given type. A second ReadWrite or
// Sync connection fails with shared.ErrConnectionAlreadyOpen until the first
// one is closed.
func (a *API) OpenConnection(ctx context.Context, kind ConnectionType) (*DB, error) {
	if !kind.Valid() {
		return nil, shared.InvalidArgumentf("unknown connection type %d", int(kind))
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, shared.ErrClosed
	}

	switch kind {
	case ReadWrite:
		if a.writerOut {
			a.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", shared.ErrConnectionAlreadyOpen, kind)
		}
		a.writerOut = true
		if a.writer != nil {
			db := a.writer
			a.writer = nil
			a.mu.Unlock()
			db.onClose = a.releaser(kind)
			return db, nil
		}
	case Sync:
		if a.syncOut {
			a.mu.Unlock()
			a.opts.Logger.Warn("sync connection already open", "path", a.path)
			return nil, fmt.Errorf("%w: %s", shared.ErrConnectionAlreadyOpen, kind)
		}
		a.syncOut = true
	}
	a.mu.Unlock()

	db, err := Open(ctx, a.path, kind, a.owner, a.opts)
	if err != nil {
		a.release(kind)
		return nil, err
	}
	if kind != ReadOnly {
		db.onClose = a.releaser(kind)
	}
	return db, nil
}

func (a *API) releaser(kind ConnectionType) func() {
	return func() { a.release(kind) }
}

func (a *API) release(kind ConnectionType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch kind {
	case ReadWrite:
		a.writerOut = false
	case Sync:
		a.syncOut = false
	}
}

// BookmarkChangeTracker tracks bookmark changes made through any connection
// of this API.
func (a *API) BookmarkChangeTracker() *ChangeTracker {
	return &ChangeTracker{registry: a.opts.Registry, snapshot: a.opts.Registry.Snapshot(a.owner)}
}

// Close drops one reference. The last reference closes the eagerly opened
// writer if it was never handed out and forgets the path. Connections handed
// out stay open until their owners close them.
func (a *API) Close() error {
	apis.mu.Lock()
	a.refs--
	last := a.refs == 0
	if last {
		delete(apis.byPath, a.path)
	}
	apis.mu.Unlock()

	if !last {
		return nil
	}

	a.mu.Lock()
	a.closed = true
	writer := a.writer
	a.writer = nil
	a.mu.Unlock()

	if writer != nil {
		return writer.Close()
	}
	return nil
}
