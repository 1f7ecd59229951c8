package places

import (
	"sync"
	"sync/atomic"

	"placesdb/internal/platform/sqlite"
)

// Registry is the process-scoped state shared by every connection of an
// owner: the bookmark change counter and the cooperative write lock.
// Entries are created on first use and never removed.
type Registry struct {
	mu       sync.RWMutex
	counters map[OwnerID]*atomic.Int64

	locksMu sync.Mutex
	txLocks map[OwnerID]*sqlite.TxLock
}

// lastOwnerID is shared by all registries so an owner id names one database
// in the whole process.
var lastOwnerID atomic.Int64

// NewRegistry returns an empty registry. Tests use private registries to
// stay isolated from each other.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[OwnerID]*atomic.Int64),
		txLocks:  make(map[OwnerID]*sqlite.TxLock),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry used when Options.Registry is nil.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewOwnerID allocates an owner id that no registry in the process has
// handed out before.
func (r *Registry) NewOwnerID() OwnerID {
	return OwnerID(lastOwnerID.Add(1))
}

// NoteChange increments the change counter of owner and returns the value it
// had before. It never touches the database, so it is safe to call from
// inside a SQL function.
func (r *Registry) NoteChange(owner OwnerID) int64 {
	r.mu.RLock()
	counter, ok := r.counters[owner]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		counter, ok = r.counters[owner]
		if !ok {
			counter = new(atomic.Int64)
			r.counters[owner] = counter
		}
		r.mu.Unlock()
	}

	return counter.Add(1) - 1
}

// ChangeSnapshot is the value of an owner's change counter at one point in
// time. Snapshots are only compared for equality.
type ChangeSnapshot struct {
	Owner OwnerID
	Value int64
}

// Snapshot captures the change counter of owner. Absent owners read as zero.
func (r *Registry) Snapshot(owner OwnerID) ChangeSnapshot {
	return ChangeSnapshot{Owner: owner, Value: r.load(owner)}
}

// ChangedSince reports whether any change was noted for the snapshot's owner
// after the snapshot was taken.
func (r *Registry) ChangedSince(s ChangeSnapshot) bool {
	return r.load(s.Owner) != s.Value
}

// load reads a counter. Go atomics are sequentially consistent, which is
// stronger than the visibility the comparison needs.
func (r *Registry) load(owner OwnerID) int64 {
	r.mu.RLock()
	counter, ok := r.counters[owner]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return counter.Load()
}

// TxLock returns the write lock shared by all connections of owner.
func (r *Registry) TxLock(owner OwnerID) *sqlite.TxLock {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.txLocks[owner]
	if !ok {
		lock = sqlite.NewTxLock()
		r.txLocks[owner] = lock
	}
	return lock
}
