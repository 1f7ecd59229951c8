package places

import (
	"fmt"

	"placesdb/internal/platform/sqlite"
)

// ConnectionType is the role a connection plays for its API.
type ConnectionType int

const (
	ReadOnly ConnectionType = iota + 1
	ReadWrite
	Sync
)

func (t ConnectionType) String() string {
	switch t {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case Sync:
		return "sync"
	default:
		return fmt.Sprintf("ConnectionType(%d)", int(t))
	}
}

// Valid reports whether t is one of the declared connection types.
func (t ConnectionType) Valid() bool {
	return t >= ReadOnly && t <= Sync
}

// Writable reports whether connections of type t may write.
func (t ConnectionType) Writable() bool {
	return t == ReadWrite || t == Sync
}

func (t ConnectionType) dbOptions() sqlite.DBOptions {
	if t.Writable() {
		return sqlite.DefaultDBOptions()
	}
	return sqlite.ReadOnlyDBOptions()
}

// OwnerID identifies one API instance within the process. Change counters
// and write locks are keyed by it.
type OwnerID int64
