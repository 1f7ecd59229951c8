package places

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_NoteChangeReturnsPreviousValue(t *testing.T) {
	r := NewRegistry()
	owner := r.NewOwnerID()

	assert.Equal(t, int64(0), r.NoteChange(owner))
	assert.Equal(t, int64(1), r.NoteChange(owner))
	assert.Equal(t, int64(2), r.Snapshot(owner).Value)
}

func TestRegistry_SnapshotAndChangedSince(t *testing.T) {
	r := NewRegistry()
	owner := r.NewOwnerID()
	other := r.NewOwnerID()

	snap := r.Snapshot(owner)
	assert.Equal(t, int64(0), snap.Value, "absent owners read as zero")
	assert.False(t, r.ChangedSince(snap))

	r.NoteChange(other)
	assert.False(t, r.ChangedSince(snap), "other owners do not affect the snapshot")

	r.NoteChange(owner)
	assert.True(t, r.ChangedSince(snap))

	after := r.Snapshot(owner)
	assert.False(t, r.ChangedSince(after))
}

func TestRegistry_ConcurrentNoteChange(t *testing.T) {
	r := NewRegistry()
	owner := r.NewOwnerID()

	const workers, perWorker = 8, 500
	seen := make([]map[int64]bool, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		seen[w] = make(map[int64]bool)
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				seen[w][r.NoteChange(owner)] = true
			}
		}(w)
	}
	wg.Wait()

	all := make(map[int64]bool)
	for _, s := range seen {
		for v := range s {
			assert.False(t, all[v], "pre-increment value %d returned twice", v)
			all[v] = true
		}
	}
	assert.Len(t, all, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), r.Snapshot(owner).Value)
}

func TestRegistry_TxLockPerOwner(t *testing.T) {
	r := NewRegistry()
	a, b := r.NewOwnerID(), r.NewOwnerID()

	assert.NotEqual(t, a, b)
	assert.Same(t, r.TxLock(a), r.TxLock(a))
	assert.NotSame(t, r.TxLock(a), r.TxLock(b))
}

func TestRegistry_OwnerIDsUniqueInProcess(t *testing.T) {
	first, second := NewRegistry(), NewRegistry()
	seen := make(map[OwnerID]bool)
	for range 5 {
		for _, r := range []*Registry{first, second, DefaultRegistry()} {
			id := r.NewOwnerID()
			assert.False(t, seen[id], "owner id %d handed out twice", id)
			seen[id] = true
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}
