package sqlite

import "context"

// TxLock is a non-reentrant mutual-exclusion lock whose acquisition honours
// context cancellation. The lock itself never times out.
type TxLock struct {
	ch chan struct{}
}

// NewTxLock returns an unlocked TxLock.
func NewTxLock() *TxLock {
	return &TxLock{ch: make(chan struct{}, 1)}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *TxLock) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	default:
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock acquires the lock if it is free.
func (l *TxLock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the lock. Unlocking an unlocked TxLock panics.
func (l *TxLock) Unlock() {
	select {
	case <-l.ch:
	default:
		panic("sqlite: unlock of unlocked TxLock")
	}
}
