package sqlite

import (
	"context"
	"sync"
	"sync/atomic"

	"placesdb/internal/shared"
)

// interrupter hands out operation contexts derived from a base context that
// Interrupt cancels and replaces. Operations that start after an interrupt
// derive from the new base and are unaffected by it.
type interrupter struct {
	mu         sync.Mutex
	base       context.Context
	cancel     context.CancelCauseFunc
	generation atomic.Uint64
}

func newInterrupter() *interrupter {
	i := &interrupter{}
	i.base, i.cancel = context.WithCancelCause(context.Background())
	return i
}

func (i *interrupter) interrupt() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.generation.Add(1)
	i.cancel(shared.ErrInterrupted)
	i.base, i.cancel = context.WithCancelCause(context.Background())
}

// bind returns a context that ends when ctx ends or when the connection is
// interrupted, whichever comes first.
func (i *interrupter) bind(ctx context.Context) (context.Context, func()) {
	i.mu.Lock()
	base := i.base
	i.mu.Unlock()

	opCtx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(base, func() {
		cancel(context.Cause(base))
	})
	return opCtx, func() {
		stop()
		cancel(nil)
	}
}

// InterruptHandle aborts whatever operation is running on its connection.
// It is safe for use from any goroutine.
type InterruptHandle struct {
	i *interrupter
}

// Interrupt aborts the in-flight operation, if any. Calling it with nothing
// running, or more than once, has no effect on later operations.
func (h *InterruptHandle) Interrupt() {
	h.i.interrupt()
}

// InterruptScope remembers the interrupt generation at the time it was begun.
type InterruptScope struct {
	i     *interrupter
	start uint64
}

// WasInterrupted reports whether the connection was interrupted since the
// scope began.
func (s InterruptScope) WasInterrupted() bool {
	return s.i.generation.Load() != s.start
}

// Err returns shared.ErrInterrupted if the scope was interrupted.
func (s InterruptScope) Err() error {
	if s.WasInterrupted() {
		return shared.ErrInterrupted
	}
	return nil
}
