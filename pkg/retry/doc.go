// Package retry provides bounded exponential backoff for operations that can
// fail transiently, such as a migration transaction racing another process
// for the database write lock.
//
// Basic Usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    return migrate(ctx)
//	}, sqlite.IsBusy)
//
// Errors for which the predicate returns false are returned unchanged on the
// first occurrence; exhausting the attempts yields *RetriesExceededError,
// which unwraps to the last error.
package retry
