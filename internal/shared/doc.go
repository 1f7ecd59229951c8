// Package shared contains the error taxonomy of the places storage engine.
//
// # Error Types and Classification
//
// The engine distinguishes four families of failure:
//
//   - Open/migration: ErrIncompatibleVersion, ErrUnsupportedVersion, ErrMigration
//   - Function invocation: ErrInvalidArgument
//   - Cancellation: ErrInterrupted (an outcome, not an error of the query)
//   - Connection state: ErrConnectionAlreadyOpen, ErrReadOnly, ErrClosed
//
// Use KindOf() to classify errors into categories:
//
//	switch shared.KindOf(err) {
//	case shared.KindInterrupted:
//	    // a newer request superseded this one
//	case shared.KindIncompatibleVersion:
//	    // database written by a newer release, do not retry
//	}
//
// # Kind Priority Table
//
// When multiple error kinds are present, KindOf returns the highest priority kind:
//
//	Priority | Kind                      | Description
//	---------|---------------------------|--------------------------------
//	1        | KindInterrupted           | Interrupt handle fired
//	2        | KindCanceled              | Caller context canceled
//	3        | KindIncompatibleVersion   | Persisted version above target
//	4        | KindUnsupportedVersion    | Persisted version below oldest supported
//	5        | KindMigration             | Schema hook failed, rolled back
//	6        | KindInvalidArgument       | Bad SQL function argument
//	7        | KindConnectionAlreadyOpen | Exclusive connection conflict
//	8        | KindReadOnly              | Write on read-only connection
//	9        | KindClosed                | Use after close
//	10       | KindNotFound              | Missing row (lowest)
//
// # Error Wrapping
//
//	if err := tx.Commit(); err != nil {
//	    return shared.Wrapf(err, "commit bookmark %s", guid)
//	}
package shared
