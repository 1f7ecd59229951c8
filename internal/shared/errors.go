package shared

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer of the engine.
var (
	// ErrNotFound indicates that a requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates that a SQL function or an API call received
	// an argument of the wrong count, type, encoding or enumerated value
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIncompatibleVersion indicates that the persisted schema version is
	// newer than the version this library targets. It is never retryable.
	ErrIncompatibleVersion = errors.New("incompatible schema version")

	// ErrUnsupportedVersion indicates that the persisted schema version is
	// older than the oldest version the upgrade path still handles
	ErrUnsupportedVersion = errors.New("unsupported schema version")

	// ErrMigration indicates that init, upgrade or finish failed and the
	// open transaction was rolled back
	ErrMigration = errors.New("schema migration failed")

	// ErrInterrupted indicates that a query was aborted through an interrupt
	// handle. It is an outcome, not a query error.
	ErrInterrupted = errors.New("interrupted")

	// ErrConnectionAlreadyOpen indicates that an exclusive connection kind
	// (the sync connection) is already open for the database
	ErrConnectionAlreadyOpen = errors.New("connection already open")

	// ErrReadOnly indicates a write attempted through a read-only connection
	ErrReadOnly = errors.New("read-only connection")

	// ErrClosed indicates use of a connection after Close
	ErrClosed = errors.New("connection closed")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindNotFound represents missing rows
	KindNotFound
	// KindInvalidArgument represents function-invocation errors
	KindInvalidArgument
	// KindIncompatibleVersion represents a database newer than the library
	KindIncompatibleVersion
	// KindUnsupportedVersion represents a database too old to upgrade
	KindUnsupportedVersion
	// KindMigration represents init/upgrade/finish hook failures
	KindMigration
	// KindInterrupted represents queries aborted by an interrupt handle
	KindInterrupted
	// KindConnectionAlreadyOpen represents exclusive connection conflicts
	KindConnectionAlreadyOpen
	// KindReadOnly represents writes on read-only connections
	KindReadOnly
	// KindClosed represents use after close
	KindClosed
	// KindCanceled represents context cancellation by the caller
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindIncompatibleVersion:
		return "IncompatibleVersion"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindMigration:
		return "Migration"
	case KindInterrupted:
		return "Interrupted"
	case KindConnectionAlreadyOpen:
		return "ConnectionAlreadyOpen"
	case KindReadOnly:
		return "ReadOnly"
	case KindClosed:
		return "Closed"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// kindToSentinel maps error kinds to their corresponding sentinel errors.
var kindToSentinel = map[Kind]error{
	KindNotFound:              ErrNotFound,
	KindInvalidArgument:       ErrInvalidArgument,
	KindIncompatibleVersion:   ErrIncompatibleVersion,
	KindUnsupportedVersion:    ErrUnsupportedVersion,
	KindMigration:             ErrMigration,
	KindInterrupted:           ErrInterrupted,
	KindConnectionAlreadyOpen: ErrConnectionAlreadyOpen,
	KindReadOnly:              ErrReadOnly,
	KindClosed:                ErrClosed,
}

// kindPriorities defines the deterministic order for error classification.
// Interrupted wraps context.Canceled, so it is checked before KindCanceled.
// Version errors are more specific than the migration failure they may be
// reported inside of.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindInterrupted, ErrInterrupted},
	{KindCanceled, nil},
	{KindIncompatibleVersion, ErrIncompatibleVersion},
	{KindUnsupportedVersion, ErrUnsupportedVersion},
	{KindMigration, ErrMigration},
	{KindInvalidArgument, ErrInvalidArgument},
	{KindConnectionAlreadyOpen, ErrConnectionAlreadyOpen},
	{KindReadOnly, ErrReadOnly},
	{KindClosed, ErrClosed},
	{KindNotFound, ErrNotFound},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
// It traverses the error chain using a deterministic priority order, so an
// interrupted query is reported as KindInterrupted even though its chain also
// carries context.Canceled.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindInterrupted:
//	    return nil // superseded by a newer search
//	case shared.KindIncompatibleVersion:
//	    return fmt.Errorf("database written by a newer release: %w", err)
//	default:
//	    return err
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		if priority.kind == KindCanceled {
			if IsCanceled(err) {
				return KindCanceled
			}
			continue
		}
		if errors.Is(err, priority.err) {
			return priority.kind
		}
	}

	return KindUnknown
}

// HasKind reports whether the given error has the specified kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ErrorOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func ErrorOf(kind Kind) error {
	if sentinel, exists := kindToSentinel[kind]; exists {
		return sentinel
	}
	return nil
}

// MarkKind wraps an error with the sentinel error for the given kind,
// preserving the original error through error wrapping.
// If err is nil, returns the sentinel error for the kind.
// Marking an error with a kind it already has returns the error unchanged.
//
//	if errors.Is(err, sql.ErrNoRows) {
//	    return shared.MarkKind(err, shared.KindNotFound)
//	}
func MarkKind(err error, kind Kind) error {
	if err == nil {
		return ErrorOf(kind)
	}

	sentinel := ErrorOf(kind)
	if sentinel == nil {
		return err
	}

	if KindOf(err) == kind {
		return err
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(format, args...)
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// InvalidArgumentf builds an ErrInvalidArgument with a formatted description.
// SQL functions surface these to the calling query as query-level errors.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled)
}

// IsInterrupted reports whether the error is the outcome of an interrupt handle.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// IsNotFound reports whether the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument reports whether the error is a function-invocation error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsIncompatibleVersion reports whether the database is newer than the library.
func IsIncompatibleVersion(err error) bool {
	return errors.Is(err, ErrIncompatibleVersion)
}

// IsUnsupportedVersion reports whether the database is too old to upgrade.
func IsUnsupportedVersion(err error) bool {
	return errors.Is(err, ErrUnsupportedVersion)
}

// IsMigration reports whether an open failed inside a schema hook.
func IsMigration(err error) bool {
	return errors.Is(err, ErrMigration)
}

// IsRetryable reports whether retrying the failed open could succeed.
// Version errors and hook failures are deterministic and never retryable.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindIncompatibleVersion, KindUnsupportedVersion, KindMigration,
		KindInvalidArgument, KindReadOnly, KindClosed, KindCanceled, KindInterrupted:
		return false
	}
	return err != nil
}
