// Package pkgerr implements the error taxonomy of §7: every fallible
// operation in the core wraps its cause in one of a small set of Kinds, so
// callers at the installer's top level and the CLI/DB boundary can dispatch
// on Kind rather than parsing error strings.
package pkgerr

import (
	"errors"

	"golang.org/x/xerrors"
)

// Kind is one of the error categories from §7. It is not a Go error type in
// its own right — it is read off an *Error with As/Kind.
type Kind int

const (
	// Transient errors are retried FETCH_RETRY times by the fetch layer
	// before surfacing; DNS failures, connection refused, timeouts.
	Transient Kind = iota
	// Trust errors are signature or fingerprint failures. Never retried,
	// fatal for the affected archive.
	Trust
	// Conflict errors are a file claimed by two packages, or a package
	// already installed without force. Recovered as skip-and-warn unless
	// developer mode is set, in which case fatal.
	Conflict
	// Parse errors are a malformed manifest, archive, or key. Fatal for
	// the package being parsed; does not poison unrelated packages.
	Parse
	// Filesystem errors are permission, quota, or read-only root
	// failures. Fatal for the current install; triggers rollback.
	Filesystem
	// Cancellation is a progress callback returning non-zero. Triggers
	// rollback; not logged as an error.
	Cancellation
	// Database errors are SQL failures. Fatal; the in-progress
	// transaction is aborted via the caller's finalize step.
	Database
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Trust:
		return "trust"
	case Conflict:
		return "conflict"
	case Parse:
		return "parse"
	case Filesystem:
		return "filesystem"
	case Cancellation:
		return "cancellation"
	case Database:
		return "database"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error. Its Unwrap makes it compatible with
// errors.Is/As and xerrors.Is/As over the wrapped cause.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "fetch", "extract", "verify"
	err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return xerrors.Errorf("%s: %w", e.Kind, e.err).Error()
	}
	return xerrors.Errorf("%s: %s: %w", e.Kind, e.Op, e.err).Error()
}

func (e *Error) Unwrap() error { return e.err }

// New wraps err under kind, recording op for diagnostics. A nil err yields a
// nil *Error so New can be used in a direct return without an extra check.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, err: err}
}

// Is reports whether err (or anything it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
