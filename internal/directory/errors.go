package directory

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed directory or source call.
type Kind string

const (
	// KindDuplicateKey: the record already exists. Terminal for the action.
	KindDuplicateKey Kind = "duplicate_key"

	// KindValidation: the directory rejected the payload. Terminal.
	KindValidation Kind = "validation"

	// KindTransient: temporarily unreachable or rate limited. The caller of
	// the executor may retry the run; the engine never retries.
	KindTransient Kind = "transient"

	// KindNotFound: the target record no longer exists. Terminal.
	KindNotFound Kind = "not_found"

	// KindSourceUnavailable: a snapshot could not be fetched. Fatal for the pass.
	KindSourceUnavailable Kind = "source_unavailable"

	// KindInternal: anything else, including recovered panics.
	KindInternal Kind = "internal"
)

// Error is the typed failure returned by Source and Directory
// implementations.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op is the operation that failed: fetch, create, update, suspend, remove.
	Op string

	// ID is the downstream id or external id involved, if any.
	ID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" (id=%s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error.
func NewError(kind Kind, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, id, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind of err. Context cancellation and deadline
// errors count as transient; untyped errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

// IsTransient reports whether err is worth retrying by the caller.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsNotFound reports whether err says the record no longer exists.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsDuplicateKey reports whether err is a duplicate create.
func IsDuplicateKey(err error) bool { return KindOf(err) == KindDuplicateKey }

// IsSourceUnavailable reports whether err is a fatal fetch failure.
func IsSourceUnavailable(err error) bool { return KindOf(err) == KindSourceUnavailable }
