package eventstore

import "fmt"

// ErrorKind classifies the operational errors produced by the store and
// projector so callers can switch on them without string matching.
type ErrorKind string

// The error kinds recognized by the store and projector (spec §7).
const (
	KindStreamExistsAlready     ErrorKind = "stream-exists-already"
	KindStreamNotFound          ErrorKind = "stream-not-found"
	KindConcurrency             ErrorKind = "concurrency"
	KindRuntime                 ErrorKind = "runtime"
	KindInvalidArgument         ErrorKind = "invalid-argument"
	KindUnexpectedValue         ErrorKind = "unexpected-value"
	KindAggregateVersionMissing ErrorKind = "aggregate-version-missing"
	KindProjectionNotFound      ErrorKind = "projection-not-found"
	KindProjectionNotCreated    ErrorKind = "projection-not-created"
)

// Error is the error type returned by store and projector operations that
// fail for a reason the caller may want to branch on.
type Error struct {
	Kind    ErrorKind
	Message string
	// Cause is the underlying driver error, if any.
	Cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to reach the underlying driver error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error carrying the same Kind
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// NewError builds an *Error of the given kind
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// StreamExistsError is returned by Create when the stream already exists
func StreamExistsError(stream StreamName) error {
	return NewError(KindStreamExistsAlready, fmt.Sprintf("stream %q already exists", stream), nil)
}

// StreamNotFoundError is returned when an operation targets a missing stream
func StreamNotFoundError(stream StreamName, cause error) error {
	return NewError(KindStreamNotFound, fmt.Sprintf("stream %q not found", stream), cause)
}

// ConcurrencyError is returned on a write-lock failure or unique violation
func ConcurrencyError(message string, cause error) error {
	return NewError(KindConcurrency, message, cause)
}

// RuntimeError wraps an unexpected driver failure
func RuntimeError(message string, cause error) error {
	return NewError(KindRuntime, message, cause)
}

// InvalidArgumentError is returned for client-detectable bad input
func InvalidArgumentError(argument string) error {
	return NewError(KindInvalidArgument, fmt.Sprintf("invalid argument %q", argument), nil)
}

// UnexpectedValueError is returned when a metadata matcher references an unknown column
func UnexpectedValueError(message string, cause error) error {
	return NewError(KindUnexpectedValue, message, cause)
}

// AggregateVersionMissingError is returned when an append to an aggregate
// stream strategy lacks the "_aggregate_version" metadata field
func AggregateVersionMissingError() error {
	return NewError(KindAggregateVersionMissing, "metadata field \"_aggregate_version\" is missing", nil)
}

// ProjectionNotFoundError is returned by manager operations against an unknown projection
func ProjectionNotFoundError(name string) error {
	return NewError(KindProjectionNotFound, fmt.Sprintf("projection %q not found", name), nil)
}

// ProjectionNotCreatedError is returned when a projector is used before its registry row exists
func ProjectionNotCreatedError(name string) error {
	return NewError(KindProjectionNotCreated, fmt.Sprintf("projection %q not created", name), nil)
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
