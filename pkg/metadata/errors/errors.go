// Package errors provides typed error codes for lookup failures. This is a
// leaf package with no internal dependencies, so it can be imported without
// causing circular imports. No other package in this module imports it.
package errors

import "fmt"

// Code represents the type of error that occurred.
type Code int

const (
	// ErrNotFound indicates the requested (uid,tid,fid) entry does not exist.
	ErrNotFound Code = iota + 1

	// ErrAlreadyExists indicates a tracker entry already exists for the key.
	ErrAlreadyExists

	// ErrInvalidArgument indicates a malformed key or argument.
	ErrInvalidArgument

	// ErrNotSupported indicates the operation is not supported by this store.
	ErrNotSupported
)

// String returns a human-readable name for the error code.
func (c Code) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrNotSupported:
		return "NotSupported"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// TrackerError is an error carrying one of the codes above plus context.
type TrackerError struct {
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *TrackerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(message string) *TrackerError {
	return &TrackerError{Code: ErrNotFound, Message: message}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(message string) *TrackerError {
	return &TrackerError{Code: ErrAlreadyExists, Message: message}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(message string) *TrackerError {
	return &TrackerError{Code: ErrInvalidArgument, Message: message}
}

// IsNotFoundError returns true if err is a NotFound TrackerError.
func IsNotFoundError(err error) bool {
	te, ok := err.(*TrackerError)
	return ok && te.Code == ErrNotFound
}
