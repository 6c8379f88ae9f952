package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound   = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Sync taxonomy. Connectivity failures are always retried on the next
	// sync attempt and never discard queued data; remote rejections always
	// discard the offending action with a surfaced warning.
	ErrConnectivity       = New("CONNECTIVITY", http.StatusServiceUnavailable, "cannot reach remote site")
	ErrRemoteRejection    = New("REMOTE_REJECTION", http.StatusUnprocessableEntity, "the site rejected the request")
	ErrConflictDetected   = New("CONFLICT_DETECTED", http.StatusConflict, "record was modified or deleted on the site")
	ErrSyncBlocked        = New("SYNC_BLOCKED", http.StatusLocked, "a sync for this collection is already running")
	ErrQueueInconsistency = New("QUEUE_INCONSISTENCY", http.StatusConflict, "queued actions reference a record that was never added")
	ErrOffline            = New("OFFLINE", http.StatusServiceUnavailable, "network is not available")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// is reports whether err carries the given predefined code.
func is(err error, target *Error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}

// IsConnectivity reports whether the error represents a transport failure
// that should leave queued actions untouched.
func IsConnectivity(err error) bool { return is(err, ErrConnectivity) || is(err, ErrOffline) }

// IsRejection reports whether the remote processed the request and refused
// it, meaning the queued action can be safely discarded.
func IsRejection(err error) bool { return is(err, ErrRemoteRejection) }

// IsNotFound reports a well-formed missing-resource response.
func IsNotFound(err error) bool { return is(err, ErrNotFound) }

// IsBlocked reports that a concurrent sync holds the collection lock.
func IsBlocked(err error) bool { return is(err, ErrSyncBlocked) }
