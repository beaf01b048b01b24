package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier for an error category. Tests match on
// codes, not message text.
type ErrorCode string

const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Package name validation
	ErrInvalidName ErrorCode = "INVALID_NAME"

	// Registry preconditions
	ErrAlreadyTracked ErrorCode = "ALREADY_TRACKED"
	ErrNotTracked     ErrorCode = "NOT_TRACKED"

	// Promotion preconditions
	ErrNotInstalled ErrorCode = "NOT_INSTALLED"
	ErrNoCandidate  ErrorCode = "NO_CANDIDATE"

	// Backend errors
	ErrBackend       ErrorCode = "BACKEND"
	ErrBackendLocked ErrorCode = "BACKEND_LOCKED"

	// Durable state errors
	ErrWrite      ErrorCode = "WRITE_FAILED"
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrUnsafePath ErrorCode = "UNSAFE_PATH"

	// Process lock
	ErrLockHeld ErrorCode = "LOCK_HELD"

	// Configuration and initialization
	ErrConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"
)

// AptrError is a structured error carrying a code, a message and
// optional key/value details for logging.
type AptrError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

func (e *AptrError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AptrError) Unwrap() error {
	return e.Wrapped
}

// Is matches two AptrErrors by code, so errors.Is(err, errors.New(code, ""))
// style checks work regardless of message.
func (e *AptrError) Is(target error) bool {
	var targetErr *AptrError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates an AptrError with the given code and message.
func New(code ErrorCode, message string) *AptrError {
	return &AptrError{Code: code, Message: message}
}

// Newf creates an AptrError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AptrError {
	return &AptrError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error. Returns nil when err is nil so call
// sites can wrap unconditionally.
func Wrap(err error, code ErrorCode, message string) *AptrError {
	if err == nil {
		return nil
	}
	return &AptrError{Code: code, Message: message, Wrapped: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AptrError {
	if err == nil {
		return nil
	}
	return &AptrError{Code: code, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// WithDetail attaches a detail to the error and returns it for chaining.
func (e *AptrError) WithDetail(key string, value interface{}) *AptrError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var ae *AptrError
	for errors.As(err, &ae) {
		if ae.Code == code {
			return true
		}
		err = ae.Wrapped
		if err == nil {
			return false
		}
	}
	return false
}
