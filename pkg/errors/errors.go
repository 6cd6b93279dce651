// Package errors provides structured error handling for nebula-bulk
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeTransfer represents a network failure while streaming a payload
	ErrorTypeTransfer ErrorType = "transfer"
	// ErrorTypeRemoteResult represents a remote failure signaled before the payload begins
	ErrorTypeRemoteResult ErrorType = "remote_result"
	// ErrorTypeStorage represents a local disk failure while staging a payload
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeRead represents a local disk failure while parsing a staged payload
	ErrorTypeRead ErrorType = "read"
	// ErrorTypeParse represents malformed tabular content at a known byte offset
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeValidation represents invalid caller input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Detail keys shared across packages.
const (
	DetailOffset     = "offset"
	DetailStatusCode = "status_code"
	DetailResultRef  = "result_ref"
	DetailPath       = "path"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// TypeOf returns the type of the outermost structured error in the chain,
// or the empty string when err carries none.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// IsRetryable reports whether resubmitting the export could plausibly
// succeed. Nothing in this module retries on its own; the flag is advice
// for the orchestrator.
func IsRetryable(err error) bool {
	return IsType(err, ErrorTypeTransfer)
}

// Offset returns the byte offset recorded on a parse error anywhere in the chain.
func Offset(err error) (int64, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Details != nil {
			if off, ok := e.Details[DetailOffset].(int64); ok {
				return off, true
			}
		}
		err = errors.Unwrap(err)
	}
	return 0, false
}

// As is errors.As, re-exported so callers need a single errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
