// Package status defines the typed result codes every fallible reactor
// operation returns, per the error handling design in the specification.
package status

import "github.com/pkg/errors"

// Code is one of the fixed result kinds an operation can fail with.
// OK is the zero value so a freshly declared Code reads as success.
type Code int

const (
	OK Code = iota
	Generic
	OutOfBuffer
	RetryFailed
	NotFound
	Occupied
	WouldBlock
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Generic:
		return "Generic"
	case OutOfBuffer:
		return "OutOfBuffer"
	case RetryFailed:
		return "RetryFailed"
	case NotFound:
		return "NotFound"
	case Occupied:
		return "Occupied"
	case WouldBlock:
		return "WouldBlock"
	default:
		return "Unknown"
	}
}

// Error pairs a Code with the underlying cause, so callers that only care
// about the kind can switch on Code() while logs still get a stack trace
// via the wrapped pkg/errors cause.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind, capturing a stack trace when no
// underlying cause is supplied.
func New(code Code, msg string) *Error {
	return &Error{Code: code, cause: errors.New(msg)}
}

// Wrap attaches a Code to an existing error, preserving its stack trace if
// it already carries one.
func Wrap(code Code, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, cause: errors.Wrap(err, msg)}
}

// Is reports whether err is a *Error of the given Code.
func Is(err error, code Code) bool {
	se, ok := err.(*Error)
	return ok && se.Code == code
}
