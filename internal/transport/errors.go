package transport

import (
	"errors"
	"fmt"
)

// Server-defined error codes carried by an "ERROR <code> '<message>'" row.
// Negative codes are client-internal and never come from the wire.
const (
	CodeLoginRequired       = 300
	CodeAccessDenied        = 301
	CodeIncorrectLogin      = 302
	CodeInvalidString       = 303
	CodeMustChangePassword  = 304
	CodeCannotReusePassword = 305

	CodeAuthenticationCancelled = -1
	CodeCancelled               = -2
)

// ProtocolError is an application-level error reported by the server, or one
// of the two client-internal pseudo-errors sharing the same shape.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Is makes every ProtocolError with the same code match, so callers can do
// errors.Is(err, transport.ErrCancelled).
func (e *ProtocolError) Is(target error) bool {
	var pe *ProtocolError
	if !errors.As(target, &pe) {
		return false
	}
	return e.Code == pe.Code
}

var (
	// ErrCancelled signals cooperative cancellation observed at a
	// round-trip boundary.
	ErrCancelled = &ProtocolError{Code: CodeCancelled, Message: "operation cancelled"}

	// ErrAuthenticationCancelled signals that the credentials callback
	// returned nothing.
	ErrAuthenticationCancelled = &ProtocolError{Code: CodeAuthenticationCancelled, Message: "authentication cancelled"}
)

// ErrorCode extracts the protocol error code from err, or 0 if err is not a
// ProtocolError.
func ErrorCode(err error) int {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

// TransportError reports an HTTP-level failure: a non-200 status or a
// connection problem. It always flips the session offline.
type TransportError struct {
	Status int // 0 for connection failures
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
