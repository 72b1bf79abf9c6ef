package tangguh

import (
	"errors"
	"fmt"
)

// Error type constants classifying every failure surfaced by the client.
const (
	// ErrorTypeTransport is a network-level failure with no response.
	ErrorTypeTransport = "Transport"
	// ErrorTypeHTTPStatus is a received non-2xx response.
	ErrorTypeHTTPStatus = "HTTPStatus"
	// ErrorTypeCircuitOpen is a request blocked before dispatch.
	ErrorTypeCircuitOpen = "CircuitOpen"
	// ErrorTypeAuthRefresh is a failed credential renewal.
	ErrorTypeAuthRefresh = "AuthRefresh"
	// ErrorTypeCanceled is a request aborted by the caller.
	ErrorTypeCanceled = "Canceled"
	// ErrorTypeTimeout is a request that exceeded its configured duration.
	ErrorTypeTimeout = "Timeout"
	// ErrorTypeValidation is an invalid client configuration or request.
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a dispatch.
	ErrCircuitOpen = errors.New("tangguh: circuit open")

	// ErrCanceled is returned when a request is aborted via its handle.
	ErrCanceled = errors.New("tangguh: request canceled")

	// ErrClientClosed is returned for requests issued after Close.
	ErrClientClosed = errors.New("tangguh: client closed")
)

// Error is the uniform error shape surfaced to callers regardless of the
// failure origin: a message, the HTTP status where one exists, and the raw
// response body.
type Error struct {
	Type    string
	Message string
	Status  int
	Data    []byte
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Status > 0 && e.Cause != nil:
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Type, e.Message, e.Status, e.Cause)
	case e.Status > 0:
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Type, e.Message, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types so errors.Is(err, &Error{Type: ...}) works.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry: transport errors, timeouts, 5xx responses and 429.
// Circuit-open, cancellation and other 4xx failures are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type {
	case ErrorTypeTransport, ErrorTypeTimeout:
		return true
	case ErrorTypeHTTPStatus:
		return e.Status == 429 || e.Status >= 500
	default:
		return false
	}
}

// statusMessages maps well-known status codes to human-readable messages
// used when normalizing HTTP failures.
var statusMessages = map[int]string{
	400: "bad request",
	401: "unauthorized",
	403: "forbidden",
	404: "not found",
	405: "method not allowed",
	408: "request timeout",
	409: "conflict",
	410: "gone",
	422: "unprocessable entity",
	429: "too many requests",
	500: "internal server error",
	501: "not implemented",
	502: "bad gateway",
	503: "service unavailable",
	504: "gateway timeout",
}

func statusMessage(code int) string {
	if msg, ok := statusMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("http status %d", code)
}

// newStatusError builds the normalized error for a non-2xx response.
func newStatusError(resp *Response) *Error {
	return &Error{
		Type:    ErrorTypeHTTPStatus,
		Message: statusMessage(resp.StatusCode),
		Status:  resp.StatusCode,
		Data:    resp.Body,
	}
}
