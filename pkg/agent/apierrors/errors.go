// Package apierrors provides structured fault classification for Agent Service calls.
package apierrors

import (
	"errors"
	"fmt"
)

// FaultType categorizes failures of a logical agent call.
type FaultType int8

const (
	// FaultTransient represents transport-level failures (connection errors,
	// timeouts) surfaced after retry exhaustion.
	FaultTransient FaultType = iota
	// FaultRateLimited represents a 429 that survived all retry attempts.
	FaultRateLimited
	// FaultService represents any non-2xx, non-429 response. Not retried.
	FaultService
	// FaultIntegration represents a successful response missing an expected
	// field, signaling a contract mismatch with the Agent Service. Not retried.
	FaultIntegration
	// FaultUnknown is the default for unclassified errors.
	FaultUnknown
)

// String returns the string representation of the fault type.
func (ft FaultType) String() string {
	switch ft {
	case FaultTransient:
		return "transient"
	case FaultRateLimited:
		return "rate_limited"
	case FaultService:
		return "service"
	case FaultIntegration:
		return "integration"
	case FaultUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// BodyStubLimit caps how much response body is carried on a fault for logging.
const BodyStubLimit = 512

// Error is a classified Agent Service fault with enough detail to log.
type Error struct {
	Err        error     // Wrapped underlying error, if any
	Message    string    // Human-readable description
	BodyStub   string    // Truncated response body for diagnostics
	Type       FaultType // Classified fault type
	StatusCode int       // HTTP status code if applicable
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("agent fault (%s): status %d: %s", e.Type, e.StatusCode, e.Message)
	case e.Message != "":
		return fmt.Sprintf("agent fault (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("agent fault (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("agent fault (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified fault with a message.
func New(faultType FaultType, message string) *Error {
	return &Error{Type: faultType, Message: message}
}

// NewWithStatus creates a classified fault carrying an HTTP status and body stub.
func NewWithStatus(faultType FaultType, statusCode int, body string) *Error {
	return &Error{Type: faultType, StatusCode: statusCode, BodyStub: TruncateBody(body)}
}

// NewWithCause creates a classified fault wrapping an underlying error.
func NewWithCause(faultType FaultType, cause error, message string) *Error {
	return &Error{Type: faultType, Err: cause, Message: message}
}

// Is reports whether err is a classified fault of the given type.
func Is(err error, faultType FaultType) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == faultType
	}
	return false
}

// TypeOf returns the fault type of err, or FaultUnknown if unclassified.
func TypeOf(err error) FaultType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return FaultUnknown
}

// IsRateLimited reports whether err is a rate-limit fault, letting the
// dispatch layer pick a "try again later" message.
func IsRateLimited(err error) bool {
	return Is(err, FaultRateLimited)
}

// TruncateBody shortens a response body to BodyStubLimit for safe logging.
func TruncateBody(body string) string {
	if len(body) <= BodyStubLimit {
		return body
	}
	return body[:BodyStubLimit] + fmt.Sprintf("...[%d bytes total]", len(body))
}
