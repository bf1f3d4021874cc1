package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind categorizes a dispatch or exchange error for programmatic handling.
type Kind int

// Error kind constants. Every error surfaced to a tool caller carries
// exactly one of these.
const (
	// KindUnknown indicates an unclassified error.
	KindUnknown Kind = iota
	// KindUnknownTool indicates the requested tool is not registered.
	KindUnknownTool
	// KindInvalidArgument indicates one or more tool arguments failed validation.
	KindInvalidArgument
	// KindRateLimitExceeded indicates local rate-limit admission was denied.
	KindRateLimitExceeded
	// KindTransient indicates a network failure, timeout, or 5xx that was
	// retried and still failed.
	KindTransient
	// KindExchangeRejection indicates the exchange rejected the request (4xx).
	KindExchangeRejection
	// KindClockSkew indicates the signing timestamp fell outside the
	// exchange's accepted drift window even after resynchronization.
	KindClockSkew
	// KindUnauthorized indicates missing or invalid agent credentials.
	KindUnauthorized
	// KindInternal indicates a bug or unexpected local condition.
	KindInternal
)

// String returns the wire name of the kind, e.g. "InvalidArgumentError".
func (k Kind) String() string {
	return [...]string{
		"UnknownError",
		"UnknownToolError",
		"InvalidArgumentError",
		"RateLimitExceededError",
		"TransientFailure",
		"ExchangeRejection",
		"ClockSkewError",
		"UnauthorizedError",
		"InternalError",
	}[k]
}

// Sentinel errors for client and registry state.
var (
	// ErrClientClosed is returned when using a closed exchange client.
	ErrClientClosed = errors.New("client is closed")
	// ErrNoCredentials is returned when a signed operation is attempted
	// without configured API credentials.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrDuplicateTool is returned when registering a tool name twice.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrNotConnected is returned when the WebSocket is not connected.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrStreamClosed is returned when using a closed stream.
	ErrStreamClosed = errors.New("stream is closed")
)

// Error is the structured error type flowing from the rate limiter, the
// exchange client, and the dispatcher out to tool callers. Credentials must
// never appear in Message or Code.
type Error struct {
	// Kind categorizes the error.
	Kind Kind `json:"kind"`
	// Code is the exchange-specific error code, e.g. "-1021".
	Code string `json:"code,omitempty"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// StatusCode is the HTTP status of the exchange response, if any.
	StatusCode int `json:"status_code,omitempty"`
	// RetryAfter hints when the caller may retry. Zero means no hint.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Fields lists every violated argument for invalid-argument errors.
	Fields []string `json:"fields,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ", "))
	}
	return b.String()
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewExchangeError creates an Error decoded from an exchange response.
func NewExchangeError(kind Kind, statusCode int, code, message string) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Code: code, Message: message}
}

// NewRateLimitError creates a rate-limit error carrying a retry-after hint.
// The hint is clamped to a minimum of one millisecond so callers always see
// a positive wait.
func NewRateLimitError(retryAfter time.Duration, message string) *Error {
	if retryAfter < time.Millisecond {
		retryAfter = time.Millisecond
	}
	return &Error{Kind: KindRateLimitExceeded, Message: message, RetryAfter: retryAfter}
}

// NewInvalidArgumentError creates a validation error listing every violated
// field. The message enumerates all violations, not just the first.
func NewInvalidArgumentError(violations []string) *Error {
	return &Error{
		Kind:    KindInvalidArgument,
		Message: strings.Join(violations, "; "),
		Fields:  violations,
	}
}

// AsError extracts a *Error from err, wrapping unknown errors as KindInternal
// so that every failure path produces a structured response.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsTransient reports whether err is expected to resolve on retry.
func IsTransient(err error) bool {
	return IsKind(err, KindTransient)
}

// IsRateLimited reports whether err is a rate-limit admission failure.
func IsRateLimited(err error) bool {
	return IsKind(err, KindRateLimitExceeded)
}

// IsRejection reports whether the exchange rejected the request outright.
// Rejections are client errors and must not be retried.
func IsRejection(err error) bool {
	return IsKind(err, KindExchangeRejection)
}
