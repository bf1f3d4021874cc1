// Package dispatch orchestrates one end-to-end tool call: registry lookup,
// argument validation, order guardrails, rate-limiter admission, the
// exchange call, and the response envelope.
package dispatch

import (
	"time"

	"binancemcp/pkg/core"
)

// CallState tracks a request through the dispatch pipeline.
type CallState int

const (
	// StateReceived is the initial state of every request.
	StateReceived CallState = iota
	// StateValidated means the tool exists and the arguments passed the schema.
	StateValidated
	// StateRateAdmitted means the rate limiter granted an admission token.
	StateRateAdmitted
	// StateExecuting means the exchange call is in flight.
	StateExecuting
	// StateCompleted is the terminal success state.
	StateCompleted
	// StateRejected is the terminal state for validation and admission failures.
	StateRejected
	// StateFailed is the terminal state for exchange failures after execution.
	StateFailed
)

// String returns the state name.
func (s CallState) String() string {
	return [...]string{
		"received", "validated", "rate_admitted", "executing",
		"completed", "rejected", "failed",
	}[s]
}

// Terminal reports whether the state ends the request lifecycle.
func (s CallState) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateFailed
}

// ToolCallRequest is one inbound tool call.
type ToolCallRequest struct {
	// Tool is the registered tool name.
	Tool string `json:"tool"`
	// Arguments is the raw argument mapping.
	Arguments core.Params `json:"arguments"`
	// Caller identifies the session for logging; optional.
	Caller string `json:"caller,omitempty"`
	// ReceivedAt is when the transport handed the request over.
	ReceivedAt time.Time `json:"-"`
}

// ErrorObject is the error half of the response envelope.
type ErrorObject struct {
	// Kind is the wire name of the error category.
	Kind string `json:"kind"`
	// Code is the exchange error code, if any.
	Code string `json:"code,omitempty"`
	// Message describes the failure.
	Message string `json:"message"`
	// RetryAfter is the suggested wait in seconds before retrying.
	RetryAfter float64 `json:"retryAfter,omitempty"`
	// Fields lists every violated argument for validation errors.
	Fields []string `json:"fields,omitempty"`
}

// ToolCallResponse is the outbound envelope: exactly one of Result or Error
// is set.
type ToolCallResponse struct {
	Result any          `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`

	// State is the terminal pipeline state, for logging and metrics.
	State CallState `json:"-"`
}

// IsError reports whether the response carries an error.
func (r *ToolCallResponse) IsError() bool {
	return r.Error != nil
}

// errorResponse wraps any error into a structured envelope.
func errorResponse(state CallState, err error) *ToolCallResponse {
	e := core.AsError(err)

	obj := &ErrorObject{
		Kind:    e.Kind.String(),
		Code:    e.Code,
		Message: e.Message,
		Fields:  e.Fields,
	}
	if e.RetryAfter > 0 {
		obj.RetryAfter = e.RetryAfter.Seconds()
	}
	return &ToolCallResponse{Error: obj, State: state}
}
