// Package errcode is the closed error-code taxonomy every CommandError.Code
// must be drawn from (command authors may add domain-specific codes on top,
// but the framework-level codes below are fixed and carry fixed
// retryability).
package errcode

const (
	ValidationError   = "VALIDATION_ERROR"
	NotFound          = "NOT_FOUND"
	Conflict          = "CONFLICT"
	Forbidden         = "FORBIDDEN"
	RateLimited       = "RATE_LIMITED"
	NoChanges         = "NO_CHANGES"
	Cancelled         = "CANCELLED"
	CommandNotFound   = "COMMAND_NOT_FOUND"
	CommandNotExposed = "COMMAND_NOT_EXPOSED"
	CommandExecution  = "COMMAND_EXECUTION_ERROR"
	Internal          = "INTERNAL_ERROR"
	PartialSuccess    = "PARTIAL_SUCCESS"
)

// Retryable reports the fixed retryability of a framework error code. Codes
// outside the taxonomy (domain-specific ones) are not retryable by default.
func Retryable(code string) bool {
	switch code {
	case RateLimited, Cancelled, Internal:
		return true
	default:
		return false
	}
}

// Error is a handler-constructable taxonomy error. Command handlers return
// one of these instead of a plain error whenever the failure has a known
// code, so pkg/middleware's classify() can carry the code, suggestion, and
// details straight through to the CommandError rather than collapsing
// everything into COMMAND_EXECUTION_ERROR.
type Error struct {
	code       string
	message    string
	suggestion string
	details    map[string]any
}

// New builds a taxonomy Error. code should normally be one of the constants
// above; domain-specific codes are permitted in addition to the taxonomy,
// never as replacements for it.
func New(code, message string) *Error {
	return &Error{code: code, message: message}
}

func (e *Error) Error() string { return e.message }

// Code lets pkg/middleware's classify() recognize this as a coded error.
func (e *Error) Code() string { return e.code }

// Suggestion lets classify() surface a caller-actionable hint on the
// resulting CommandError, e.g. "use todo-list to discover IDs".
func (e *Error) Suggestion() string { return e.suggestion }

// Details lets classify() attach structured context to the resulting
// CommandError.
func (e *Error) Details() map[string]any { return e.details }

// WithSuggestion attaches a suggestion and returns e for chaining.
func (e *Error) WithSuggestion(s string) *Error {
	e.suggestion = s
	return e
}

// WithDetails attaches structured details and returns e for chaining.
func (e *Error) WithDetails(d map[string]any) *Error {
	e.details = d
	return e
}
