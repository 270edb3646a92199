// Package result defines the trust-carrying envelope every afd command
// returns, win or lose. Every surface — MCP tool call, in-process client,
// CLI — renders the same Result[T] shape, so a caller never has to special
// case "did this come back over JSON-RPC or a direct Go call".
//
package result

import (
	"encoding/json"
	"fmt"

	"github.com/lushly-dev/afd/pkg/result/errcode"
)

// Severity classifies a Warning.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Warning is a non-fatal annotation attached to an otherwise successful (or
// partially successful) result.
type Warning struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
}

// Source documents where a piece of information in the result came from —
// useful for commands whose data is derived rather than authoritative.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// PlanStatus is the lifecycle state of a PlanStep.
type PlanStatus string

const (
	PlanNotStarted PlanStatus = "not-started"
	PlanInProgress PlanStatus = "in-progress"
	PlanCompleted  PlanStatus = "completed"
)

// PlanStep is one entry in a result's declared plan — the steps a command
// says it took, or will take, to fulfil the request.
type PlanStep struct {
	ID     int        `json:"id"`
	Title  string     `json:"title"`
	Status PlanStatus `json:"status"`
}

// Alternative is a candidate result the handler considered but didn't pick.
type Alternative[T any] struct {
	Data       T        `json:"data"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// CommandError is the structured failure half of a Result. Code is drawn
// from the closed taxonomy in pkg/result/errcode (plus any domain-specific codes a
// command author adds on top of it).
type CommandError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Retryable  bool           `json:"retryable"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Metadata is always populated by the invoker, never by the handler.
type Metadata struct {
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	CommandVersion  string         `json:"commandVersion,omitempty"`
	TraceID         string         `json:"traceId,omitempty"`
	Extra           map[string]any `json:"-"`
}

// Result is the envelope every command handler returns.
//
// Invariant: Success == true iff Data is meaningful and Error is nil;
// Success == false iff Error is non-nil. Validate() checks this.
type Result[T any] struct {
	Success bool          `json:"success"`
	Data    T             `json:"data,omitempty"`
	Error   *CommandError `json:"error,omitempty"`

	Confidence   *float64        `json:"confidence,omitempty"`
	Reasoning    string          `json:"reasoning,omitempty"`
	Sources      []Source        `json:"sources,omitempty"`
	Plan         []PlanStep      `json:"plan,omitempty"`
	Alternatives []Alternative[T] `json:"alternatives,omitempty"`
	Warnings     []Warning       `json:"warnings,omitempty"`
	Suggestions  []string        `json:"suggestions,omitempty"`

	UndoCommand string         `json:"undoCommand,omitempty"`
	UndoArgs    map[string]any `json:"undoArgs,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Validate checks the envelope invariants. Nothing in the invoker calls it;
// it is exercised directly by the unit tests.
func (r Result[T]) Validate() error {
	if r.Success && r.Error != nil {
		return fmt.Errorf("result: success=true but error is set")
	}
	if !r.Success && r.Error == nil {
		return fmt.Errorf("result: success=false but error is nil")
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return fmt.Errorf("result: confidence %f out of [0,1]", *r.Confidence)
	}
	if r.Metadata.ExecutionTimeMs < 0 {
		return fmt.Errorf("result: executionTimeMs negative")
	}
	return nil
}

// Option customizes a successful Result at construction time.
type Option[T any] func(*Result[T])

func WithConfidence[T any](c float64) Option[T] {
	return func(r *Result[T]) { r.Confidence = &c }
}

func WithReasoning[T any](reasoning string) Option[T] {
	return func(r *Result[T]) { r.Reasoning = reasoning }
}

func WithSources[T any](sources ...Source) Option[T] {
	return func(r *Result[T]) { r.Sources = append(r.Sources, sources...) }
}

func WithPlan[T any](steps ...PlanStep) Option[T] {
	return func(r *Result[T]) { r.Plan = append(r.Plan, steps...) }
}

func WithAlternatives[T any](alts ...Alternative[T]) Option[T] {
	return func(r *Result[T]) { r.Alternatives = append(r.Alternatives, alts...) }
}

func WithWarnings[T any](warnings ...Warning) Option[T] {
	return func(r *Result[T]) { r.Warnings = append(r.Warnings, warnings...) }
}

func WithSuggestions[T any](suggestions ...string) Option[T] {
	return func(r *Result[T]) { r.Suggestions = append(r.Suggestions, suggestions...) }
}

func WithUndo[T any](command string, args map[string]any) Option[T] {
	return func(r *Result[T]) {
		r.UndoCommand = command
		r.UndoArgs = args
	}
}

// Success builds a successful envelope around data.
func Success[T any](data T, opts ...Option[T]) Result[T] {
	r := Result[T]{Success: true, Data: data}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// ErrOption customizes a CommandError at construction time.
type ErrOption func(*CommandError)

func WithSuggestion(s string) ErrOption {
	return func(e *CommandError) { e.Suggestion = s }
}

func WithRetryable(retryable bool) ErrOption {
	return func(e *CommandError) { e.Retryable = retryable }
}

func WithDetails(details map[string]any) ErrOption {
	return func(e *CommandError) { e.Details = details }
}

// Failure builds a failed envelope. Retryable defaults to false unless the
// taxonomy in pkg/result/errcode fixes it, or WithRetryable overrides it.
func Failure[T any](code, message string, opts ...ErrOption) Result[T] {
	e := &CommandError{Code: code, Message: message, Retryable: errcode.Retryable(code)}
	for _, opt := range opts {
		opt(e)
	}
	return Result[T]{Success: false, Error: e}
}

// Enriched wraps a command handler's response value together with
// Result-level UX options (warnings, plan, confidence, sources, reasoning,
// suggestions, undo hints) that pkg/registry/pkg/middleware apply to the
// enclosing envelope once the handler returns successfully. A handler
// returns Enriched[Resp] instead of a bare Resp whenever it needs to say
// more than plain success — most notably Batch's PARTIAL_SUCCESS framing,
// but also confidence/reasoning/plan on any command.
type Enriched[T any] struct {
	Value   T
	Options []Option[json.RawMessage]
}

// WithEnrichment builds an Enriched[T] from a value and the envelope
// options to apply around it.
func WithEnrichment[T any](value T, opts ...Option[json.RawMessage]) Enriched[T] {
	return Enriched[T]{Value: value, Options: opts}
}

// EnvelopeValue and EnvelopeOptions satisfy pkg/registry's envelopeCarrier
// interface structurally, so the registry can unwrap an Enriched[T] of any
// T without importing a generic concrete type.
func (e Enriched[T]) EnvelopeValue() any { return e.Value }

// EnvelopeOptions returns the Result-level options the invoker should apply
// to the envelope wrapping this response.
func (e Enriched[T]) EnvelopeOptions() []Option[json.RawMessage] { return e.Options }
