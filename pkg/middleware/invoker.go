// Package middleware composes the onion pipeline every command invocation
// runs through: a fixed default bundle (trace ID, structured logging,
// slow-command warning) wrapping an optional stock chain (rate limiting,
// retry, tracing, telemetry fan-out, auth hook) wrapping the registered
// handler itself.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/result"
	"github.com/lushly-dev/afd/pkg/result/errcode"
)

// Next invokes the remainder of the chain.
type Next func(ctx *afdcontext.Context) (json.RawMessage, error)

// Middleware wraps the next step in the chain. A middleware must not throw
// on the happy path; if it returns an error, the invoker wraps it exactly
// like a handler error.
type Middleware func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error)

// Envelope is the wire-level Result with Data left as raw JSON — the
// invoker deals in type-erased command output, since a single invoker
// serves every registered command regardless of its concrete Resp type.
type Envelope = result.Result[json.RawMessage]

// Invoker is the single point that enforces the exposure gate, composes
// middleware, and enriches/contains the result.
type Invoker struct {
	reg    *registry.Registry
	stock  []Middleware
	logger *slog.Logger

	disableTraceID     bool
	disableLogging     bool
	disableSlowWarning bool
	slowThreshold      time.Duration
}

// Opt configures an Invoker at construction time.
type Opt func(*Invoker)

// WithStockMiddleware appends additional middleware, composed inside the
// default bundle (trace ID / logging / slow warning remain outermost).
func WithStockMiddleware(mws ...Middleware) Opt {
	return func(inv *Invoker) { inv.stock = append(inv.stock, mws...) }
}

// WithLogger overrides the structured logger used by the default bundle.
func WithLogger(l *slog.Logger) Opt {
	return func(inv *Invoker) { inv.logger = l }
}

// WithSlowThreshold overrides the slow-command warning threshold (default
// 1000ms).
func WithSlowThreshold(d time.Duration) Opt {
	return func(inv *Invoker) { inv.slowThreshold = d }
}

// WithoutTraceID disables automatic trace-ID assignment.
func WithoutTraceID() Opt { return func(inv *Invoker) { inv.disableTraceID = true } }

// WithoutLogging disables the default bundle's structured logging layer.
func WithoutLogging() Opt { return func(inv *Invoker) { inv.disableLogging = true } }

// WithoutSlowWarning disables the slow-command warning layer.
func WithoutSlowWarning() Opt { return func(inv *Invoker) { inv.disableSlowWarning = true } }

// New builds an Invoker bound to reg.
func New(reg *registry.Registry, opts ...Opt) *Invoker {
	inv := &Invoker{
		reg:           reg,
		logger:        slog.Default(),
		slowThreshold: time.Second,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke runs a command end to end: exposure gate, lookup, trace-ID
// assignment, schema parse, middleware chain, handler, and result
// enrichment. It never panics and never returns a raw error — every
// outcome, success or failure, comes back as a fully enriched Envelope.
func (inv *Invoker) Invoke(ctx *afdcontext.Context, name string, input json.RawMessage) Envelope {
	if !inv.reg.Exposed(name, ctx.Interface) {
		if _, ok := inv.reg.Lookup(name); !ok {
			return inv.commandNotFound(ctx, name)
		}
		return withMeta(result.Failure[json.RawMessage](errcode.CommandNotExposed,
			fmt.Sprintf("command %q is not exposed to interface %q", name, ctx.Interface),
			result.WithRetryable(errcode.Retryable(errcode.CommandNotExposed)),
		), ctx, "", 0)
	}

	def, ok := inv.reg.Lookup(name)
	if !ok {
		return inv.commandNotFound(ctx, name)
	}

	if !inv.disableTraceID && ctx.TraceID == "" {
		ctx.TraceID = uuid.NewString()
	}

	// Schema parsing is the outermost step after trace-ID assignment: a
	// middleware never sees an invocation whose input wouldn't reach the
	// handler, and a parse failure never pays for the chain.
	parsed, err := inv.reg.ParseInput(name, input)
	if err != nil {
		cmdErr := classify(err)
		return withMeta(Envelope{Success: false, Error: &cmdErr}, ctx, def.Version, 0)
	}

	var handlerTime time.Duration
	final := inv.safeRun(name, parsed, &handlerTime)
	chain := compose(inv.stock, name, input, final)
	chain = inv.wrapDefaultBundle(chain, name)

	raw, err := chain(ctx)

	if ctx.Err() != nil {
		return withMeta(result.Failure[json.RawMessage](errcode.Cancelled, "command invocation was cancelled",
			result.WithRetryable(errcode.Retryable(errcode.Cancelled)),
		), ctx, def.Version, handlerTime)
	}

	if err != nil {
		cmdErr := classify(err)
		r := Envelope{Success: false, Error: &cmdErr}
		return withMeta(r, ctx, def.Version, handlerTime)
	}

	var opts []result.Option[json.RawMessage]
	if v, ok := ctx.Get(envelopeOptionsKey); ok {
		opts, _ = v.([]result.Option[json.RawMessage])
	}
	return withMeta(result.Success(raw, opts...), ctx, def.Version, handlerTime)
}

func (inv *Invoker) commandNotFound(ctx *afdcontext.Context, name string) Envelope {
	return withMeta(result.Failure[json.RawMessage](errcode.CommandNotFound,
		fmt.Sprintf("no such command %q", name),
	), ctx, "", 0)
}

// envelopeOptionsKey stashes a handler's result.Enriched options on the
// context for the rest of Invoke to pick up after the middleware chain
// returns. Next's signature (json.RawMessage, error) is fixed by the
// middleware contract and can't grow a third return value, so this rides
// the same ctx-extension side channel mcpserver's token Emitter uses.
const envelopeOptionsKey = "middleware.envelopeOptions"

// safeRun is the single panic-containment point: it runs the already-parsed
// input through the registered handler and converts a recovered panic into
// a plain error so classify can turn it into a COMMAND_EXECUTION_ERROR like
// any other handler failure. handlerTime receives the handler's own wall
// time — metadata.executionTimeMs reports exactly this, while the default
// bundle's slow-command layer observes the broader chain.
func (inv *Invoker) safeRun(name string, parsed any, handlerTime *time.Duration) Next {
	return func(ctx *afdcontext.Context) (raw json.RawMessage, err error) {
		start := time.Now()
		defer func() {
			*handlerTime = time.Since(start)
			if p := recover(); p != nil {
				err = fmt.Errorf("command %q panicked: %v", name, p)
			}
		}()
		raw, opts, err := inv.reg.Run(ctx, name, parsed)
		if err == nil && len(opts) > 0 {
			ctx.Set(envelopeOptionsKey, opts)
		}
		return raw, err
	}
}

// compose wraps final with the stock middleware chain, outermost-first.
func compose(mws []Middleware, name string, input json.RawMessage, final Next) Next {
	next := final
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		inner := next
		next = func(ctx *afdcontext.Context) (json.RawMessage, error) {
			return mw(ctx, name, input, inner)
		}
	}
	return next
}

// wrapDefaultBundle adds trace-ID passthrough logging and the slow-command
// warning around next, in that fixed order (logging outermost).
func (inv *Invoker) wrapDefaultBundle(next Next, name string) Next {
	if !inv.disableSlowWarning {
		inner := next
		threshold := inv.slowThreshold
		logger := inv.logger
		next = func(ctx *afdcontext.Context) (json.RawMessage, error) {
			start := time.Now()
			raw, err := inner(ctx)
			if d := time.Since(start); d > threshold {
				logger.Warn("slow command", "command", name, "traceId", ctx.TraceID, "durationMs", d.Milliseconds())
			}
			return raw, err
		}
	}
	if !inv.disableLogging {
		inner := next
		logger := inv.logger
		next = func(ctx *afdcontext.Context) (json.RawMessage, error) {
			logger.Info("command start", "command", name, "traceId", ctx.TraceID, "phase", "start")
			start := time.Now()
			raw, err := inner(ctx)
			logger.Info("command end", "command", name, "traceId", ctx.TraceID, "phase", "end",
				"durationMs", time.Since(start).Milliseconds(), "success", err == nil)
			return raw, err
		}
	}
	return next
}

// withMeta stamps executionTimeMs/commandVersion/traceId onto r. The
// invoker always sets these, regardless of success or failure.
func withMeta(r Envelope, ctx *afdcontext.Context, version string, elapsed time.Duration) Envelope {
	r.Metadata.ExecutionTimeMs = elapsed.Milliseconds()
	r.Metadata.CommandVersion = version
	r.Metadata.TraceID = ctx.TraceID
	return r
}

// classify maps a plain handler/schema error onto the closed CommandError
// taxonomy. Schema decode/validate failures (prefixed "schema:" by
// pkg/schema.Parse) become VALIDATION_ERROR; everything else is an opaque
// COMMAND_EXECUTION_ERROR with the original error preserved in Details.
// codedError lets a stock middleware (rate limiting, auth hook) report a
// specific taxonomy code instead of falling through to
// COMMAND_EXECUTION_ERROR.
type codedError interface {
	error
	Code() string
}

// suggestingError and detailedError are optional refinements a codedError
// may also implement (errcode.Error does) to populate CommandError's
// Suggestion/Details fields without classify needing to know every
// concrete error type.
type suggestingError interface{ Suggestion() string }
type detailedError interface{ Details() map[string]any }

func classify(err error) result.CommandError {
	var ce codedError
	if errors.As(err, &ce) {
		cmdErr := result.CommandError{
			Code:      ce.Code(),
			Message:   ce.Error(),
			Retryable: errcode.Retryable(ce.Code()),
		}
		var se suggestingError
		if errors.As(err, &se) {
			cmdErr.Suggestion = se.Suggestion()
		}
		var de detailedError
		if errors.As(err, &de) {
			cmdErr.Details = de.Details()
		}
		return cmdErr
	}
	if strings.HasPrefix(err.Error(), "schema:") {
		return result.CommandError{
			Code:      errcode.ValidationError,
			Message:   err.Error(),
			Retryable: errcode.Retryable(errcode.ValidationError),
		}
	}
	return result.CommandError{
		Code:      errcode.CommandExecution,
		Message:   "command execution failed",
		Retryable: errcode.Retryable(errcode.CommandExecution),
		Details:   map[string]any{"cause": err.Error()},
	}
}

