package middleware

import (
	"encoding/json"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/observability"
)

// Tracing builds an OpenTelemetry-style middleware that opens a
// observability.Span for the invocation and closes it with the outcome,
// attributed by command name and interface.
func Tracing(tracer *observability.Tracer) Middleware {
	return func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error) {
		spanCtx, span := tracer.StartSpan(ctx, commandName, map[string]string{
			"interface": string(ctx.Interface),
			"traceId":   ctx.TraceID,
		})
		ctx.Context = spanCtx

		raw, err := next(ctx)
		tracer.EndSpan(span, err)
		return raw, err
	}
}
