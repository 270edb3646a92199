package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/audit"
)

// Telemetry builds a fire-and-forget middleware that fans every invocation
// out to an audit.Store via a buffered channel, so a slow or blocked store
// can never add latency to the command path — the same backpressure shape
// as pkg/bus.SessionBus's non-blocking Publish.
func Telemetry(logger *audit.Logger, category string, buffer int) Middleware {
	events := make(chan func(), buffer)
	go func() {
		for record := range events {
			record()
		}
	}()

	return func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error) {
		start := time.Now()
		raw, err := next(ctx)
		status := "success"
		errMsg := ""
		if err != nil {
			status = "failure"
			errMsg = err.Error()
		}

		select {
		case events <- func() {
			_ = logger.LogInvoke(context.Background(), commandName, category, string(ctx.Interface), ctx.UserID, &audit.EventResult{
				Status:   status,
				Duration: time.Since(start),
				Error:    errMsg,
			})
		}:
		default:
			// Telemetry channel is full; drop rather than block the invoker.
		}

		return raw, err
	}
}
