package middleware

import (
	"encoding/json"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/resilience"
	"github.com/lushly-dev/afd/pkg/result/errcode"
)

// Retry builds a middleware that retries next with exponential backoff and
// jitter via resilience.Retry, adapted from its attempt-indexed fn(attempt)
// signature to the chain's next(ctx) signature. Only errors the taxonomy
// marks retryable are retried; a non-retryable failure returns on the
// first attempt.
func Retry(cfg resilience.RetryConfig) Middleware {
	if cfg.RetryableErr == nil {
		cfg.RetryableErr = func(err error) bool {
			ce, ok := err.(codedError)
			return ok && errcode.Retryable(ce.Code())
		}
	}
	return func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error) {
		var raw json.RawMessage
		err := resilience.Retry(ctx, cfg, func(attempt int) error {
			var innerErr error
			raw, innerErr = next(ctx)
			return innerErr
		})
		return raw, err
	}
}
