package middleware

import (
	"encoding/json"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/resilience"
	"github.com/lushly-dev/afd/pkg/result/errcode"
)

// KeyFunc derives the rate-limit bucket key for an invocation. The two
// common choices are per-command (KeyByCommand) and per-user (KeyByUser).
type KeyFunc func(ctx *afdcontext.Context, commandName string) string

// KeyByCommand buckets by command name, ignoring who's calling.
func KeyByCommand(ctx *afdcontext.Context, commandName string) string { return commandName }

// KeyByUser buckets by the invoking user, ignoring which command.
func KeyByUser(ctx *afdcontext.Context, commandName string) string { return ctx.UserID }

// RateLimit builds a middleware that throttles invocations through a
// resilience.RateLimiterRegistry, one token bucket per key. Exceeding the
// bucket returns RATE_LIMITED without calling next.
func RateLimit(registry *resilience.RateLimiterRegistry, key KeyFunc) Middleware {
	return func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error) {
		limiter := registry.Get(key(ctx, commandName))
		if !limiter.Allow() {
			return nil, &rateLimitedError{command: commandName}
		}
		return next(ctx)
	}
}

type rateLimitedError struct{ command string }

func (e *rateLimitedError) Error() string {
	return "rate limit exceeded for " + e.command
}

// Code lets classify() recognize this error without a type switch over
// every middleware's private error type.
func (e *rateLimitedError) Code() string { return errcode.RateLimited }
