// Package resilience provides the reliability primitives the middleware
// pipeline composes around command handlers: per-key token-bucket rate
// limiting and retry with exponential backoff and jitter.
//
// Both are deliberately narrow. The invoker owns error containment,
// cancellation, and result enrichment, so these primitives only decide
// whether the next attempt runs — they never shape how a failure is
// reported back through the envelope.
package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter is a token bucket: burst tokens are available immediately,
// refilled continuously at rate tokens per second. A rate of 0 means the
// bucket never refills, which is useful for tests and for hard one-shot
// budgets.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  int
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a token bucket holding burst tokens, refilled at
// rate tokens per second.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Allow takes one token if available and reports whether the caller may
// proceed. It never blocks; a denied invocation surfaces as RATE_LIMITED,
// which the taxonomy marks retryable, so callers back off instead of
// queueing inside the limiter.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
	rl.last = now
	if rl.tokens > float64(rl.burst) {
		rl.tokens = float64(rl.burst)
	}

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// RateLimiterRegistry hands out one RateLimiter per key. The middleware
// layer keys by command name or by user; every bucket created here shares
// the registry's default rate and burst.
//
// Along with the session table and the event bus, this is one of the few
// mutable structures a serving process holds, so access is mutex-guarded.
type RateLimiterRegistry struct {
	mu           sync.RWMutex
	limiters     map[string]*RateLimiter
	defaultRate  float64
	defaultBurst int
}

// NewRateLimiterRegistry creates a registry whose buckets refill at
// defaultRate tokens per second and hold defaultBurst tokens.
func NewRateLimiterRegistry(defaultRate float64, defaultBurst int) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters:     make(map[string]*RateLimiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
}

// Get returns the limiter for key, creating it on first use.
func (r *RateLimiterRegistry) Get(key string) *RateLimiter {
	r.mu.RLock()
	rl, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return rl
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rl, ok = r.limiters[key]; ok {
		return rl
	}
	rl = NewRateLimiter(r.defaultRate, r.defaultBurst)
	r.limiters[key] = rl
	return rl
}

// RetryConfig configures Retry. Zero values fall back to the defaults
// noted per field.
type RetryConfig struct {
	MaxAttempts  int              // total attempts including the first (default 3)
	InitialDelay time.Duration    // delay before the second attempt (default 100ms)
	MaxDelay     time.Duration    // cap on any single delay (default 30s)
	Multiplier   float64          // backoff growth per attempt (default 2.0)
	JitterFrac   float64          // +/- fraction of the delay to randomize (default 0.1)
	RetryableErr func(error) bool // nil means retry every error
}

// DefaultRetryConfig returns the stock configuration the retry middleware
// starts from. RetryableErr is left nil; the middleware narrows it to the
// taxonomy's retryable codes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFrac:   0.1,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, exhausts
// config.MaxAttempts, or ctx is cancelled while backing off. The final
// error is wrapped, not replaced, so coded errors keep their taxonomy code
// through errors.As.
func Retry(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.JitterFrac <= 0 {
		config.JitterFrac = 0.1
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if config.RetryableErr != nil && !config.RetryableErr(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		sleep := delay + time.Duration(float64(delay)*config.JitterFrac*(rand.Float64()*2-1))
		if sleep > config.MaxDelay {
			sleep = config.MaxDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		delay = time.Duration(float64(delay) * config.Multiplier)
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, lastErr)
}
