package middleware

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/resilience"
	"github.com/lushly-dev/afd/pkg/result/errcode"
)

func TestRateLimitAllowsWithinBudgetAndRejectsOverBudget(t *testing.T) {
	registry := resilience.NewRateLimiterRegistry(0, 1) // burst of 1, no refill
	mw := RateLimit(registry, KeyByCommand)
	ctx := afdcontext.New(context.Background(), "t", "u", constants.InterfaceDirect)

	calls := 0
	next := func(ctx *afdcontext.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{}`), nil
	}

	_, err := mw(ctx, "echo-say", nil, next)
	assert.NoError(t, err)

	_, err = mw(ctx, "echo-say", nil, next)
	assert.Error(t, err)
	ce, ok := err.(codedError)
	if assert.True(t, ok) {
		assert.Equal(t, errcode.RateLimited, ce.Code())
	}
	assert.Equal(t, 1, calls, "second call must not reach next")
}

func TestRateLimitKeyByCommandIsolatesBuckets(t *testing.T) {
	registry := resilience.NewRateLimiterRegistry(0, 1)
	mw := RateLimit(registry, KeyByCommand)
	ctx := afdcontext.New(context.Background(), "t", "u", constants.InterfaceDirect)

	next := func(ctx *afdcontext.Context) (json.RawMessage, error) { return json.RawMessage(`{}`), nil }

	_, err1 := mw(ctx, "echo-say", nil, next)
	_, err2 := mw(ctx, "echo-fail", nil, next)
	assert.NoError(t, err1)
	assert.NoError(t, err2, "different command names must not share a bucket")
}
