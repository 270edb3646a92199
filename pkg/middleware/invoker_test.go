package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/result"
	"github.com/lushly-dev/afd/pkg/result/errcode"
	"github.com/lushly-dev/afd/pkg/schema"
)

type echoInput struct {
	Text string `json:"text" validate:"required"`
}

type echoOutput struct {
	Text string `json:"text"`
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	registry.Register(r, registry.Definition{
		Name:     "echo-say",
		Version:  "1.0.0",
		Category: "echo",
	}, schema.New[echoInput](), func(ctx *afdcontext.Context, req echoInput) (echoOutput, error) {
		return echoOutput{Text: req.Text}, nil
	})
	registry.Register(r, registry.Definition{
		Name:     "echo-fail",
		Category: "echo",
	}, schema.New[echoInput](), func(ctx *afdcontext.Context, req echoInput) (echoOutput, error) {
		return echoOutput{}, errors.New("boom")
	})
	registry.Register(r, registry.Definition{
		Name:     "echo-panic",
		Category: "echo",
	}, schema.New[echoInput](), func(ctx *afdcontext.Context, req echoInput) (echoOutput, error) {
		panic("unexpected")
	})
	registry.Register(r, registry.Definition{
		Name:     "echo-enriched",
		Category: "echo",
	}, schema.New[echoInput](), func(ctx *afdcontext.Context, req echoInput) (result.Enriched[echoOutput], error) {
		return result.WithEnrichment(echoOutput{Text: req.Text},
			result.WithWarnings[json.RawMessage](result.Warning{Code: "PARTIAL_SUCCESS", Severity: result.SeverityWarning}),
			result.WithReasoning[json.RawMessage]("echoed verbatim"),
		), nil
	})
	registry.Register(r, registry.Definition{
		Name:     "echo-hidden",
		Category: "echo",
		Exposure: registry.ExposureMap{Palette: true, Agent: true, MCP: false, CLI: false},
	}, schema.New[echoInput](), func(ctx *afdcontext.Context, req echoInput) (echoOutput, error) {
		return echoOutput{Text: req.Text}, nil
	})
	return r
}

func newTestContext(iface constants.Interface) *afdcontext.Context {
	return afdcontext.New(context.Background(), "", "u1", iface)
}

func TestInvokeSuccessEnrichesMetadata(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-say", json.RawMessage(`{"text":"hi"}`))
	require.True(t, r.Success)
	require.NoError(t, r.Validate())
	assert.Equal(t, "1.0.0", r.Metadata.CommandVersion)
	assert.NotEmpty(t, r.Metadata.TraceID)
	assert.GreaterOrEqual(t, r.Metadata.ExecutionTimeMs, int64(0))

	var out echoOutput
	require.NoError(t, json.Unmarshal(r.Data, &out))
	assert.Equal(t, "hi", out.Text)
}

func TestInvokePreservesCallerTraceID(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := afdcontext.New(context.Background(), "caller-trace", "u1", constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-say", json.RawMessage(`{"text":"hi"}`))
	assert.Equal(t, "caller-trace", r.Metadata.TraceID)
}

func TestInvokeCommandNotFound(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "does-not-exist", json.RawMessage(`{}`))
	require.False(t, r.Success)
	assert.Equal(t, errcode.CommandNotFound, r.Error.Code)
}

func TestInvokeCommandNotExposed(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := newTestContext(constants.InterfaceMCP)

	r := inv.Invoke(ctx, "echo-hidden", json.RawMessage(`{"text":"hi"}`))
	require.False(t, r.Success)
	assert.Equal(t, errcode.CommandNotExposed, r.Error.Code)
}

func TestInvokeDirectBypassesExposureGate(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-hidden", json.RawMessage(`{"text":"hi"}`))
	assert.True(t, r.Success)
}

func TestInvokeValidationError(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-say", json.RawMessage(`{}`))
	require.False(t, r.Success)
	assert.Equal(t, errcode.ValidationError, r.Error.Code)
}

func TestInvokeHandlerErrorBecomesExecutionError(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-fail", json.RawMessage(`{"text":"hi"}`))
	require.False(t, r.Success)
	assert.Equal(t, errcode.CommandExecution, r.Error.Code)
	assert.Equal(t, "boom", r.Error.Details["cause"])
}

func TestInvokeContainsPanic(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := newTestContext(constants.InterfaceDirect)

	require.NotPanics(t, func() {
		r := inv.Invoke(ctx, "echo-panic", json.RawMessage(`{"text":"hi"}`))
		assert.False(t, r.Success)
		assert.Equal(t, errcode.CommandExecution, r.Error.Code)
	})
}

func TestInvokeParsesBeforeMiddleware(t *testing.T) {
	var sawChain bool
	mw := func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error) {
		sawChain = true
		return next(ctx)
	}
	inv := New(newTestRegistry(t), WithStockMiddleware(mw))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-say", json.RawMessage(`{}`))
	require.False(t, r.Success)
	assert.Equal(t, errcode.ValidationError, r.Error.Code)
	assert.False(t, sawChain, "middleware must not run when schema parse fails")
}

func TestExecutionTimeMeasuresHandlerOnly(t *testing.T) {
	slow := func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error) {
		time.Sleep(30 * time.Millisecond)
		return next(ctx)
	}
	inv := New(newTestRegistry(t), WithStockMiddleware(slow))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-say", json.RawMessage(`{"text":"hi"}`))
	require.True(t, r.Success)
	assert.Less(t, r.Metadata.ExecutionTimeMs, int64(30),
		"executionTimeMs must not include middleware time")
}

func TestInvokeRunsStockMiddlewareInsideDefaultBundle(t *testing.T) {
	var order []string
	mw := func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error) {
		order = append(order, "stock")
		return next(ctx)
	}
	inv := New(newTestRegistry(t), WithStockMiddleware(mw))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-say", json.RawMessage(`{"text":"hi"}`))
	require.True(t, r.Success)
	assert.Equal(t, []string{"stock"}, order)
}

func TestInvokeAppliesEnrichedEnvelopeOptions(t *testing.T) {
	inv := New(newTestRegistry(t))
	ctx := newTestContext(constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-enriched", json.RawMessage(`{"text":"hi"}`))
	require.True(t, r.Success)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "PARTIAL_SUCCESS", r.Warnings[0].Code)
	assert.Equal(t, "echoed verbatim", r.Reasoning)

	var out echoOutput
	require.NoError(t, json.Unmarshal(r.Data, &out))
	assert.Equal(t, "hi", out.Text)
}

func TestInvokeCancelledContext(t *testing.T) {
	inv := New(newTestRegistry(t))
	base, cancel := context.WithCancel(context.Background())
	cancel()
	ctx := afdcontext.New(base, "", "u1", constants.InterfaceDirect)

	r := inv.Invoke(ctx, "echo-say", json.RawMessage(`{"text":"hi"}`))
	require.False(t, r.Success)
	assert.Equal(t, errcode.Cancelled, r.Error.Code)
	assert.True(t, r.Error.Retryable)
}
