package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestTracingRecordsSpanOnSuccessAndFailure(t *testing.T) {
	tracer := observability.NewTracer(10, discardLogger())
	mw := Tracing(tracer)
	ctx := afdcontext.New(context.Background(), "trace-1", "u", constants.InterfaceDirect)

	_, err := mw(ctx, "echo-say", nil, func(ctx *afdcontext.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	require.NoError(t, err)

	_, err = mw(ctx, "echo-fail", nil, func(ctx *afdcontext.Context) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	spans := tracer.QuerySpans(observability.SpanQueryOptions{})
	assert.Len(t, spans, 2)
}
