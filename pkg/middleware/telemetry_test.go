package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/audit"
	"github.com/lushly-dev/afd/pkg/constants"
)

func TestTelemetryRecordsInvokeWithoutBlockingCaller(t *testing.T) {
	store := audit.NewFileStore(t.TempDir())
	logger := audit.NewLogger(store, "u1")
	mw := Telemetry(logger, "echo", 8)
	ctx := afdcontext.New(context.Background(), "t", "u1", constants.InterfaceDirect)

	_, err := mw(ctx, "echo-say", nil, func(ctx *afdcontext.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	require.NoError(t, err)

	_, err = mw(ctx, "echo-fail", nil, func(ctx *afdcontext.Context) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	require.Eventually(t, func() bool {
		events, qerr := store.Query(context.Background(), audit.QueryOptions{})
		return qerr == nil && len(events) == 2
	}, time.Second, 10*time.Millisecond)

	events, err := store.Query(context.Background(), audit.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "success", events[0].Result.Status)
	assert.Equal(t, "failure", events[1].Result.Status)
}

func TestTelemetryDropsWhenChannelFull(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	store := audit.NewFileStore(dir)
	logger := audit.NewLogger(store, "u1")
	mw := Telemetry(logger, "echo", 0) // unbuffered + no consumer race: drop is allowed

	ctx := afdcontext.New(context.Background(), "t", "u1", constants.InterfaceDirect)
	_, err := mw(ctx, "echo-say", nil, func(ctx *afdcontext.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	assert.NoError(t, err, "telemetry must never fail the invocation even if the event is dropped")
}
