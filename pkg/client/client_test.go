package client

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/middleware"
	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/result/errcode"
	"github.com/lushly-dev/afd/pkg/schema"
)

type echoInput struct {
	Text string `json:"text" validate:"required"`
}

type echoOutput struct {
	Text string `json:"text"`
}

type upperOutput struct {
	Text string `json:"text"`
}

func newFixture(t *testing.T) (*registry.Registry, *middleware.Invoker) {
	t.Helper()
	reg := registry.New()
	registry.Register(reg, registry.Definition{
		Name:        "echo-say",
		Description: "echoes the given text",
		Category:    "echo",
		Exposure:    registry.ExposureMap{Palette: true, Agent: true, MCP: true, CLI: true},
	}, schema.New[echoInput](), func(ctx *afdcontext.Context, req echoInput) (echoOutput, error) {
		return echoOutput{Text: req.Text}, nil
	})
	registry.Register(reg, registry.Definition{
		Name:        "echo-upper",
		Description: "uppercases the given text",
		Category:    "echo",
		Exposure:    registry.ExposureMap{Palette: true, Agent: true, MCP: true, CLI: true},
	}, schema.New[echoOutput](), func(ctx *afdcontext.Context, req echoOutput) (upperOutput, error) {
		return upperOutput{Text: "UP:" + req.Text}, nil
	})
	registry.Register(reg, registry.Definition{
		Name:        "echo-blocked",
		Description: "not exposed anywhere external",
		Category:    "echo",
	}, schema.New[echoInput](), func(ctx *afdcontext.Context, req echoInput) (echoOutput, error) {
		return echoOutput{Text: req.Text}, nil
	})
	return reg, middleware.New(reg)
}

func TestClientCall(t *testing.T) {
	reg, inv := newFixture(t)
	c := New(reg, inv)

	env := c.Call(context.Background(), "echo-say", echoInput{Text: "hi"})
	require.True(t, env.Success)

	var out echoOutput
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "hi", out.Text)
}

func TestClientCallRespectsExposure(t *testing.T) {
	reg, inv := newFixture(t)
	c := New(reg, inv, WithInterface(constants.InterfaceCLI))

	env := c.Call(context.Background(), "echo-blocked", echoInput{Text: "hi"})
	require.False(t, env.Success)
	assert.Equal(t, errcode.CommandNotExposed, env.Error.Code)
}

func TestClientPipeThreadsData(t *testing.T) {
	reg, inv := newFixture(t)
	c := New(reg, inv)

	env := c.Pipe(context.Background(),
		Step{Command: "echo-say", Input: echoInput{Text: "hi"}},
		Step{Command: "echo-upper"},
	)
	require.True(t, env.Success)

	var out upperOutput
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "UP:hi", out.Text)
}

func TestClientPipeStopsOnFirstFailure(t *testing.T) {
	reg, inv := newFixture(t)
	c := New(reg, inv)

	env := c.Pipe(context.Background(),
		Step{Command: "echo-say", Input: echoInput{Text: ""}}, // fails validation: required
		Step{Command: "echo-upper"},
	)
	require.False(t, env.Success)
	assert.Equal(t, errcode.ValidationError, env.Error.Code)
}
