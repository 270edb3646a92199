// Package client is the in-process surface: the same registry and invoker
// the MCP server runs, called directly in Go without a JSON-RPC encode/
// decode round trip. The CLI and any other in-process embedder share this
// one surface instead of each talking to the invoker on their own.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/middleware"
	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/result"
	"github.com/lushly-dev/afd/pkg/result/errcode"
)

// Envelope is the type-erased Result returned by every call through the
// client, matching the invoker's own return type.
type Envelope = middleware.Envelope

// Client wraps a Registry/Invoker pair for direct, in-process invocation.
type Client struct {
	reg     *registry.Registry
	invoker *middleware.Invoker
	iface   constants.Interface
	userID  string
}

// New builds a Client bound to reg/invoker. By default calls are tagged
// with constants.InterfaceDirect; use WithInterface to impersonate another
// surface (the CLI uses InterfaceCLI so expose.cli gates apply).
func New(reg *registry.Registry, invoker *middleware.Invoker, opts ...Option) *Client {
	c := &Client{reg: reg, invoker: invoker, iface: constants.InterfaceDirect}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithInterface sets the constants.Interface every call from this client is
// tagged with, so registry exposure gating applies as it would for that
// surface.
func WithInterface(iface constants.Interface) Option {
	return func(c *Client) { c.iface = iface }
}

// WithUser sets the user ID attached to every Context this client builds.
func WithUser(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// Call marshals input, runs name through the full middleware chain, and
// returns the enriched envelope. input may be any JSON-marshalable value,
// including a raw json.RawMessage from a prior Call's Data.
func (c *Client) Call(ctx context.Context, name string, input any) Envelope {
	raw, err := json.Marshal(input)
	if err != nil {
		return result.Failure[json.RawMessage](errcode.Internal, fmt.Sprintf("client: marshal input for %q: %v", name, err))
	}
	ac := afdcontext.New(ctx, "", c.userID, c.iface)
	return c.invoker.Invoke(ac, name, raw)
}

// CallWithContext runs name against an already-built afdcontext.Context,
// for callers that need to carry a trace ID or extensions across a Pipe.
func (c *Client) CallWithContext(ac *afdcontext.Context, name string, input any) Envelope {
	raw, err := json.Marshal(input)
	if err != nil {
		return result.Failure[json.RawMessage](errcode.Internal, fmt.Sprintf("client: marshal input for %q: %v", name, err))
	}
	return c.invoker.Invoke(ac, name, raw)
}

// Step is one stage of a Pipe: Input seeds the first step only, since every
// later step receives the previous step's Data as its input instead.
type Step struct {
	Command string
	Input   any
}

// Pipe threads the previous result's Data as input to the next step,
// running each step through the full middleware chain and stopping at the
// first failure. The returned envelope is the last step actually run.
func (c *Client) Pipe(ctx context.Context, steps ...Step) Envelope {
	if len(steps) == 0 {
		return result.Failure[json.RawMessage](errcode.Internal, "client: pipe called with no steps")
	}

	ac := afdcontext.New(ctx, "", c.userID, c.iface)
	var current any = steps[0].Input
	var last Envelope
	for _, step := range steps {
		last = c.CallWithContext(ac, step.Command, current)
		if !last.Success {
			return last
		}
		current = last.Data
	}
	return last
}
