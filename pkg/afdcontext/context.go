// Package afdcontext carries the per-invocation metadata threaded through
// every command call: which trace this is part of, who's calling, and
// through which surface.
//
// It is its own type rather than bare context.WithValue keys because the
// middleware chain needs trace/user/interface fields a stdlib
// context.Context doesn't carry by itself, plus an Extensions bag
// middleware can use to pass data downstream without every middleware
// needing to know about every other one.
package afdcontext

import (
	"context"
	"time"

	"github.com/lushly-dev/afd/pkg/constants"
)

// Context is passed to every middleware and handler in the pipeline.
type Context struct {
	context.Context

	TraceID   string
	UserID    string
	Interface constants.Interface

	extensions map[string]any
}

// New builds a root Context for one command invocation.
func New(parent context.Context, traceID, userID string, iface constants.Interface) *Context {
	return &Context{
		Context:    parent,
		TraceID:    traceID,
		UserID:     userID,
		Interface:  iface,
		extensions: make(map[string]any),
	}
}

// Set stores a middleware-defined value under key, visible to every
// downstream middleware and the handler for the rest of this invocation.
func (c *Context) Set(key string, value any) {
	if c.extensions == nil {
		c.extensions = make(map[string]any)
	}
	c.extensions[key] = value
}

// Get retrieves a value previously stored with Set.
func (c *Context) Get(key string) (any, bool) {
	if c.extensions == nil {
		return nil, false
	}
	v, ok := c.extensions[key]
	return v, ok
}

// WithTimeout returns a child Context whose embedded context.Context is
// cancelled after d, along with the cancel func the caller must invoke.
func (c *Context) WithTimeout(d time.Duration) (*Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Context, d)
	clone := *c
	clone.Context = ctx
	return &clone, cancel
}
