package mcpserver

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// session tracks one open /sse connection: its id (the key its bus
// subscription is registered under) and the cancellation token every
// in-flight tools/call for this session derives from.
type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// sessionTable is the server's live session registry. Access is mutex-
// guarded since /sse opens/closes concurrently with /message lookups; it
// is the only mutable shared structure a serving mcpserver holds besides
// the bus and rate-limit state.
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*session)}
}

// open registers a new session bound to parent and returns it; its ctx is
// the context in-flight invocations for this session use.
func (t *sessionTable) open(parent context.Context, id string) *session {
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &session{id: id, ctx: ctx, cancel: cancel}

	t.mu.Lock()
	if old, ok := t.sessions[id]; ok {
		old.cancel()
	}
	t.sessions[id] = s
	t.mu.Unlock()

	return s
}

// close cancels and removes a session, if present. Idempotent.
func (t *sessionTable) close(id string) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	t.mu.Unlock()

	if ok {
		s.cancel()
	}
}

// lookup returns the session context for id, or the fallback parent
// context if no session with that id is open — so a tools/call that
// doesn't correlate to any open /sse stream still runs, just without a
// session-scoped cancellation token.
func (t *sessionTable) lookup(id string, fallback context.Context) context.Context {
	if id == "" {
		return fallback
	}
	t.mu.Lock()
	s, ok := t.sessions[id]
	t.mu.Unlock()
	if !ok {
		return fallback
	}
	return s.ctx
}
