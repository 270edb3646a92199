// Package bus fans out streaming events to per-session subscribers.
//
// The SSE transport (pkg/mcpserver) needs to fan a tool_start/token/
// tool_end/done/error stream out to exactly the session that opened it, not
// to every connected client, so the bus keeps one buffered channel per
// session. Close is idempotent and publish-after-close silently drops
// rather than panicking.
package bus

import "sync"

// Event is one streamed item, e.g. a tool_start/token/tool_end/done/error
// frame from pkg/mcpserver.
type Event struct {
	Type string
	Data any
}

// SessionBus holds one buffered channel per live session.
type SessionBus struct {
	mu       sync.Mutex
	sessions map[string]chan Event
	closed   bool
}

// New creates an empty SessionBus.
func New() *SessionBus {
	return &SessionBus{sessions: make(map[string]chan Event)}
}

// Open registers a new session and returns the channel its events will
// arrive on. Reopening an id that's already open replaces and closes the
// previous channel.
func (b *SessionBus) Open(sessionID string, buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.sessions[sessionID]; ok {
		close(old)
	}
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.sessions[sessionID] = ch
	return ch
}

// Publish sends an event to sessionID's channel. It reports false (and
// drops the event) if the bus is closed or the session isn't open — this
// must never block or panic, since Publish is called from the invoker's
// hot path.
func (b *SessionBus) Publish(sessionID string, ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	ch, ok := b.sessions[sessionID]
	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		return false // subscriber too slow; drop rather than block the invoker
	}
}

// Close closes and removes a single session's channel. Idempotent.
func (b *SessionBus) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	close(ch)
	delete(b.sessions, sessionID)
}

// CloseAll closes every open session and marks the bus closed; further
// Open/Publish calls are no-ops. Idempotent.
func (b *SessionBus) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for id, ch := range b.sessions {
		close(ch)
		delete(b.sessions, id)
	}
	b.closed = true
}
