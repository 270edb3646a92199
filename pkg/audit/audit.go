// Package audit provides an immutable, structured audit log for afd.
//
// Every command invocation, exposure-gate denial, and configuration change
// is recorded as a structured event. Events are append-only and can be
// exported to JSON for downstream ingestion. This is the telemetry sink the
// middleware pipeline's fan-out middleware writes to — Append must never
// block or panic the invoker, so callers are expected to write from a
// buffered background worker rather than inline on the hot path.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

const (
	EventCommandInvoke EventType = "command.invoke"
	EventCommandDeny   EventType = "command.deny"
	EventRegistration  EventType = "command.register"
	EventAuth          EventType = "auth"
	EventConfig        EventType = "config.change"
)

// Event is a single immutable audit record.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	Type      EventType      `json:"type"`
	User      string         `json:"user"`
	Action    string         `json:"action"`
	Target    *EventTarget   `json:"target,omitempty"`
	Result    *EventResult   `json:"result,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventTarget describes which command, and through which interface, an
// event concerns.
type EventTarget struct {
	Command   string `json:"command,omitempty"`
	Category  string `json:"category,omitempty"`
	Interface string `json:"interface,omitempty"`
}

// EventResult captures the outcome of the action. ItemsTotal/Succeeded/Failed
// mirror a batch command's result.BatchSummary so a single audit record can
// describe either a single-item or a batch invocation.
type EventResult struct {
	Status         string        `json:"status"` // "success", "failure", "partial"
	ItemsTotal     int           `json:"items_total,omitempty"`
	ItemsSucceeded int           `json:"items_succeeded,omitempty"`
	ItemsFailed    int           `json:"items_failed,omitempty"`
	Duration       time.Duration `json:"duration_ns,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// QueryOptions filters audit log queries.
type QueryOptions struct {
	User  string
	Type  EventType
	Since time.Time
	Until time.Time
	Limit int
}

// Store is the persistence interface for the audit log.
type Store interface {
	// Append writes an event to the audit log. Events are immutable once written.
	Append(ctx context.Context, event *Event) error

	// Query retrieves events matching the given filters.
	Query(ctx context.Context, opts QueryOptions) ([]*Event, error)

	// Export returns all events at or after the given time.
	Export(ctx context.Context, since time.Time) ([]*Event, error)
}

// ------------------------------------------------------------------
// File-based audit store (append-only JSONL)
// ------------------------------------------------------------------

// FileStore is an append-only file-based audit store using JSON Lines format.
// Each line is a complete JSON event. The file is never modified, only appended to.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-based audit store at the given directory.
func NewFileStore(dir string) *FileStore {
	os.MkdirAll(dir, 0o700)
	return &FileStore{dir: dir}
}

func (s *FileStore) logFile() string {
	return filepath.Join(s.dir, "audit.jsonl")
}

// Append writes an event to the audit log.
func (s *FileStore) Append(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.logFile(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}

	return nil
}

// Query reads events matching the given filters.
func (s *FileStore) Query(ctx context.Context, opts QueryOptions) ([]*Event, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}

	var results []*Event
	for _, e := range all {
		if opts.User != "" && e.User != opts.User {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if !opts.Since.IsZero() && e.Timestamp.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && e.Timestamp.After(opts.Until) {
			continue
		}
		results = append(results, e)
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}

	return results, nil
}

// Export returns all events since the given time.
func (s *FileStore) Export(ctx context.Context, since time.Time) ([]*Event, error) {
	return s.Query(ctx, QueryOptions{Since: since})
}

func (s *FileStore) readAll() ([]*Event, error) {
	data, err := os.ReadFile(s.logFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var events []*Event
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip malformed lines
		}
		events = append(events, &e)
	}
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i := range data {
		if data[i] == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// ------------------------------------------------------------------
// Logger is a convenience wrapper for emitting audit events
// ------------------------------------------------------------------

// Logger provides helper methods for common audit patterns.
type Logger struct {
	store Store
	user  string
}

// NewLogger creates an audit logger for the given user.
func NewLogger(store Store, user string) *Logger {
	return &Logger{store: store, user: user}
}

// LogInvoke records one command invocation (single item or batch).
func (l *Logger) LogInvoke(ctx context.Context, command, category, iface, sessionID string, result *EventResult) error {
	return l.store.Append(ctx, &Event{
		Type:      EventCommandInvoke,
		User:      l.user,
		Action:    command,
		SessionID: sessionID,
		Target:    &EventTarget{Command: command, Category: category, Interface: iface},
		Result:    result,
	})
}

// LogDeny records an exposure-gate denial (COMMAND_NOT_EXPOSED).
func (l *Logger) LogDeny(ctx context.Context, command, iface, sessionID string) error {
	return l.store.Append(ctx, &Event{
		Type:      EventCommandDeny,
		User:      l.user,
		Action:    command,
		SessionID: sessionID,
		Target:    &EventTarget{Command: command, Interface: iface},
		Result:    &EventResult{Status: "failure", Error: "COMMAND_NOT_EXPOSED"},
	})
}

// LogConfigChange records a configuration change.
func (l *Logger) LogConfigChange(ctx context.Context, key string, result *EventResult) error {
	return l.store.Append(ctx, &Event{
		Type:   EventConfig,
		User:   l.user,
		Action: "config.change",
		Metadata: map[string]any{
			"key": key,
		},
		Result: result,
	})
}
