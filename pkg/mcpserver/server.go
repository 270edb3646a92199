package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/bus"
	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/health"
	"github.com/lushly-dev/afd/pkg/middleware"
	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/result/errcode"
)

const sessionBufferSize = 64

// Option configures a Server at construction time.
type Option func(*Server)

// WithStrategy selects the tool-listing strategy (default StrategyIndividual).
func WithStrategy(s Strategy) Option {
	return func(srv *Server) { srv.strategy = s }
}

// WithLogger overrides the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// WithHealth attaches an existing health.Server instead of constructing one
// (e.g. so a host process can register its own readiness checks before
// handing the server to mcpserver.New).
func WithHealth(h *health.Server) Option {
	return func(srv *Server) { srv.health = h }
}

// Server is the MCP-compatible JSON-RPC/SSE transport: GET /health,
// GET /sse, POST /message, mounted over one command registry and invoker.
type Server struct {
	reg      *registry.Registry
	invoker  *middleware.Invoker
	name     string
	version  string
	strategy Strategy
	logger   *slog.Logger
	health   *health.Server
	bus      *bus.SessionBus
	sessions *sessionTable

	shutdown atomic.Bool
}

// New builds a Server. name/version are reported by "initialize" and by
// GET /health.
func New(reg *registry.Registry, invoker *middleware.Invoker, name, version string, opts ...Option) *Server {
	srv := &Server{
		reg:      reg,
		invoker:  invoker,
		name:     name,
		version:  version,
		strategy: StrategyIndividual,
		logger:   slog.Default(),
		bus:      bus.New(),
		sessions: newSessionTable(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.health == nil {
		srv.health = health.NewServer("", 0)
	}
	srv.health.SetInfo(name, version)
	srv.health.SetReady(true)
	return srv
}

// Handler returns the mux serving /health, /sse, and /message.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", s.health.Handler())
	mux.Handle("/ready", s.health.Handler())
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/message", s.handleMessage)
	return mux
}

func sessionIDFrom(r *http.Request) string {
	if id := r.URL.Query().Get("session"); id != "" {
		return id
	}
	return r.Header.Get("X-Session-Id")
}

// handleSSE opens a session and streams its bus events as SSE frames until
// the client disconnects, at which point the session's cancellation token
// fires so any in-flight tools/call for it observes CANCELLED at its next
// suspension point.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := sessionIDFrom(r)
	sess := s.sessions.open(r.Context(), id)
	events := s.bus.Open(sess.id, sessionBufferSize)
	defer s.sessions.close(sess.id)
	defer s.bus.Close(sess.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-Id", sess.id)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSEEvent(w, ev.Type, ev.Data)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}

// handleMessage decodes one JSON-RPC request body and dispatches it.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCResponse(w, newErrorResponse(nil, ErrParse, "invalid JSON-RPC request body"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCResponse(w, newErrorResponse(req.ID, ErrInvalidRequest, "jsonrpc must be \"2.0\" and method must be set"))
		return
	}

	sessionID := sessionIDFrom(r)

	switch req.Method {
	case "initialize":
		writeRPCResponse(w, newResultResponse(req.ID, InitializeResult{
			Name:    s.name,
			Version: s.version,
			Capabilities: Capabilities{
				Tools: ToolsCapability{ListChanged: false},
			},
		}))
	case "tools/list":
		writeRPCResponse(w, newResultResponse(req.ID, buildToolsList(s.reg, s.strategy)))
	case "tools/call":
		s.dispatchToolsCall(r.Context(), w, req, sessionID)
	case "ping":
		writeRPCResponse(w, newResultResponse(req.ID, map[string]any{}))
	case "shutdown":
		s.shutdown.Store(true)
		s.health.SetReady(false)
		writeRPCResponse(w, newResultResponse(req.ID, map[string]any{}))
	default:
		writeRPCResponse(w, newErrorResponse(req.ID, ErrMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (s *Server) dispatchToolsCall(reqCtx context.Context, w http.ResponseWriter, req RPCRequest, sessionID string) {
	var params ToolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPCResponse(w, newErrorResponse(req.ID, ErrInvalidParams, "malformed tools/call params"))
			return
		}
	}
	if params.SessionID != "" {
		sessionID = params.SessionID
	}

	name, input, err := resolveCall(s.strategy, params)
	if err != nil {
		writeRPCResponse(w, newErrorResponse(req.ID, ErrInvalidParams, "malformed grouped action/args"))
		return
	}

	callCtx := s.sessions.lookup(sessionID, reqCtx)
	ac := afdcontext.New(callCtx, "", "", constants.InterfaceMCP)
	if sessionID != "" {
		ac.Set(emitterKey, Emitter(func(text string) {
			s.bus.Publish(sessionID, bus.Event{Type: EventToken, Data: TokenPayload{Text: text}})
		}))
	}

	def, _ := s.reg.Lookup(name)
	start := time.Now()
	if sessionID != "" {
		s.bus.Publish(sessionID, bus.Event{Type: EventToolStart, Data: ToolStartPayload{Name: name, Args: input}})
	}

	env := s.invoker.Invoke(ac, name, input)
	latency := time.Since(start).Milliseconds()

	if env.Error != nil && env.Error.Code == errcode.Cancelled {
		if sessionID != "" {
			s.bus.Publish(sessionID, bus.Event{Type: EventError, Data: ErrorPayload{Code: env.Error.Code, Message: env.Error.Message}})
		}
		writeRPCResponse(w, newResultResponse(req.ID, env))
		return
	}

	if sessionID != "" {
		s.bus.Publish(sessionID, bus.Event{Type: EventToolEnd, Data: ToolEndPayload{
			Name:      name,
			Result:    env,
			LatencyMs: latency,
			Metadata:  toolEndMeta(def),
		}})
		s.bus.Publish(sessionID, bus.Event{Type: EventDone, Data: DonePayload{TotalToolLatencyMs: latency}})
	}

	writeRPCResponse(w, newResultResponse(req.ID, env))
}

func toolEndMeta(d registry.Definition) *ToolEndMeta {
	if !d.Destructive && !d.Mutation && d.ConfirmPrompt == "" && len(d.Tags) == 0 {
		return nil
	}
	return &ToolEndMeta{
		Destructive:   d.Destructive,
		ConfirmPrompt: d.ConfirmPrompt,
		Mutation:      d.Mutation,
		Tags:          d.Tags,
	}
}

func writeRPCResponse(w http.ResponseWriter, resp RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func unmarshalStrict(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// emitterKey is the afdcontext.Context extension key a handler's optional
// token-streaming emitter is stored under for the lifetime of one
// tools/call invocation.
const emitterKey = "mcpserver.emitter"

// Emitter streams one incremental token chunk to the calling session's SSE
// connection.
type Emitter func(text string)

// EmitToken streams text to ctx's session, if one called this invocation
// through mcpserver with a live /sse connection. It is a no-op otherwise,
// so handlers may call it unconditionally regardless of transport.
func EmitToken(ctx *afdcontext.Context, text string) {
	v, ok := ctx.Get(emitterKey)
	if !ok {
		return
	}
	if emit, ok := v.(Emitter); ok {
		emit(text)
	}
}
