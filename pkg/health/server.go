// Package health exposes liveness and readiness endpoints for the afd MCP
// server: GET /health always answers ok while the process is up, GET /ready
// reflects SetReady plus any registered dependency checks.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// CheckFunc reports whether a readiness dependency is healthy, plus a
// human-readable status message.
type CheckFunc func() (bool, string)

// Check is the serialized result of one readiness dependency.
type Check struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the JSON body of both /health and /ready.
type StatusResponse struct {
	Status  string           `json:"status"`
	Name    string           `json:"name,omitempty"`
	Version string           `json:"version,omitempty"`
	Uptime  string           `json:"uptime,omitempty"`
	Checks  map[string]Check `json:"checks,omitempty"`
}

// Server serves /health and /ready over HTTP.
type Server struct {
	host    string
	port    int
	name    string
	version string
	started time.Time

	mu     sync.RWMutex
	ready  bool
	checks map[string]CheckFunc

	httpServer *http.Server
}

// NewServer creates a health server bound to host:port. It starts not
// ready; call SetReady(true) once the rest of the process has finished
// wiring up.
func NewServer(host string, port int) *Server {
	return &Server{
		host:    host,
		port:    port,
		name:    "afd",
		version: "dev",
		started: time.Now(),
		checks:  make(map[string]CheckFunc),
	}
}

// SetInfo overrides the name/version reported in StatusResponse.
func (s *Server) SetInfo(name, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.version = version
}

// SetReady flips overall readiness.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// RegisterCheck adds a named readiness dependency check.
func (s *Server) RegisterCheck(name string, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = fn
}

// Handler returns the mux serving /health and /ready.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	return mux
}

// Start runs the HTTP server until Stop is called or it fails to bind.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Stop marks the server not ready and shuts down the listener, if running.
func (s *Server) Stop(ctx context.Context) error {
	s.SetReady(false)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	name, version := s.name, s.version
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Status:  "ok",
		Name:    name,
		Version: version,
		Uptime:  time.Since(s.started).String(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	name, version := s.name, s.version
	fns := make(map[string]CheckFunc, len(s.checks))
	for k, v := range s.checks {
		fns[k] = v
	}
	s.mu.RUnlock()

	checks := make(map[string]Check, len(fns))
	allOK := true
	for name, fn := range fns {
		ok, msg := fn()
		checks[name] = Check{Name: name, Status: statusString(ok), Message: msg, Timestamp: time.Now()}
		if !ok {
			allOK = false
		}
	}

	status := "ready"
	code := http.StatusOK
	if !ready || !allOK {
		status = "not ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(StatusResponse{
		Status:  status,
		Name:    name,
		Version: version,
		Uptime:  time.Since(s.started).String(),
		Checks:  checks,
	})
}

func statusString(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
