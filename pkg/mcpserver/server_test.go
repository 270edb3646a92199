package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lushly-dev/afd/examples/todo"
	"github.com/lushly-dev/afd/pkg/middleware"
	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/result/errcode"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	reg := registry.New()
	todo.RegisterAll(reg)
	inv := middleware.New(reg)
	return New(reg, inv, "afd", "0.1.0-test", opts...)
}

func rpcCall(t *testing.T, srv *Server, method string, params any) RPCResponse {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: raw})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleMessage(w, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, "initialize", nil)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result InitializeResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "afd", result.Name)
	assert.False(t, result.Capabilities.Tools.ListChanged)
}

func TestPing(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, "ping", nil)
	assert.Nil(t, resp.Error)
}

func TestUnknownMethod(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, "nope/nope", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrMethodNotFound, resp.Error.Code)
}

func TestToolsListIndividualOmitsMetaWhenEmpty(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, "tools/list", nil)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var list ToolsListResult
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Tools, 3)

	var create, del ToolInfo
	for _, tool := range list.Tools {
		switch tool.Name {
		case "todo-create":
			create = tool
		case "todo-delete":
			del = tool
		}
	}
	assert.Nil(t, create.Meta)
	require.NotNil(t, del.Meta)
	assert.True(t, del.Meta.Mutation)
	assert.Contains(t, del.Meta.Requires, "todo-list")
	require.NotNil(t, create.InputSchema)
}

func TestToolsListGroupedProjectsOneToolPerCategory(t *testing.T) {
	srv := newTestServer(t, WithStrategy(StrategyGrouped))
	resp := rpcCall(t, srv, "tools/list", nil)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var list ToolsListResult
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "todo", list.Tools[0].Name)
	assert.Nil(t, list.Tools[0].Meta)
}

func TestToolsCallHappyPath(t *testing.T) {
	srv := newTestServer(t)
	args, _ := json.Marshal(map[string]string{"title": "buy milk"})
	resp := rpcCall(t, srv, "tools/call", ToolsCallParams{Name: "todo-create", Arguments: args})
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var env struct {
		Success bool `json:"success"`
		Data    struct {
			Title string `json:"title"`
		} `json:"data"`
		Metadata struct {
			ExecutionTimeMs int64  `json:"executionTimeMs"`
			TraceID         string `json:"traceId"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.True(t, env.Success)
	assert.Equal(t, "buy milk", env.Data.Title)
	assert.NotEmpty(t, env.Metadata.TraceID)
}

func TestToolsCallValidationFailure(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, "tools/call", ToolsCallParams{Name: "todo-create", Arguments: json.RawMessage(`{}`)})
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var env struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.False(t, env.Success)
	assert.Equal(t, errcode.ValidationError, env.Error.Code)
}

func TestToolsCallGroupedDispatchesUnderlyingCommand(t *testing.T) {
	srv := newTestServer(t, WithStrategy(StrategyGrouped))
	args, _ := json.Marshal(map[string]string{"title": "buy eggs"})
	grouped, _ := json.Marshal(groupedArguments{Action: "todo-create", Args: args})
	resp := rpcCall(t, srv, "tools/call", ToolsCallParams{Name: "todo", Arguments: grouped})
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var env struct {
		Success bool `json:"success"`
		Data    struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.True(t, env.Success)
	assert.Equal(t, "buy eggs", env.Data.Title)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestSSEStreamReceivesToolEvents opens a real SSE connection and drives a
// tools/call through a separate POST correlated by session id, asserting
// tool_start, tool_end, and done arrive in that order.
func TestSSEStreamReceivesToolEvents(t *testing.T) {
	srv := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/sse?session=sess-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	type frame struct {
		event string
		data  string
	}
	frames := make(chan frame, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		var cur frame
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				cur.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.data = strings.TrimPrefix(line, "data: ")
				frames <- cur
				cur = frame{}
			}
		}
	}()

	time.Sleep(50 * time.Millisecond) // let the SSE connection establish

	args, _ := json.Marshal(map[string]string{"title": "stream test"})
	body, _ := json.Marshal(RPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/call",
		Params:  mustMarshal(t, ToolsCallParams{Name: "todo-create", Arguments: args, SessionID: "sess-1"}),
	})
	postResp, err := http.Post(httpSrv.URL+"/message", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer postResp.Body.Close()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case f := <-frames:
			got = append(got, f.event)
		case <-timeout:
			t.Fatalf("timed out waiting for SSE frames, got %v", got)
		}
	}
	assert.Equal(t, []string{EventToolStart, EventToolEnd, EventDone}, got)
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
