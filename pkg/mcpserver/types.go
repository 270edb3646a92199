// Package mcpserver implements the MCP-compatible JSON-RPC 2.0 transport:
// HTTP POST /message for requests, GET /sse for the streaming event channel,
// and GET /health for liveness.
package mcpserver

import (
	"encoding/json"

	js "github.com/google/jsonschema-go/jsonschema"
)

// JSON-RPC 2.0 protocol-fault codes, reserved for malformed requests —
// never used for a command failure, which always comes back as a
// successful JSON-RPC response carrying a failed Result envelope.
const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
)

// RPCRequest is one JSON-RPC 2.0 request body posted to /message.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is the JSON-RPC 2.0 reply written to /message's HTTP response
// body. Exactly one of Result/Error is set.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a protocol-level JSON-RPC fault (malformed request, unknown
// method) — distinct from a command's own CommandError, which travels
// inside a successful RPCResponse.Result.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newErrorResponse(id json.RawMessage, code int, message string) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

func newResultResponse(id json.RawMessage, result any) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// InitializeResult is the reply to the "initialize" handshake.
type InitializeResult struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Capabilities Capabilities `json:"capabilities"`
}

// Capabilities advertises server-side features; afd never pushes
// unsolicited tool-list changes, so ListChanged is always false.
type Capabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability describes the tools capability block.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ToolMeta is tools/list's optional _meta block, omitted entirely when both
// fields are zero.
type ToolMeta struct {
	Requires []string `json:"requires,omitempty"`
	Mutation bool     `json:"mutation,omitempty"`
}

func (m ToolMeta) isEmpty() bool {
	return len(m.Requires) == 0 && !m.Mutation
}

// ToolInfo is one entry in tools/list's response, shaped identically for
// both the individual and grouped tool strategies.
type ToolInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema *js.Schema `json:"inputSchema"`
	Meta        *ToolMeta  `json:"_meta,omitempty"`
}

// ToolsListResult is tools/list's response body.
type ToolsListResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolsCallParams is tools/call's request params. SessionID optionally
// correlates this call to a previously opened /sse stream so its
// cancellation token and event stream apply; if empty, streaming events are
// simply not published anywhere and the call still runs synchronously.
type ToolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	SessionID string          `json:"sessionId,omitempty"`
}

// groupedArguments is the discriminated input shape for the grouped tool
// strategy: {action: "<command>", args: {...}}.
type groupedArguments struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

// SSE event type names. Within one tools/call they are emitted in program
// order: tool_start, any number of token frames, tool_end, done — or a
// final error frame instead of tool_end on a fatal/cancelled call.
const (
	EventToolStart = "tool_start"
	EventToken     = "token"
	EventToolEnd   = "tool_end"
	EventDone      = "done"
	EventError     = "error"
)

// ToolStartPayload is tool_start's SSE data frame.
type ToolStartPayload struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// TokenPayload is token's SSE data frame.
type TokenPayload struct {
	Text string `json:"text"`
}

// ToolEndPayload is tool_end's SSE data frame.
type ToolEndPayload struct {
	Name      string         `json:"name"`
	Result    any            `json:"result"`
	LatencyMs int64          `json:"latencyMs"`
	Metadata  *ToolEndMeta   `json:"metadata,omitempty"`
}

// ToolEndMeta carries the fields a frontend needs to gate a destructive
// action behind confirmation.
type ToolEndMeta struct {
	Destructive   bool     `json:"destructive,omitempty"`
	ConfirmPrompt string   `json:"confirmPrompt,omitempty"`
	Mutation      bool     `json:"mutation,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// DonePayload is done's SSE data frame.
type DonePayload struct {
	TotalToolLatencyMs int64  `json:"totalToolLatencyMs"`
	ModelLatencyMs     *int64 `json:"modelLatencyMs,omitempty"`
}

// ErrorPayload is error's SSE data frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
