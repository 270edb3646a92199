package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lushly-dev/afd/pkg/mcpserver"
)

// remoteClient is a minimal JSON-RPC/HTTP client for a connected afd MCP
// server, exercising exactly the wire contract pkg/mcpserver implements —
// the CLI never talks a different protocol than an external agent would.
type remoteClient struct {
	baseURL   string
	sessionID string
	http      *http.Client
}

func newRemoteClient(baseURL, sessionID string) *remoteClient {
	return &remoteClient{
		baseURL:   baseURL,
		sessionID: sessionID,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *remoteClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	reqBody, err := json.Marshal(mcpserver.RPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprintf("%q", uuid.NewString())),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.Header.Set("X-Session-Id", c.sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp mcpserver.RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}

	result, err := json.Marshal(rpcResp.Result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *remoteClient) initialize(ctx context.Context) (mcpserver.InitializeResult, error) {
	var out mcpserver.InitializeResult
	raw, err := c.call(ctx, "initialize", nil)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func (c *remoteClient) toolsList(ctx context.Context) (mcpserver.ToolsListResult, error) {
	var out mcpserver.ToolsListResult
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// toolsCall returns the raw result envelope (a result.Result[T] shape) as
// JSON — the CLI doesn't need a typed Go struct for every command's
// response, it just pretty-prints or re-serializes it.
func (c *remoteClient) toolsCall(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	return c.call(ctx, "tools/call", mcpserver.ToolsCallParams{
		Name:      name,
		Arguments: args,
		SessionID: c.sessionID,
	})
}
