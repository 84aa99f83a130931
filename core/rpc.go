package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RPC is the transport used by the ChainClient. Implementations must be safe
// for use by a single caller; the ingestor is the only writer.
type RPC interface {
	Call(ctx context.Context, method string, params map[string]any, out any) error
	Close() error
}

const rpcCallTimeout = 30 * time.Second

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      uint64         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// wsRPC speaks JSON-RPC over a websocket to the chain node.
type wsRPC struct {
	url  string
	mu   sync.Mutex
	conn *websocket.Conn
	next uint64
}

// DialRPC connects to the node's websocket endpoint.
func DialRPC(url string) (RPC, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsRPC{url: url, conn: conn}, nil
}

// Call performs one JSON-RPC round trip. Responses are matched on request id;
// unsolicited messages are discarded.
func (c *wsRPC) Call(ctx context.Context, method string, params map[string]any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	req := rpcRequest{JSONRPC: "2.0", ID: c.next, Method: method, Params: params}

	deadline := time.Now().Add(rpcCallTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("rpc write %s: %w", method, err)
	}

	_ = c.conn.SetReadDeadline(deadline)
	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("rpc read %s: %w", method, err)
		}
		if resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("rpc %s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		if out == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	}
}

// Close shuts the websocket down.
func (c *wsRPC) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
