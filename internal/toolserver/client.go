// internal/toolserver/client.go

// Package toolserver connects to external tool servers over websocket and
// exposes their tools as registered actions. A server's whole tool set is
// attached transactionally and detached in bulk on disconnect.
package toolserver

import (
	"context"
	encodingjson "encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Maximum message size allowed from the peer.
	maxMessageSize = 2048 * 2048 // 2MB
)

// wire message types
const (
	msgListTools = "list_tools"
	msgCallTool  = "call_tool"
)

type request struct {
	ID     string                  `json:"id"`
	Type   string                  `json:"type"`
	Tool   string                  `json:"tool,omitempty"`
	Params encodingjson.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Error   string                 `json:"error,omitempty"`
	Tools   []schemas.ActionSchema `json:"tools,omitempty"`
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Output  string                 `json:"output,omitempty"`
}

// Client is one websocket connection to a tool server, multiplexing
// concurrent requests by id.
type Client struct {
	logger *zap.Logger
	url    string
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan response

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to a tool server and starts its read loop.
func Dial(ctx context.Context, logger *zap.Logger, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing tool server %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		logger:  logger.Named("toolserver").With(zap.String("server", url)),
		url:     url,
		conn:    conn,
		pending: make(map[string]chan response),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	c.logger.Info("Connected to tool server.")
	return c, nil
}

// URL returns the server address the client dialed.
func (c *Client) URL() string { return c.url }

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Tool server read error.", zap.Error(err))
			}
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()

		if !ok {
			c.logger.Debug("Dropping response with unknown id.", zap.String("id", resp.ID))
			continue
		}
		ch <- resp
	}
}

// call sends one request and waits for its correlated response.
func (c *Client) call(ctx context.Context, req request) (response, error) {
	req.ID = uuid.NewString()
	ch := make(chan response, 1)

	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return response{}, fmt.Errorf("writing %s request: %w", req.Type, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return response{}, fmt.Errorf("tool server error: %s", resp.Error)
		}
		return resp, nil
	case <-c.closed:
		return response{}, fmt.Errorf("tool server connection closed")
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// ListTools asks the server to describe every tool it serves.
func (c *Client) ListTools(ctx context.Context) ([]schemas.ActionSchema, error) {
	resp, err := c.call(ctx, request{Type: msgListTools})
	if err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// CallTool invokes one remote tool and returns its outcome.
func (c *Client) CallTool(ctx context.Context, tool string, params encodingjson.RawMessage) (success bool, message, output string, err error) {
	resp, err := c.call(ctx, request{Type: msgCallTool, Tool: tool, Params: params})
	if err != nil {
		return false, "", "", err
	}
	return resp.Success, resp.Message, resp.Output, nil
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
		c.logger.Info("Tool server connection closed.")
	})
}
