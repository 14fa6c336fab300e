package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Transport is a bidirectional message session as seen by the client.
// Receive's channel is closed when the session ends.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
	Receive() <-chan *Message
	Close() error
}

// Client drives the MCP handshake and tool operations over a Transport.
type Client struct {
	transport Transport
	info      Implementation

	nextID atomic.Int64

	// One request in flight at a time; the SSE transport delivers
	// responses in order on a single stream.
	mu sync.Mutex

	serverInfo *InitializeResult
}

// NewClient creates a client identifying itself as name/version.
func NewClient(transport Transport, name, version string) *Client {
	return &Client{
		transport: transport,
		info:      Implementation{Name: name, Version: version},
	}
}

// ServerInfo returns the initialize result, or nil before Initialize.
func (c *Client) ServerInfo() *InitializeResult {
	return c.serverInfo
}

// Close ends the underlying session.
func (c *Client) Close() error {
	return c.transport.Close()
}

// call sends a request and waits for the matching response. Responses to
// other IDs and server notifications are discarded.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID.Add(1)
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	if err := c.transport.Send(ctx, req); err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	want := json.RawMessage(fmt.Sprintf("%d", id))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.transport.Receive():
			if !ok {
				return fmt.Errorf("session closed while waiting for %s response", method)
			}
			if !msg.IsResponse() || string(msg.ID) != string(want) {
				continue
			}
			if msg.Error != nil {
				return msg.Error
			}
			if result != nil {
				if err := json.Unmarshal(msg.Result, result); err != nil {
					return fmt.Errorf("failed to parse %s result: %w", method, err)
				}
			}
			return nil
		}
	}
}

// Initialize performs the MCP handshake and sends the initialized
// notification.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      c.info,
	}

	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, params, &result); err != nil {
		return nil, err
	}

	note, err := NewNotification(MethodInitialized, nil)
	if err != nil {
		return nil, err
	}
	if err := c.transport.Send(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to send initialized notification: %w", err)
	}

	c.serverInfo = &result
	return &result, nil
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodListTools, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name. args is marshalled as the arguments
// object.
func (c *Client) CallTool(ctx context.Context, name string, args interface{}) (*CallToolResult, error) {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	var result CallToolResult
	err = c.call(ctx, MethodCallTool, CallToolParams{Name: name, Arguments: rawArgs}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks server liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, MethodPing, struct{}{}, nil)
}
