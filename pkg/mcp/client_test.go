package mcp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackTransport feeds client messages straight into a Server and
// queues the responses for Receive.
type loopbackTransport struct {
	server *Server
	recv   chan *Message

	mu     sync.Mutex
	closed bool
}

func newLoopback(server *Server) *loopbackTransport {
	return &loopbackTransport{server: server, recv: make(chan *Message, 16)}
}

func (t *loopbackTransport) Send(ctx context.Context, msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if resp := t.server.Handle(ctx, msg); resp != nil {
		t.recv <- resp
	}
	return nil
}

func (t *loopbackTransport) Receive() <-chan *Message { return t.recv }

func (t *loopbackTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.recv)
	}
	return nil
}

func loopbackClient(t *testing.T) *Client {
	t.Helper()
	client := NewClient(newLoopback(testServer()), "test-client", "0.1.0")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientInitialize(t *testing.T) {
	client := loopbackClient(t)

	result, err := client.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "Demo", result.ServerInfo.Name)
	assert.Equal(t, result, client.ServerInfo())
}

func TestClientListTools(t *testing.T) {
	client := loopbackClient(t)

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "add", tools[0].Name)
}

func TestClientCallTool(t *testing.T) {
	client := loopbackClient(t)

	result, err := client.CallTool(context.Background(), "add", map[string]float64{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "5", result.Content[0].Text)
}

func TestClientCallToolRPCError(t *testing.T) {
	client := loopbackClient(t)

	_, err := client.CallTool(context.Background(), "missing", struct{}{})
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
}

func TestClientPing(t *testing.T) {
	client := loopbackClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClientClosedSession(t *testing.T) {
	transport := newLoopback(testServer())
	client := NewClient(transport, "test-client", "0.1.0")
	require.NoError(t, client.Close())

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session closed")
}
