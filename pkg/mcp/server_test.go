package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *Server {
	s := NewServer("Demo", "0.1.0")
	s.RegisterTool(Tool{
		Name:        "add",
		Description: "Add two numbers",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"a": {Type: "number"},
				"b": {Type: "number"},
			},
			Required: []string{"a", "b"},
		},
	}, func(_ context.Context, args []byte) (string, error) {
		var in struct{ A, B float64 }
		if err := DecodeArguments(args, &in); err != nil {
			return "", err
		}
		return fmt.Sprintf("%g", in.A+in.B), nil
	})
	return s
}

func request(t *testing.T, id int64, method string, params interface{}) *Message {
	t.Helper()
	m, err := NewRequest(id, method, params)
	require.NoError(t, err)
	return m
}

func TestHandleInitialize(t *testing.T) {
	s := testServer()

	resp := s.Handle(context.Background(), request(t, 1, MethodInitialize, InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      Implementation{Name: "test", Version: "0"},
	}))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "Demo", result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestHandlePing(t *testing.T) {
	s := testServer()
	resp := s.Handle(context.Background(), request(t, 2, MethodPing, nil))
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
}

func TestHandleListTools(t *testing.T) {
	s := testServer()
	s.RegisterTool(Tool{Name: "zeta"}, func(context.Context, []byte) (string, error) { return "", nil })
	s.RegisterTool(Tool{Name: "alpha"}, func(context.Context, []byte) (string, error) { return "", nil })

	resp := s.Handle(context.Background(), request(t, 3, MethodListTools, struct{}{}))
	require.NotNil(t, resp)

	var result ListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 3)

	// name order
	assert.Equal(t, "add", result.Tools[0].Name)
	assert.Equal(t, "alpha", result.Tools[1].Name)
	assert.Equal(t, "zeta", result.Tools[2].Name)
}

func TestHandleCallTool(t *testing.T) {
	s := NewServer("Demo", "0.1.0")
	s.RegisterTool(Tool{Name: "echo"}, func(_ context.Context, args []byte) (string, error) {
		var in struct{ Text string }
		if err := DecodeArguments(args, &in); err != nil {
			return "", err
		}
		return in.Text, nil
	})

	resp := s.Handle(context.Background(), request(t, 4, MethodCallTool, CallToolParams{
		Name:      "echo",
		Arguments: json.RawMessage(`{"text":"hello"}`),
	}))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "hello", result.Content[0].Text)
}

func TestHandleCallToolFailureIsInBand(t *testing.T) {
	s := NewServer("Demo", "0.1.0")
	s.RegisterTool(Tool{Name: "fail"}, func(context.Context, []byte) (string, error) {
		return "", errors.New("tool exploded")
	})

	resp := s.Handle(context.Background(), request(t, 5, MethodCallTool, CallToolParams{
		Name:      "fail",
		Arguments: json.RawMessage(`{}`),
	}))
	require.NotNil(t, resp)

	// the JSON-RPC layer succeeds; the failure rides in the result
	require.Nil(t, resp.Error)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "tool exploded")
}

func TestHandleCallToolUnknown(t *testing.T) {
	s := testServer()
	resp := s.Handle(context.Background(), request(t, 6, MethodCallTool, CallToolParams{Name: "nope"}))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestHandleMethodNotFound(t *testing.T) {
	s := testServer()
	resp := s.Handle(context.Background(), request(t, 7, "resources/list", nil))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandleNotification(t *testing.T) {
	s := testServer()
	note, err := NewNotification(MethodInitialized, nil)
	require.NoError(t, err)
	assert.Nil(t, s.Handle(context.Background(), note))
}
