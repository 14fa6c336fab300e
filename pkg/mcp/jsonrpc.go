// Package mcp implements the JSON-RPC 2.0 core of the Model Context
// Protocol: message framing, the tool-serving server, and a client.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the JSON-RPC protocol version. It MUST be "2.0".
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var ErrInvalidMessage = errors.New("invalid JSON-RPC message")

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is a single JSON-RPC message: request, notification or
// response, discriminated by which fields are set.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsRequest reports whether m expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether m is a fire-and-forget call.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether m answers an earlier request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (len(m.Result) > 0 || m.Error != nil)
}

// ParseMessage decodes and validates a JSON-RPC message.
func ParseMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.JSONRPC != Version {
		return nil, fmt.Errorf("%w: jsonrpc must be %q", ErrInvalidMessage, Version)
	}
	if m.Method == "" && !m.IsResponse() {
		return nil, fmt.Errorf("%w: neither method nor result/error present", ErrInvalidMessage)
	}
	return &m, nil
}

// NewRequest builds a request with the given numeric ID.
func NewRequest(id int64, method string, params interface{}) (*Message, error) {
	m := &Message{
		JSONRPC: Version,
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		m.Params = raw
	}
	return m, nil
}

// NewNotification builds a notification (no ID, no response expected).
func NewNotification(method string, params interface{}) (*Message, error) {
	m := &Message{JSONRPC: Version, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		m.Params = raw
	}
	return m, nil
}

// NewResponse builds a success response to the request carrying id.
func NewResponse(id json.RawMessage, result interface{}) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Message{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response to the request carrying id.
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}
