package mcp

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ToolHandler executes a tool call. The returned string becomes a text
// content block; a non-nil error is reported in-band via IsError.
type ToolHandler func(ctx context.Context, args []byte) (string, error)

type registeredTool struct {
	tool    Tool
	handler ToolHandler
}

// Server is an MCP tool server. It is transport-agnostic: a transport
// feeds it parsed messages and forwards whatever Handle returns.
type Server struct {
	info Implementation

	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewServer creates a named tool server.
func NewServer(name, version string) *Server {
	return &Server{
		info:  Implementation{Name: name, Version: version},
		tools: make(map[string]registeredTool),
	}
}

// Name returns the server's advertised name.
func (s *Server) Name() string {
	return s.info.Name
}

// RegisterTool adds (or replaces) a tool.
func (s *Server) RegisterTool(tool Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name] = registeredTool{tool: tool, handler: handler}
}

// Tools lists the registered tools in name order.
func (s *Server) Tools() []Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]Tool, 0, len(s.tools))
	for _, rt := range s.tools {
		tools = append(tools, rt.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Handle dispatches a single message and returns the response, or nil
// for notifications.
func (s *Server) Handle(ctx context.Context, msg *Message) *Message {
	if msg.IsNotification() {
		// Only notifications/initialized is expected; others are ignored.
		return nil
	}
	if !msg.IsRequest() {
		return NewErrorResponse(msg.ID, CodeInvalidRequest, "expected a request")
	}

	switch msg.Method {
	case MethodInitialize:
		return s.handleInitialize(msg)
	case MethodPing:
		return mustResponse(msg, struct{}{})
	case MethodListTools:
		return mustResponse(msg, ListToolsResult{Tools: s.Tools()})
	case MethodCallTool:
		return s.handleCallTool(ctx, msg)
	default:
		return NewErrorResponse(msg.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

func (s *Server) handleInitialize(msg *Message) *Message {
	return mustResponse(msg, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: s.info,
	})
}

func (s *Server) handleCallTool(ctx context.Context, msg *Message) *Message {
	var params CallToolParams
	if err := unmarshalParams(msg.Params, &params); err != nil {
		return NewErrorResponse(msg.ID, CodeInvalidParams, err.Error())
	}

	s.mu.RLock()
	rt, ok := s.tools[params.Name]
	s.mu.RUnlock()
	if !ok {
		return NewErrorResponse(msg.ID, CodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	text, err := rt.handler(ctx, params.Arguments)
	if err != nil {
		return mustResponse(msg, CallToolResult{
			Content: []Content{TextContent(err.Error())},
			IsError: true,
		})
	}

	return mustResponse(msg, CallToolResult{
		Content: []Content{TextContent(text)},
	})
}

func mustResponse(req *Message, result interface{}) *Message {
	resp, err := NewResponse(req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, CodeInternalError, err.Error())
	}
	return resp
}
