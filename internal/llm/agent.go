package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/teaspoon-world/tmcp/pkg/mcp"
)

const maxToolRounds = 10

// RunToolLoop sends a prompt to the model with the MCP server's tools
// attached and executes every tool call the model makes against the MCP
// session, feeding results back until the model produces a final answer.
func RunToolLoop(ctx context.Context, client *Client, session *mcp.Client, prompt string) (string, error) {
	mcpTools, err := session.ListTools(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]Tool, 0, len(mcpTools))
	for _, t := range mcpTools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	messages := []Message{
		{Role: "user", Content: []ContentBlock{{Type: "text", Text: prompt}}},
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := client.CreateMessage(ctx, "", messages, tools)
		if err != nil {
			return "", err
		}

		messages = append(messages, Message{Role: resp.Role, Content: resp.Content})

		if resp.StopReason != "tool_use" {
			return joinText(resp.Content), nil
		}

		var results []ContentBlock
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}
			log.Printf("Calling tool %s with %s", block.Name, block.Input)

			result := ContentBlock{Type: "tool_result", ToolUseID: block.ID}
			callResult, err := session.CallTool(ctx, block.Name, block.Input)
			if err != nil {
				result.Content = err.Error()
				result.IsError = true
			} else {
				result.Content = joinResultText(callResult)
				result.IsError = callResult.IsError
			}
			results = append(results, result)
		}

		messages = append(messages, Message{Role: "user", Content: results})
	}

	return "", fmt.Errorf("model did not finish within %d tool rounds", maxToolRounds)
}

func joinText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func joinResultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
