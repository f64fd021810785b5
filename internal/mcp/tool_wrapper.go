package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"tark/internal/tool"
	"tark/pkg/types"
)

// ToolWrapper adapts an MCP-discovered tool to the tool.Tool contract
// so it can sit in the same registry the agent loop dispatches
// built-in tools through.
type ToolWrapper struct {
	mcpTool Tool
	client  *Client
}

// NewToolWrapper creates a wrapper for an MCP tool.
func NewToolWrapper(mcpTool Tool, client *Client) *ToolWrapper {
	return &ToolWrapper{mcpTool: mcpTool, client: client}
}

// Definition returns the tool's provider-facing schema.
func (w *ToolWrapper) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        w.mcpTool.Name,
		Description: w.mcpTool.Description,
		Parameters:  w.mcpTool.InputSchema,
	}
}

// Execute dispatches to the MCP server that owns this tool.
func (w *ToolWrapper) Execute(ctx context.Context, callCtx *tool.Context, args types.JSONValue) (*tool.Result, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal mcp tool arguments: %w", err)
	}
	output, err := w.client.ExecuteTool(ctx, w.mcpTool.Name, raw)
	if err != nil {
		return nil, err
	}
	return &tool.Result{Title: w.mcpTool.Name, Output: output}, nil
}

// RegisterTools registers every tool exposed by client's connected
// servers into registry.
func RegisterTools(client *Client, registry *tool.Registry) {
	if client == nil || registry == nil {
		return
	}
	for _, t := range client.Tools() {
		registry.Register(NewToolWrapper(t, client))
	}
}
