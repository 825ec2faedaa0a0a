package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/boat-builder/agentruntime"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer exposes every tool of registry over MCP. Tool failures are reported as results with
// IsError set, carrying the same text the orchestrator would give the model.
func NewServer(registry *agentruntime.ToolRegistry) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "agentruntime", Version: agentruntime.Version}, nil)
	for _, name := range registry.Names() {
		tool, ok := registry.Lookup(name)
		if !ok {
			continue
		}
		server.AddTool(&mcp.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Parameters(),
		}, toolHandler(tool))
	}
	return server
}

// Serve runs the registry's server on transport until the client disconnects or ctx ends.
func Serve(ctx context.Context, registry *agentruntime.ToolRegistry, transport mcp.Transport) error {
	return NewServer(registry).Run(ctx, transport)
}

func toolHandler(tool agentruntime.Tool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Sprintf("Error: invalid arguments for %s: %v", tool.Name(), err)), nil
			}
		}

		defer func() {
			if r := recover(); r != nil {
				slog.Error("Tool panicked", "tool", tool.Name(), "panic", r)
				result, err = errorResult(fmt.Sprintf("Error: tool %s panicked: %v", tool.Name(), r)), nil
			}
		}()

		output, execErr := tool.Execute(ctx, args)
		if execErr != nil {
			return errorResult(agentruntime.ToolErrorText(tool.Name(), execErr)), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: output}}}, nil
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
