package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/salesforce-mcp/domain/tool"
)

// ToolCaller executes a call against a remote MCP server.
type ToolCaller func(ctx context.Context, call MCPToolCall) (*MCPToolResult, error)

// mcpProxyTool wraps an MCP tool as an agent tool.
type mcpProxyTool struct {
	def    MCPToolDef
	caller ToolCaller
}

func (t *mcpProxyTool) Name() string {
	return t.def.Name
}

func (t *mcpProxyTool) Description() string {
	return t.def.Description
}

func (t *mcpProxyTool) InputSchema() tool.Schema {
	if len(t.def.InputSchema) == 0 {
		return tool.EmptySchema()
	}
	return tool.NewSchema(t.def.InputSchema)
}

// Execute forwards the call. A server-reported tool error is returned as
// an error result rather than a Go error, so the model can see it.
func (t *mcpProxyTool) Execute(ctx context.Context, input json.RawMessage) (tool.Result, error) {
	if err := tool.ValidateObject(input); err != nil {
		return tool.Result{}, err
	}

	start := time.Now()
	res, err := t.caller(ctx, MCPToolCall{Name: t.def.Name, Arguments: input})
	if err != nil {
		return tool.Result{}, err
	}

	if res.IsError {
		msg := res.Text()
		if msg == "" {
			msg = ErrToolFailed.Error()
		}
		return tool.Result{Content: msg, IsError: true}.WithDuration(time.Since(start)), nil
	}
	return tool.NewResult(res.Text()).WithDuration(time.Since(start)), nil
}

// MCPDefToTool converts an MCP tool definition to an agent tool.
// The caller executes the tool on the remote server.
func MCPDefToTool(def MCPToolDef, caller ToolCaller) tool.Tool {
	return &mcpProxyTool{def: def, caller: caller}
}
