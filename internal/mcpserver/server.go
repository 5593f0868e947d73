// Package mcpserver exposes the dispatch registry over MCP stdio. It is a
// protocol adapter only: every tool handler delegates to the dispatcher and
// returns its envelope verbatim, so callers see tool failures inside the
// envelope rather than as protocol errors.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ghgate/ghgate/internal/dispatch"
)

// New builds the stdio server with every registered tool advertised using
// its raw JSON schema.
func New(d *dispatch.Dispatcher, reg *dispatch.Registry, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		"ghgate",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, spec := range reg.Specs() {
		schema, err := json.Marshal(spec.Schema)
		if err != nil {
			return nil, err
		}
		tool := mcp.NewToolWithRawSchema(spec.Name, spec.Description, schema)
		s.AddTool(tool, toolHandler(d, spec.Name))
	}
	return s, nil
}

func toolHandler(d *dispatch.Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		envelope := d.Dispatch(ctx, name, req.GetArguments())
		body, err := json.Marshal(envelope)
		if err != nil {
			return nil, err
		}
		result := mcp.NewToolResultText(string(body))
		if ok, _ := envelope["ok"].(bool); !ok {
			result.IsError = true
		}
		return result, nil
	}
}

// ServeStdio runs the server over stdin/stdout until the stream closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
