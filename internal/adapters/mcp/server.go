package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/product-search-assistant/internal/core/ports"
)

const (
	serverName        = "product-search-assistant"
	serverVersion     = "1.0.0"
	searchProductTool = "search_products"
)

// Server exposes the assistant as an MCP tool server.
type Server struct {
	assistant ports.AssistantService
	mcp       *server.MCPServer
}

func NewServer(assistant ports.AssistantService) *Server {
	s := &Server{
		assistant: assistant,
		mcp:       server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}
	s.mcp.AddTool(searchProductsTool(), s.searchProducts)
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func searchProductsTool() mcp.Tool {
	return mcp.NewTool(searchProductTool,
		mcp.WithDescription("Search the product catalog in natural language. Returns the assistant answer, "+
			"the structured query interpretation and the matching products as JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What the shopper is looking for, e.g. \"sharp cheddar under $10\"."),
		),
		mcp.WithString("history",
			mcp.Description("Text of the previous conversation turn, if any."),
		),
	)
}

func (s *Server) searchProducts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	history := req.GetString("history", "")

	started := time.Now()
	envelope := s.assistant.Handle(ctx, strings.TrimSpace(query), strings.TrimSpace(history))
	slog.Info("mcp_tool_call",
		"tool", searchProductTool,
		"success", envelope.Success,
		"result_count", envelope.ResultCount,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	if !envelope.Success {
		return mcp.NewToolResultError(envelope.Response), nil
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
