// Package mcp implements the Model Context Protocol server for bunrui.
//
// The MCP server exposes domain categorization, summary history and usage
// accounting as MCP tools, plus the category taxonomy as a resource, so
// agents can use the same service layer as the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/bunrui/internal/model"
)

// CategoryResolver maps domains to category labels.
type CategoryResolver interface {
	Resolve(ctx context.Context, domains []string) map[string]string
}

// SummaryQuerier reads stored summaries for one day.
type SummaryQuerier interface {
	Query(ctx context.Context, day, userID string) ([]model.SummaryRecord, error)
}

// UsageReader returns the usage ledger.
type UsageReader interface {
	Dump(ctx context.Context) (model.UsageLedger, error)
}

// Server wraps the MCP server with bunrui's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	resolver  CategoryResolver
	summaries SummaryQuerier
	usage     UsageReader
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(resolver CategoryResolver, summaries SummaryQuerier, usage UsageReader, logger *slog.Logger, version string) *Server {
	s := &Server{
		resolver:  resolver,
		summaries: summaries,
		usage:     usage,
		logger:    logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"bunrui",
		version,
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithPromptCapabilities(false),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
