package mcp

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/bunrui/internal/model"
)

func (s *Server) registerTools() {
	// bunrui_categorize — map domains onto the closed category taxonomy.
	s.mcpServer.AddTool(
		mcplib.NewTool("bunrui_categorize",
			mcplib.WithDescription(`Categorize website domains.

Returns a JSON object mapping each input domain to one of: Social Media,
Entertainment, Work/Productivity, Shopping, Education, News, Other, or
Uncategorized. Known domains are answered from storage; new ones are
classified once and remembered. A domain that cannot be classified right
now maps to Uncategorized and will be retried on a later call.`),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithArray("domains",
				mcplib.Description("Domains to categorize, e.g. [\"github.com\", \"news.ycombinator.com\"]"),
				mcplib.WithStringItems(),
				mcplib.Required(),
			),
		),
		s.handleCategorize,
	)

	// bunrui_summary_history — per-day category summaries.
	s.mcpServer.AddTool(
		mcplib.NewTool("bunrui_summary_history",
			mcplib.WithDescription("List the category-usage summaries submitted for one UTC day, oldest first."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("day",
				mcplib.Description("Day in YYYY-MM-DD form"),
				mcplib.Required(),
			),
			mcplib.WithString("user_id",
				mcplib.Description("Optional: only return summaries from this user"),
			),
		),
		s.handleSummaryHistory,
	)

	// bunrui_usage — the per-user API usage ledger.
	s.mcpServer.AddTool(
		mcplib.NewTool("bunrui_usage",
			mcplib.WithDescription("Return cumulative API usage (calls, cost, last activity) keyed by user ID."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleUsage,
	)
}

func (s *Server) handleCategorize(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	domains := request.GetStringSlice("domains", nil)
	if len(domains) == 0 {
		return errorResult("domains is required"), nil
	}
	if err := (model.CategoryMappingRequest{Domains: domains}).Validate(); err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(s.resolver.Resolve(ctx, domains))
}

func (s *Server) handleSummaryHistory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	day := request.GetString("day", "")
	userID := request.GetString("user_id", "")

	records, err := s.summaries.Query(ctx, day, userID)
	if err != nil {
		if errors.Is(err, model.ErrInvalidDate) {
			return errorResult(model.ErrInvalidDate.Error()), nil
		}
		s.logger.Error("mcp: summary history failed", "day", day, "error", err)
		return errorResult(fmt.Sprintf("summary history failed: %v", err)), nil
	}

	items := make([]model.SummaryHistoryItem, 0, len(records))
	for _, rec := range records {
		items = append(items, model.SummaryHistoryItem{
			Timestamp: rec.Timestamp,
			UserID:    rec.UserID,
			Summary:   rec.Summary,
		})
	}
	return jsonResult(items)
}

func (s *Server) handleUsage(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ledger, err := s.usage.Dump(ctx)
	if err != nil {
		s.logger.Error("mcp: usage dump failed", "error", err)
		return errorResult(fmt.Sprintf("usage lookup failed: %v", err)), nil
	}
	return jsonResult(ledger)
}
