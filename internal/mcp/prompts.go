package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// daily-review: walk an agent through one user's browsing categories for a day.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("daily-review",
			mcplib.WithPromptDescription("Review how a user's browsing time was split across categories on one day"),
			mcplib.WithArgument("day",
				mcplib.ArgumentDescription("Day in YYYY-MM-DD form"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("user_id",
				mcplib.ArgumentDescription("User to review"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleDailyReviewPrompt,
	)
}

func (s *Server) handleDailyReviewPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	day := request.Params.Arguments["day"]
	userID := request.Params.Arguments["user_id"]
	if day == "" || userID == "" {
		return nil, fmt.Errorf("mcp: daily-review: day and user_id are required")
	}

	text := fmt.Sprintf(`Call bunrui_summary_history with day=%q and user_id=%q.

Each entry maps category labels to time spent at one point in the day.
Add the entries up per category, then report:
1. Total time per category, largest first.
2. The share of the day spent in Work/Productivity and Education combined.
3. Any category that dominates more than half of the total.

If the tool returns an empty list, say that no summaries were recorded.`, day, userID)

	return &mcplib.GetPromptResult{
		Description: "Daily category review for " + userID + " on " + day,
		Messages: []mcplib.PromptMessage{
			{
				Role:    mcplib.RoleUser,
				Content: mcplib.TextContent{Type: "text", Text: text},
			},
		},
	}, nil
}
