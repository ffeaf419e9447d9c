package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/bunrui/internal/model"
	"github.com/ashita-ai/bunrui/internal/testutil"
)

type fakeResolver struct{ calls [][]string }

func (f *fakeResolver) Resolve(_ context.Context, domains []string) map[string]string {
	f.calls = append(f.calls, domains)
	out := make(map[string]string, len(domains))
	for _, d := range domains {
		out[d] = model.CategoryWork
	}
	return out
}

type fakeSummaries struct {
	records []model.SummaryRecord
	err     error
	gotDay  string
	gotUser string
}

func (f *fakeSummaries) Query(_ context.Context, day, userID string) ([]model.SummaryRecord, error) {
	f.gotDay, f.gotUser = day, userID
	return f.records, f.err
}

type fakeUsage struct {
	ledger model.UsageLedger
	err    error
}

func (f *fakeUsage) Dump(context.Context) (model.UsageLedger, error) { return f.ledger, f.err }

func newTestServer(r CategoryResolver, s SummaryQuerier, u UsageReader) *Server {
	return New(r, s, u, testutil.TestLogger(), "test")
}

func callTool(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestHandleCategorize(t *testing.T) {
	resolver := &fakeResolver{}
	s := newTestServer(resolver, &fakeSummaries{}, &fakeUsage{})

	result, err := s.handleCategorize(context.Background(), callTool("bunrui_categorize", map[string]any{
		"domains": []any{"github.com", "notion.so"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.Equal(t, map[string]string{"github.com": model.CategoryWork, "notion.so": model.CategoryWork}, got)
	require.Len(t, resolver.calls, 1)
}

func TestHandleCategorize_MissingDomains(t *testing.T) {
	resolver := &fakeResolver{}
	s := newTestServer(resolver, &fakeSummaries{}, &fakeUsage{})

	result, err := s.handleCategorize(context.Background(), callTool("bunrui_categorize", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "domains is required")
	assert.Empty(t, resolver.calls)
}

func TestHandleCategorize_TooMany(t *testing.T) {
	domains := make([]any, model.MaxDomainsPerRequest+1)
	for i := range domains {
		domains[i] = fmt.Sprintf("d%d.com", i)
	}
	s := newTestServer(&fakeResolver{}, &fakeSummaries{}, &fakeUsage{})

	result, err := s.handleCategorize(context.Background(), callTool("bunrui_categorize", map[string]any{"domains": domains}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSummaryHistory(t *testing.T) {
	summaries := &fakeSummaries{records: []model.SummaryRecord{{
		Timestamp: "2025-03-01T10:00:00Z",
		Day:       "2025-03-01",
		UserID:    "u1",
		Summary:   map[string]float64{model.CategoryNews: 12},
	}}}
	s := newTestServer(&fakeResolver{}, summaries, &fakeUsage{})

	result, err := s.handleSummaryHistory(context.Background(), callTool("bunrui_summary_history", map[string]any{
		"day": "2025-03-01", "user_id": "u1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))
	assert.Equal(t, "2025-03-01", summaries.gotDay)
	assert.Equal(t, "u1", summaries.gotUser)

	var items []model.SummaryHistoryItem
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &items))
	require.Len(t, items, 1)
	assert.Equal(t, 12.0, items[0].Summary[model.CategoryNews])
}

func TestHandleSummaryHistory_InvalidDate(t *testing.T) {
	summaries := &fakeSummaries{err: fmt.Errorf("summaries: query: %w", model.ErrInvalidDate)}
	s := newTestServer(&fakeResolver{}, summaries, &fakeUsage{})

	result, err := s.handleSummaryHistory(context.Background(), callTool("bunrui_summary_history", map[string]any{"day": "03/01/2025"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "YYYY-MM-DD")
}

func TestHandleSummaryHistory_EmptyIsArray(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeSummaries{}, &fakeUsage{})

	result, err := s.handleSummaryHistory(context.Background(), callTool("bunrui_summary_history", map[string]any{"day": "2025-03-01"}))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", parseToolText(t, result))
}

func TestHandleUsage(t *testing.T) {
	usage := &fakeUsage{ledger: model.UsageLedger{"u1": {TotalCalls: 3, TotalCost: 0.5, ID: "id-1"}}}
	s := newTestServer(&fakeResolver{}, &fakeSummaries{}, usage)

	result, err := s.handleUsage(context.Background(), callTool("bunrui_usage", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var got model.UsageLedger
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.Equal(t, int64(3), got["u1"].TotalCalls)
}

func TestHandleUsage_Error(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeSummaries{}, &fakeUsage{err: errors.New("disk gone")})

	result, err := s.handleUsage(context.Background(), callTool("bunrui_usage", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleTaxonomy(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeSummaries{}, &fakeUsage{})

	contents, err := s.handleTaxonomy(context.Background(), mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Contains(t, text.Text, model.CategoryWork)
	assert.Contains(t, text.Text, model.CategoryUncategorized)
}

func TestDailyReviewPrompt(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeSummaries{}, &fakeUsage{})

	req := mcplib.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"day": "2025-03-01", "user_id": "u1"}
	result, err := s.handleDailyReviewPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	text, ok := result.Messages[0].Content.(mcplib.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "bunrui_summary_history")

	req.Params.Arguments = map[string]string{"day": "2025-03-01"}
	_, err = s.handleDailyReviewPrompt(context.Background(), req)
	assert.Error(t, err)
}
