package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/bunrui/internal/classifier"
	"github.com/ashita-ai/bunrui/internal/mcp"
	"github.com/ashita-ai/bunrui/internal/model"
	"github.com/ashita-ai/bunrui/internal/ratelimit"
	"github.com/ashita-ai/bunrui/internal/server"
	"github.com/ashita-ai/bunrui/internal/service/categories"
	"github.com/ashita-ai/bunrui/internal/service/summaries"
	"github.com/ashita-ai/bunrui/internal/service/usage"
	"github.com/ashita-ai/bunrui/internal/storage/memory"
	"github.com/ashita-ai/bunrui/internal/testutil"
)

type harness struct {
	srv        *httptest.Server
	store      *memory.Store
	classified atomic.Int64
}

type harnessOpts struct {
	limiter   ratelimit.Limiter
	classify  classifier.Func
	maxBody   int64
	withMCP   bool
	summaries server.SummaryLedger
	usage     server.UsageLedger
	storage   server.Pinger
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	h := &harness{store: memory.New()}
	logger := testutil.TestLogger()

	classify := o.classify
	if classify == nil {
		classify = func(_ context.Context, req classifier.Request) (string, error) {
			if strings.Contains(req.Domain, "fail") {
				return "", errors.New("provider down")
			}
			return model.CategoryWork, nil
		}
	}
	counted := classifier.Func(func(ctx context.Context, req classifier.Request) (string, error) {
		h.classified.Add(1)
		return classify(ctx, req)
	})

	resolver := categories.New(h.store, counted, logger, categories.WithMemoTTL(0))
	t.Cleanup(resolver.Close)

	var sums server.SummaryLedger = summaries.New(h.store, logger)
	if o.summaries != nil {
		sums = o.summaries
	}
	var use server.UsageLedger = usage.New(h.store, logger)
	if o.usage != nil {
		use = o.usage
	}
	var pinger server.Pinger = h.store
	if o.storage != nil {
		pinger = o.storage
	}

	cfg := server.ServerConfig{
		Resolver:            resolver,
		Summaries:           sums,
		Usage:               use,
		Storage:             pinger,
		Logger:              logger,
		Limiter:             o.limiter,
		Version:             "test",
		MaxRequestBodyBytes: o.maxBody,
		OpenAPISpec:         []byte("openapi: 3.1.0\n"),
	}
	if o.withMCP {
		cfg.MCPServer = mcp.New(resolver, sums, use, logger, "test").MCPServer()
	}

	h.srv = httptest.NewServer(server.New(cfg).Handler())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	resp, err := http.Post(h.srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	apiErr := decode[model.APIError](t, resp)
	assert.Equal(t, code, apiErr.Error.Code)
	assert.NotEmpty(t, apiErr.Meta.RequestID)
}

func TestCategoryMapping(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	resp := h.post(t, "/get-category-mapping", map[string]any{
		"domains": []string{"github.com", "github.com", "/", "", "fail.example"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]string](t, resp)
	assert.Equal(t, map[string]string{
		"github.com":   model.CategoryWork,
		"/":            model.CategoryUncategorized,
		"":             model.CategoryUncategorized,
		"fail.example": model.CategoryUncategorized,
	}, got)
	assert.Equal(t, int64(2), h.classified.Load())

	// Second call: github.com is stored, the failure was not cached.
	resp = h.post(t, "/get-category-mapping", map[string]any{"domains": []string{"github.com", "fail.example"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), h.classified.Load())
}

func TestCategoryMapping_EmptyList(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp := h.post(t, "/get-category-mapping", map[string]any{"domains": []string{}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[map[string]string](t, resp))
}

func TestCategoryMapping_AbsentDomainsIsEmptyBatch(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	for _, body := range []any{map[string]any{}, map[string]any{"domains": nil}} {
		resp := h.post(t, "/get-category-mapping", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[map[string]string](t, resp)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
	assert.Zero(t, h.classified.Load())
}

func TestCategoryMapping_BadInput(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	requireErrorCode(t, h.post(t, "/get-category-mapping", "{not json"), http.StatusBadRequest, model.ErrCodeInvalidInput)
	requireErrorCode(t, h.post(t, "/get-category-mapping", ""), http.StatusBadRequest, model.ErrCodeInvalidInput)

	tooMany := make([]string, model.MaxDomainsPerRequest+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("d%d.com", i)
	}
	requireErrorCode(t, h.post(t, "/get-category-mapping", map[string]any{"domains": tooMany}), http.StatusBadRequest, model.ErrCodeInvalidInput)
	assert.Zero(t, h.classified.Load())
}

func TestCategoryMapping_RateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	t.Cleanup(func() { _ = limiter.Close() })
	h := newHarness(t, harnessOpts{limiter: limiter})

	resp := h.post(t, "/get-category-mapping", map[string]any{"domains": []string{"a.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.post(t, "/get-category-mapping", map[string]any{"domains": []string{"a.com"}})
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	requireErrorCode(t, resp, http.StatusTooManyRequests, model.ErrCodeRateLimited)

	// Other routes are not limited.
	assert.Equal(t, http.StatusOK, h.get(t, "/health").StatusCode)
}

func TestSubmitAndQuerySummaries(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	for _, rec := range []map[string]any{
		{"timestamp": "2025-03-01T18:00:00Z", "userId": "u1", "categorySummary": map[string]float64{"News": 5}},
		{"timestamp": "2025-03-01T09:00:00Z", "userId": "u2", "categorySummary": map[string]float64{"Shopping": 2}},
		{"timestamp": "2025-03-01T08:00:00Z", "userId": "u1", "categorySummary": map[string]float64{"Work/Productivity": 30}},
		{"timestamp": "2025-03-02T08:00:00Z", "userId": "u1", "categorySummary": map[string]float64{"Other": 1}},
	} {
		resp := h.post(t, "/submit-category-summary", rec)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, model.StatusResponse{Status: "success"}, decode[model.StatusResponse](t, resp))
	}

	resp := h.get(t, "/get-summary-history?day=2025-03-01")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decode[[]model.SummaryHistoryItem](t, resp)
	require.Len(t, items, 3)
	assert.Equal(t, "2025-03-01T08:00:00Z", items[0].Timestamp)
	assert.Equal(t, "2025-03-01T09:00:00Z", items[1].Timestamp)
	assert.Equal(t, "2025-03-01T18:00:00Z", items[2].Timestamp)

	resp = h.get(t, "/get-summary-history?day=2025-03-01&userId=u1")
	items = decode[[]model.SummaryHistoryItem](t, resp)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "u1", it.UserID)
	}
}

func TestSummaryHistory_EmptyDayIsEmptyArray(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp := h.get(t, "/get-summary-history?day=2030-01-01")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, "[]", string(raw))
}

func TestSubmitSummary_Validation(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{"missing user", map[string]any{"timestamp": "2025-03-01T10:00:00Z", "categorySummary": map[string]float64{"News": 1}}, model.ErrCodeMissingFields},
		{"missing summary", map[string]any{"timestamp": "2025-03-01T10:00:00Z", "userId": "u1"}, model.ErrCodeMissingFields},
		{"missing timestamp", map[string]any{"userId": "u1", "categorySummary": map[string]float64{"News": 1}}, model.ErrCodeMissingFields},
		{"bad timestamp", map[string]any{"timestamp": "yesterday", "userId": "u1", "categorySummary": map[string]float64{"News": 1}}, model.ErrCodeInvalidTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireErrorCode(t, h.post(t, "/submit-category-summary", tt.body), http.StatusBadRequest, tt.code)
		})
	}
}

func TestSummaryHistory_InvalidDate(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	for _, q := range []string{"", "?day=03-01-2025", "?day=2025-13-01"} {
		requireErrorCode(t, h.get(t, "/get-summary-history"+q), http.StatusBadRequest, model.ErrCodeInvalidDate)
	}
}

func TestTrackUsage(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	for range 3 {
		resp := h.post(t, "/track-usage", map[string]any{
			"userId": "u1", "timestamp": ts, "usage": map[string]any{"llmCall": 2, "cost": 0.25},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, model.StatusResponse{Status: "success", UserID: "u1"}, decode[model.StatusResponse](t, resp))
	}

	resp := h.get(t, "/usage")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ledger := decode[model.UsageLedger](t, resp)
	rec, ok := ledger["u1"]
	require.True(t, ok)
	assert.Equal(t, int64(6), rec.TotalCalls)
	assert.InDelta(t, 0.75, rec.TotalCost, 1e-9)
	require.NotNil(t, rec.LastActive)
	assert.True(t, rec.LastActive.Equal(time.UnixMilli(ts)))
	assert.NotEmpty(t, rec.ID)
}

func TestTrackUsage_Validation(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	requireErrorCode(t, h.post(t, "/track-usage", map[string]any{"timestamp": 1, "usage": map[string]any{"llmCall": 1}}),
		http.StatusBadRequest, model.ErrCodeMissingFields)
	requireErrorCode(t, h.post(t, "/track-usage", map[string]any{"userId": "u1", "usage": map[string]any{"llmCall": 1}}),
		http.StatusBadRequest, model.ErrCodeMissingFields)
	requireErrorCode(t, h.post(t, "/track-usage", map[string]any{"userId": "u1", "timestamp": 1}),
		http.StatusBadRequest, model.ErrCodeMissingFields)
	requireErrorCode(t, h.post(t, "/track-usage", map[string]any{"userId": "u1", "timestamp": 1, "usage": map[string]any{"llmCall": -1}}),
		http.StatusBadRequest, model.ErrCodeInvalidUsage)
}

type brokenUsage struct{}

func (brokenUsage) Record(context.Context, string, int64, int64, float64) (model.UsageRecord, error) {
	return model.UsageRecord{}, fmt.Errorf("usage: record: %w: disk full", model.ErrPersistence)
}

func (brokenUsage) Dump(context.Context) (model.UsageLedger, error) {
	return nil, errors.New("boom")
}

func TestTrackUsage_PersistenceFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{usage: brokenUsage{}})

	resp := h.post(t, "/track-usage", map[string]any{"userId": "u1", "timestamp": 1, "usage": map[string]any{"llmCall": 1}})
	requireErrorCode(t, resp, http.StatusServiceUnavailable, model.ErrCodePersistenceFailure)

	// Unclassified errors become a generic 500.
	resp = h.get(t, "/usage")
	requireErrorCode(t, resp, http.StatusInternalServerError, model.ErrCodeInternalError)
}

func TestBodyLimit(t *testing.T) {
	h := newHarness(t, harnessOpts{maxBody: 64})
	big := `{"domains":["` + strings.Repeat("a", 128) + `.com"]}`
	resp := h.post(t, "/get-category-mapping", big)
	requireErrorCode(t, resp, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp := h.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[model.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "connected", health.Storage)
	assert.Equal(t, "test", health.Version)

	down := newHarness(t, harnessOpts{storage: downPinger{}})
	resp = down.get(t, "/health")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "disconnected", decode[model.HealthResponse](t, resp).Storage)
}

func TestMiddlewareHeaders(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	resp := h.get(t, "/health")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestOpenAPISpec(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp := h.get(t, "/openapi.yaml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	resp := h.get(t, "/get-category-mapping")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMCPOverHTTP(t *testing.T) {
	h := newHarness(t, harnessOpts{withMCP: true})

	c, err := mcpclient.NewStreamableHttpClient(h.srv.URL + "/mcp")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	initResult, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "bunrui", initResult.ServerInfo.Name)

	tools, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	assert.True(t, names["bunrui_categorize"])
	assert.True(t, names["bunrui_summary_history"])
	assert.True(t, names["bunrui_usage"])

	result, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "bunrui_categorize",
			Arguments: map[string]any{"domains": []string{"github.com"}},
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	text, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, model.CategoryWork)

	// The MCP call went through the same store as HTTP.
	resp := h.post(t, "/get-category-mapping", map[string]any{"domains": []string{"github.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), h.classified.Load())
}
