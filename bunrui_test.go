package bunrui_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/bunrui"
	"github.com/ashita-ai/bunrui/internal/testutil"
)

type stubClassifier struct {
	answer string
	err    error
}

func (s stubClassifier) Classify(context.Context, string, []string) (string, error) {
	return s.answer, s.err
}

func newApp(t *testing.T, opts ...bunrui.Option) *bunrui.App {
	t.Helper()
	t.Setenv("BUNRUI_RATE_LIMIT_ENABLED", "false")
	t.Setenv("REDIS_URL", "")
	t.Setenv("BUNRUI_USAGE_STORE", "")
	base := []bunrui.Option{bunrui.WithLogger(testutil.TestLogger()), bunrui.WithVersion("test")}
	app, err := bunrui.New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })
	return app
}

func TestApp_MemoryStorageWithExternalClassifier(t *testing.T) {
	app := newApp(t,
		bunrui.WithStorage("memory"),
		bunrui.WithClassifier(stubClassifier{answer: "news"}),
	)

	got := app.Categorize(context.Background(), []string{"bbc.co.uk"})
	assert.Equal(t, map[string]string{"bbc.co.uk": "News"}, got)
}

func TestApp_ClassifierFailureDegrades(t *testing.T) {
	app := newApp(t,
		bunrui.WithStorage("memory"),
		bunrui.WithClassifier(stubClassifier{err: errors.New("down")}),
	)
	got := app.Categorize(context.Background(), []string{"example.com"})
	assert.Equal(t, "Uncategorized", got["example.com"])
}

func TestApp_SQLiteServesHTTP(t *testing.T) {
	app := newApp(t,
		bunrui.WithStorage("sqlite"),
		bunrui.WithSQLitePath(filepath.Join(t.TempDir(), "bunrui.db")),
		bunrui.WithClassifier(stubClassifier{answer: "Shopping"}),
	)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	body, _ := json.Marshal(map[string]any{"userId": "u1", "timestamp": 1740830400000, "usage": map[string]any{"llmCall": 1, "cost": 0.01}})
	resp, err := http.Post(srv.URL+"/track-usage", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ledger, err := app.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ledger["u1"].TotalCalls)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_InvalidConfig(t *testing.T) {
	_, err := bunrui.New(context.Background(),
		bunrui.WithLogger(testutil.TestLogger()),
		bunrui.WithStorage("cassandra"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUNRUI_STORAGE")
}
