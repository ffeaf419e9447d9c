package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/bunrui/internal/model"
)

// CategoryStore mirrors categories.Store.
type CategoryStore interface {
	GetCategory(ctx context.Context, domain string) (model.DomainCategory, bool, error)
	PutCategory(ctx context.Context, rec model.DomainCategory) error
}

// SummaryStore mirrors summaries.Store.
type SummaryStore interface {
	PutSummary(ctx context.Context, rec model.SummaryRecord) error
	QuerySummaries(ctx context.Context, day, userID string) ([]model.SummaryRecord, error)
}

// LedgerStore mirrors usage.Store.
type LedgerStore interface {
	LoadLedger(ctx context.Context) (model.UsageLedger, error)
	SaveLedger(ctx context.Context, ledger model.UsageLedger) error
}

// uniq returns a name unlikely to collide with rows left by other tests
// sharing the same database.
func uniq(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// RunCategoryStoreTests exercises the behavior every category backend must share.
func RunCategoryStoreTests(t *testing.T, s CategoryStore) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		_, ok, err := s.GetCategory(ctx, uniq("missing")+".com")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		domain := uniq("github") + ".com"
		created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		require.NoError(t, s.PutCategory(ctx, model.DomainCategory{
			Domain: domain, Category: model.CategoryWork, CreatedAt: created,
		}))

		got, ok, err := s.GetCategory(ctx, domain)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain, got.Domain)
		assert.Equal(t, model.CategoryWork, got.Category)
		assert.True(t, created.Equal(got.CreatedAt), "created_at round-trip: %v", got.CreatedAt)
	})

	t.Run("verbatim label", func(t *testing.T) {
		domain := uniq("odd") + ".com"
		require.NoError(t, s.PutCategory(ctx, model.DomainCategory{Domain: domain, Category: "Gaming", CreatedAt: time.Now().UTC()}))
		got, ok, err := s.GetCategory(ctx, domain)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Gaming", got.Category)
	})

	t.Run("concurrent writers tolerated", func(t *testing.T) {
		domain := uniq("race") + ".com"
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.PutCategory(ctx, model.DomainCategory{
					Domain: domain, Category: model.CategoryNews, CreatedAt: time.Now().UTC(),
				}))
			}()
		}
		wg.Wait()
		got, ok, err := s.GetCategory(ctx, domain)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, model.CategoryNews, got.Category)
	})
}

// RunSummaryStoreTests exercises the behavior every summary backend must share.
func RunSummaryStoreTests(t *testing.T, s SummaryStore) {
	ctx := context.Background()
	day := "2024-03-01"
	user := uniq("user")
	other := uniq("user")

	put := func(ts, userID string, v float64) {
		t.Helper()
		require.NoError(t, s.PutSummary(ctx, model.SummaryRecord{
			Timestamp: ts, Day: day, UserID: userID, Summary: map[string]float64{"News": v},
		}))
	}
	tsA := day + "T09:00:00." + uniq("a")[2:] // distinct key per run
	tsB := day + "T10:00:00." + uniq("b")[2:]
	put(tsA, user, 1)
	put(tsB, other, 2)

	t.Run("by day and user", func(t *testing.T) {
		got, err := s.QuerySummaries(ctx, day, user)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, tsA, got[0].Timestamp)
		assert.Equal(t, day, got[0].Day)
		assert.Equal(t, user, got[0].UserID)
		assert.Equal(t, map[string]float64{"News": 1}, got[0].Summary)
	})

	t.Run("by day only", func(t *testing.T) {
		got, err := s.QuerySummaries(ctx, day, "")
		require.NoError(t, err)
		keys := make(map[string]bool, len(got))
		for _, r := range got {
			keys[r.Timestamp] = true
			assert.Equal(t, day, r.Day)
		}
		assert.True(t, keys[tsA])
		assert.True(t, keys[tsB])
	})

	t.Run("other day excluded", func(t *testing.T) {
		got, err := s.QuerySummaries(ctx, "1999-01-01", user)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("same key overwrites", func(t *testing.T) {
		put(tsA, user, 7)
		got, err := s.QuerySummaries(ctx, day, user)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, float64(7), got[0].Summary["News"])
	})
}

// RunLedgerStoreTests exercises the behavior every usage backend must share.
// The store must start empty.
func RunLedgerStoreTests(t *testing.T, s LedgerStore) {
	ctx := context.Background()

	empty, err := s.LoadLedger(ctx)
	require.NoError(t, err)
	require.NotNil(t, empty)
	assert.Empty(t, empty)

	active := time.UnixMilli(1_700_000_000_123).UTC()
	ledger := model.UsageLedger{
		"u1": {TotalCalls: 3, TotalCost: 0.75, LastActive: &active, ID: uuid.NewString()},
		"u2": {TotalCalls: 1, TotalCost: 0, ID: uuid.NewString()},
	}
	require.NoError(t, s.SaveLedger(ctx, ledger))

	got, err := s.LoadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ledger["u1"].ID, got["u1"].ID)
	assert.Equal(t, int64(3), got["u1"].TotalCalls)
	assert.InDelta(t, 0.75, got["u1"].TotalCost, 1e-12)
	require.NotNil(t, got["u1"].LastActive)
	assert.True(t, active.Equal(*got["u1"].LastActive))
	assert.Nil(t, got["u2"].LastActive)

	rec := got["u1"]
	rec.TotalCalls = 4
	got["u1"] = rec
	require.NoError(t, s.SaveLedger(ctx, got))

	again, err := s.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), again["u1"].TotalCalls)
	assert.Equal(t, ledger["u2"].ID, again["u2"].ID)
}
