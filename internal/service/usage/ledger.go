// Package usage keeps the per-user API usage ledger: cumulative call counts,
// estimated cost and last-activity time.
//
// The ledger is persisted as a whole (load, modify, save). A single mutex
// serializes that sequence so concurrent events in one process never lose an
// update. Multiple processes sharing one store are not coordinated.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/bunrui/internal/model"
)

// Store loads and saves the entire ledger. LoadLedger on an empty store
// returns an empty, non-nil ledger.
type Store interface {
	LoadLedger(ctx context.Context) (model.UsageLedger, error)
	SaveLedger(ctx context.Context, ledger model.UsageLedger) error
}

// Ledger records usage events. Safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
	newID  func() string
}

// New creates a usage Ledger.
func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// Record adds one usage event for userID and returns the updated record.
// eventTimeMillis is the client-supplied event time in Unix milliseconds and
// becomes LastActive as-is, so an out-of-order event can move it backwards.
func (l *Ledger) Record(ctx context.Context, userID string, eventTimeMillis int64, callsDelta int64, costDelta float64) (model.UsageRecord, error) {
	if userID == "" {
		return model.UsageRecord{}, fmt.Errorf("usage: record: %w: userId is required", model.ErrMissingFields)
	}
	if callsDelta < 0 || costDelta < 0 || math.IsNaN(costDelta) || math.IsInf(costDelta, 0) {
		return model.UsageRecord{}, fmt.Errorf("usage: record: %w", model.ErrInvalidUsage)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ledger, err := l.store.LoadLedger(ctx)
	if err != nil {
		return model.UsageRecord{}, fmt.Errorf("usage: load ledger: %w", asPersistence(err))
	}
	if ledger == nil {
		ledger = make(model.UsageLedger)
	}

	rec, ok := ledger[userID]
	if !ok {
		rec = model.UsageRecord{ID: l.newID()}
		l.logger.Info("usage: new user", "user_id", userID, "id", rec.ID)
	}
	rec.TotalCalls += callsDelta
	rec.TotalCost += costDelta
	active := time.UnixMilli(eventTimeMillis).UTC()
	rec.LastActive = &active
	ledger[userID] = rec

	if err := l.store.SaveLedger(ctx, ledger); err != nil {
		return model.UsageRecord{}, fmt.Errorf("usage: save ledger: %w", asPersistence(err))
	}
	return rec, nil
}

// Dump returns a snapshot of the whole ledger. It takes the same lock as
// Record, so it never observes a half-applied update from this process.
func (l *Ledger) Dump(ctx context.Context) (model.UsageLedger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ledger, err := l.store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("usage: load ledger: %w", asPersistence(err))
	}
	return ledger.Clone(), nil
}

func asPersistence(err error) error {
	if errors.Is(err, model.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrPersistence, err)
}
