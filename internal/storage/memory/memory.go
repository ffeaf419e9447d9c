// Package memory is a process-local backend for the category, summary and
// usage stores. Data is lost on restart; used for tests and local development.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/ashita-ai/bunrui/internal/model"
)

// Store implements categories.Store, summaries.Store and usage.Store.
// The zero value is not usable; call New.
type Store struct {
	mu         sync.RWMutex
	categories map[string]model.DomainCategory
	summaries  map[string]model.SummaryRecord
	ledger     model.UsageLedger
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		categories: make(map[string]model.DomainCategory),
		summaries:  make(map[string]model.SummaryRecord),
		ledger:     make(model.UsageLedger),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// GetCategory returns the stored category for domain, if any.
func (s *Store) GetCategory(_ context.Context, domain string) (model.DomainCategory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.categories[domain]
	return rec, ok, nil
}

// PutCategory upserts a category record.
func (s *Store) PutCategory(_ context.Context, rec model.DomainCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[rec.Domain] = rec
	return nil
}

// PutSummary upserts a summary keyed by its timestamp string.
func (s *Store) PutSummary(_ context.Context, rec model.SummaryRecord) error {
	rec.Summary = maps.Clone(rec.Summary)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[rec.Timestamp] = rec
	return nil
}

// QuerySummaries returns the summaries for day, restricted to userID when
// it is non-empty.
func (s *Store) QuerySummaries(_ context.Context, day, userID string) ([]model.SummaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SummaryRecord
	for _, rec := range s.summaries {
		if rec.Day != day || (userID != "" && rec.UserID != userID) {
			continue
		}
		rec.Summary = maps.Clone(rec.Summary)
		out = append(out, rec)
	}
	return out, nil
}

// LoadLedger returns a copy of the ledger.
func (s *Store) LoadLedger(context.Context) (model.UsageLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Clone(), nil
}

// SaveLedger replaces the ledger with a copy of l.
func (s *Store) SaveLedger(_ context.Context, l model.UsageLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = l.Clone()
	return nil
}
