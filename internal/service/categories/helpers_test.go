package categories

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ashita-ai/bunrui/internal/classifier"
	"github.com/ashita-ai/bunrui/internal/model"
)

var errStoreDown = errors.New("store down")

// fakeStore is an in-memory Store with call counters and failure injection.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]model.DomainCategory
	gets    int
	puts    int
	getErr  error
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]model.DomainCategory)}
}

func (s *fakeStore) GetCategory(_ context.Context, domain string) (model.DomainCategory, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return model.DomainCategory{}, false, s.getErr
	}
	rec, ok := s.records[domain]
	return rec, ok, nil
}

func (s *fakeStore) PutCategory(_ context.Context, rec model.DomainCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.records[rec.Domain] = rec
	return nil
}

func (s *fakeStore) counts() (gets, puts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts
}

func (s *fakeStore) has(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[domain]
	return ok
}

// countingClassifier answers from a fixed table and counts calls per domain.
type countingClassifier struct {
	mu      sync.Mutex
	answers map[string]string
	calls   map[string]int
	total   atomic.Int64
	fail    atomic.Bool
	// gate, when non-nil, blocks every call until closed.
	gate chan struct{}
}

func newCountingClassifier(answers map[string]string) *countingClassifier {
	return &countingClassifier{answers: answers, calls: make(map[string]int)}
}

func (c *countingClassifier) Classify(ctx context.Context, req classifier.Request) (string, error) {
	c.total.Add(1)
	c.mu.Lock()
	c.calls[req.Domain]++
	c.mu.Unlock()

	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.fail.Load() {
		return "", errors.New("quota exceeded")
	}
	if a, ok := c.answers[req.Domain]; ok {
		return a, nil
	}
	return model.CategoryOther, nil
}

func (c *countingClassifier) callsFor(domain string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[domain]
}
