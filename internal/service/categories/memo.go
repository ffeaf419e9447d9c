package categories

import (
	"sync"
	"time"
)

// memo is a short-TTL in-process cache in front of the category store.
// Stored categories never change, so the TTL only bounds memory, not
// staleness. Only successful classifications are ever set.
type memo struct {
	mu      sync.RWMutex
	entries map[string]memoEntry
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

type memoEntry struct {
	category  string
	expiresAt time.Time
}

// newMemo creates a memo with the given TTL. Call Close to stop the
// background eviction goroutine.
func newMemo(ttl time.Duration) *memo {
	m := &memo{
		entries: make(map[string]memoEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Get returns the cached category and true if a live entry exists.
func (m *memo) Get(domain string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[domain]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.category, true
}

// Set stores a category with the configured TTL.
func (m *memo) Set(domain, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[domain] = memoEntry{
		category:  category,
		expiresAt: time.Now().Add(m.ttl),
	}
}

// Close stops the eviction goroutine. Safe to call more than once.
func (m *memo) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *memo) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *memo) evictExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}
