// Package rediscache puts a shared Redis tier in front of a category store.
//
// Several bunrui processes pointing at one Redis see each other's
// classifications without a database round-trip. Records never change once
// written, so entries carry no TTL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ashita-ai/bunrui/internal/model"
)

// KeyPrefix namespaces category entries.
const KeyPrefix = "bunrui:category:"

// Backing is the category store behind the tier.
type Backing interface {
	GetCategory(ctx context.Context, domain string) (model.DomainCategory, bool, error)
	PutCategory(ctx context.Context, rec model.DomainCategory) error
}

// Store reads through Redis to the backing store and writes through both.
// Redis failures are logged and fall back to the backing store; they never
// fail a lookup on their own.
type Store struct {
	client  redis.UniversalClient
	backing Backing
	logger  *slog.Logger
}

// New wraps backing with a Redis tier. The caller owns client.
func New(client redis.UniversalClient, backing Backing, logger *slog.Logger) *Store {
	return &Store{client: client, backing: backing, logger: logger}
}

// Connect parses a redis:// URL, creates a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("rediscache: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediscache: ping: %w", err)
	}
	return client, nil
}

func key(domain string) string { return KeyPrefix + domain }

// GetCategory checks Redis first, then the backing store. A backing hit is
// copied into Redis.
func (s *Store) GetCategory(ctx context.Context, domain string) (model.DomainCategory, bool, error) {
	data, err := s.client.Get(ctx, key(domain)).Bytes()
	switch {
	case err == nil:
		var rec model.DomainCategory
		if jerr := json.Unmarshal(data, &rec); jerr == nil {
			return rec, true, nil
		}
		s.logger.Warn("rediscache: dropping undecodable entry", "domain", domain)
		_ = s.client.Del(ctx, key(domain)).Err()
	case errors.Is(err, redis.Nil):
	default:
		s.logger.Warn("rediscache: get failed, using backing store", "domain", domain, "error", err)
	}

	rec, found, err := s.backing.GetCategory(ctx, domain)
	if err != nil || !found {
		return rec, found, err
	}
	s.fill(ctx, rec)
	return rec, true, nil
}

// PutCategory writes the backing store first; Redis is only filled once the
// record is durable.
func (s *Store) PutCategory(ctx context.Context, rec model.DomainCategory) error {
	if err := s.backing.PutCategory(ctx, rec); err != nil {
		return err
	}
	s.fill(ctx, rec)
	return nil
}

func (s *Store) fill(ctx context.Context, rec model.DomainCategory) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key(rec.Domain), data, 0).Err(); err != nil {
		s.logger.Warn("rediscache: set failed", "domain", rec.Domain, "error", err)
	}
}
