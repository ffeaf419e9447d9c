package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/bunrui/internal/model"
)

// GetCategory returns the stored category for domain, if any.
func (db *DB) GetCategory(ctx context.Context, domain string) (model.DomainCategory, bool, error) {
	var rec model.DomainCategory
	err := db.pool.QueryRow(ctx,
		`SELECT domain, category, created_at FROM domain_categories WHERE domain = $1`, domain,
	).Scan(&rec.Domain, &rec.Category, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DomainCategory{}, false, nil
	}
	if err != nil {
		return model.DomainCategory{}, false, persistenceErr("get category", err)
	}
	return rec, true, nil
}

// PutCategory upserts a category record. Concurrent writers for the same
// domain both succeed; the last write wins.
func (db *DB) PutCategory(ctx context.Context, rec model.DomainCategory) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO domain_categories (domain, category, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (domain) DO UPDATE SET category = EXCLUDED.category`,
		rec.Domain, rec.Category, rec.CreatedAt,
	)
	if err != nil {
		return persistenceErr("put category", err)
	}
	return nil
}

// CountCategories returns the number of memoized domains.
func (db *DB) CountCategories(ctx context.Context) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM domain_categories`).Scan(&n); err != nil {
		return 0, persistenceErr("count categories", err)
	}
	return n, nil
}
