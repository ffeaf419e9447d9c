// Package sqlite is a single-file embedded backend for the category, summary
// and usage stores, for local runs without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/bunrui/internal/model"
)

const timeLayout = time.RFC3339Nano

// Store implements categories.Store, summaries.Store and usage.Store on one
// SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS domain_categories (
  domain TEXT PRIMARY KEY,
  category TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS category_summaries (
  ts TEXT PRIMARY KEY,
  day TEXT NOT NULL,
  user_id TEXT NOT NULL,
  summary TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_category_summaries_day_user ON category_summaries (day, user_id);
CREATE TABLE IF NOT EXISTS usage_ledger (
  user_id TEXT PRIMARY KEY,
  id TEXT NOT NULL,
  total_calls INTEGER NOT NULL,
  total_cost REAL NOT NULL,
  last_active TEXT
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("sqlite: %s: %w: %w", op, model.ErrPersistence, err)
}

// GetCategory returns the stored category for domain, if any.
func (s *Store) GetCategory(ctx context.Context, domain string) (model.DomainCategory, bool, error) {
	var (
		rec     model.DomainCategory
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT domain, category, created_at FROM domain_categories WHERE domain = ?`, domain,
	).Scan(&rec.Domain, &rec.Category, &created)
	if err == sql.ErrNoRows {
		return model.DomainCategory{}, false, nil
	}
	if err != nil {
		return model.DomainCategory{}, false, persistenceErr("get category", err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		s.logger.Warn("sqlite: unparsable created_at", "domain", domain, "value", created)
	}
	return rec, true, nil
}

// PutCategory upserts a category record.
func (s *Store) PutCategory(ctx context.Context, rec model.DomainCategory) error {
	const stmt = `
INSERT INTO domain_categories (domain, category, created_at)
VALUES (?, ?, ?)
ON CONFLICT(domain) DO UPDATE SET category=excluded.category;
`
	if _, err := s.db.ExecContext(ctx, stmt, rec.Domain, rec.Category, rec.CreatedAt.UTC().Format(timeLayout)); err != nil {
		return persistenceErr("put category", err)
	}
	return nil
}

// PutSummary upserts a summary keyed by its timestamp string.
func (s *Store) PutSummary(ctx context.Context, rec model.SummaryRecord) error {
	body, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("sqlite: encode summary: %w", err)
	}
	const stmt = `
INSERT INTO category_summaries (ts, day, user_id, summary)
VALUES (?, ?, ?, ?)
ON CONFLICT(ts) DO UPDATE SET
  day=excluded.day,
  user_id=excluded.user_id,
  summary=excluded.summary;
`
	if _, err := s.db.ExecContext(ctx, stmt, rec.Timestamp, rec.Day, rec.UserID, string(body)); err != nil {
		return persistenceErr("put summary", err)
	}
	return nil
}

// QuerySummaries returns the summaries for day, restricted to userID when
// it is non-empty. Rows whose summary column is not valid JSON are returned
// with a nil Summary.
func (s *Store) QuerySummaries(ctx context.Context, day, userID string) ([]model.SummaryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, day, user_id, summary FROM category_summaries
		 WHERE day = ? AND (? = '' OR user_id = ?) ORDER BY ts`,
		day, userID, userID,
	)
	if err != nil {
		return nil, persistenceErr("query summaries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SummaryRecord
	for rows.Next() {
		var (
			rec  model.SummaryRecord
			body string
		)
		if err := rows.Scan(&rec.Timestamp, &rec.Day, &rec.UserID, &body); err != nil {
			return nil, persistenceErr("scan summary", err)
		}
		if err := json.Unmarshal([]byte(body), &rec.Summary); err != nil {
			rec.Summary = nil
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("query summaries", err)
	}
	return out, nil
}

// LoadLedger reads every usage row.
func (s *Store) LoadLedger(ctx context.Context) (model.UsageLedger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, id, total_calls, total_cost, last_active FROM usage_ledger`)
	if err != nil {
		return nil, persistenceErr("load ledger", err)
	}
	defer func() { _ = rows.Close() }()

	ledger := make(model.UsageLedger)
	for rows.Next() {
		var (
			userID string
			rec    model.UsageRecord
			active sql.NullString
		)
		if err := rows.Scan(&userID, &rec.ID, &rec.TotalCalls, &rec.TotalCost, &active); err != nil {
			return nil, persistenceErr("scan ledger", err)
		}
		if active.Valid {
			if t, err := time.Parse(timeLayout, active.String); err == nil {
				rec.LastActive = &t
			}
		}
		ledger[userID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("load ledger", err)
	}
	return ledger, nil
}

// SaveLedger upserts every user row in one transaction.
func (s *Store) SaveLedger(ctx context.Context, ledger model.UsageLedger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceErr("begin save ledger", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `
INSERT INTO usage_ledger (user_id, id, total_calls, total_cost, last_active)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
  total_calls=excluded.total_calls,
  total_cost=excluded.total_cost,
  last_active=excluded.last_active;
`
	for userID, rec := range ledger {
		var active any
		if rec.LastActive != nil {
			active = rec.LastActive.UTC().Format(timeLayout)
		}
		if _, err := tx.ExecContext(ctx, stmt, userID, rec.ID, rec.TotalCalls, rec.TotalCost, active); err != nil {
			return persistenceErr("save ledger", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistenceErr("commit ledger", err)
	}
	return nil
}
