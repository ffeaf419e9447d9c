package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/bunrui/internal/model"
)

// LoadLedger reads every usage row into a ledger.
func (db *DB) LoadLedger(ctx context.Context) (model.UsageLedger, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT user_id, id::text, total_calls, total_cost, last_active FROM usage_ledger`)
	if err != nil {
		return nil, persistenceErr("load ledger", err)
	}
	defer rows.Close()

	ledger := make(model.UsageLedger)
	for rows.Next() {
		var (
			userID string
			rec    model.UsageRecord
		)
		if err := rows.Scan(&userID, &rec.ID, &rec.TotalCalls, &rec.TotalCost, &rec.LastActive); err != nil {
			return nil, persistenceErr("scan ledger", err)
		}
		if rec.LastActive != nil {
			t := rec.LastActive.UTC()
			rec.LastActive = &t
		}
		ledger[userID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("load ledger", err)
	}
	return ledger, nil
}

// SaveLedger upserts every user row in one transaction. Users are never
// removed, so rows absent from ledger are left untouched.
func (db *DB) SaveLedger(ctx context.Context, ledger model.UsageLedger) error {
	err := WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for userID, rec := range ledger {
				batch.Queue(
					`INSERT INTO usage_ledger (user_id, id, total_calls, total_cost, last_active)
					 VALUES ($1, $2::uuid, $3, $4, $5)
					 ON CONFLICT (user_id) DO UPDATE
					 SET total_calls = EXCLUDED.total_calls,
					     total_cost = EXCLUDED.total_cost,
					     last_active = EXCLUDED.last_active`,
					userID, rec.ID, rec.TotalCalls, rec.TotalCost, rec.LastActive,
				)
			}
			return tx.SendBatch(ctx, batch).Close()
		})
	})
	if err != nil {
		return persistenceErr("save ledger", err)
	}
	return nil
}
