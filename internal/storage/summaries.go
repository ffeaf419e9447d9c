package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/bunrui/internal/model"
)

// PutSummary upserts a summary keyed by its timestamp string.
func (db *DB) PutSummary(ctx context.Context, rec model.SummaryRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO category_summaries (ts, day, user_id, summary)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (ts) DO UPDATE
		 SET day = EXCLUDED.day, user_id = EXCLUDED.user_id, summary = EXCLUDED.summary`,
		rec.Timestamp, rec.Day, rec.UserID, rec.Summary,
	)
	if err != nil {
		return persistenceErr("put summary", err)
	}
	return nil
}

// QuerySummaries returns the summaries for day, restricted to userID when
// it is non-empty.
func (db *DB) QuerySummaries(ctx context.Context, day, userID string) ([]model.SummaryRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT ts, day, user_id, summary FROM category_summaries
		 WHERE day = $1 AND ($2 = '' OR user_id = $2)
		 ORDER BY ts`,
		day, userID,
	)
	if err != nil {
		return nil, persistenceErr("query summaries", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.SummaryRecord, error) {
		var r model.SummaryRecord
		err := row.Scan(&r.Timestamp, &r.Day, &r.UserID, &r.Summary)
		return r, err
	})
	if err != nil {
		return nil, persistenceErr("scan summaries", err)
	}
	return recs, nil
}
