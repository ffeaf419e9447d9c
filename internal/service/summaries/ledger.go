// Package summaries stores per-day category-usage summaries and answers
// history queries over them.
package summaries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ashita-ai/bunrui/internal/model"
)

// Store persists summary records. PutSummary upserts by Timestamp.
// QuerySummaries returns the records of one day, restricted to userID when it
// is non-empty, in any order.
type Store interface {
	PutSummary(ctx context.Context, rec model.SummaryRecord) error
	QuerySummaries(ctx context.Context, day, userID string) ([]model.SummaryRecord, error)
}

// timestampLayouts are tried in order. Zone-less forms are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	model.DayLayout,
}

// ParseTimestamp parses a client-supplied summary timestamp.
func ParseTimestamp(ts string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidTimestamp, ts)
}

// ValidateDay checks that day is a real calendar date in YYYY-MM-DD form.
func ValidateDay(day string) error {
	if _, err := time.Parse(model.DayLayout, day); err != nil {
		return fmt.Errorf("%w: %q", model.ErrInvalidDate, day)
	}
	return nil
}

// Ledger is the summary service shared by the HTTP and MCP surfaces.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New creates a summary Ledger.
func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Submit validates and stores one summary. The record is keyed by the full
// timestamp string, so a resubmission with the same timestamp overwrites.
func (l *Ledger) Submit(ctx context.Context, timestamp, userID string, summary map[string]float64) error {
	if timestamp == "" || userID == "" || len(summary) == 0 {
		return fmt.Errorf("summaries: submit: %w: timestamp, userId and categorySummary are required", model.ErrMissingFields)
	}
	t, err := ParseTimestamp(timestamp)
	if err != nil {
		return fmt.Errorf("summaries: submit: %w", err)
	}

	rec := model.SummaryRecord{
		Timestamp: timestamp,
		Day:       t.Format(model.DayLayout),
		UserID:    userID,
		Summary:   summary,
	}
	if err := l.store.PutSummary(ctx, rec); err != nil {
		return fmt.Errorf("summaries: submit: %w", asPersistence(err))
	}
	return nil
}

// Query returns the summaries recorded for day, optionally restricted to one
// user, ordered by timestamp. Malformed stored records are skipped.
func (l *Ledger) Query(ctx context.Context, day, userID string) ([]model.SummaryRecord, error) {
	if err := ValidateDay(day); err != nil {
		return nil, fmt.Errorf("summaries: query: %w", err)
	}

	recs, err := l.store.QuerySummaries(ctx, day, userID)
	if err != nil {
		return nil, fmt.Errorf("summaries: query: %w", asPersistence(err))
	}

	type keyed struct {
		at  time.Time
		rec model.SummaryRecord
	}
	valid := make([]keyed, 0, len(recs))
	for _, rec := range recs {
		if rec.Timestamp == "" || rec.UserID == "" || rec.Summary == nil {
			l.logger.Warn("summaries: skipping incomplete record", "timestamp", rec.Timestamp, "day", day)
			continue
		}
		at, err := ParseTimestamp(rec.Timestamp)
		if err != nil {
			l.logger.Warn("summaries: skipping record with bad timestamp", "timestamp", rec.Timestamp, "day", day)
			continue
		}
		valid = append(valid, keyed{at: at, rec: rec})
	}

	sort.Slice(valid, func(i, j int) bool {
		if !valid[i].at.Equal(valid[j].at) {
			return valid[i].at.Before(valid[j].at)
		}
		return valid[i].rec.Timestamp < valid[j].rec.Timestamp
	})

	out := make([]model.SummaryRecord, len(valid))
	for i, k := range valid {
		out[i] = k.rec
	}
	return out, nil
}

func asPersistence(err error) error {
	if errors.Is(err, model.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrPersistence, err)
}
