package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// UsageRepository implements usage.Store on SQLite
type UsageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *sql.DB, logger *zap.Logger) *UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts one usage record
func (r *UsageRepository) Append(ctx context.Context, rec *entity.UsageRecord) error {
	query := `
		INSERT INTO usage_records (
			id, timestamp_ms, operation, tokens_used, estimated_cost,
			model, success, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Timestamp.UnixMilli(),
		string(rec.Operation),
		rec.TokensUsed,
		rec.EstimatedCost.String(),
		rec.Model,
		rec.Success,
		rec.ProcessingTime,
	)
	if err != nil {
		r.logger.Error("Failed to append usage record", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to append usage record: %w", err)
	}
	return nil
}

// Range returns records with from <= timestamp < to, oldest first
func (r *UsageRepository) Range(ctx context.Context, from, to time.Time) ([]entity.UsageRecord, error) {
	query := `
		SELECT id, timestamp_ms, operation, tokens_used, estimated_cost,
			model, success, processing_time_ms
		FROM usage_records
		WHERE timestamp_ms >= ? AND timestamp_ms < ?
		ORDER BY timestamp_ms ASC, rowid ASC
	`

	rows, err := r.db.QueryContext(ctx, query, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		r.logger.Error("Failed to query usage records", zap.Time("from", from), zap.Time("to", to), zap.Error(err))
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var records []entity.UsageRecord
	for rows.Next() {
		var (
			rec       entity.UsageRecord
			tsMillis  int64
			operation string
			cost      string
		)
		if err := rows.Scan(
			&rec.ID,
			&tsMillis,
			&operation,
			&rec.TokensUsed,
			&cost,
			&rec.Model,
			&rec.Success,
			&rec.ProcessingTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}

		rec.Timestamp = time.UnixMilli(tsMillis).UTC()
		rec.Operation = entity.Operation(operation)
		rec.EstimatedCost, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("usage record %s has invalid cost %q: %w", rec.ID, cost, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}
	return records, nil
}
