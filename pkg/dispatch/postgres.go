package dispatch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecordStore persists delivery records in the
// delivery_records table.
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRecordStore creates a record store over the given pool.
func NewPostgresRecordStore(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

func (s *PostgresRecordStore) Append(ctx context.Context, rec DeliveryRecord) error {
	const query = `
		INSERT INTO delivery_records (
			id, event_type, priority, user_id, channel, status, reason, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.EventType, rec.Priority, rec.UserID, rec.Channel,
		rec.Status, rec.Reason, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append delivery record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) ListByUser(ctx context.Context, userID string, limit int) ([]DeliveryRecord, error) {
	const query = `
		SELECT id, event_type, priority, user_id, channel, status,
		       COALESCE(reason, ''), COALESCE(error_message, ''), created_at
		FROM delivery_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery records: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresRecordStore) ListByStatus(ctx context.Context, status RecordStatus, limit int) ([]DeliveryRecord, error) {
	const query = `
		SELECT id, event_type, priority, user_id, channel, status,
		       COALESCE(reason, ''), COALESCE(error_message, ''), created_at
		FROM delivery_records
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, status, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery records: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]DeliveryRecord, error) {
	defer rows.Close()

	var records []DeliveryRecord
	for rows.Next() {
		var rec DeliveryRecord
		if err := rows.Scan(
			&rec.ID, &rec.EventType, &rec.Priority, &rec.UserID, &rec.Channel,
			&rec.Status, &rec.Reason, &rec.Error, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
