package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ispkit/notify/pkg/pg"
)

// PostgresStore is the production Store backed by pgx. Devices are keyed
// uniquely by token; concurrent registrations serialize through the
// upsert's conflict resolution.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a device store over the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (ps *PostgresStore) UpsertDevice(ctx context.Context, d *Device) (*Device, error) {
	const query = `
		INSERT INTO devices (
			id, device_token, user_id, device_type, device_name, device_model,
			os_version, app_version, is_active, last_active_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (device_token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			device_type = EXCLUDED.device_type,
			device_name = EXCLUDED.device_name,
			device_model = EXCLUDED.device_model,
			os_version = EXCLUDED.os_version,
			app_version = EXCLUDED.app_version,
			is_active = TRUE,
			last_active_at = EXCLUDED.last_active_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, device_token, user_id, device_type, device_name, device_model,
		          os_version, app_version, is_active, last_active_at, created_at, updated_at`

	var out Device
	err := ps.pool.QueryRow(ctx, query,
		d.ID, d.DeviceToken, d.UserID, d.DeviceType, d.DeviceName, d.DeviceModel,
		d.OSVersion, d.AppVersion, d.IsActive, d.LastActiveAt, d.CreatedAt, d.UpdatedAt,
	).Scan(
		&out.ID, &out.DeviceToken, &out.UserID, &out.DeviceType, &out.DeviceName, &out.DeviceModel,
		&out.OSVersion, &out.AppVersion, &out.IsActive, &out.LastActiveAt, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device: %w", err)
	}

	return &out, nil
}

func (ps *PostgresStore) GetDeviceByToken(ctx context.Context, token string) (*Device, error) {
	const query = `
		SELECT id, device_token, user_id, device_type, device_name, device_model,
		       os_version, app_version, is_active, last_active_at, created_at, updated_at
		FROM devices WHERE device_token = $1`

	var d Device
	err := ps.pool.QueryRow(ctx, query, token).Scan(
		&d.ID, &d.DeviceToken, &d.UserID, &d.DeviceType, &d.DeviceName, &d.DeviceModel,
		&d.OSVersion, &d.AppVersion, &d.IsActive, &d.LastActiveAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return &d, nil
}

func (ps *PostgresStore) DeactivateDevice(ctx context.Context, token string) error {
	tag, err := ps.pool.Exec(ctx,
		`UPDATE devices SET is_active = FALSE, updated_at = NOW() WHERE device_token = $1`,
		token)
	if err != nil {
		return fmt.Errorf("failed to deactivate device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (ps *PostgresStore) ListActiveDevices(ctx context.Context, userID string) ([]Device, error) {
	const query = `
		SELECT id, device_token, user_id, device_type, device_name, device_model,
		       os_version, app_version, is_active, last_active_at, created_at, updated_at
		FROM devices
		WHERE user_id = $1 AND is_active
		ORDER BY last_active_at DESC`

	rows, err := ps.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(
			&d.ID, &d.DeviceToken, &d.UserID, &d.DeviceType, &d.DeviceName, &d.DeviceModel,
			&d.OSVersion, &d.AppVersion, &d.IsActive, &d.LastActiveAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (ps *PostgresStore) DeleteInactive(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := ps.pool.Exec(ctx, `DELETE FROM devices WHERE last_active_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive devices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (ps *PostgresStore) CreateLog(ctx context.Context, l *PushDeliveryLog) error {
	const query = `
		INSERT INTO push_delivery_logs (
			id, notification_id, device_id, status,
			sent_at, delivered_at, clicked_at, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := ps.pool.Exec(ctx, query,
		l.ID, l.NotificationID, l.DeviceID, l.Status,
		l.SentAt, l.DeliveredAt, l.ClickedAt, l.ErrorMessage, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create push delivery log: %w", err)
	}
	return nil
}

func (ps *PostgresStore) UpdateLogStatus(ctx context.Context, notificationID string, deviceID uuid.UUID, status DeliveryStatus, errorMessage string) error {
	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin log update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current DeliveryStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM push_delivery_logs
		 WHERE notification_id = $1 AND device_id = $2
		 FOR UPDATE`,
		notificationID, deviceID,
	).Scan(&current)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return ErrLogNotFound
		}
		return fmt.Errorf("failed to read delivery log: %w", err)
	}

	if !advances(current, status) {
		return ErrStatusNotAdvancing
	}

	// Each stage timestamp is written only on first entry into the stage.
	var stampColumn string
	switch status {
	case StatusSent:
		stampColumn = "sent_at"
	case StatusDelivered:
		stampColumn = "delivered_at"
	case StatusClicked:
		stampColumn = "clicked_at"
	}

	query := `UPDATE push_delivery_logs SET status = $1, error_message = NULLIF($2, '')
		WHERE notification_id = $3 AND device_id = $4`
	if stampColumn != "" {
		query = fmt.Sprintf(`UPDATE push_delivery_logs
			SET status = $1, error_message = NULLIF($2, ''), %s = COALESCE(%s, NOW())
			WHERE notification_id = $3 AND device_id = $4`, stampColumn, stampColumn)
	}

	if _, err := tx.Exec(ctx, query, status, errorMessage, notificationID, deviceID); err != nil {
		return fmt.Errorf("failed to update delivery log: %w", err)
	}

	return tx.Commit(ctx)
}

func (ps *PostgresStore) ListLogs(ctx context.Context, notificationID string) ([]PushDeliveryLog, error) {
	const query = `
		SELECT id, notification_id, device_id, status,
		       sent_at, delivered_at, clicked_at, error_message, created_at
		FROM push_delivery_logs
		WHERE notification_id = $1
		ORDER BY created_at`

	rows, err := ps.pool.Query(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []PushDeliveryLog
	for rows.Next() {
		var l PushDeliveryLog
		if err := rows.Scan(
			&l.ID, &l.NotificationID, &l.DeviceID, &l.Status,
			&l.SentAt, &l.DeliveredAt, &l.ClickedAt, &l.ErrorMessage, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
