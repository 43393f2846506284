package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ispkit/notify/pkg/pg"
)

// PostgresStore is the production SettingsStore backed by pgx. The upsert
// is scoped to one user row, so concurrent updates for different users
// never contend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a settings store over the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (ps *PostgresStore) GetSettings(ctx context.Context, userID string) (*UserNotificationSettings, error) {
	const query = `
		SELECT user_id, web, mobile_push, email, sms,
		       quiet_hours_enabled, quiet_hours_start, quiet_hours_end, quiet_hours_timezone,
		       dnd_enabled, dnd_until,
		       show_low_priority, show_normal_priority, show_high_priority, show_urgent_priority,
		       type_settings, batch_notifications, batch_interval,
		       auto_archive_after_days, auto_delete_after_days,
		       created_at, updated_at
		FROM user_notification_settings
		WHERE user_id = $1`

	var s UserNotificationSettings
	var typeSettings []byte

	err := ps.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.Web, &s.MobilePush, &s.Email, &s.SMS,
		&s.QuietHoursEnabled, &s.QuietHoursStart, &s.QuietHoursEnd, &s.QuietHoursTimezone,
		&s.DNDEnabled, &s.DNDUntil,
		&s.ShowLowPriority, &s.ShowNormalPriority, &s.ShowHighPriority, &s.ShowUrgentPriority,
		&typeSettings, &s.BatchNotifications, &s.BatchInterval,
		&s.AutoArchiveAfterDays, &s.AutoDeleteAfterDays,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	if len(typeSettings) > 0 {
		if err := json.Unmarshal(typeSettings, &s.TypeSettings); err != nil {
			return nil, fmt.Errorf("failed to decode type settings: %w", err)
		}
	}

	return &s, nil
}

func (ps *PostgresStore) UpsertSettings(ctx context.Context, s *UserNotificationSettings) error {
	const query = `
		INSERT INTO user_notification_settings (
			user_id, web, mobile_push, email, sms,
			quiet_hours_enabled, quiet_hours_start, quiet_hours_end, quiet_hours_timezone,
			dnd_enabled, dnd_until,
			show_low_priority, show_normal_priority, show_high_priority, show_urgent_priority,
			type_settings, batch_notifications, batch_interval,
			auto_archive_after_days, auto_delete_after_days,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		          $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (user_id) DO UPDATE SET
			web = EXCLUDED.web,
			mobile_push = EXCLUDED.mobile_push,
			email = EXCLUDED.email,
			sms = EXCLUDED.sms,
			quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			quiet_hours_timezone = EXCLUDED.quiet_hours_timezone,
			dnd_enabled = EXCLUDED.dnd_enabled,
			dnd_until = EXCLUDED.dnd_until,
			show_low_priority = EXCLUDED.show_low_priority,
			show_normal_priority = EXCLUDED.show_normal_priority,
			show_high_priority = EXCLUDED.show_high_priority,
			show_urgent_priority = EXCLUDED.show_urgent_priority,
			type_settings = EXCLUDED.type_settings,
			batch_notifications = EXCLUDED.batch_notifications,
			batch_interval = EXCLUDED.batch_interval,
			auto_archive_after_days = EXCLUDED.auto_archive_after_days,
			auto_delete_after_days = EXCLUDED.auto_delete_after_days,
			updated_at = EXCLUDED.updated_at`

	typeSettings, err := json.Marshal(s.TypeSettings)
	if err != nil {
		return fmt.Errorf("failed to encode type settings: %w", err)
	}

	_, err = ps.pool.Exec(ctx, query,
		s.UserID, s.Web, s.MobilePush, s.Email, s.SMS,
		s.QuietHoursEnabled, s.QuietHoursStart, s.QuietHoursEnd, s.QuietHoursTimezone,
		s.DNDEnabled, s.DNDUntil,
		s.ShowLowPriority, s.ShowNormalPriority, s.ShowHighPriority, s.ShowUrgentPriority,
		typeSettings, s.BatchNotifications, s.BatchInterval,
		s.AutoArchiveAfterDays, s.AutoDeleteAfterDays,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}

	return nil
}

func (ps *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := ps.pool.Query(ctx, `SELECT user_id FROM user_notification_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
