package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-engine/internal/domain"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by PostgreSQL. Records are
// upserted so each save reflects the latest state of the lineage.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) SaveNotification(ctx context.Context, n *domain.Notification) error {
	channels := make([]string, len(n.Channels))
	for i, ch := range n.Channels {
		channels[i] = string(ch)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications
			(id, user_id, type, title, body, priority, channels, template_id,
			 scheduled_at, expires_at, retry_policy, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Priority, channels, n.TemplateID,
		n.ScheduledAt, n.ExpiresAt, n.RetryPolicy, n.Metadata, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *postgresStore) SaveHistory(ctx context.Context, r *domain.DeliveryRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_records
			(id, notification_id, user_id, channel, status, sent_at, delivered_at,
			 failed_at, next_retry_at, error_message, retry_count, attempts, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at,
			delivered_at = EXCLUDED.delivered_at,
			failed_at = EXCLUDED.failed_at,
			next_retry_at = EXCLUDED.next_retry_at,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			attempts = EXCLUDED.attempts,
			metadata = EXCLUDED.metadata`,
		r.ID, r.NotificationID, r.UserID, r.Channel, r.Status, r.SentAt, r.DeliveredAt,
		r.FailedAt, r.NextRetryAt, r.ErrorMessage, r.RetryCount, r.Attempts, r.Metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert delivery record: %w", err)
	}
	return nil
}

func (s *postgresStore) LoadHistory(ctx context.Context, notificationID string) ([]*domain.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, notification_id, user_id, channel, status, sent_at, delivered_at,
		       failed_at, next_retry_at, error_message, retry_count, attempts, metadata
		FROM delivery_records
		WHERE notification_id = $1
		ORDER BY sent_at NULLS LAST`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var records []*domain.DeliveryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *postgresStore) LoadFailed(ctx context.Context, notificationID string, hoursBack int) ([]*domain.Notification, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour)

	// The lateral picks the most recent record per notification; only
	// notifications whose latest outcome is a failure qualify for replay.
	query := `
		SELECT n.id, n.user_id, n.type, n.title, n.body, n.priority, n.channels,
		       n.template_id, n.scheduled_at, n.expires_at, n.retry_policy,
		       n.metadata, n.created_at
		FROM notifications n
		JOIN LATERAL (
			SELECT status, COALESCE(failed_at, sent_at) AS at
			FROM delivery_records
			WHERE notification_id = n.id
			ORDER BY COALESCE(failed_at, sent_at) DESC NULLS LAST
			LIMIT 1
		) last ON true
		WHERE last.status = 'failed' AND last.at >= $1`
	args := []any{cutoff}
	if notificationID != "" {
		query += " AND n.id = $2"
		args = append(args, notificationID)
	}
	query += " ORDER BY n.created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load failed notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*domain.DeliveryRecord, error) {
	var r domain.DeliveryRecord
	err := row.Scan(
		&r.ID, &r.NotificationID, &r.UserID, &r.Channel, &r.Status, &r.SentAt,
		&r.DeliveredAt, &r.FailedAt, &r.NextRetryAt, &r.ErrorMessage,
		&r.RetryCount, &r.Attempts, &r.Metadata,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery record: %w", err)
	}
	return &r, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n        domain.Notification
		channels []string
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Priority, &channels,
		&n.TemplateID, &n.ScheduledAt, &n.ExpiresAt, &n.RetryPolicy,
		&n.Metadata, &n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.Channels = make([]domain.Channel, len(channels))
	for i, ch := range channels {
		n.Channels[i] = domain.Channel(ch)
	}
	return &n, nil
}

var _ Store = (*postgresStore)(nil)
