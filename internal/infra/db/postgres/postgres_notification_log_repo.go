package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, subscriptionID, vendorID string, kind repository.NotificationKind, sentAt time.Time) error {
	const q = `
INSERT INTO subscription_notifications (id, subscription_id, vendor_id, kind, sent_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), subscriptionID, vendorID, string(kind), sentAt)
	return mapErr(err)
}

func (r *notificationLogRepo) CountSince(ctx context.Context, tx repository.Tx, kind repository.NotificationKind, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM subscription_notifications WHERE kind = $1 AND sent_at >= $2`
	row, err := pickRow(ctx, r.pool, tx, q, string(kind), since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
