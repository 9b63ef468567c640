package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subscriptionColumns = `id, vendor_id, package_id, package_name, package_price, currency, start_date, end_date,
  status, payment_status, payment_method, auto_renew, last_renewal_notification, previous_subscription_id,
  payment_details, cancelled_at, created_at, updated_at`

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  status=$9, payment_status=$10, auto_renew=$12, last_renewal_notification=$13,
  payment_details=$15, cancelled_at=$16, updated_at=$18;`

	details, err := encodeReceipt(s.PaymentDetails)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, s.VendorID, s.PackageID, s.PackageName, s.PackagePrice, s.Currency, s.StartDate, s.EndDate,
		string(s.Status), string(s.PaymentStatus), string(s.PaymentMethod), s.AutoRenew, s.LastRenewalNotification,
		s.PreviousSubscriptionID, details, s.CancelledAt, s.CreatedAt, s.UpdatedAt)
	return mapErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindCurrentByVendor(ctx context.Context, tx repository.Tx, vendorID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE vendor_id=$1 AND status='active' AND end_date > NOW()
 ORDER BY start_date ASC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, vendorID)
}

func (r *subscriptionRepo) ListByVendor(ctx context.Context, tx repository.Tx, vendorID string, limit, offset int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE vendor_id=$1
 ORDER BY start_date DESC, created_at DESC
 LIMIT $2 OFFSET $3;`
	return r.queryMany(ctx, tx, q, vendorID, limit, offset)
}

func (r *subscriptionRepo) FindActiveEndedBefore(ctx context.Context, tx repository.Tx, before time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='active' AND end_date < $1
 ORDER BY end_date ASC;`
	return r.queryMany(ctx, tx, q, before)
}

func (r *subscriptionRepo) FindActiveEndingBetween(ctx context.Context, tx repository.Tx, from, to, notifiedBefore time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='active'
   AND end_date >= $1 AND end_date <= $2
   AND (last_renewal_notification IS NULL OR last_renewal_notification < $3)
 ORDER BY end_date ASC;`
	return r.queryMany(ctx, tx, q, from, to, notifiedBefore)
}

func (r *subscriptionRepo) FindAutoRenewCandidates(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions s
 WHERE s.status='active' AND s.auto_renew
   AND s.end_date >= $1 AND s.end_date <= $2
   AND NOT EXISTS (
     SELECT 1 FROM subscriptions n
      WHERE n.previous_subscription_id = s.id
        AND n.status IN ('pending','active')
        AND n.payment_status <> 'failed')
 ORDER BY s.end_date ASC;`
	return r.queryMany(ctx, tx, q, from, to)
}

func (r *subscriptionRepo) FindOpenRenewal(ctx context.Context, tx repository.Tx, prevID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE previous_subscription_id=$1
   AND status IN ('pending','active')
   AND payment_status <> 'failed'
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, prevID)
}

// MarkExpired is conditional so concurrent sweeps flip each row once.
func (r *subscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	const q = `
UPDATE subscriptions
   SET status='expired', updated_at=$2
 WHERE id=$1 AND status='active' AND end_date < $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) StampReminder(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE subscriptions SET last_renewal_notification=$2, updated_at=$2 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return s, nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var status, paymentStatus, method string
	var details []byte
	if err := row.Scan(&s.ID, &s.VendorID, &s.PackageID, &s.PackageName, &s.PackagePrice, &s.Currency,
		&s.StartDate, &s.EndDate, &status, &paymentStatus, &method, &s.AutoRenew, &s.LastRenewalNotification,
		&s.PreviousSubscriptionID, &details, &s.CancelledAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	s.PaymentStatus = model.PaymentStatus(paymentStatus)
	s.PaymentMethod = model.PaymentMethod(method)
	if len(details) > 0 {
		var rec model.PaymentReceipt
		if err := json.Unmarshal(details, &rec); err != nil {
			return nil, err
		}
		s.PaymentDetails = &rec
	}
	return s, nil
}

func encodeReceipt(rec *model.PaymentReceipt) (interface{}, error) {
	if rec == nil {
		return nil, nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
