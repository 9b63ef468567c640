package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
)

var _ repository.PaymentTransactionRepository = (*paymentTransactionRepo)(nil)

const transactionColumns = `id, user_id, type, amount, currency, status, payment_method, subscription_id,
  details, failure_reason, created_at, updated_at, completed_at`

type paymentTransactionRepo struct{ pool *pgxpool.Pool }

func NewPaymentTransactionRepo(pool *pgxpool.Pool) *paymentTransactionRepo {
	return &paymentTransactionRepo{pool: pool}
}

func (r *paymentTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	const q = `
INSERT INTO payment_transactions (` + transactionColumns + `, checkout_request_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  status=$6, details=$9, failure_reason=$10, updated_at=$12, completed_at=$13, checkout_request_id=$14;`

	args, err := transactionArgs(t)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q, args...)
	return mapErr(err)
}

func (r *paymentTransactionRepo) FindByCheckoutRequestID(ctx context.Context, tx repository.Tx, checkoutRequestID string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE checkout_request_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q, checkoutRequestID)
}

func (r *paymentTransactionRepo) FindBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.PaymentTransaction, error) {
	const q = `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE subscription_id=$1;`
	return r.queryOne(ctx, tx, q, subscriptionID)
}

// CompleteIfPending atomically resolves the row only while it is still pending.
func (r *paymentTransactionRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) (bool, error) {
	return r.resolveIfPending(ctx, tx, t)
}

func (r *paymentTransactionRepo) FailIfPending(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) (bool, error) {
	return r.resolveIfPending(ctx, tx, t)
}

func (r *paymentTransactionRepo) resolveIfPending(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) (bool, error) {
	const q = `
UPDATE payment_transactions
   SET status=$2, details=$3, failure_reason=$4, updated_at=$5, completed_at=$6
 WHERE id=$1 AND status='pending';`

	details, err := json.Marshal(t.Details)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, t.ID, string(t.Status), string(details), t.FailureReason, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentTransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + transactionColumns + `
  FROM payment_transactions
 WHERE status='pending' AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, before, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentTransactionRepo) SumCompletedSince(ctx context.Context, tx repository.Tx, since time.Time) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM payment_transactions WHERE status='completed' AND completed_at >= $1;`
	row, err := pickRow(ctx, r.pool, tx, q, since)
	if err != nil {
		return decimal.Zero, err
	}
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *paymentTransactionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.PaymentTransaction, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return t, nil
}

func transactionArgs(t *model.PaymentTransaction) ([]interface{}, error) {
	details, err := json.Marshal(t.Details)
	if err != nil {
		return nil, err
	}
	var checkout *string
	if id := t.CheckoutRequestID(); id != "" {
		checkout = &id
	}
	return []interface{}{
		t.ID, t.UserID, string(t.Type), t.Amount, t.Currency, string(t.Status), string(t.PaymentMethod),
		t.SubscriptionID, string(details), t.FailureReason, t.CreatedAt, t.UpdatedAt, t.CompletedAt, checkout,
	}, nil
}

func scanTransaction(row pgx.Row) (*model.PaymentTransaction, error) {
	t := &model.PaymentTransaction{}
	var typ, status, method string
	var details []byte
	if err := row.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.Currency, &status, &method, &t.SubscriptionID,
		&details, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.Type = model.TransactionType(typ)
	t.Status = model.TransactionStatus(status)
	t.PaymentMethod = model.PaymentMethod(method)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &t.Details); err != nil {
			return nil, err
		}
	}
	return t, nil
}
