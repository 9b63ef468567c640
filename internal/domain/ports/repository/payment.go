package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain/model"
)

// PaymentTransactionRepository is the port for subscription payment rows.
type PaymentTransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.PaymentTransaction) error
	FindByCheckoutRequestID(ctx context.Context, tx Tx, checkoutRequestID string) (*model.PaymentTransaction, error)
	FindBySubscription(ctx context.Context, tx Tx, subscriptionID string) (*model.PaymentTransaction, error)

	// CompleteIfPending and FailIfPending persist t only when the stored row is
	// still pending. ok is false on redelivery of an already resolved payment.
	CompleteIfPending(ctx context.Context, tx Tx, t *model.PaymentTransaction) (ok bool, err error)
	FailIfPending(ctx context.Context, tx Tx, t *model.PaymentTransaction) (ok bool, err error)

	// ListPendingOlderThan returns pending rows created before the given time,
	// oldest first.
	ListPendingOlderThan(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.PaymentTransaction, error)

	// SumCompletedSince totals completed amounts since t.
	SumCompletedSince(ctx context.Context, tx Tx, since time.Time) (decimal.Decimal, error)
}
