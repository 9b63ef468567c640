// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/adapter"
	"vendor-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// MpesaCallback is the decoded result of an STK push.
type MpesaCallback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            decimal.Decimal
	ReceiptNumber     string
	PhoneNumber       string
	TransactionDate   time.Time
}

func (c MpesaCallback) Succeeded() bool { return c.ResultCode == 0 }

type PaymentUseCase interface {
	// HandleMpesaCallback applies a provider callback to the pending
	// transaction and its subscription. Redelivery of a resolved callback
	// returns the stored transaction unchanged.
	HandleMpesaCallback(ctx context.Context, cb MpesaCallback) (*model.PaymentTransaction, error)
	// ReconcilePending queries the provider for stale pending M-Pesa
	// payments and fails anything older than the hard cutoff.
	ReconcilePending(ctx context.Context) (SweepReport, error)
}

type ReconcileConfig struct {
	QueryAfter time.Duration
	FailAfter  time.Duration
	BatchSize  int
}

func (c ReconcileConfig) withDefaults() ReconcileConfig {
	if c.QueryAfter <= 0 {
		c.QueryAfter = 5 * time.Minute
	}
	if c.FailAfter <= 0 {
		c.FailAfter = 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

type paymentUC struct {
	cfg   ReconcileConfig
	txns  repository.PaymentTransactionRepository
	subs  repository.SubscriptionRepository
	tm    repository.TransactionManager
	mpesa adapter.MobileMoneyGateway
	now   func() time.Time
	log   *zerolog.Logger
}

func NewPaymentUseCase(
	cfg ReconcileConfig,
	txns repository.PaymentTransactionRepository,
	subs repository.SubscriptionRepository,
	tm repository.TransactionManager,
	mpesa adapter.MobileMoneyGateway,
	clock func() time.Time,
	logger *zerolog.Logger,
) *paymentUC {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	l := logger.With().Str("component", "PaymentUseCase").Logger()
	return &paymentUC{cfg: cfg.withDefaults(), txns: txns, subs: subs, tm: tm, mpesa: mpesa, now: clock, log: &l}
}

func (u *paymentUC) HandleMpesaCallback(ctx context.Context, cb MpesaCallback) (*model.PaymentTransaction, error) {
	if cb.CheckoutRequestID == "" {
		return nil, domain.ErrInvalidArgument
	}
	txn, err := u.txns.FindByCheckoutRequestID(ctx, repository.NoTX, cb.CheckoutRequestID)
	if err != nil {
		return nil, err
	}
	log := u.log.With().Str("transaction_id", txn.ID).Str("checkout_request_id", cb.CheckoutRequestID).Logger()
	if !txn.IsPending() {
		log.Info().Str("status", string(txn.Status)).Msg("callback for resolved transaction ignored")
		return txn, nil
	}

	code := cb.ResultCode
	txn.Details.Mpesa.ResultCode = &code
	txn.Details.Mpesa.ResultDesc = cb.ResultDesc

	if !cb.Succeeded() {
		return txn, u.applyFailure(ctx, &log, txn, cb.ResultDesc)
	}
	if !cb.Amount.IsZero() && cb.Amount.LessThan(txn.Amount) {
		reason := fmt.Sprintf("amount mismatch: paid %s, expected %s", cb.Amount.String(), txn.Amount.String())
		return txn, u.applyFailure(ctx, &log, txn, reason)
	}
	txn.Details.Mpesa.ReceiptNumber = cb.ReceiptNumber
	if cb.PhoneNumber != "" {
		txn.Details.Mpesa.PhoneNumber = cb.PhoneNumber
	}
	return txn, u.applySuccess(ctx, &log, txn, cb.ReceiptNumber)
}

func (u *paymentUC) ReconcilePending(ctx context.Context) (SweepReport, error) {
	now := u.now()
	rep := SweepReport{Job: JobReconcile, StartedAt: now}

	pending, err := u.txns.ListPendingOlderThan(ctx, repository.NoTX, now.Add(-u.cfg.QueryAfter), u.cfg.BatchSize)
	if err != nil {
		rep.FinishedAt = u.now()
		return rep, err
	}
	rep.Scanned = len(pending)

	for _, txn := range pending {
		if ctx.Err() != nil {
			break
		}
		log := u.log.With().Str("job", JobReconcile).Str("transaction_id", txn.ID).Logger()
		stale := txn.CreatedAt.Before(now.Add(-u.cfg.FailAfter))

		if txn.PaymentMethod != model.PaymentMethodMpesa {
			ref := txn.CardReference()
			if ref == "" {
				// no proof either way; an operator has to look at the processor
				if stale {
					log.Warn().Str("method", string(txn.PaymentMethod)).Msg("pending payment needs manual review")
				}
				rep.Skipped++
				continue
			}
			if err := u.applySuccess(ctx, &log, txn, ref); err != nil {
				rep.Failed++
				continue
			}
			rep.Succeeded++
			continue
		}

		checkout := txn.CheckoutRequestID()

		if checkout == "" || u.mpesa == nil {
			if !stale {
				rep.Skipped++
				continue
			}
			if err := u.applyFailure(ctx, &log, txn, "payment timed out"); err != nil {
				rep.Failed++
				continue
			}
			rep.Succeeded++
			continue
		}

		st, err := u.mpesa.QueryMobileMoneyPayment(ctx, checkout)
		if err != nil {
			log.Warn().Err(err).Msg("status query failed")
			rep.Failed++
			continue
		}
		code := st.ResultCode
		txn.Details.Mpesa.ResultCode = &code
		txn.Details.Mpesa.ResultDesc = st.ResultDesc

		switch {
		case st.Outcome == adapter.MobileMoneySucceeded:
			err = u.applySuccess(ctx, &log, txn, checkout)
		case st.Outcome == adapter.MobileMoneyFailed:
			err = u.applyFailure(ctx, &log, txn, st.ResultDesc)
		case stale:
			err = u.applyFailure(ctx, &log, txn, "payment timed out")
		default:
			rep.Skipped++
			continue
		}
		if err != nil {
			rep.Failed++
			continue
		}
		rep.Succeeded++
	}

	rep.FinishedAt = u.now()
	return rep, nil
}

// applySuccess completes txn and activates its subscription atomically. A
// subscription cancelled while the charge was in flight keeps its status;
// the payment is still recorded as completed.
func (u *paymentUC) applySuccess(ctx context.Context, log *zerolog.Logger, txn *model.PaymentTransaction, reference string) error {
	now := u.now()
	if err := txn.Complete(now); err != nil {
		return err
	}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.txns.CompleteIfPending(ctx, tx, txn)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyResolved
		}
		sub, err := u.subs.FindByID(ctx, tx, txn.SubscriptionID)
		if err != nil {
			return err
		}
		if err := sub.Activate(txn.Receipt(reference), now); err != nil {
			log.Warn().Err(err).Str("subscription_id", sub.ID).Str("status", string(sub.Status)).Msg("paid subscription not activatable")
			return nil
		}
		return u.subs.Save(ctx, tx, sub)
	})
	if errors.Is(err, errAlreadyResolved) {
		log.Info().Msg("transaction resolved concurrently")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to apply payment success")
		return err
	}
	log.Info().Str("reference", reference).Msg("payment completed")
	return nil
}

func (u *paymentUC) applyFailure(ctx context.Context, log *zerolog.Logger, txn *model.PaymentTransaction, reason string) error {
	now := u.now()
	if err := txn.Fail(reason, now); err != nil {
		return err
	}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.txns.FailIfPending(ctx, tx, txn)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyResolved
		}
		sub, err := u.subs.FindByID(ctx, tx, txn.SubscriptionID)
		if err != nil {
			return err
		}
		if err := sub.MarkPaymentFailed(now); err != nil {
			log.Warn().Err(err).Str("subscription_id", sub.ID).Str("status", string(sub.Status)).Msg("failed payment not applicable to subscription")
			return nil
		}
		return u.subs.Save(ctx, tx, sub)
	})
	if errors.Is(err, errAlreadyResolved) {
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to apply payment failure")
		return err
	}
	log.Info().Str("reason", reason).Msg("payment failed")
	return nil
}

var errAlreadyResolved = errors.New("transaction already resolved")
