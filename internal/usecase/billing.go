package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/adapter"
	"vendor-billing/internal/domain/ports/repository"
)

// GatewayResponse carries the raw provider answer back to the caller. At most
// one field is set.
type GatewayResponse struct {
	MobileMoney    *adapter.MobileMoneyResult `json:"mobile_money,omitempty"`
	Card           *adapter.CardChargeResult  `json:"card,omitempty"`
	AdminReference string                     `json:"admin_reference,omitempty"`
}

// SubscribeResult is what a subscribe or renew attempt produced. It is also
// returned alongside ErrPaymentDeclined so callers can show the failed rows.
type SubscribeResult struct {
	Subscription *model.Subscription
	Transaction  *model.PaymentTransaction
	Gateway      GatewayResponse
	// Pending is true while an M-Pesa charge awaits its callback.
	Pending bool
}

// chargeOrder describes one subscription row to create and fund.
type chargeOrder struct {
	actor      model.Actor
	vendorID   string
	pkg        *model.Package
	start      time.Time
	method     model.PaymentMethod
	autoRenew  bool
	previousID *string
	txType     model.TransactionType
	phone      string
	cardToken  string
}

// biller creates subscription and transaction rows and dispatches the charge.
// It is shared by the on-demand path and the auto-renewal sweep.
type biller struct {
	subs  repository.SubscriptionRepository
	txns  repository.PaymentTransactionRepository
	tm    repository.TransactionManager
	mpesa adapter.MobileMoneyGateway
	cards adapter.CardProcessor
	now   func() time.Time
	log   *zerolog.Logger
}

// validate checks every method-specific requirement. Nothing is written
// before it passes.
func (b *biller) validate(o chargeOrder) error {
	if o.pkg.IsZero() || !o.pkg.IsActive {
		return domain.ErrPackageUnavailable
	}
	switch o.method {
	case model.PaymentMethodMpesa:
		if o.phone == "" {
			return domain.ErrMissingPhoneNumber
		}
	case model.PaymentMethodCard:
		if o.cardToken == "" {
			return domain.ErrMissingCardToken
		}
	case model.PaymentMethodAdmin:
		if !o.actor.IsAdmin() {
			return domain.ErrUnauthorizedAdminAction
		}
	default:
		return domain.ErrInvalidPaymentMethod
	}
	return nil
}

func (b *biller) createAndCharge(ctx context.Context, o chargeOrder) (*SubscribeResult, error) {
	if err := b.validate(o); err != nil {
		return nil, err
	}

	if o.previousID != nil {
		open, err := b.subs.FindOpenRenewal(ctx, repository.NoTX, *o.previousID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if open != nil {
			return nil, domain.ErrRenewalInProgress
		}
	}

	now := b.now()
	sub, err := model.NewPendingSubscription(o.vendorID, o.pkg, o.start, o.method, o.autoRenew, o.previousID, now)
	if err != nil {
		return nil, err
	}
	txn, err := model.NewPendingTransaction(sub, o.txType, now)
	if err != nil {
		return nil, err
	}
	if o.method == model.PaymentMethodMpesa {
		txn.Details.Mpesa = &model.MpesaDetails{PhoneNumber: o.phone}
	}

	err = b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := b.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		return b.txns.Save(ctx, tx, txn)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) && o.previousID != nil {
			return nil, domain.ErrRenewalInProgress
		}
		return nil, fmt.Errorf("create subscription rows: %w", err)
	}

	res := &SubscribeResult{Subscription: sub, Transaction: txn}
	log := b.log.With().
		Str("subscription_id", sub.ID).
		Str("transaction_id", txn.ID).
		Str("vendor_id", sub.VendorID).
		Str("method", string(o.method)).
		Logger()

	switch o.method {
	case model.PaymentMethodAdmin:
		ref := "ADMIN-" + ulid.Make().String()
		txn.Details.Admin = &model.AdminDetails{GrantedBy: o.actor.UserID, Reference: ref}
		res.Gateway.AdminReference = ref
		if err := b.settle(ctx, sub, txn, ref); err != nil {
			return nil, err
		}
		log.Info().Msg("subscription granted by admin")
		return res, nil

	case model.PaymentMethodCard:
		charge, err := b.cards.ProcessCardCharge(ctx, adapter.CardChargeRequest{
			CardToken:      o.cardToken,
			Amount:         txn.Amount,
			Currency:       txn.Currency,
			Description:    chargeDescription(sub),
			CustomerID:     sub.VendorID,
			IdempotencyKey: txn.ID,
		})
		if err != nil || !charge.Approved {
			reason := charge.DeclineReason
			if err != nil {
				reason = err.Error()
				log.Error().Err(err).Msg("card charge failed")
			} else {
				log.Warn().Str("reason", reason).Msg("card charge declined")
				res.Gateway.Card = &charge
			}
			if ferr := b.fail(ctx, sub, txn, reason); ferr != nil {
				return nil, ferr
			}
			return res, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, reason)
		}
		res.Gateway.Card = &charge
		txn.Details.Card = &model.CardDetails{
			TransactionID: charge.TransactionID,
			Last4:         charge.Last4,
			Brand:         charge.Brand,
			ExpiryMonth:   charge.ExpiryMonth,
			ExpiryYear:    charge.ExpiryYear,
		}
		log = log.With().Str("processor_txn", charge.TransactionID).Logger()
		log.Info().Msg("card charge approved")

		// The processor reference is stored on the pending row first so
		// ReconcilePending can settle the charge if settle fails below.
		txn.UpdatedAt = b.now()
		if err := b.txns.Save(ctx, repository.NoTX, txn); err != nil {
			log.Error().Err(err).Msg("store card charge reference")
		}
		if err := b.settle(ctx, sub, txn, charge.TransactionID); err != nil {
			log.Error().Err(err).Msg("approved card charge not settled")
			return res, fmt.Errorf("%w: charge %s: %v", domain.ErrPaymentNotSettled, charge.TransactionID, err)
		}
		return res, nil

	case model.PaymentMethodMpesa:
		push, err := b.mpesa.InitiateMobileMoneyPayment(ctx, adapter.MobileMoneyRequest{
			PhoneNumber:   o.phone,
			Amount:        txn.Amount,
			TransactionID: txn.ID,
			Description:   chargeDescription(sub),
		})
		if err != nil {
			log.Error().Err(err).Msg("mpesa push failed")
			if ferr := b.fail(ctx, sub, txn, err.Error()); ferr != nil {
				return nil, ferr
			}
			return res, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, err.Error())
		}
		res.Gateway.MobileMoney = &push
		res.Pending = true
		txn.Details.Mpesa.MerchantRequestID = push.MerchantRequestID
		txn.Details.Mpesa.CheckoutRequestID = push.CheckoutRequestID
		txn.UpdatedAt = b.now()
		if err := b.txns.Save(ctx, repository.NoTX, txn); err != nil {
			return nil, fmt.Errorf("store mpesa request ids: %w", err)
		}
		log.Info().Str("checkout_request_id", push.CheckoutRequestID).Msg("mpesa push sent")
		return res, nil
	}
	return nil, domain.ErrInvalidPaymentMethod
}

// settle activates sub and completes txn in one database transaction. On
// error sub and txn keep their pending state.
func (b *biller) settle(ctx context.Context, sub *model.Subscription, txn *model.PaymentTransaction, reference string) error {
	now := b.now()
	s, t := *sub, *txn
	if err := t.Complete(now); err != nil {
		return err
	}
	if err := s.Activate(t.Receipt(reference), now); err != nil {
		return err
	}
	err := b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := b.txns.Save(ctx, tx, &t); err != nil {
			return err
		}
		return b.subs.Save(ctx, tx, &s)
	})
	if err != nil {
		return err
	}
	*sub, *txn = s, t
	return nil
}

// fail marks both rows failed. The subscription stays pending.
func (b *biller) fail(ctx context.Context, sub *model.Subscription, txn *model.PaymentTransaction, reason string) error {
	now := b.now()
	if err := txn.Fail(reason, now); err != nil {
		return err
	}
	if err := sub.MarkPaymentFailed(now); err != nil {
		return err
	}
	return b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := b.txns.Save(ctx, tx, txn); err != nil {
			return err
		}
		return b.subs.Save(ctx, tx, sub)
	})
}

func chargeDescription(s *model.Subscription) string {
	if s.PreviousSubscriptionID != nil {
		return "Renewal: " + s.PackageName
	}
	return "Subscription: " + s.PackageName
}
