// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/adapter"
	"vendor-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// maxChainDepth bounds the walk along queued renewals.
const maxChainDepth = 24

// PaymentPayload is the method-specific part of a subscribe request.
type PaymentPayload struct {
	PhoneNumber string
	CardToken   string
	// SaveCard stores CardToken on the vendor for later auto-renewals.
	SaveCard bool
}

type SubscribeRequest struct {
	Actor         model.Actor
	VendorID      string
	PackageID     string
	PaymentMethod string
	Payment       PaymentPayload
	AutoRenew     bool
	// RenewSubscriptionID, when set, renews that subscription instead of
	// starting a fresh one.
	RenewSubscriptionID string
}

type SubscriptionUseCase interface {
	// RenewOrSubscribe validates the request, creates a pending subscription
	// with its transaction and dispatches the charge. On a gateway failure
	// it returns the failed rows together with domain.ErrPaymentDeclined.
	RenewOrSubscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error)
	Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error)
	Renew(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error)

	GetCurrent(ctx context.Context, actor model.Actor, vendorID string) (*model.Subscription, error)
	ListHistory(ctx context.Context, actor model.Actor, vendorID string, limit, offset int) ([]*model.Subscription, error)
	Cancel(ctx context.Context, actor model.Actor, subscriptionID string) (*model.Subscription, error)
	SetAutoRenew(ctx context.Context, actor model.Actor, subscriptionID string, enabled bool) (*model.Subscription, error)
	// PaymentStatus lets callers poll an M-Pesa charge until its callback lands.
	PaymentStatus(ctx context.Context, actor model.Actor, subscriptionID string) (*model.Subscription, *model.PaymentTransaction, error)
}

type subscriptionUC struct {
	subs     repository.SubscriptionRepository
	txns     repository.PaymentTransactionRepository
	packages repository.PackageRepository
	vendors  repository.VendorRepository
	billing  *biller
	now      func() time.Time
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	txns repository.PaymentTransactionRepository,
	packages repository.PackageRepository,
	vendors repository.VendorRepository,
	tm repository.TransactionManager,
	mpesa adapter.MobileMoneyGateway,
	cards adapter.CardProcessor,
	clock func() time.Time,
	logger *zerolog.Logger,
) *subscriptionUC {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	l := logger.With().Str("component", "SubscriptionUseCase").Logger()
	return &subscriptionUC{
		subs:     subs,
		txns:     txns,
		packages: packages,
		vendors:  vendors,
		billing: &biller{
			subs:  subs,
			txns:  txns,
			tm:    tm,
			mpesa: mpesa,
			cards: cards,
			now:   clock,
			log:   &l,
		},
		now: clock,
		log: &l,
	}
}

func (u *subscriptionUC) RenewOrSubscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	if req.RenewSubscriptionID != "" {
		return u.Renew(ctx, req)
	}
	return u.Subscribe(ctx, req)
}

// Subscribe starts coverage now, or right after the vendor's current
// coverage when one is active. In the latter case the new row is linked as a
// renewal of the last active subscription in the chain.
func (u *subscriptionUC) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	method, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if !req.Actor.CanManage(req.VendorID) {
		return nil, domain.ErrForbidden
	}
	vendor, err := u.vendor(ctx, req.VendorID)
	if err != nil {
		return nil, err
	}
	pkg, err := u.activePackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}

	now := u.now()
	start := now
	var previousID *string
	txType := model.TransactionTypeSubscription

	current, err := u.subs.FindCurrentByVendor(ctx, repository.NoTX, vendor.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if current != nil {
		tail, err := u.chainTail(ctx, current)
		if err != nil {
			return nil, err
		}
		start = tail.RenewalAnchor(now)
		previousID = &tail.ID
		txType = model.TransactionTypeSubscriptionRenewal
	}

	return u.charge(ctx, req, vendor, chargeOrder{
		actor:      req.Actor,
		vendorID:   vendor.ID,
		pkg:        pkg,
		start:      start,
		method:     method,
		autoRenew:  req.AutoRenew,
		previousID: previousID,
		txType:     txType,
	})
}

// Renew creates a new row anchored at max(now, end of the renewed
// subscription). The package defaults to the renewed one.
func (u *subscriptionUC) Renew(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	method, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	prev, err := u.owned(ctx, req.Actor, req.RenewSubscriptionID)
	if err != nil {
		return nil, err
	}
	if prev.Status != model.SubscriptionStatusActive && prev.Status != model.SubscriptionStatusExpired {
		return nil, domain.ErrSubscriptionNotRenewable
	}
	vendor, err := u.vendor(ctx, prev.VendorID)
	if err != nil {
		return nil, err
	}
	packageID := req.PackageID
	if packageID == "" {
		packageID = prev.PackageID
	}
	pkg, err := u.activePackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	return u.charge(ctx, req, vendor, chargeOrder{
		actor:      req.Actor,
		vendorID:   vendor.ID,
		pkg:        pkg,
		start:      prev.RenewalAnchor(u.now()),
		method:     method,
		autoRenew:  req.AutoRenew || prev.AutoRenew,
		previousID: &prev.ID,
		txType:     model.TransactionTypeSubscriptionRenewal,
	})
}

// charge fills the payment details from the request, falling back to what is
// stored on the vendor, and runs the billing flow.
func (u *subscriptionUC) charge(ctx context.Context, req SubscribeRequest, vendor *model.Vendor, o chargeOrder) (*SubscribeResult, error) {
	switch o.method {
	case model.PaymentMethodMpesa:
		o.phone = req.Payment.PhoneNumber
	case model.PaymentMethodCard:
		o.cardToken = req.Payment.CardToken
		if o.cardToken == "" {
			o.cardToken = vendor.CardToken
		}
	}

	res, err := u.billing.createAndCharge(ctx, o)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotSettled) {
		return res, err
	}
	// an unsettled charge was still approved, so the card is worth keeping
	if o.method == model.PaymentMethodCard && req.Payment.SaveCard && req.Payment.CardToken != "" {
		if serr := u.vendors.SaveCardToken(ctx, repository.NoTX, vendor.ID, req.Payment.CardToken); serr != nil {
			u.log.Warn().Err(serr).Str("vendor_id", vendor.ID).Msg("failed to store card token")
		}
	}
	return res, err
}

func (u *subscriptionUC) GetCurrent(ctx context.Context, actor model.Actor, vendorID string) (*model.Subscription, error) {
	if !actor.CanManage(vendorID) {
		return nil, domain.ErrForbidden
	}
	s, err := u.subs.FindCurrentByVendor(ctx, repository.NoTX, vendorID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrSubscriptionNotFound
	}
	return s, err
}

func (u *subscriptionUC) ListHistory(ctx context.Context, actor model.Actor, vendorID string, limit, offset int) ([]*model.Subscription, error) {
	if !actor.CanManage(vendorID) {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return u.subs.ListByVendor(ctx, repository.NoTX, vendorID, limit, offset)
}

func (u *subscriptionUC) Cancel(ctx context.Context, actor model.Actor, subscriptionID string) (*model.Subscription, error) {
	s, err := u.owned(ctx, actor, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.Cancel(u.now()); err != nil {
		return nil, err
	}
	if err := u.subs.Save(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	u.log.Info().Str("subscription_id", s.ID).Str("by", actor.UserID).Msg("subscription cancelled")
	return s, nil
}

func (u *subscriptionUC) SetAutoRenew(ctx context.Context, actor model.Actor, subscriptionID string, enabled bool) (*model.Subscription, error) {
	s, err := u.owned(ctx, actor, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !s.IsOpen() {
		return nil, domain.ErrInvalidTransition
	}
	s.AutoRenew = enabled
	s.UpdatedAt = u.now()
	if err := u.subs.Save(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (u *subscriptionUC) PaymentStatus(ctx context.Context, actor model.Actor, subscriptionID string) (*model.Subscription, *model.PaymentTransaction, error) {
	s, err := u.owned(ctx, actor, subscriptionID)
	if err != nil {
		return nil, nil, err
	}
	txn, err := u.txns.FindBySubscription(ctx, repository.NoTX, s.ID)
	if err != nil {
		return nil, nil, err
	}
	return s, txn, nil
}

// owned loads a subscription the actor may manage. Foreign rows look missing.
func (u *subscriptionUC) owned(ctx context.Context, actor model.Actor, id string) (*model.Subscription, error) {
	if id == "" {
		return nil, domain.ErrSubscriptionNotFound
	}
	s, err := u.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	if !actor.CanManage(s.VendorID) {
		return nil, domain.ErrSubscriptionNotFound
	}
	return s, nil
}

func (u *subscriptionUC) vendor(ctx context.Context, id string) (*model.Vendor, error) {
	v, err := u.vendors.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrVendorNotFound
	}
	return v, err
}

func (u *subscriptionUC) activePackage(ctx context.Context, id string) (*model.Package, error) {
	if id == "" {
		return nil, domain.ErrPackageUnavailable
	}
	p, err := u.packages.FindActiveByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrPackageUnavailable
	}
	return p, err
}

// chainTail follows paid renewals from s to the last one. An unpaid open
// renewal anywhere in the chain means a charge is still in flight.
func (u *subscriptionUC) chainTail(ctx context.Context, s *model.Subscription) (*model.Subscription, error) {
	tail := s
	for i := 0; i < maxChainDepth; i++ {
		next, err := u.subs.FindOpenRenewal(ctx, repository.NoTX, tail.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return tail, nil
		}
		if err != nil {
			return nil, err
		}
		if !next.IsActive() {
			return nil, domain.ErrRenewalInProgress
		}
		tail = next
	}
	return tail, nil
}
