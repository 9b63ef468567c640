package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentMethodMpesa PaymentMethod = "mpesa"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodAdmin PaymentMethod = "admin"
)

// ParsePaymentMethod normalises raw input into a known method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PaymentMethodMpesa, PaymentMethodCard, PaymentMethodAdmin:
		return m, nil
	default:
		return "", domain.ErrInvalidPaymentMethod
	}
}

// PaymentReceipt is recorded on a subscription once it is paid.
type PaymentReceipt struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaidAt        time.Time       `json:"paid_at"`
}

// Subscription is one paid coverage window of a vendor. Renewals never move
// an existing row's dates; they create a new row linked through
// PreviousSubscriptionID.
type Subscription struct {
	ID                      string
	VendorID                string
	PackageID               string
	PackageName             string
	PackagePrice            decimal.Decimal
	Currency                string
	StartDate               time.Time
	EndDate                 time.Time
	Status                  SubscriptionStatus
	PaymentStatus           PaymentStatus
	PaymentMethod           PaymentMethod
	AutoRenew               bool
	LastRenewalNotification *time.Time
	PreviousSubscriptionID  *string
	PaymentDetails          *PaymentReceipt
	CancelledAt             *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NewPendingSubscription snapshots pkg and builds an unpaid subscription
// covering [start, pkg coverage end). now stamps the row.
func NewPendingSubscription(vendorID string, pkg *Package, start time.Time, method PaymentMethod, autoRenew bool, previousID *string, now time.Time) (*Subscription, error) {
	if vendorID == "" || pkg.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	if !pkg.IsActive {
		return nil, domain.ErrPackageUnavailable
	}
	end, err := pkg.CoverageFrom(start)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, domain.ErrInvalidArgument
	}
	now = now.UTC()
	return &Subscription{
		ID:                     uuid.NewString(),
		VendorID:               vendorID,
		PackageID:              pkg.ID,
		PackageName:            pkg.Name,
		PackagePrice:           pkg.Price,
		Currency:               pkg.Currency,
		StartDate:              start,
		EndDate:                end,
		Status:                 SubscriptionStatusPending,
		PaymentStatus:          PaymentStatusUnpaid,
		PaymentMethod:          method,
		AutoRenew:              autoRenew,
		PreviousSubscriptionID: previousID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

func (s *Subscription) IsActive() bool { return s.Status == SubscriptionStatusActive }

// IsOpen reports whether the row still represents a live or in-flight
// coverage window, i.e. it is not terminal.
func (s *Subscription) IsOpen() bool {
	switch s.Status {
	case SubscriptionStatusActive:
		return true
	case SubscriptionStatusPending:
		return s.PaymentStatus != PaymentStatusFailed
	}
	return false
}

// Activate records a successful payment on a pending, unpaid row.
func (s *Subscription) Activate(receipt PaymentReceipt, now time.Time) error {
	if s.Status != SubscriptionStatusPending || s.PaymentStatus != PaymentStatusUnpaid {
		return domain.ErrInvalidTransition
	}
	s.Status = SubscriptionStatusActive
	s.PaymentStatus = PaymentStatusPaid
	s.PaymentDetails = &receipt
	s.UpdatedAt = now
	return nil
}

// MarkPaymentFailed leaves the row pending with a failed payment. Such a row
// is terminal; the vendor retries with a new subscribe or renew call.
func (s *Subscription) MarkPaymentFailed(now time.Time) error {
	if s.Status != SubscriptionStatusPending || s.PaymentStatus != PaymentStatusUnpaid {
		return domain.ErrInvalidTransition
	}
	s.PaymentStatus = PaymentStatusFailed
	s.UpdatedAt = now
	return nil
}

// Expire moves an active subscription whose window has passed to expired.
// Calling it on an already expired row is a no-op.
func (s *Subscription) Expire(now time.Time) error {
	switch s.Status {
	case SubscriptionStatusExpired:
		return nil
	case SubscriptionStatusActive:
		if !s.EndDate.Before(now) {
			return domain.ErrInvalidTransition
		}
		s.Status = SubscriptionStatusExpired
		s.UpdatedAt = now
		return nil
	default:
		return domain.ErrInvalidTransition
	}
}

// Cancel ends an active or pending subscription at the vendor's request.
func (s *Subscription) Cancel(now time.Time) error {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusPending {
		return domain.ErrInvalidTransition
	}
	s.Status = SubscriptionStatusCancelled
	s.AutoRenew = false
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

// NeedsReminder reports whether no renewal reminder was sent within throttle.
func (s *Subscription) NeedsReminder(now time.Time, throttle time.Duration) bool {
	if s.LastRenewalNotification == nil {
		return true
	}
	return !s.LastRenewalNotification.After(now.Add(-throttle))
}

// RenewalAnchor is where a renewal of s starts: the later of now and the end
// of the current window.
func (s *Subscription) RenewalAnchor(now time.Time) time.Time {
	if s.EndDate.After(now) {
		return s.EndDate
	}
	return now
}
