package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
)

type TransactionType string

const (
	TransactionTypeSubscription        TransactionType = "subscription"
	TransactionTypeSubscriptionRenewal TransactionType = "subscription_renewal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// MpesaDetails holds the STK push correlation ids and the final receipt.
type MpesaDetails struct {
	PhoneNumber       string `json:"phone_number,omitempty"`
	MerchantRequestID string `json:"merchant_request_id,omitempty"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	ReceiptNumber     string `json:"receipt_number,omitempty"`
	ResultCode        *int   `json:"result_code,omitempty"`
	ResultDesc        string `json:"result_desc,omitempty"`
}

// CardDetails holds the masked card data returned by the card processor.
type CardDetails struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Last4         string `json:"last4,omitempty"`
	Brand         string `json:"brand,omitempty"`
	ExpiryMonth   int    `json:"expiry_month,omitempty"`
	ExpiryYear    int    `json:"expiry_year,omitempty"`
}

// GatewayDetails is persisted as JSONB; at most one branch is set.
type GatewayDetails struct {
	Mpesa *MpesaDetails `json:"mpesa,omitempty"`
	Card  *CardDetails  `json:"card,omitempty"`
	Admin *AdminDetails `json:"admin,omitempty"`
}

type AdminDetails struct {
	GrantedBy string `json:"granted_by"`
	Reference string `json:"reference"`
}

// PaymentTransaction funds exactly one subscription.
type PaymentTransaction struct {
	ID             string
	UserID         string
	Type           TransactionType
	Amount         decimal.Decimal
	Currency       string
	Status         TransactionStatus
	PaymentMethod  PaymentMethod
	SubscriptionID string
	Details        GatewayDetails
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// NewPendingTransaction builds the transaction that funds sub.
func NewPendingTransaction(sub *Subscription, txType TransactionType, now time.Time) (*PaymentTransaction, error) {
	if sub == nil || sub.ID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now = now.UTC()
	return &PaymentTransaction{
		ID:             uuid.NewString(),
		UserID:         sub.VendorID,
		Type:           txType,
		Amount:         sub.PackagePrice,
		Currency:       sub.Currency,
		Status:         TransactionStatusPending,
		PaymentMethod:  sub.PaymentMethod,
		SubscriptionID: sub.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (t *PaymentTransaction) IsPending() bool { return t.Status == TransactionStatusPending }

// CardReference returns the processor charge id of an approved card
// charge, if any.
func (t *PaymentTransaction) CardReference() string {
	if t.Details.Card == nil {
		return ""
	}
	return t.Details.Card.TransactionID
}

// CheckoutRequestID returns the M-Pesa correlation id, if any.
func (t *PaymentTransaction) CheckoutRequestID() string {
	if t.Details.Mpesa == nil {
		return ""
	}
	return t.Details.Mpesa.CheckoutRequestID
}

func (t *PaymentTransaction) Complete(now time.Time) error {
	if !t.IsPending() {
		return domain.ErrInvalidTransition
	}
	t.Status = TransactionStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

func (t *PaymentTransaction) Fail(reason string, now time.Time) error {
	if !t.IsPending() {
		return domain.ErrInvalidTransition
	}
	t.Status = TransactionStatusFailed
	t.FailureReason = reason
	t.UpdatedAt = now
	return nil
}

// Receipt converts a completed transaction into the subscription receipt.
func (t *PaymentTransaction) Receipt(reference string) PaymentReceipt {
	paidAt := t.UpdatedAt
	if t.CompletedAt != nil {
		paidAt = *t.CompletedAt
	}
	if reference == "" {
		reference = t.ID
	}
	return PaymentReceipt{
		TransactionID: reference,
		Amount:        t.Amount,
		Currency:      t.Currency,
		PaidAt:        paidAt,
	}
}
