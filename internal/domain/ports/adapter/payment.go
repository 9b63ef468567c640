package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MobileMoneyRequest asks the provider to push a payment prompt to a phone.
type MobileMoneyRequest struct {
	PhoneNumber   string
	Amount        decimal.Decimal
	TransactionID string
	Description   string
}

// MobileMoneyResult is returned when the provider accepted the push request.
// The charge outcome arrives later through the callback.
type MobileMoneyResult struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

type MobileMoneyOutcome int

const (
	MobileMoneyPending MobileMoneyOutcome = iota
	MobileMoneySucceeded
	MobileMoneyFailed
)

// MobileMoneyStatus is the provider's view of an earlier push request.
type MobileMoneyStatus struct {
	Outcome    MobileMoneyOutcome
	ResultCode int
	ResultDesc string
}

// MobileMoneyGateway is the port for push-payment providers (M-Pesa STK).
type MobileMoneyGateway interface {
	InitiateMobileMoneyPayment(ctx context.Context, req MobileMoneyRequest) (MobileMoneyResult, error)
	QueryMobileMoneyPayment(ctx context.Context, checkoutRequestID string) (MobileMoneyStatus, error)
}

type CardChargeRequest struct {
	CardToken   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	CustomerID  string
	// IdempotencyKey is the funding transaction id.
	IdempotencyKey string
}

// CardChargeResult is the processor's answer to a charge. A decline is a
// result with Approved false, not an error; errors mean the outcome is unknown.
type CardChargeResult struct {
	Approved      bool
	TransactionID string
	Last4         string
	Brand         string
	ExpiryMonth   int
	ExpiryYear    int
	DeclineReason string
	ProcessedAt   time.Time
}

// CardProcessor is the port for synchronous card charges.
type CardProcessor interface {
	ProcessCardCharge(ctx context.Context, req CardChargeRequest) (CardChargeResult, error)
}
