package api

import (
	"time"

	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/usecase"
)

type Subscription struct {
	ID                      string                `json:"id"`
	VendorID                string                `json:"vendor_id"`
	PackageID               string                `json:"package_id"`
	PackageName             string                `json:"package_name"`
	PackagePrice            decimal.Decimal       `json:"package_price"`
	Currency                string                `json:"currency"`
	StartDate               time.Time             `json:"start_date"`
	EndDate                 time.Time             `json:"end_date"`
	Status                  string                `json:"status"`
	PaymentStatus           string                `json:"payment_status"`
	PaymentMethod           string                `json:"payment_method"`
	AutoRenew               bool                  `json:"auto_renew"`
	PreviousSubscriptionID  *string               `json:"previous_subscription_id,omitempty"`
	LastRenewalNotification *time.Time            `json:"last_renewal_notification,omitempty"`
	PaymentDetails          *model.PaymentReceipt `json:"payment_details,omitempty"`
	CancelledAt             *time.Time            `json:"cancelled_at,omitempty"`
	CreatedAt               time.Time             `json:"created_at"`
	UpdatedAt               time.Time             `json:"updated_at"`
}

func toSubscription(s *model.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	return &Subscription{
		ID:                      s.ID,
		VendorID:                s.VendorID,
		PackageID:               s.PackageID,
		PackageName:             s.PackageName,
		PackagePrice:            s.PackagePrice,
		Currency:                s.Currency,
		StartDate:               s.StartDate,
		EndDate:                 s.EndDate,
		Status:                  string(s.Status),
		PaymentStatus:           string(s.PaymentStatus),
		PaymentMethod:           string(s.PaymentMethod),
		AutoRenew:               s.AutoRenew,
		PreviousSubscriptionID:  s.PreviousSubscriptionID,
		LastRenewalNotification: s.LastRenewalNotification,
		PaymentDetails:          s.PaymentDetails,
		CancelledAt:             s.CancelledAt,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

type Transaction struct {
	ID             string               `json:"id"`
	Type           string               `json:"type"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency"`
	Status         string               `json:"status"`
	PaymentMethod  string               `json:"payment_method"`
	SubscriptionID string               `json:"subscription_id"`
	Details        model.GatewayDetails `json:"details"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

func toTransaction(t *model.PaymentTransaction) *Transaction {
	if t == nil {
		return nil
	}
	return &Transaction{
		ID:             t.ID,
		Type:           string(t.Type),
		Amount:         t.Amount,
		Currency:       t.Currency,
		Status:         string(t.Status),
		PaymentMethod:  string(t.PaymentMethod),
		SubscriptionID: t.SubscriptionID,
		Details:        t.Details,
		FailureReason:  t.FailureReason,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.CompletedAt,
	}
}

type Package struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	Price                 decimal.Decimal `json:"price"`
	Currency              string          `json:"currency"`
	Duration              int             `json:"duration"`
	DurationUnit          string          `json:"duration_unit"`
	ProductLimit          int             `json:"product_limit"`
	FeaturedProductsLimit int             `json:"featured_products_limit"`
	IsActive              bool            `json:"is_active"`
}

func toPackage(p *model.Package) Package {
	return Package{
		ID:                    p.ID,
		Name:                  p.Name,
		Description:           p.Description,
		Price:                 p.Price,
		Currency:              p.Currency,
		Duration:              p.Duration,
		DurationUnit:          string(p.DurationUnit),
		ProductLimit:          p.ProductLimit,
		FeaturedProductsLimit: p.FeaturedProductsLimit,
		IsActive:              p.IsActive,
	}
}

type SubscribeResponse struct {
	Subscription *Subscription           `json:"subscription"`
	Transaction  *Transaction            `json:"transaction"`
	Gateway      usecase.GatewayResponse `json:"gateway"`
	Pending      bool                    `json:"pending"`
	Message      string                  `json:"message"`
	Error        string                  `json:"error,omitempty"`
}

func toSubscribeResponse(res *usecase.SubscribeResult) SubscribeResponse {
	out := SubscribeResponse{
		Subscription: toSubscription(res.Subscription),
		Transaction:  toTransaction(res.Transaction),
		Gateway:      res.Gateway,
		Pending:      res.Pending,
	}
	switch {
	case res.Pending:
		out.Message = "Payment request sent to your phone. Complete it to activate the subscription."
	case res.Subscription != nil && res.Subscription.Status == model.SubscriptionStatusActive:
		out.Message = "Subscription activated."
	default:
		out.Message = "Payment failed."
	}
	return out
}
