package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"vendor-billing/internal/domain/ports/adapter"
)

var (
	_ adapter.MobileMoneyGateway = (*NoopGateway)(nil)
	_ adapter.CardProcessor      = (*NoopGateway)(nil)
)

// NoopGateway is a deterministic in-memory gateway for dev mode and tests.
// Card tokens starting with "tok_decline" are declined; pushes settle as
// succeeded on the first status query.
type NoopGateway struct {
	mu     sync.Mutex
	seq    int64
	pushes map[string]adapter.MobileMoneyRequest // checkout id -> request
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{pushes: make(map[string]adapter.MobileMoneyRequest)}
}

func (g *NoopGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-noop-%d", prefix, g.seq)
}

func (g *NoopGateway) InitiateMobileMoneyPayment(ctx context.Context, req adapter.MobileMoneyRequest) (adapter.MobileMoneyResult, error) {
	if _, err := NormalizePhone(req.PhoneNumber); err != nil {
		return adapter.MobileMoneyResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next("ws_CO")
	g.pushes[id] = req
	return adapter.MobileMoneyResult{
		MerchantRequestID:   g.next("mr"),
		CheckoutRequestID:   id,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func (g *NoopGateway) QueryMobileMoneyPayment(ctx context.Context, checkoutRequestID string) (adapter.MobileMoneyStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pushes[checkoutRequestID]; !ok {
		return adapter.MobileMoneyStatus{}, fmt.Errorf("noop: checkout request %s not found", checkoutRequestID)
	}
	return adapter.MobileMoneyStatus{
		Outcome:    adapter.MobileMoneySucceeded,
		ResultDesc: "The service request is processed successfully.",
	}, nil
}

func (g *NoopGateway) ProcessCardCharge(ctx context.Context, req adapter.CardChargeRequest) (adapter.CardChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res := adapter.CardChargeResult{
		TransactionID: g.next("ch"),
		Last4:         "4242",
		Brand:         "visa",
		ExpiryMonth:   12,
		ExpiryYear:    time.Now().Year() + 3,
		ProcessedAt:   time.Now().UTC(),
	}
	if strings.HasPrefix(req.CardToken, "tok_decline") {
		res.DeclineReason = "insufficient_funds"
		return res, nil
	}
	res.Approved = true
	return res, nil
}
