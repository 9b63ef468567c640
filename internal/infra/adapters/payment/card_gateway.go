package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vendor-billing/internal/config"
	"vendor-billing/internal/domain/ports/adapter"
)

var _ adapter.CardProcessor = (*CardGateway)(nil)

// CardGateway charges saved card tokens against a REST processor.
type CardGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
	log       zerolog.Logger
}

func NewCardGateway(cfg *config.CardConfig, logger *zerolog.Logger) (*CardGateway, error) {
	if cfg.BaseURL == "" || cfg.SecretKey == "" {
		return nil, errors.New("card: base url and secret key are required")
	}
	return &CardGateway{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		log:       logger.With().Str("component", "CardGateway").Logger(),
	}, nil
}

type chargeResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"` // succeeded | declined | failed
	DeclineReason string `json:"decline_reason"`
	Created       int64  `json:"created"`
	Card          struct {
		Last4    string `json:"last4"`
		Brand    string `json:"brand"`
		ExpMonth int    `json:"exp_month"`
		ExpYear  int    `json:"exp_year"`
	} `json:"card"`
}

// ProcessCardCharge sends amounts in minor units. 402 responses are declines;
// other non-2xx responses and transport failures are errors.
func (g *CardGateway) ProcessCardCharge(ctx context.Context, req adapter.CardChargeRequest) (adapter.CardChargeResult, error) {
	payload := map[string]any{
		"amount":      req.Amount.Shift(2).Round(0).IntPart(),
		"currency":    strings.ToLower(req.Currency),
		"source":      req.CardToken,
		"description": req.Description,
		"customer":    req.CustomerID,
	}
	b, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/charges", bytes.NewReader(b))
	if err != nil {
		return adapter.CardChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return adapter.CardChargeResult{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return adapter.CardChargeResult{}, err
	}
	if resp.StatusCode != http.StatusPaymentRequired && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return adapter.CardChargeResult{}, fmt.Errorf("card: http %d", resp.StatusCode)
	}

	var out chargeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return adapter.CardChargeResult{}, fmt.Errorf("card: decode charge: %w", err)
	}
	res := adapter.CardChargeResult{
		Approved:      out.Status == "succeeded",
		TransactionID: out.ID,
		Last4:         out.Card.Last4,
		Brand:         out.Card.Brand,
		ExpiryMonth:   out.Card.ExpMonth,
		ExpiryYear:    out.Card.ExpYear,
		DeclineReason: out.DeclineReason,
		ProcessedAt:   time.Now().UTC(),
	}
	if out.Created > 0 {
		res.ProcessedAt = time.Unix(out.Created, 0).UTC()
	}
	if !res.Approved && res.DeclineReason == "" {
		res.DeclineReason = "card declined"
	}
	g.log.Info().Str("charge_id", out.ID).Bool("approved", res.Approved).Msg("card charge processed")
	return res, nil
}
