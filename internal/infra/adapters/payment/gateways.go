package payment

import (
	"fmt"

	"github.com/rs/zerolog"

	"vendor-billing/internal/config"
	"vendor-billing/internal/domain/ports/adapter"
)

// NewGateways builds the mobile money and card gateways from config.
// A disabled gateway falls back to the NoopGateway in dev mode only.
func NewGateways(cfg *config.Config, logger *zerolog.Logger) (adapter.MobileMoneyGateway, adapter.CardProcessor, error) {
	var noop *NoopGateway
	fallback := func(name string) (*NoopGateway, error) {
		if !cfg.Runtime.Dev {
			return nil, fmt.Errorf("%s.enabled is false; enable it or run with -dev", name)
		}
		logger.Warn().Str("gateway", name).Msg("gateway disabled; using noop gateway")
		if noop == nil {
			noop = NewNoopGateway()
		}
		return noop, nil
	}

	var mpesa adapter.MobileMoneyGateway
	if cfg.Mpesa.Enabled {
		g, err := NewMpesaGateway(&cfg.Mpesa, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("mpesa gateway: %w", err)
		}
		mpesa = g
	} else {
		g, err := fallback("mpesa")
		if err != nil {
			return nil, nil, err
		}
		mpesa = g
	}

	var cards adapter.CardProcessor
	if cfg.Card.Enabled {
		g, err := NewCardGateway(&cfg.Card, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("card gateway: %w", err)
		}
		cards = g
	} else {
		g, err := fallback("card")
		if err != nil {
			return nil, nil, err
		}
		cards = g
	}

	return mpesa, cards, nil
}
