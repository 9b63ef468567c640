package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type Stats struct {
	SubscriptionsByStatus map[model.SubscriptionStatus]int `json:"subscriptions_by_status"`
	RevenueLast30Days     decimal.Decimal                  `json:"revenue_last_30_days"`
	RemindersLast24h      int                              `json:"reminders_last_24h"`
	ExpiryNoticesLast24h  int                              `json:"expiry_notices_last_24h"`
}

type StatsUseCase interface {
	SubscriptionCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error)
	Snapshot(ctx context.Context) (*Stats, error)
}

type statsUC struct {
	subs    repository.SubscriptionRepository
	txns    repository.PaymentTransactionRepository
	notices repository.NotificationLogRepository
	now     func() time.Time

	log *zerolog.Logger
}

func NewStatsUseCase(subs repository.SubscriptionRepository, txns repository.PaymentTransactionRepository, notices repository.NotificationLogRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{subs: subs, txns: txns, notices: notices, now: func() time.Time { return time.Now().UTC() }, log: logger}
}

func (s *statsUC) SubscriptionCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return s.subs.CountByStatus(ctx, repository.NoTX)
}

func (s *statsUC) Snapshot(ctx context.Context) (*Stats, error) {
	now := s.now()
	counts, err := s.subs.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	revenue, err := s.txns.SumCompletedSince(ctx, repository.NoTX, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}
	day := now.Add(-24 * time.Hour)
	reminders, err := s.notices.CountSince(ctx, repository.NoTX, repository.NotificationRenewalReminder, day)
	if err != nil {
		return nil, err
	}
	expiries, err := s.notices.CountSince(ctx, repository.NoTX, repository.NotificationExpirationNotice, day)
	if err != nil {
		return nil, err
	}
	return &Stats{
		SubscriptionsByStatus: counts,
		RevenueLast30Days:     revenue,
		RemindersLast24h:      reminders,
		ExpiryNoticesLast24h:  expiries,
	}, nil
}
