package repository

import (
	"context"
	"time"

	"vendor-billing/internal/domain/model"
)

// SubscriptionRepository is the port for vendor subscriptions.
type SubscriptionRepository interface {
	// Save inserts or updates s. A second open renewal of the same
	// subscription fails with domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindCurrentByVendor returns the earliest-started active subscription;
	// queued renewals come after it.
	FindCurrentByVendor(ctx context.Context, tx Tx, vendorID string) (*model.Subscription, error)
	ListByVendor(ctx context.Context, tx Tx, vendorID string, limit, offset int) ([]*model.Subscription, error)

	// --- Sweep queries ---
	FindActiveEndedBefore(ctx context.Context, tx Tx, before time.Time) ([]*model.Subscription, error)
	// FindActiveEndingBetween returns active rows ending in [from, to] whose
	// last reminder is unset or earlier than notifiedBefore.
	FindActiveEndingBetween(ctx context.Context, tx Tx, from, to, notifiedBefore time.Time) ([]*model.Subscription, error)
	FindAutoRenewCandidates(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Subscription, error)
	// FindOpenRenewal returns the non-terminal renewal of prevID, if any.
	FindOpenRenewal(ctx context.Context, tx Tx, prevID string) (*model.Subscription, error)

	// MarkExpired flips an active row to expired; changed is false when the
	// row was already past that state.
	MarkExpired(ctx context.Context, tx Tx, id string, at time.Time) (changed bool, err error)
	StampReminder(ctx context.Context, tx Tx, id string, at time.Time) error

	// --- Statistics ---
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
