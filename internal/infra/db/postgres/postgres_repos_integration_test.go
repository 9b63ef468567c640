//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
	"vendor-billing/internal/infra/security"
)

type seeded struct {
	vendor *model.Vendor
	pkg    *model.Package
}

func seed(t *testing.T, ctx context.Context) seeded {
	t.Helper()
	cleanup(t)
	cipher, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	v, err := model.NewVendor("", "Shop@Example.co.ke", "Duka Bora", "0712345678", model.RoleMerchant)
	require.NoError(t, err)
	v.CardToken = "tok_visa_4242"
	require.NoError(t, NewPostgresVendorRepo(testPool, cipher).Save(ctx, nil, v))

	p, err := model.NewPackage("", "Basic", decimal.NewFromInt(1500), 1, model.DurationUnitMonth, 50, 5)
	require.NoError(t, err)
	require.NoError(t, NewPostgresPackageRepo(testPool).Save(ctx, nil, p))
	return seeded{vendor: v, pkg: p}
}

func activeSubscription(t *testing.T, s seeded, start time.Time, prev *string) *model.Subscription {
	t.Helper()
	sub, err := model.NewPendingSubscription(s.vendor.ID, s.pkg, start, model.PaymentMethodCard, true, prev, time.Now())
	require.NoError(t, err)
	require.NoError(t, sub.Activate(model.PaymentReceipt{TransactionID: "ch_1", Amount: s.pkg.Price, Currency: "KES", PaidAt: start}, start))
	return sub
}

func TestVendorRepo_Integration(t *testing.T) {
	ctx := context.Background()
	s := seed(t, ctx)
	cipher, _ := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	repo := NewPostgresVendorRepo(testPool, cipher)

	t.Run("card token is stored sealed and read back", func(t *testing.T) {
		var raw string
		require.NoError(t, testPool.QueryRow(ctx, `SELECT card_token_enc FROM vendors WHERE id=$1`, s.vendor.ID).Scan(&raw))
		assert.NotContains(t, raw, "tok_visa")

		v, err := repo.FindByEmail(ctx, nil, "shop@example.co.ke")
		require.NoError(t, err)
		assert.Equal(t, "tok_visa_4242", v.CardToken)
	})

	t.Run("SaveCardToken on a missing vendor", func(t *testing.T) {
		err := repo.SaveCardToken(ctx, nil, "nope", "tok")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPackageRepo_Integration(t *testing.T) {
	ctx := context.Background()
	s := seed(t, ctx)
	repo := NewPostgresPackageRepo(testPool)

	got, err := repo.FindActiveByID(ctx, nil, s.pkg.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(1500)))

	s.pkg.IsActive = false
	require.NoError(t, repo.Save(ctx, nil, s.pkg))

	_, err = repo.FindActiveByID(ctx, nil, s.pkg.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	list, err := repo.ListActive(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewSubscriptionRepo(testPool)
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("expiry is applied once", func(t *testing.T) {
		s := seed(t, ctx)
		sub := activeSubscription(t, s, now.AddDate(0, -2, 0), nil)
		require.NoError(t, repo.Save(ctx, nil, sub))

		due, err := repo.FindActiveEndedBefore(ctx, nil, now)
		require.NoError(t, err)
		require.Len(t, due, 1)

		changed, err := repo.MarkExpired(ctx, nil, sub.ID, now)
		require.NoError(t, err)
		assert.True(t, changed)
		changed, err = repo.MarkExpired(ctx, nil, sub.ID, now)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("reminder window honours the throttle stamp", func(t *testing.T) {
		s := seed(t, ctx)
		sub := activeSubscription(t, s, now.AddDate(0, -1, 3), nil)
		require.NoError(t, repo.Save(ctx, nil, sub))

		from, to := now, now.Add(7*24*time.Hour)
		got, err := repo.FindActiveEndingBetween(ctx, nil, from, to, now.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)

		require.NoError(t, repo.StampReminder(ctx, nil, sub.ID, now))
		got, err = repo.FindActiveEndingBetween(ctx, nil, from, to, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("only one open renewal per subscription", func(t *testing.T) {
		s := seed(t, ctx)
		orig := activeSubscription(t, s, now.AddDate(0, -1, 2), nil)
		require.NoError(t, repo.Save(ctx, nil, orig))

		first, err := model.NewPendingSubscription(s.vendor.ID, s.pkg, orig.EndDate, model.PaymentMethodCard, true, &orig.ID, time.Now())
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, nil, first))

		cands, err := repo.FindAutoRenewCandidates(ctx, nil, now, now.Add(3*24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, cands, "a subscription with an open renewal is not a candidate")

		second, _ := model.NewPendingSubscription(s.vendor.ID, s.pkg, orig.EndDate, model.PaymentMethodCard, true, &orig.ID, time.Now())
		err = repo.Save(ctx, nil, second)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		// a failed attempt frees the slot
		require.NoError(t, first.MarkPaymentFailed(now))
		require.NoError(t, repo.Save(ctx, nil, first))
		_, err = repo.FindOpenRenewal(ctx, nil, orig.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, repo.Save(ctx, nil, second))
	})

	t.Run("end must follow start", func(t *testing.T) {
		s := seed(t, ctx)
		sub := activeSubscription(t, s, now, nil)
		sub.EndDate = sub.StartDate
		assert.Error(t, repo.Save(ctx, nil, sub))
	})

	t.Run("counts by status", func(t *testing.T) {
		s := seed(t, ctx)
		require.NoError(t, repo.Save(ctx, nil, activeSubscription(t, s, now, nil)))
		counts, err := repo.CountByStatus(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[model.SubscriptionStatusActive])
	})
}

func TestPaymentTransactionRepo_Integration(t *testing.T) {
	ctx := context.Background()
	s := seed(t, ctx)
	subs := NewSubscriptionRepo(testPool)
	repo := NewPaymentTransactionRepo(testPool)
	tm := NewTxManager(testPool)
	now := time.Now().UTC().Truncate(time.Second)

	sub, err := model.NewPendingSubscription(s.vendor.ID, s.pkg, now, model.PaymentMethodMpesa, false, nil, now)
	require.NoError(t, err)
	txn, err := model.NewPendingTransaction(sub, model.TransactionTypeSubscription, now)
	require.NoError(t, err)
	txn.Details.Mpesa = &model.MpesaDetails{PhoneNumber: "254712345678", CheckoutRequestID: "ws_CO_1"}

	require.NoError(t, tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		return repo.Save(ctx, tx, txn)
	}))

	found, err := repo.FindByCheckoutRequestID(ctx, nil, "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.SubscriptionID)
	assert.Equal(t, "254712345678", found.Details.Mpesa.PhoneNumber)

	pending, err := repo.ListPendingOlderThan(ctx, nil, now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	stale, err := repo.FindByCheckoutRequestID(ctx, nil, "ws_CO_1")
	require.NoError(t, err)

	require.NoError(t, found.Complete(now))
	ok, err := repo.CompleteIfPending(ctx, nil, found)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, stale.Fail("late", now))
	ok, err = repo.FailIfPending(ctx, nil, stale)
	require.NoError(t, err)
	assert.False(t, ok, "a resolved transaction must not change again")

	sum, err := repo.SumCompletedSince(ctx, nil, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(1500)), "got %s", sum)
}

func TestNotificationLogRepo_Integration(t *testing.T) {
	ctx := context.Background()
	s := seed(t, ctx)
	subs := NewSubscriptionRepo(testPool)
	sub := activeSubscription(t, s, time.Now().UTC(), nil)
	require.NoError(t, subs.Save(ctx, nil, sub))
	repo := NewNotificationLogRepo(testPool)

	require.NoError(t, repo.Save(ctx, nil, sub.ID, s.vendor.ID, repository.NotificationRenewalReminder, time.Now()))

	n, err := repo.CountSince(ctx, nil, repository.NotificationRenewalReminder, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.CountSince(ctx, nil, repository.NotificationExpirationNotice, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
