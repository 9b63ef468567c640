package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/adapter"
	"vendor-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ LifecycleUseCase = (*lifecycleUC)(nil)

const (
	JobExpiry     = "expiry"
	JobReminders  = "reminders"
	JobRenewals   = "renewals"
	JobReconcile  = "reconcile"
	renewalLinkTo = "/merchant/subscription/renew/"
)

// SweepReport summarises one sweep run.
type SweepReport struct {
	Job        string    `json:"job"`
	Scanned    int       `json:"scanned"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r SweepReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// LifecycleUseCase keeps subscription rows consistent with time. Sweeps only
// return an error when their candidate query fails; per-record failures are
// logged and counted.
type LifecycleUseCase interface {
	SweepExpiredSubscriptions(ctx context.Context) (SweepReport, error)
	SweepExpiringNotifications(ctx context.Context) (SweepReport, error)
	SweepAutoRenewals(ctx context.Context) (SweepReport, error)
}

type LifecycleConfig struct {
	ReminderWindow   time.Duration
	ReminderThrottle time.Duration
	RenewalWindow    time.Duration
	// AppBaseURL prefixes renewal links in notifications.
	AppBaseURL string
}

func (c LifecycleConfig) withDefaults() LifecycleConfig {
	if c.ReminderWindow <= 0 {
		c.ReminderWindow = 7 * 24 * time.Hour
	}
	if c.ReminderThrottle <= 0 {
		c.ReminderThrottle = 24 * time.Hour
	}
	if c.RenewalWindow <= 0 {
		c.RenewalWindow = 3 * 24 * time.Hour
	}
	return c
}

type lifecycleUC struct {
	cfg      LifecycleConfig
	subs     repository.SubscriptionRepository
	packages repository.PackageRepository
	vendors  repository.VendorRepository
	notices  repository.NotificationLogRepository
	notifier adapter.Notifier
	billing  *biller
	now      func() time.Time
	log      *zerolog.Logger
}

func NewLifecycleUseCase(
	cfg LifecycleConfig,
	subs repository.SubscriptionRepository,
	txns repository.PaymentTransactionRepository,
	packages repository.PackageRepository,
	vendors repository.VendorRepository,
	notices repository.NotificationLogRepository,
	tm repository.TransactionManager,
	mpesa adapter.MobileMoneyGateway,
	cards adapter.CardProcessor,
	notifier adapter.Notifier,
	clock func() time.Time,
	logger *zerolog.Logger,
) *lifecycleUC {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	l := logger.With().Str("component", "LifecycleUseCase").Logger()
	return &lifecycleUC{
		cfg:      cfg.withDefaults(),
		subs:     subs,
		packages: packages,
		vendors:  vendors,
		notices:  notices,
		notifier: notifier,
		billing: &biller{
			subs:  subs,
			txns:  txns,
			tm:    tm,
			mpesa: mpesa,
			cards: cards,
			now:   clock,
			log:   &l,
		},
		now: clock,
		log: &l,
	}
}

// SweepExpiredSubscriptions flips active subscriptions past their end date to
// expired and sends a best-effort notice. Each row is committed on its own;
// a row already expired by a concurrent run is counted as skipped.
func (u *lifecycleUC) SweepExpiredSubscriptions(ctx context.Context) (SweepReport, error) {
	now := u.now()
	rep := SweepReport{Job: JobExpiry, StartedAt: now}

	subs, err := u.subs.FindActiveEndedBefore(ctx, repository.NoTX, now)
	if err != nil {
		rep.FinishedAt = u.now()
		return rep, err
	}
	rep.Scanned = len(subs)

	for _, s := range subs {
		if ctx.Err() != nil {
			break
		}
		log := u.log.With().Str("job", JobExpiry).Str("subscription_id", s.ID).Logger()

		if err := s.Expire(now); err != nil {
			log.Warn().Err(err).Msg("skipping subscription that cannot expire")
			rep.Skipped++
			continue
		}
		changed, err := u.subs.MarkExpired(ctx, repository.NoTX, s.ID, now)
		if err != nil {
			log.Error().Err(err).Msg("failed to mark subscription expired")
			rep.Failed++
			continue
		}
		if !changed {
			rep.Skipped++
			continue
		}
		rep.Succeeded++
		u.notify(ctx, &log, s, repository.NotificationExpirationNotice)
	}

	rep.FinishedAt = u.now()
	return rep, nil
}

// SweepExpiringNotifications reminds vendors whose subscription ends within
// the reminder window. The throttle stamp is written only after a successful
// send so failures retry on the next run.
func (u *lifecycleUC) SweepExpiringNotifications(ctx context.Context) (SweepReport, error) {
	now := u.now()
	rep := SweepReport{Job: JobReminders, StartedAt: now}

	subs, err := u.subs.FindActiveEndingBetween(ctx, repository.NoTX, now, now.Add(u.cfg.ReminderWindow), now.Add(-u.cfg.ReminderThrottle))
	if err != nil {
		rep.FinishedAt = u.now()
		return rep, err
	}
	rep.Scanned = len(subs)

	for _, s := range subs {
		if ctx.Err() != nil {
			break
		}
		log := u.log.With().Str("job", JobReminders).Str("subscription_id", s.ID).Logger()

		if !s.NeedsReminder(now, u.cfg.ReminderThrottle) {
			rep.Skipped++
			continue
		}
		switch u.notify(ctx, &log, s, repository.NotificationRenewalReminder) {
		case notifySkipped:
			rep.Skipped++
			continue
		case notifyFailed:
			rep.Failed++
			continue
		}
		if err := u.subs.StampReminder(ctx, repository.NoTX, s.ID, now); err != nil {
			log.Error().Err(err).Msg("reminder sent but stamp failed")
			rep.Failed++
			continue
		}
		rep.Succeeded++
	}

	rep.FinishedAt = u.now()
	return rep, nil
}

// SweepAutoRenewals renews active auto-renew subscriptions ending within the
// renewal window. Candidates that already have an open renewal are skipped,
// which keeps repeated runs from charging twice.
func (u *lifecycleUC) SweepAutoRenewals(ctx context.Context) (SweepReport, error) {
	now := u.now()
	rep := SweepReport{Job: JobRenewals, StartedAt: now}

	subs, err := u.subs.FindAutoRenewCandidates(ctx, repository.NoTX, now, now.Add(u.cfg.RenewalWindow))
	if err != nil {
		rep.FinishedAt = u.now()
		return rep, err
	}
	rep.Scanned = len(subs)

	for _, s := range subs {
		if ctx.Err() != nil {
			break
		}
		switch u.renewOne(ctx, s, now) {
		case renewOK:
			rep.Succeeded++
		case renewSkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
	}

	rep.FinishedAt = u.now()
	return rep, nil
}

type renewOutcome int

const (
	renewOK renewOutcome = iota
	renewSkipped
	renewFailed
)

func (u *lifecycleUC) renewOne(ctx context.Context, s *model.Subscription, now time.Time) (out renewOutcome) {
	log := u.log.With().Str("job", JobRenewals).Str("subscription_id", s.ID).Str("vendor_id", s.VendorID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("renewal panicked")
			out = renewFailed
		}
	}()

	if !s.IsActive() || !s.AutoRenew {
		return renewSkipped
	}

	pkg, err := u.packages.FindByID(ctx, repository.NoTX, s.PackageID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Msg("package lookup failed")
		return renewFailed
	}
	if pkg == nil || !pkg.IsActive {
		log.Info().Str("package_id", s.PackageID).Msg("package no longer active; renewal skipped")
		return renewSkipped
	}

	vendor, err := u.vendors.FindByID(ctx, repository.NoTX, s.VendorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("vendor missing; renewal skipped")
			return renewSkipped
		}
		log.Error().Err(err).Msg("vendor lookup failed")
		return renewFailed
	}

	order := chargeOrder{
		actor:      model.Actor{UserID: vendor.ID, Role: model.RoleMerchant},
		vendorID:   vendor.ID,
		pkg:        pkg,
		start:      s.RenewalAnchor(now),
		method:     s.PaymentMethod,
		autoRenew:  s.AutoRenew,
		previousID: &s.ID,
		txType:     model.TransactionTypeSubscriptionRenewal,
	}
	switch s.PaymentMethod {
	case model.PaymentMethodCard:
		order.cardToken = vendor.CardToken
	case model.PaymentMethodMpesa:
		order.phone = vendor.PhoneNumber
	case model.PaymentMethodAdmin:
		log.Info().Msg("admin-granted subscriptions are not auto-renewed")
		return renewSkipped
	}

	res, err := u.billing.createAndCharge(ctx, order)
	switch {
	case err == nil:
		log.Info().Str("renewal_id", res.Subscription.ID).Bool("pending", res.Pending).Msg("subscription renewed")
		return renewOK
	case errors.Is(err, domain.ErrRenewalInProgress):
		log.Debug().Msg("renewal already open")
		return renewSkipped
	case errors.Is(err, domain.ErrMissingCardToken), errors.Is(err, domain.ErrMissingPhoneNumber):
		log.Warn().Err(err).Msg("no stored payment details; renewal skipped")
		return renewSkipped
	case errors.Is(err, domain.ErrPaymentDeclined):
		log.Warn().Err(err).Msg("renewal charge failed")
		return renewFailed
	default:
		log.Error().Err(err).Msg("renewal failed")
		return renewFailed
	}
}

type notifyOutcome int

const (
	notifySent notifyOutcome = iota
	notifySkipped
	notifyFailed
)

// notify sends a lifecycle notice for s. It never returns an error; failures
// are logged and reported through the outcome.
func (u *lifecycleUC) notify(ctx context.Context, log *zerolog.Logger, s *model.Subscription, kind repository.NotificationKind) notifyOutcome {
	vendor, err := u.vendors.FindByID(ctx, repository.NoTX, s.VendorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("vendor missing; notification skipped")
			return notifySkipped
		}
		log.Error().Err(err).Msg("vendor lookup failed")
		return notifyFailed
	}
	if vendor.Email == "" {
		log.Warn().Msg("vendor has no email; notification skipped")
		return notifySkipped
	}

	n := adapter.LifecycleNotice{
		Email:       vendor.Email,
		DisplayName: vendor.Name(),
		PackageName: s.PackageName,
		EndDate:     s.EndDate,
		RenewalLink: u.cfg.AppBaseURL + renewalLinkTo + s.ID,
		Locale:      vendor.Locale,
	}
	switch kind {
	case repository.NotificationExpirationNotice:
		err = u.notifier.SendExpirationNotice(ctx, n)
	default:
		err = u.notifier.SendRenewalReminder(ctx, n)
	}
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("notification failed")
		return notifyFailed
	}

	if u.notices != nil {
		if err := u.notices.Save(ctx, repository.NoTX, s.ID, s.VendorID, kind, u.now()); err != nil {
			log.Warn().Err(err).Msg("failed to record notification")
		}
	}
	return notifySent
}
