//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
)

func TestAddDuration(t *testing.T) {
	utc := time.UTC
	cases := []struct {
		name  string
		start time.Time
		n     int
		unit  DurationUnit
		want  time.Time
	}{
		{"jan 31 plus one month clamps in leap year", time.Date(2024, 1, 31, 10, 0, 0, 0, utc), 1, DurationUnitMonth, time.Date(2024, 2, 29, 10, 0, 0, 0, utc)},
		{"jan 31 plus one month clamps", time.Date(2023, 1, 31, 0, 0, 0, 0, utc), 1, DurationUnitMonth, time.Date(2023, 2, 28, 0, 0, 0, 0, utc)},
		{"mar 31 plus one month", time.Date(2024, 3, 31, 0, 0, 0, 0, utc), 1, DurationUnitMonth, time.Date(2024, 4, 30, 0, 0, 0, 0, utc)},
		{"aug 31 plus six months", time.Date(2024, 8, 31, 0, 0, 0, 0, utc), 6, DurationUnitMonth, time.Date(2025, 2, 28, 0, 0, 0, 0, utc)},
		{"month crossing year", time.Date(2024, 12, 15, 8, 30, 0, 0, utc), 1, DurationUnitMonth, time.Date(2025, 1, 15, 8, 30, 0, 0, utc)},
		{"feb 29 plus one year", time.Date(2024, 2, 29, 0, 0, 0, 0, utc), 1, DurationUnitYear, time.Date(2025, 2, 28, 0, 0, 0, 0, utc)},
		{"days", time.Date(2024, 2, 27, 0, 0, 0, 0, utc), 3, DurationUnitDay, time.Date(2024, 3, 1, 0, 0, 0, 0, utc)},
		{"weeks", time.Date(2024, 1, 1, 0, 0, 0, 0, utc), 2, DurationUnitWeek, time.Date(2024, 1, 15, 0, 0, 0, 0, utc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AddDuration(tc.start, tc.n, tc.unit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("AddDuration(%s, %d, %s) = %s, want %s", tc.start, tc.n, tc.unit, got, tc.want)
			}
		})
	}

	t.Run("rejects bad input", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, utc)
		if _, err := AddDuration(start, 0, DurationUnitDay); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for zero count, got %v", err)
		}
		if _, err := AddDuration(start, 1, "quarter"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown unit, got %v", err)
		}
	})
}

func TestParsePaymentMethod(t *testing.T) {
	for in, want := range map[string]PaymentMethod{"mpesa": PaymentMethodMpesa, " CARD ": PaymentMethodCard, "Admin": PaymentMethodAdmin} {
		got, err := ParsePaymentMethod(in)
		if err != nil || got != want {
			t.Errorf("ParsePaymentMethod(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePaymentMethod("bitcoin"); !errors.Is(err, domain.ErrInvalidPaymentMethod) {
		t.Errorf("expected ErrInvalidPaymentMethod, got %v", err)
	}
}

func testPackage() *Package {
	return &Package{ID: "p1", Name: "Basic", Price: decimal.NewFromInt(1500), Currency: DefaultCurrency,
		Duration: 1, DurationUnit: DurationUnitMonth, IsActive: true}
}

func TestSubscriptionStateMachine(t *testing.T) {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	t.Run("new subscription is pending and unpaid", func(t *testing.T) {
		s, err := NewPendingSubscription("v1", testPackage(), start, PaymentMethodCard, true, nil, start)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Status != SubscriptionStatusPending || s.PaymentStatus != PaymentStatusUnpaid {
			t.Errorf("got %s/%s", s.Status, s.PaymentStatus)
		}
		if !s.EndDate.After(s.StartDate) {
			t.Errorf("end %s not after start %s", s.EndDate, s.StartDate)
		}
	})

	t.Run("rows are stamped with the supplied clock", func(t *testing.T) {
		created := time.Date(2023, 12, 1, 8, 30, 0, 0, time.UTC)
		s, err := NewPendingSubscription("v1", testPackage(), start, PaymentMethodMpesa, false, nil, created)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		txn, err := NewPendingTransaction(s, TransactionTypeSubscription, created)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !s.CreatedAt.Equal(created) || !txn.CreatedAt.Equal(created) || !txn.UpdatedAt.Equal(created) {
			t.Errorf("expected CreatedAt %s, got sub=%s txn=%s", created, s.CreatedAt, txn.CreatedAt)
		}
	})

	t.Run("inactive package is refused", func(t *testing.T) {
		p := testPackage()
		p.IsActive = false
		if _, err := NewPendingSubscription("v1", p, start, PaymentMethodCard, false, nil, start); !errors.Is(err, domain.ErrPackageUnavailable) {
			t.Errorf("expected ErrPackageUnavailable, got %v", err)
		}
	})

	t.Run("pay then expire", func(t *testing.T) {
		s, _ := NewPendingSubscription("v1", testPackage(), start, PaymentMethodCard, false, nil, start)
		if err := s.Activate(PaymentReceipt{TransactionID: "ch_1"}, start); err != nil {
			t.Fatalf("activate: %v", err)
		}
		if err := s.Expire(start.AddDate(0, 0, 10)); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expire before end should fail, got %v", err)
		}
		after := s.EndDate.Add(time.Second)
		if err := s.Expire(after); err != nil {
			t.Fatalf("expire: %v", err)
		}
		if err := s.Expire(after); err != nil {
			t.Errorf("second expire should be a no-op, got %v", err)
		}
		if s.Status != SubscriptionStatusExpired || s.PaymentStatus != PaymentStatusPaid {
			t.Errorf("got %s/%s", s.Status, s.PaymentStatus)
		}
		if err := s.Activate(PaymentReceipt{}, after); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expired rows must not reactivate, got %v", err)
		}
	})

	t.Run("failed payment is terminal", func(t *testing.T) {
		s, _ := NewPendingSubscription("v1", testPackage(), start, PaymentMethodMpesa, false, nil, start)
		if err := s.MarkPaymentFailed(start); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		if s.IsOpen() {
			t.Error("failed pending row should not be open")
		}
		if err := s.Activate(PaymentReceipt{}, start); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("failed rows must not activate, got %v", err)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		s, _ := NewPendingSubscription("v1", testPackage(), start, PaymentMethodCard, true, nil, start)
		_ = s.Activate(PaymentReceipt{}, start)
		if err := s.Cancel(start); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if s.AutoRenew || s.CancelledAt == nil {
			t.Error("cancel should clear auto renew and stamp cancelled_at")
		}
		if err := s.Cancel(start); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("double cancel should fail, got %v", err)
		}
	})

	t.Run("reminder throttle", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		s := &Subscription{}
		if !s.NeedsReminder(now, 24*time.Hour) {
			t.Error("never reminded should need a reminder")
		}
		recent := now.Add(-2 * time.Hour)
		s.LastRenewalNotification = &recent
		if s.NeedsReminder(now, 24*time.Hour) {
			t.Error("reminded 2h ago should be throttled")
		}
		old := now.Add(-25 * time.Hour)
		s.LastRenewalNotification = &old
		if !s.NeedsReminder(now, 24*time.Hour) {
			t.Error("reminded 25h ago should be reminded again")
		}
	})

	t.Run("renewal anchor", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		s := &Subscription{EndDate: now.Add(12 * time.Hour)}
		if got := s.RenewalAnchor(now); !got.Equal(s.EndDate) {
			t.Errorf("future end should anchor at end, got %s", got)
		}
		s.EndDate = now.Add(-time.Hour)
		if got := s.RenewalAnchor(now); !got.Equal(now) {
			t.Errorf("past end should anchor at now, got %s", got)
		}
	})
}

func TestActor(t *testing.T) {
	m := Actor{UserID: "v1", Role: RoleMerchant}
	if !m.CanManage("v1") || m.CanManage("v2") {
		t.Error("merchant should manage only itself")
	}
	if !(Actor{UserID: "a", Role: RoleAdmin}).CanManage("v2") {
		t.Error("admin should manage any vendor")
	}
	if (Actor{}).CanManage("") {
		t.Error("anonymous actor manages nothing")
	}
}
