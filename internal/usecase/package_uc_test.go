//go:build !integration

package usecase_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/usecase"
)

func TestPackageUseCase(t *testing.T) {
	ctx := context.Background()
	in := usecase.PackageInput{
		Name:         "Premium",
		Price:        decimal.RequireFromString("4999.00"),
		Duration:     3,
		DurationUnit: model.DurationUnitMonth,
		ProductLimit: 200,
	}

	t.Run("merchant cannot create packages", func(t *testing.T) {
		uc := usecase.NewPackageUseCase(NewMockPackageRepo(), newTestLogger())

		_, err := uc.Create(ctx, merchant, in)

		if err != domain.ErrUnauthorizedAdminAction {
			t.Fatalf("expected ErrUnauthorizedAdminAction, got %v", err)
		}
	})

	t.Run("admin creates then deactivates", func(t *testing.T) {
		// --- Arrange ---
		repo := NewMockPackageRepo()
		uc := usecase.NewPackageUseCase(repo, newTestLogger())

		// --- Act ---
		p, err := uc.Create(ctx, admin, in)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := uc.Deactivate(ctx, admin, p.ID); err != nil {
			t.Fatalf("deactivate: %v", err)
		}

		// --- Assert ---
		if p.Currency != model.DefaultCurrency {
			t.Errorf("expected default currency %s, got %s", model.DefaultCurrency, p.Currency)
		}
		list, _ := uc.ListActive(ctx)
		if len(list) != 0 {
			t.Errorf("expected no active packages, got %d", len(list))
		}
		if _, err := repo.FindActiveByID(ctx, nil, p.ID); err != domain.ErrNotFound {
			t.Errorf("deactivated package should not be subscribable, got %v", err)
		}
	})

	t.Run("invalid input is rejected", func(t *testing.T) {
		uc := usecase.NewPackageUseCase(NewMockPackageRepo(), newTestLogger())
		bad := in
		bad.DurationUnit = "fortnight"

		if _, err := uc.Create(ctx, admin, bad); err != domain.ErrInvalidArgument {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
