//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPackageRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	pkg := &model.Package{ID: "pkg-123", Name: "Pro", Price: decimal.NewFromInt(2500), Currency: "KES",
		Duration: 1, DurationUnit: model.DurationUnitMonth, IsActive: true}
	pkgJSON, _ := json.Marshal(pkg)

	t.Run("FindByID should return from cache on hit", func(t *testing.T) {
		// Arrange
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return string(pkgJSON), nil // Simulate cache hit
			},
		}
		innerRepoCalled := false
		mockInnerRepo := &mockInnerPackageRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
				innerRepoCalled = true // This should not be called
				return nil, nil
			},
		}

		decorator := NewPackageRepoCacheDecorator(mockInnerRepo, mockRedis, 0, newTestLogger())

		// Act
		result, err := decorator.FindByID(ctx, nil, "pkg-123")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerRepoCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if result == nil || result.ID != "pkg-123" || !result.Price.Equal(pkg.Price) {
			t.Errorf("did not return the correct package from cache: %+v", result)
		}
	})

	t.Run("miss populates the cache", func(t *testing.T) {
		var setKey string
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey = key
				return nil
			},
		}
		calls := 0
		mockInnerRepo := &mockInnerPackageRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
				calls++
				return pkg, nil
			},
		}

		decorator := NewPackageRepoCacheDecorator(mockInnerRepo, mockRedis, 0, newTestLogger())
		result, err := decorator.FindByID(ctx, nil, "pkg-123")

		if err != nil || result.ID != "pkg-123" {
			t.Fatalf("unexpected result %+v, %v", result, err)
		}
		if calls != 1 {
			t.Errorf("expected one inner call, got %d", calls)
		}
		if setKey != "package:pkg-123" {
			t.Errorf("expected cache fill for package:pkg-123, got %q", setKey)
		}
	})

	t.Run("FindActiveByID hides inactive cached packages", func(t *testing.T) {
		retired := *pkg
		retired.IsActive = false
		b, _ := json.Marshal(&retired)
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return string(b), nil },
		}

		decorator := NewPackageRepoCacheDecorator(&mockInnerPackageRepo{}, mockRedis, 0, newTestLogger())
		_, err := decorator.FindActiveByID(ctx, nil, "pkg-123")

		if err != domain.ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Save should invalidate the cache", func(t *testing.T) {
		// Arrange
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerPackageRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, p *model.Package) error {
				return nil
			},
		}

		decorator := NewPackageRepoCacheDecorator(mockInnerRepo, mockRedis, 0, newTestLogger())

		// Act
		err := decorator.Save(ctx, nil, pkg)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 2 {
			t.Fatalf("expected 2 keys to be deleted, but got %d", len(deletedKeys))
		}
	})
}
