package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ PackageUseCase = (*packageUC)(nil)

type PackageInput struct {
	Name                  string
	Description           string
	Price                 decimal.Decimal
	Currency              string
	Duration              int
	DurationUnit          model.DurationUnit
	ProductLimit          int
	FeaturedProductsLimit int
}

// PackageUseCase manages the package catalog. Writes are admin only.
type PackageUseCase interface {
	Create(ctx context.Context, actor model.Actor, in PackageInput) (*model.Package, error)
	Get(ctx context.Context, id string) (*model.Package, error)
	ListActive(ctx context.Context) ([]*model.Package, error)
	Deactivate(ctx context.Context, actor model.Actor, id string) (*model.Package, error)
}

type packageUC struct {
	repo repository.PackageRepository
	log  *zerolog.Logger
}

func NewPackageUseCase(repo repository.PackageRepository, logger *zerolog.Logger) *packageUC {
	return &packageUC{repo: repo, log: logger}
}

func (u *packageUC) Create(ctx context.Context, actor model.Actor, in PackageInput) (*model.Package, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrUnauthorizedAdminAction
	}
	p, err := model.NewPackage("", in.Name, in.Price, in.Duration, in.DurationUnit, in.ProductLimit, in.FeaturedProductsLimit)
	if err != nil {
		return nil, err
	}
	p.Description = in.Description
	if in.Currency != "" {
		p.Currency = in.Currency
	}
	if err := u.repo.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	u.log.Info().Str("package_id", p.ID).Str("name", p.Name).Msg("package created")
	return p, nil
}

func (u *packageUC) Get(ctx context.Context, id string) (*model.Package, error) {
	return u.repo.FindByID(ctx, repository.NoTX, id)
}

func (u *packageUC) ListActive(ctx context.Context) ([]*model.Package, error) {
	return u.repo.ListActive(ctx, repository.NoTX)
}

// Deactivate retires a package. Existing subscriptions keep their snapshot;
// no new subscription or renewal can use it.
func (u *packageUC) Deactivate(ctx context.Context, actor model.Actor, id string) (*model.Package, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrUnauthorizedAdminAction
	}
	p, err := u.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPackageUnavailable
		}
		return nil, err
	}
	if !p.IsActive {
		return p, nil
	}
	p.IsActive = false
	p.UpdatedAt = time.Now().UTC()
	if err := u.repo.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	u.log.Info().Str("package_id", p.ID).Msg("package deactivated")
	return p, nil
}
