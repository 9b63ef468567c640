package repository

import (
	"context"

	"vendor-billing/internal/domain/model"
)

// PackageRepository is the package catalog port.
type PackageRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Package) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Package, error)
	// FindActiveByID returns domain.ErrNotFound for inactive packages too.
	FindActiveByID(ctx context.Context, tx Tx, id string) (*model.Package, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Package, error)
}
