package repository

import (
	"context"

	"vendor-billing/internal/domain/model"
)

// VendorRepository is the port for merchant accounts. Implementations keep
// the card token encrypted at rest and return it decrypted.
type VendorRepository interface {
	Save(ctx context.Context, tx Tx, v *model.Vendor) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Vendor, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.Vendor, error)
	SaveCardToken(ctx context.Context, tx Tx, vendorID, token string) error
}
