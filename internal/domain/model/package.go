package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
)

const DefaultCurrency = "KES"

// Package is a purchasable vendor subscription tier in the catalog.
type Package struct {
	ID                    string
	Name                  string
	Description           string
	Price                 decimal.Decimal
	Currency              string
	Duration              int
	DurationUnit          DurationUnit
	ProductLimit          int
	FeaturedProductsLimit int
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewPackage validates and constructs an active package.
func NewPackage(id, name string, price decimal.Decimal, duration int, unit DurationUnit, productLimit, featuredLimit int) (*Package, error) {
	if id == "" {
		id = uuid.NewString()
	}
	name = strings.TrimSpace(name)
	if name == "" || price.IsNegative() || duration <= 0 || !unit.Valid() || productLimit < 0 || featuredLimit < 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Package{
		ID:                    id,
		Name:                  name,
		Price:                 price,
		Currency:              DefaultCurrency,
		Duration:              duration,
		DurationUnit:          unit,
		ProductLimit:          productLimit,
		FeaturedProductsLimit: featuredLimit,
		IsActive:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

func (p *Package) IsZero() bool { return p == nil || p.ID == "" }

// CoverageFrom returns the end of a coverage window that starts at start.
func (p *Package) CoverageFrom(start time.Time) (time.Time, error) {
	return AddDuration(start, p.Duration, p.DurationUnit)
}
