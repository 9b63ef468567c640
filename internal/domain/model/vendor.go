package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"vendor-billing/internal/domain"
)

type Role string

const (
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// Vendor is a merchant account on the marketplace. CardToken is the
// processor's reusable token and is only ever stored encrypted.
type Vendor struct {
	ID          string
	Email       string
	DisplayName string
	PhoneNumber string
	Role        Role
	CardToken   string
	Locale      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewVendor(id, email, displayName, phone string, role Role) (*Vendor, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	if role != RoleMerchant && role != RoleAdmin {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Vendor{
		ID:          id,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		PhoneNumber: strings.TrimSpace(phone),
		Role:        role,
		Locale:      "en",
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (v *Vendor) IsZero() bool { return v == nil || v.ID == "" }

// Name is what notifications greet the vendor with.
func (v *Vendor) Name() string {
	if v.DisplayName != "" {
		return v.DisplayName
	}
	if i := strings.IndexByte(v.Email, '@'); i > 0 {
		return v.Email[:i]
	}
	return "Vendor"
}

// Actor is the authenticated caller of an on-demand operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanManage reports whether the actor may act on vendorID's subscriptions.
func (a Actor) CanManage(vendorID string) bool {
	return a.IsAdmin() || (a.UserID != "" && a.UserID == vendorID)
}
