package adapter

import (
	"context"
	"time"
)

// LifecycleNotice is the payload of a vendor-facing lifecycle email.
type LifecycleNotice struct {
	Email       string
	DisplayName string
	PackageName string
	EndDate     time.Time
	RenewalLink string
	Locale      string
}

// Notifier delivers lifecycle notifications to vendors. Callers treat
// failures as non-fatal.
type Notifier interface {
	SendRenewalReminder(ctx context.Context, n LifecycleNotice) error
	SendExpirationNotice(ctx context.Context, n LifecycleNotice) error
}

// AdminAlerter posts operator-facing messages.
type AdminAlerter interface {
	Alert(ctx context.Context, text string) error
}
