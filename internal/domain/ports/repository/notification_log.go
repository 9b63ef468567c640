package repository

import (
	"context"
	"time"
)

// NotificationKind names a lifecycle notification sent to a vendor.
type NotificationKind string

const (
	NotificationRenewalReminder  NotificationKind = "renewal_reminder"
	NotificationExpirationNotice NotificationKind = "expiration_notice"
)

// NotificationLogRepository records lifecycle notifications actually delivered.
type NotificationLogRepository interface {
	Save(ctx context.Context, tx Tx, subscriptionID, vendorID string, kind NotificationKind, sentAt time.Time) error
	// CountSince returns how many notifications of kind were sent since t.
	CountSince(ctx context.Context, tx Tx, kind NotificationKind, since time.Time) (int, error)
}
