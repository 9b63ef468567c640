package domain

import "errors"

var (
	// Persistence errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Subscription lifecycle errors surfaced to callers
	ErrPackageUnavailable       = errors.New("package is not available")
	ErrMissingPhoneNumber       = errors.New("phone number is required for M-Pesa payments")
	ErrMissingCardToken         = errors.New("card token is required for card payments")
	ErrInvalidPaymentMethod     = errors.New("invalid payment method")
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrUnauthorizedAdminAction  = errors.New("only administrators can perform this action")
	ErrPaymentDeclined          = errors.New("payment was declined")
	ErrPaymentNotSettled        = errors.New("payment captured but not yet recorded")
	ErrRenewalInProgress        = errors.New("a renewal for this subscription is already in progress")
	ErrInvalidTransition        = errors.New("invalid subscription state transition")
	ErrVendorNotFound           = errors.New("vendor not found")
	ErrForbidden                = errors.New("not allowed to act on this vendor")
	ErrSubscriptionNotRenewable = errors.New("subscription cannot be renewed")
)
