package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound                 = errors.New("entity not found")
	ErrAlreadyExists            = errors.New("entity already exists")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrActiveSubscriptionExists = errors.New("user already has an active plan purchase")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrSignatureMismatch        = errors.New("webhook signature mismatch")
	ErrLockNotAcquired          = errors.New("could not acquire lock")

	// Storage-layer failures surfaced through repositories
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)
