package subscription

import "errors"

// Sentinel errors for the subscription service layer.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("subscriber not found")
	ErrLocked          = errors.New("subscriber is locked by another operation")
	ErrConflict        = errors.New("email belongs to another customer's subscription")
)
