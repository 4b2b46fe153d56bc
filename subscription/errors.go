package subscription

import "errors"

// Sentinel errors returned by subscription operations.
var (
	// ErrInvalidURL is returned when a URL does not parse or its scheme is not https.
	ErrInvalidURL = errors.New("subscription: URL must be a valid https URL")

	// ErrInvalidEventSet is returned when the event set is empty.
	ErrInvalidEventSet = errors.New("subscription: at least one event type required")

	// ErrNotFound is returned when a subscription cannot be found.
	ErrNotFound = errors.New("subscription: not found")
)
