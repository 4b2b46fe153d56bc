package courier

import (
	"errors"

	"github.com/umrahops/courier/catalog"
	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/store"
	"github.com/umrahops/courier/subscription"
)

// Sentinel errors returned by Courier operations. Entity-scoped errors are
// aliased from their owning packages so callers can match with errors.Is
// against either name.
var (
	// ErrNoStore is returned when a Courier is created without a store.
	ErrNoStore = errors.New("courier: store is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = store.ErrClosed

	// ErrInvalidURL is returned when a subscription URL does not parse or is not https.
	ErrInvalidURL = subscription.ErrInvalidURL

	// ErrInvalidEventSet is returned when a subscription is registered without event types.
	ErrInvalidEventSet = subscription.ErrInvalidEventSet

	// ErrSubscriptionNotFound is returned when a subscription cannot be found.
	ErrSubscriptionNotFound = subscription.ErrNotFound

	// ErrAlreadyDelivered is returned when retrying a delivery that already succeeded.
	ErrAlreadyDelivered = delivery.ErrAlreadyDelivered

	// ErrDeliveryInFlight is returned when retrying a delivery while a worker
	// attempt is in progress.
	ErrDeliveryInFlight = delivery.ErrInFlight

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = delivery.ErrNotFound

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = event.ErrNotFound

	// ErrDuplicateIdempotencyKey is returned when an event with the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = event.ErrDuplicateIdempotencyKey

	// ErrEventTypeNotFound is returned when an event type is not registered in the catalog.
	ErrEventTypeNotFound = catalog.ErrNotFound

	// ErrEventTypeDeprecated is returned when dispatching an event with a deprecated type.
	ErrEventTypeDeprecated = catalog.ErrDeprecated

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = catalog.ErrPayloadValidationFailed

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = dlq.ErrNotFound
)
