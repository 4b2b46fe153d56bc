package dlq

import (
	"errors"
	"time"

	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
)

// ErrNotFound is returned when a DLQ entry cannot be found.
var ErrNotFound = errors.New("dlq: entry not found")

// Entry is a snapshot of a delivery whose retry budget was exhausted. The
// delivery row itself stays in the audit log; the entry adds the failure
// context operators need to triage and replay.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// DeliveryID references the exhausted delivery.
	DeliveryID id.ID `json:"delivery_id"`

	// EventID references the original event.
	EventID id.ID `json:"event_id"`

	// SubscriptionID references the target subscription.
	SubscriptionID id.ID `json:"subscription_id"`

	// EventType is the event type name for filtering.
	EventType string `json:"event_type"`

	// TenantID identifies the tenant that owns the delivery.
	TenantID string `json:"tenant_id"`

	// URL is the subscription URL at the time of failure.
	URL string `json:"url"`

	// Payload is the event data that failed to deliver.
	Payload any `json:"payload"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// AttemptCount is the total number of attempts made.
	AttemptCount int `json:"attempt_count"`

	// LastStatusCode is the HTTP status code from the final attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// ReplayedAt is set when the entry has been replayed.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`

	// FailedAt is when the delivery exhausted its budget.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset         int
	Limit          int
	TenantID       string
	SubscriptionID *id.ID
	From           *time.Time
	To             *time.Time
}
