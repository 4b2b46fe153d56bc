package event

import (
	"time"

	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
)

// Event represents a business event emitted by a domain module and submitted
// for webhook delivery. The payload is the payload of record: deliveries
// reference it so the queue carries only identifiers and the payload is
// stored once per event, not per delivery.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// Type is the dot-separated event type name (e.g. "payment.confirmed").
	Type string `json:"type"`

	// TenantID identifies the tenant the event belongs to.
	TenantID string `json:"tenant_id"`

	// Data is the opaque event payload. Immutable once created.
	Data any `json:"data"`

	// APIKeyID records the API-key identity that emitted the event, when known.
	APIKeyID string `json:"api_key_id,omitempty"`

	// IdempotencyKey prevents duplicate event processing.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}
