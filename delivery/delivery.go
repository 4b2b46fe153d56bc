package delivery

import (
	"errors"
	"time"

	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
)

// Sentinel errors returned by delivery operations.
var (
	// ErrNotFound is returned when a delivery cannot be found.
	ErrNotFound = errors.New("delivery: not found")

	// ErrAlreadyDelivered is returned when retrying a delivery that already succeeded.
	ErrAlreadyDelivered = errors.New("delivery: already delivered")

	// ErrInFlight is returned when resetting a delivery while a worker holds
	// its queue claim.
	ErrInFlight = errors.New("delivery: attempt in flight")
)

// State represents the current state of a delivery.
type State string

const (
	// StatePending indicates the delivery is awaiting its first attempt, or
	// was reset by an operator retry.
	StatePending State = "pending"

	// StateDelivered indicates the receiver acknowledged with a 2xx. Terminal.
	StateDelivered State = "delivered"

	// StateFailed indicates the last attempt failed and a retry is
	// scheduled. Transient: NextRetryAt is set only in this state.
	StateFailed State = "failed"

	// StateExhausted indicates the retry budget ran out. Terminal until an
	// operator retry resets it.
	StateExhausted State = "max_retries_exceeded"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateExhausted
}

// Delivery represents one attempted (and retried) notification of a single
// event to a single subscription. Rows are never deleted; they are the
// delivery audit log.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery. Receivers can use it as a
	// stable idempotency key across retries.
	ID id.ID `json:"id"`

	// SubscriptionID references the target subscription.
	SubscriptionID id.ID `json:"subscription_id"`

	// EventID references the event being delivered.
	EventID id.ID `json:"event_id"`

	// TenantID identifies the owning tenant.
	TenantID string `json:"tenant_id"`

	// EventType is denormalized from the event for the delivery log.
	EventType string `json:"event_type"`

	// State is the current delivery state.
	State State `json:"status"`

	// AttemptCount is the number of delivery attempts made so far. It only
	// increases, except through an explicit operator retry.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the retry-budget ceiling for this delivery.
	MaxAttempts int `json:"max_attempts"`

	// NextRetryAt is when the next attempt is due. Set only while State is
	// failed; nil in every terminal state.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// LastStatusCode is the HTTP status code from the most recent attempt.
	LastStatusCode int `json:"http_status,omitempty"`

	// LastResponse is the response body from the most recent attempt (capped at 1KB).
	LastResponse string `json:"response_body,omitempty"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastLatencyMs is the latency in milliseconds of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// DeliveredAt is when the receiver acknowledged the delivery.
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
