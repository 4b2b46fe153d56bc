package event

import (
	"context"
	"errors"

	"github.com/umrahops/courier/id"
)

// Sentinel errors returned by event operations.
var (
	// ErrNotFound is returned when an event cannot be found.
	ErrNotFound = errors.New("event: not found")

	// ErrDuplicateIdempotencyKey is returned when an event with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("event: duplicate idempotency key")
)

// Store defines the persistence contract for emitted events.
type Store interface {
	// CreateEvent persists an event. Returns ErrDuplicateIdempotencyKey on conflict.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// ListEventsByTenant returns events for a specific tenant.
	ListEventsByTenant(ctx context.Context, tenantID string, opts ListOpts) ([]*Event, error)
}
