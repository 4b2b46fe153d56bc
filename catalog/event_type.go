package catalog

import (
	"errors"
	"time"

	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
)

// Sentinel errors returned by catalog operations.
var (
	// ErrNotFound is returned when an event type is not registered.
	ErrNotFound = errors.New("catalog: event type not found")

	// ErrDeprecated is returned when dispatching an event with a deprecated type.
	ErrDeprecated = errors.New("catalog: event type is deprecated")

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("catalog: payload validation failed")
)

// EventType is the database entity for a registered webhook event type.
// It wraps Definition with identity and deprecation state.
type EventType struct {
	entity.Entity

	// ID is the unique TypeID for this event type.
	ID id.ID `json:"id"`

	// Definition contains the webhook event type descriptor.
	Definition Definition `json:"definition"`

	// IsDeprecated indicates whether this event type has been soft-deleted.
	IsDeprecated bool `json:"deprecated"`

	// DeprecatedAt is when the event type was deprecated.
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListOpts configures filtering and pagination for event type listing.
type ListOpts struct {
	Offset            int
	Limit             int
	Group             string
	IncludeDeprecated bool
}
