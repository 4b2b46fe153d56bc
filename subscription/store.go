package subscription

import (
	"context"

	"github.com/umrahops/courier/id"
)

// Store defines the persistence contract for webhook subscriptions.
type Store interface {
	// CreateSubscription persists a new subscription.
	CreateSubscription(ctx context.Context, sub *Subscription) error

	// GetSubscription returns a subscription by ID.
	GetSubscription(ctx context.Context, subID id.ID) (*Subscription, error)

	// UpdateSubscription modifies an existing subscription.
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	// DeleteSubscription removes a subscription.
	DeleteSubscription(ctx context.Context, subID id.ID) error

	// ListSubscriptions returns subscriptions for a tenant, optionally filtered.
	ListSubscriptions(ctx context.Context, tenantID string, opts ListOpts) ([]*Subscription, error)

	// Resolve finds all active subscriptions matching an event type for a
	// tenant. This is the hot path — called on every Dispatch, and must be
	// indexed by tenant.
	Resolve(ctx context.Context, tenantID string, eventType string) ([]*Subscription, error)

	// SetActive activates or deactivates a subscription without deleting it.
	SetActive(ctx context.Context, subID id.ID, active bool) error
}
