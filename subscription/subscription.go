package subscription

import (
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
)

// Subscription represents a webhook delivery target registered by a tenant.
type Subscription struct {
	entity.Entity

	// ID is the unique TypeID for this subscription.
	ID id.ID `json:"id"`

	// TenantID identifies the tenant that owns this subscription.
	TenantID string `json:"tenant_id"`

	// APIKeyID is the API-key identity that registered the subscription.
	APIKeyID string `json:"api_key_id"`

	// URL is the webhook delivery URL. Always https.
	URL string `json:"url"`

	// Description is a human-readable description of this subscription.
	Description string `json:"description,omitempty"`

	// Secret is the HMAC signing secret. Never serialized; it is returned
	// exactly once on creation and on rotation.
	Secret string `json:"-"`

	// Events are the subscribed event type tags. A tag may use the
	// single-segment wildcard form ("payment.*") or "*".
	Events []string `json:"events"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// IsActive indicates whether the dispatcher creates new deliveries for
	// this subscription. Already-queued deliveries still attempt.
	IsActive bool `json:"is_active"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}
