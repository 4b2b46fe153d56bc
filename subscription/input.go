package subscription

// Input is the creation/update payload for subscriptions.
type Input struct {
	// TenantID identifies the tenant that owns this subscription.
	TenantID string `json:"tenant_id"`

	// APIKeyID is the API-key identity registering the subscription.
	APIKeyID string `json:"api_key_id"`

	// URL is the webhook delivery URL. Must be https.
	URL string `json:"url"`

	// Description is a human-readable description.
	Description string `json:"description"`

	// Events are the subscribed event type tags.
	Events []string `json:"events"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListOpts configures filtering and pagination for subscription listing.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
