package courier

import "time"

// Config holds the configuration for a Courier instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the delivery engine checks for due deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries dequeued per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the retry-budget ceiling per delivery.
	MaxAttempts int

	// RetrySchedule defines the backoff intervals between retry attempts,
	// indexed by attemptCount-1.
	RetrySchedule []time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries on shutdown.
	ShutdownTimeout time.Duration

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// Set to 0 to disable expiry.
	CacheTTL time.Duration
}

// DefaultRetrySchedule is the platform's fixed backoff table: the delay
// before retry n is DefaultRetrySchedule[n-1].
var DefaultRetrySchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
}

// DefaultMaxAttempts is the retry-budget ceiling. After the third failed
// attempt a delivery is terminal and only an operator retry can revive it.
const DefaultMaxAttempts = 3

// DefaultConfig returns a Config with the platform defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  30 * time.Second,
		MaxAttempts:     DefaultMaxAttempts,
		RetrySchedule:   DefaultRetrySchedule,
		ShutdownTimeout: 30 * time.Second,
		CacheTTL:        30 * time.Second,
	}
}
