package courier

import (
	"log/slog"
	"time"

	"github.com/umrahops/courier/catalog"
	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/observability"
	"github.com/umrahops/courier/ratelimit"
	"github.com/umrahops/courier/store"
	"github.com/umrahops/courier/subscription"
)

// Courier is the root webhook delivery engine.
type Courier struct {
	config      Config
	store       store.Store
	catalog     *catalog.Catalog
	validator   *catalog.Validator
	subSvc      *subscription.Service
	deliverySvc *delivery.Service
	dlqSvc      *dlq.Service
	engine      *delivery.Engine
	limiter     *ratelimit.Limiter
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      *slog.Logger
}

// Option configures a Courier instance.
type Option func(*Courier) error

// New creates a new Courier with the given options.
func New(opts ...Option) (*Courier, error) {
	c := &Courier{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.store == nil {
		return nil, ErrNoStore
	}
	c.wireServices()
	return c, nil
}

// WithStore sets the persistence backend for the Courier instance.
func WithStore(s store.Store) Option {
	return func(c *Courier) error {
		c.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Courier instance.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Courier) error {
		c.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(c *Courier) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the delivery engine checks for due deliveries.
func WithPollInterval(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries dequeued per poll cycle.
func WithBatchSize(n int) Option {
	return func(c *Courier) error {
		c.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.RequestTimeout = d
		return nil
	}
}

// WithMaxAttempts sets the retry-budget ceiling per delivery.
func WithMaxAttempts(n int) Option {
	return func(c *Courier) error {
		c.config.MaxAttempts = n
		return nil
	}
}

// WithRetrySchedule sets the backoff intervals between retry attempts.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(c *Courier) error {
		c.config.RetrySchedule = schedule
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.ShutdownTimeout = d
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.CacheTTL = d
		return nil
	}
}

// WithMetrics enables OpenTelemetry metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Courier) error {
		c.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry tracing of delivery attempts.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Courier) error {
		c.tracer = t
		return nil
	}
}
