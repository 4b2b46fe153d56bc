package courier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/umrahops/courier/catalog"
	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/internal/identity"
	"github.com/umrahops/courier/ratelimit"
	"github.com/umrahops/courier/store"
	"github.com/umrahops/courier/subscription"
)

// wireServices initializes the internal services after options have been applied.
func (c *Courier) wireServices() {
	c.catalog = catalog.NewCatalog(c.store, catalog.Config{
		CacheTTL: c.config.CacheTTL,
	}, c.logger)

	c.validator = catalog.NewValidator()

	c.subSvc = subscription.NewService(c.store, c.logger)
	c.deliverySvc = delivery.NewService(c.store, c.logger)
	c.dlqSvc = dlq.NewService(c.store, c.deliverySvc, c.logger)
	c.limiter = ratelimit.New()

	c.engine = delivery.NewEngine(c.store, c.dlqSvc, c.limiter, delivery.EngineConfig{
		Concurrency:    c.config.Concurrency,
		PollInterval:   c.config.PollInterval,
		BatchSize:      c.config.BatchSize,
		RequestTimeout: c.config.RequestTimeout,
		MaxAttempts:    c.config.MaxAttempts,
		RetrySchedule:  c.config.RetrySchedule,
		Metrics:        c.metrics,
		Tracer:         c.tracer,
	}, c.logger)
}

// Start begins the delivery engine.
func (c *Courier) Start(ctx context.Context) {
	c.engine.Start(ctx)
}

// Stop gracefully shuts down the delivery engine, waiting for in-flight
// deliveries up to the configured shutdown timeout.
func (c *Courier) Stop(ctx context.Context) {
	if c.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ShutdownTimeout)
		defer cancel()
	}
	c.engine.Stop(ctx)
}

// DispatchOption customizes a dispatched event.
type DispatchOption func(*event.Event)

// WithIdempotencyKey deduplicates dispatches: a second dispatch with the same
// key is a no-op success that creates no new deliveries.
func WithIdempotencyKey(key string) DispatchOption {
	return func(evt *event.Event) {
		evt.IdempotencyKey = key
	}
}

// Dispatch validates and persists an event, then fans out one pending
// delivery per matching active subscription of the tenant. It returns the IDs
// of the created deliveries and never performs HTTP I/O itself.
//
// Unknown event types are accepted unchanged: the catalog gates only types it
// knows about (deprecation, schema validation). Zero matching subscriptions
// is a success with no deliveries.
func (c *Courier) Dispatch(ctx context.Context, tenantID, eventType string, payload any, opts ...DispatchOption) ([]id.ID, error) {
	et, err := c.catalog.GetType(ctx, eventType)
	switch {
	case err == nil:
		if et.IsDeprecated {
			return nil, fmt.Errorf("%w: %s", ErrEventTypeDeprecated, eventType)
		}
		if len(et.Definition.Schema) > 0 {
			if validateErr := c.validator.Validate(et.Definition.Schema, payload); validateErr != nil {
				return nil, fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
			}
		}
	case errors.Is(err, catalog.ErrNotFound):
		// Forward compatible: unregistered types dispatch without validation.
	default:
		return nil, fmt.Errorf("courier: catalog lookup: %w", err)
	}

	evt := &event.Event{
		Entity:   entity.New(),
		ID:       id.NewEventID(),
		Type:     eventType,
		TenantID: tenantID,
	}
	evt.Data = payload
	if ident := identity.FromContext(ctx); ident.APIKeyID != "" {
		evt.APIKeyID = ident.APIKeyID
	}
	for _, opt := range opts {
		opt(evt)
	}

	if createErr := c.store.CreateEvent(ctx, evt); createErr != nil {
		if errors.Is(createErr, ErrDuplicateIdempotencyKey) {
			return nil, nil // idempotent: already processed
		}
		return nil, fmt.Errorf("courier: persist event: %w", createErr)
	}

	subs, err := c.store.Resolve(ctx, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("courier: resolve subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(subs))
	delIDs := make([]id.ID, 0, len(subs))
	for _, sub := range subs {
		d := &delivery.Delivery{
			Entity:         entity.New(),
			ID:             id.NewDeliveryID(),
			SubscriptionID: sub.ID,
			EventID:        evt.ID,
			TenantID:       tenantID,
			EventType:      eventType,
			State:          delivery.StatePending,
			AttemptCount:   0,
			MaxAttempts:    c.config.MaxAttempts,
		}
		deliveries = append(deliveries, d)
		delIDs = append(delIDs, d.ID)
	}

	if err := c.store.EnqueueBatch(ctx, deliveries); err != nil {
		return nil, fmt.Errorf("courier: enqueue deliveries: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordDispatch(ctx, eventType, len(deliveries))
	}

	c.logger.DebugContext(ctx, "event dispatched",
		"event_id", evt.ID,
		"type", eventType,
		"tenant_id", tenantID,
		"deliveries", len(deliveries),
	)

	return delIDs, nil
}

// SendTest dispatches a synthetic event to a single subscription, bypassing
// tag matching. Used by the "send test webhook" operation.
func (c *Courier) SendTest(ctx context.Context, subID id.ID, tenantID string) (id.ID, error) {
	sub, err := c.subSvc.Get(ctx, subID, tenantID)
	if err != nil {
		return id.ID{}, err
	}

	evt := &event.Event{
		Entity:   entity.New(),
		ID:       id.NewEventID(),
		Type:     "test.ping",
		TenantID: tenantID,
		Data: map[string]any{
			"subscription_id": sub.ID.String(),
			"sent_at":         time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := c.store.CreateEvent(ctx, evt); err != nil {
		return id.ID{}, fmt.Errorf("courier: persist test event: %w", err)
	}

	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		SubscriptionID: sub.ID,
		EventID:        evt.ID,
		TenantID:       tenantID,
		EventType:      evt.Type,
		State:          delivery.StatePending,
		MaxAttempts:    c.config.MaxAttempts,
	}
	if err := c.store.Enqueue(ctx, d); err != nil {
		return id.ID{}, fmt.Errorf("courier: enqueue test delivery: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordDispatch(ctx, evt.Type, 1)
	}
	return d.ID, nil
}

// Subscriptions returns the subscription management service.
func (c *Courier) Subscriptions() *subscription.Service {
	return c.subSvc
}

// Deliveries returns the delivery log and retry service.
func (c *Courier) Deliveries() *delivery.Service {
	return c.deliverySvc
}

// Catalog returns the event type catalog.
func (c *Courier) Catalog() *catalog.Catalog {
	return c.catalog
}

// DLQ returns the dead letter queue service.
func (c *Courier) DLQ() *dlq.Service {
	return c.dlqSvc
}

// Store returns the underlying store.
func (c *Courier) Store() store.Store {
	return c.store
}
