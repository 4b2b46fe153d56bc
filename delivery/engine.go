package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/observability"
	"github.com/umrahops/courier/subscription"
)

// EngineStore is the interface the engine needs for delivery operations.
type EngineStore interface {
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
	GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error)
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
}

// DLQPusher records deliveries that exhausted their retry budget.
type DLQPusher interface {
	PushExhausted(ctx context.Context, d *Delivery, sub *subscription.Subscription, evt *event.Event, lastError string, lastStatusCode int) error
}

// RateLimiter paces outbound deliveries per subscription.
type RateLimiter interface {
	Wait(ctx context.Context, subscriptionID string, rateLimit int) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	BatchSize      int
	RequestTimeout time.Duration
	MaxAttempts    int
	RetrySchedule  []time.Duration
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
}

// Engine is the delivery worker pool that dequeues and processes deliveries.
type Engine struct {
	store   EngineStore
	sender  *Sender
	retrier *Retrier
	dlq     DLQPusher
	limiter RateLimiter
	config  EngineConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, dlq DLQPusher, limiter RateLimiter, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		sender:  NewSender(cfg.RequestTimeout),
		retrier: NewRetrier(cfg.RetrySchedule, cfg.MaxAttempts),
		dlq:     dlq,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}
}

// Retrier exposes the engine's retry policy (used by the manual retry path
// and by callers that want to display the schedule).
func (e *Engine) Retrier() *Retrier {
	return e.retrier
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// pollLoop periodically dequeues due deliveries and dispatches them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, d := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(del *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, del)
				}(d)
			}
		}
	}
}

// process handles a single delivery: fetch subscription + event, send,
// decide, persist. The terminal decision is persisted before the delivery
// becomes visible to any other consumer, so two attempts for one id never race.
func (e *Engine) process(ctx context.Context, d *Delivery) {
	// The queue is at-least-once: a delivery claimed just before an operator
	// marked it terminal must not be re-attempted.
	if d.State.Terminal() {
		return
	}

	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.EventID.String(), d.SubscriptionID.String())
	}

	sub, err := e.store.GetSubscription(ctx, d.SubscriptionID)
	if err != nil {
		// The subscription was unsubscribed while this delivery was queued:
		// there is nothing to notify and no endpoint to report to. Drop.
		e.logger.WarnContext(ctx, "subscription gone, dropping delivery",
			"delivery_id", d.ID, "subscription_id", d.SubscriptionID, "error", err)
		e.drop(ctx, d, "subscription deleted")
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		return
	}

	evt, err := e.store.GetEvent(ctx, d.EventID)
	if err != nil {
		e.logger.ErrorContext(ctx, "event gone, dropping delivery",
			"delivery_id", d.ID, "event_id", d.EventID, "error", err)
		e.drop(ctx, d, "event record missing")
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		return
	}

	// Pace per-subscription outbound traffic before the attempt.
	if e.limiter != nil {
		if waitErr := e.limiter.Wait(ctx, sub.ID.String(), sub.RateLimit); waitErr != nil {
			if span != nil {
				e.config.Tracer.EndDeliverySpan(span, 0, 0, waitErr.Error())
			}
			return
		}
	}

	d.AttemptCount++
	result := e.sender.Send(ctx, sub, evt, d)

	d.LastError = result.Error
	d.LastStatusCode = result.StatusCode
	d.LastResponse = result.Response
	d.LastLatencyMs = result.LatencyMs

	latencySeconds := float64(result.LatencyMs) / 1000.0

	switch e.retrier.Decide(result, d) {
	case Delivered:
		now := time.Now().UTC()
		d.State = StateDelivered
		d.DeliveredAt = &now
		d.NextRetryAt = nil
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery(ctx, "delivered", latencySeconds)
			e.config.Metrics.AddPending(ctx, -1)
		}
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		delay, _ := e.retrier.NextDelay(d.AttemptCount)
		next := time.Now().UTC().Add(delay)
		d.State = StateFailed
		d.NextRetryAt = &next
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery(ctx, "retried", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.AttemptCount, "next_at", next)

	case Exhausted:
		d.State = StateExhausted
		d.NextRetryAt = nil
		if e.dlq != nil {
			if dlqErr := e.dlq.PushExhausted(ctx, d, sub, evt, result.Error, result.StatusCode); dlqErr != nil {
				e.logger.ErrorContext(ctx, "push to DLQ failed",
					"delivery_id", d.ID, "error", dlqErr)
			}
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery(ctx, "exhausted", latencySeconds)
			e.config.Metrics.AddPending(ctx, -1)
			e.config.Metrics.AddDLQ(ctx, 1)
		}
		e.logger.WarnContext(ctx, "delivery retry budget exhausted",
			"delivery_id", d.ID, "attempts", d.AttemptCount,
			"status", result.StatusCode, "error", result.Error)
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, d.LastStatusCode, d.LastLatencyMs, d.LastError)
	}

	if updateErr := e.store.UpdateDelivery(ctx, d); updateErr != nil {
		e.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", updateErr)
	}
}

// drop persists an undeliverable row in a terminal state without an attempt.
// The row stays as audit trail; the terminal state releases the queue claim
// so the row is not re-offered when the claim expires.
func (e *Engine) drop(ctx context.Context, d *Delivery, reason string) {
	d.State = StateExhausted
	d.NextRetryAt = nil
	d.LastError = reason
	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "drop delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}
