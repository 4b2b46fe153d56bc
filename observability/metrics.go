// Package observability provides OpenTelemetry metrics and tracing for the
// delivery pipeline.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/umrahops/courier"

// Metrics holds the metric instruments for the delivery pipeline.
type Metrics struct {
	EventsDispatched  metric.Int64Counter
	DeliveriesTotal   metric.Int64Counter
	DeliveryLatency   metric.Float64Histogram
	PendingDeliveries metric.Int64UpDownCounter
	DLQSize           metric.Int64UpDownCounter
}

// NewMetrics creates the metric instruments on the given meter. Pass nil to
// use the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	eventsDispatched, err := meter.Int64Counter("courier_events_dispatched_total",
		metric.WithDescription("Events accepted by Dispatch"))
	if err != nil {
		return nil, err
	}

	deliveriesTotal, err := meter.Int64Counter("courier_deliveries_total",
		metric.WithDescription("Delivery attempts by outcome"))
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("courier_delivery_latency_seconds",
		metric.WithDescription("Outbound request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	pendingDeliveries, err := meter.Int64UpDownCounter("courier_pending_deliveries",
		metric.WithDescription("Deliveries waiting in the queue"))
	if err != nil {
		return nil, err
	}

	dlqSize, err := meter.Int64UpDownCounter("courier_dlq_size",
		metric.WithDescription("Entries in the dead letter queue"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		EventsDispatched:  eventsDispatched,
		DeliveriesTotal:   deliveriesTotal,
		DeliveryLatency:   deliveryLatency,
		PendingDeliveries: pendingDeliveries,
		DLQSize:           dlqSize,
	}, nil
}

// RecordDispatch records an accepted event and the number of deliveries it
// fanned out to.
func (m *Metrics) RecordDispatch(ctx context.Context, eventType string, fanout int) {
	m.EventsDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
	m.PendingDeliveries.Add(ctx, int64(fanout))
}

// RecordDelivery records a delivery attempt outcome and its latency.
func (m *Metrics) RecordDelivery(ctx context.Context, outcome string, latencySeconds float64) {
	m.DeliveriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.DeliveryLatency.Record(ctx, latencySeconds)
}

// AddPending adjusts the pending deliveries gauge.
func (m *Metrics) AddPending(ctx context.Context, n int64) {
	m.PendingDeliveries.Add(ctx, n)
}

// AddDLQ adjusts the DLQ size gauge.
func (m *Metrics) AddDLQ(ctx context.Context, n int64) {
	m.DLQSize.Add(ctx, n)
}
