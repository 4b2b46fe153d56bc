package delivery

import (
	"context"

	"github.com/umrahops/courier/id"
)

// Store defines the persistence and queue contract for deliveries.
//
// The queue guarantee is the system's only locking: a delivery returned by
// Dequeue is invisible to other consumers until UpdateDelivery releases it.
type Store interface {
	// Enqueue creates a delivery and makes it visible at its due time
	// (NextRetryAt when set, otherwise immediately).
	Enqueue(ctx context.Context, d *Delivery) error

	// EnqueueBatch creates multiple deliveries atomically.
	EnqueueBatch(ctx context.Context, ds []*Delivery) error

	// Dequeue atomically claims up to limit due deliveries. Each claimed
	// delivery is delivered to exactly one consumer.
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)

	// UpdateDelivery persists the outcome of an attempt and releases the
	// claim. Deliveries left in a non-terminal state become visible again
	// at their due time. Only the worker that dequeued the delivery may
	// call this; everyone else resets rows through Requeue.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// Requeue persists an operator reset and makes the delivery due
	// immediately. It fails with ErrInFlight while a worker holds the
	// queue claim, so a reset never races an attempt in progress.
	Requeue(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListBySubscription returns the delivery log for a subscription,
	// newest first.
	ListBySubscription(ctx context.Context, subID id.ID, opts ListOpts) ([]*Delivery, error)

	// ListByEvent returns all deliveries fanned out from one event.
	ListByEvent(ctx context.Context, evtID id.ID) ([]*Delivery, error)

	// CountPending returns the number of deliveries awaiting attempt.
	CountPending(ctx context.Context) (int64, error)
}
