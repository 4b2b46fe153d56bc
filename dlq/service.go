package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/subscription"
)

// Retryer resets a delivery's retry budget and re-enqueues it. Satisfied by
// delivery.Service: replaying a DLQ entry goes through the same reset path
// as an operator retry, which is the only way a budget comes back.
type Retryer interface {
	Retry(ctx context.Context, delID id.ID, tenantID string) (*delivery.Delivery, error)
}

// Service manages the dead letter queue.
type Service struct {
	store   Store
	retryer Retryer
	logger  *slog.Logger
}

// NewService creates a new DLQ service.
func NewService(store Store, retryer Retryer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		retryer: retryer,
		logger:  logger,
	}
}

// PushExhausted creates a DLQ entry from an exhausted delivery.
// Implements delivery.DLQPusher.
func (svc *Service) PushExhausted(ctx context.Context, d *delivery.Delivery, sub *subscription.Subscription, evt *event.Event, lastError string, lastStatusCode int) error {
	payload, marshalErr := json.Marshal(evt.Data)
	if marshalErr != nil {
		return fmt.Errorf("dlq: marshal payload: %w", marshalErr)
	}

	entry := &Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		DeliveryID:     d.ID,
		EventID:        d.EventID,
		SubscriptionID: d.SubscriptionID,
		EventType:      evt.Type,
		TenantID:       d.TenantID,
		URL:            sub.URL,
		Payload:        json.RawMessage(payload),
		Error:          lastError,
		AttemptCount:   d.AttemptCount,
		LastStatusCode: lastStatusCode,
		FailedAt:       time.Now().UTC(),
	}

	return svc.store.Push(ctx, entry)
}

// List returns DLQ entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns a DLQ entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// Replay resets the referenced delivery and re-enqueues it immediately.
func (svc *Service) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := svc.store.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	if _, err := svc.retryer.Retry(ctx, entry.DeliveryID, entry.TenantID); err != nil {
		return err
	}

	return svc.store.MarkReplayed(ctx, dlqID, time.Now().UTC())
}

// ReplayBulk replays all unreplayed entries within a time range and returns
// how many were re-enqueued.
func (svc *Service) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	entries, err := svc.store.ListDLQ(ctx, ListOpts{From: &from, To: &to})
	if err != nil {
		return 0, err
	}

	var count int64
	for _, entry := range entries {
		if entry.ReplayedAt != nil {
			continue
		}
		if _, retryErr := svc.retryer.Retry(ctx, entry.DeliveryID, entry.TenantID); retryErr != nil {
			svc.logger.WarnContext(ctx, "bulk replay skipped entry",
				"dlq_id", entry.ID, "delivery_id", entry.DeliveryID, "error", retryErr)
			continue
		}
		if markErr := svc.store.MarkReplayed(ctx, entry.ID, time.Now().UTC()); markErr != nil {
			return count, markErr
		}
		count++
	}
	return count, nil
}

// Purge removes old DLQ entries.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.PurgeDLQ(ctx, before)
}

// Count returns the total number of DLQ entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}
