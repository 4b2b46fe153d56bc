package delivery

import (
	"context"
	"log/slog"

	"github.com/umrahops/courier/id"
)

// DefaultLogLimit bounds the delivery-log page size: at most the 100 most
// recent deliveries per subscription are returned.
const DefaultLogLimit = 100

// Service exposes delivery-log reads and the operator retry operation.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new delivery service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Get returns a delivery owned by the tenant.
func (svc *Service) Get(ctx context.Context, delID id.ID, tenantID string) (*Delivery, error) {
	d, err := svc.store.GetDelivery(ctx, delID)
	if err != nil {
		return nil, err
	}
	if d.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return d, nil
}

// ListBySubscription returns the delivery log for a subscription, newest
// first, capped at DefaultLogLimit rows.
func (svc *Service) ListBySubscription(ctx context.Context, subID id.ID, opts ListOpts) ([]*Delivery, error) {
	if opts.Limit <= 0 || opts.Limit > DefaultLogLimit {
		opts.Limit = DefaultLogLimit
	}
	return svc.store.ListBySubscription(ctx, subID, opts)
}

// Retry is the operator recovery path: it resets a non-delivered delivery
// to pending with a fresh retry budget and re-enqueues it immediately.
// This is the only operation that resets AttemptCount. A delivery whose
// attempt is in flight cannot be reset until the worker releases it; the
// store reports that with ErrInFlight.
func (svc *Service) Retry(ctx context.Context, delID id.ID, tenantID string) (*Delivery, error) {
	d, err := svc.Get(ctx, delID, tenantID)
	if err != nil {
		return nil, err
	}

	if d.State == StateDelivered {
		return nil, ErrAlreadyDelivered
	}

	d.State = StatePending
	d.AttemptCount = 0
	d.NextRetryAt = nil

	if err := svc.store.Requeue(ctx, d); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "delivery manually retried",
		"delivery_id", d.ID, "tenant_id", tenantID)

	return d, nil
}
