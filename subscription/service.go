package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/signature"
)

// Service provides subscription management operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new subscription service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// validateURL enforces the platform invariant that webhook targets are HTTPS.
func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Subscribe registers a new webhook subscription. The signing secret is
// generated server-side and returned exactly once on the created aggregate.
func (svc *Service) Subscribe(ctx context.Context, in Input) (*Subscription, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	if len(in.Events) == 0 {
		return nil, ErrInvalidEventSet
	}

	sub := &Subscription{
		Entity:      entity.New(),
		ID:          id.NewSubscriptionID(),
		TenantID:    in.TenantID,
		APIKeyID:    in.APIKeyID,
		URL:         in.URL,
		Description: in.Description,
		Secret:      signature.GenerateSecret(),
		Events:      in.Events,
		Headers:     in.Headers,
		IsActive:    true,
		RateLimit:   in.RateLimit,
		Metadata:    in.Metadata,
	}

	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID, "tenant_id", sub.TenantID, "url", sub.URL)

	return sub, nil
}

// Get returns a subscription owned by the tenant.
func (svc *Service) Get(ctx context.Context, subID id.ID, tenantID string) (*Subscription, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return sub, nil
}

// Update modifies the URL and/or event set of an existing subscription.
// The signing secret is never changed here; use RotateSecret.
func (svc *Service) Update(ctx context.Context, subID id.ID, tenantID string, in Input) (*Subscription, error) {
	sub, err := svc.Get(ctx, subID, tenantID)
	if err != nil {
		return nil, err
	}

	if in.URL != "" {
		if err := validateURL(in.URL); err != nil {
			return nil, err
		}
		sub.URL = in.URL
	}
	if in.Events != nil {
		if len(in.Events) == 0 {
			return nil, ErrInvalidEventSet
		}
		sub.Events = in.Events
	}
	if in.Description != "" {
		sub.Description = in.Description
	}
	if in.Headers != nil {
		sub.Headers = in.Headers
	}
	if in.RateLimit >= 0 {
		sub.RateLimit = in.RateLimit
	}
	if in.Metadata != nil {
		sub.Metadata = in.Metadata
	}

	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

// RotateSecret generates a new signing secret for a subscription and returns
// it. Prior signatures are invalid going forward; attempts already in flight
// keep the secret they read at dequeue time.
func (svc *Service) RotateSecret(ctx context.Context, subID id.ID, tenantID string) (*Subscription, error) {
	sub, err := svc.Get(ctx, subID, tenantID)
	if err != nil {
		return nil, err
	}

	sub.Secret = signature.GenerateSecret()
	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "subscription secret rotated",
		"subscription_id", sub.ID, "tenant_id", sub.TenantID)

	return sub, nil
}

// Deactivate stops the dispatcher from creating new deliveries for the
// subscription. Deliveries already queued still attempt.
func (svc *Service) Deactivate(ctx context.Context, subID id.ID, tenantID string) error {
	if _, err := svc.Get(ctx, subID, tenantID); err != nil {
		return err
	}
	return svc.store.SetActive(ctx, subID, false)
}

// Activate re-enables a deactivated subscription.
func (svc *Service) Activate(ctx context.Context, subID id.ID, tenantID string) error {
	if _, err := svc.Get(ctx, subID, tenantID); err != nil {
		return err
	}
	return svc.store.SetActive(ctx, subID, true)
}

// Unsubscribe hard-deletes the subscription. Queued deliveries that
// reference it are dropped by the worker when it finds the row gone.
func (svc *Service) Unsubscribe(ctx context.Context, subID id.ID, tenantID string) error {
	if _, err := svc.Get(ctx, subID, tenantID); err != nil {
		return err
	}
	return svc.store.DeleteSubscription(ctx, subID)
}

// List returns subscriptions for a tenant.
func (svc *Service) List(ctx context.Context, tenantID string, opts ListOpts) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx, tenantID, opts)
}

// ListActiveForEvent returns all active subscriptions of the tenant whose
// event set matches the given event type.
func (svc *Service) ListActiveForEvent(ctx context.Context, tenantID, eventType string) ([]*Subscription, error) {
	return svc.store.Resolve(ctx, tenantID, eventType)
}
