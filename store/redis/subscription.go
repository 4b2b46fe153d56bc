package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/umrahops/courier/catalog"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/subscription"
)

// subscriptionModel is the JSON representation stored in Redis. The signing
// secret is persisted here even though the API entity never serializes it.
type subscriptionModel struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	APIKeyID    string            `json:"api_key_id"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	Secret      string            `json:"secret"`
	Events      []string          `json:"events"`
	Headers     map[string]string `json:"headers,omitempty"`
	IsActive    bool              `json:"is_active"`
	RateLimit   int               `json:"rate_limit"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:          sub.ID.String(),
		TenantID:    sub.TenantID,
		APIKeyID:    sub.APIKeyID,
		URL:         sub.URL,
		Description: sub.Description,
		Secret:      sub.Secret,
		Events:      sub.Events,
		Headers:     sub.Headers,
		IsActive:    sub.IsActive,
		RateLimit:   sub.RateLimit,
		Metadata:    sub.Metadata,
		CreatedAt:   sub.CreatedAt,
		UpdatedAt:   sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          subID,
		TenantID:    m.TenantID,
		APIKeyID:    m.APIKeyID,
		URL:         m.URL,
		Description: m.Description,
		Secret:      m.Secret,
		Events:      m.Events,
		Headers:     m.Headers,
		IsActive:    m.IsActive,
		RateLimit:   m.RateLimit,
		Metadata:    m.Metadata,
	}, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	if err := s.setEntity(ctx, entityKey(prefixSubscription, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: create subscription: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zSubTenant+m.TenantID, goredis.Z{
		Score:  scoreFromTime(m.CreatedAt),
		Member: m.ID,
	}).Err(); err != nil {
		return fmt.Errorf("courier/redis: create subscription index: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := s.getEntity(ctx, entityKey(prefixSubscription, subID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("courier/redis: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	key := entityKey(prefixSubscription, sub.ID.String())
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: update subscription: %w", err)
	}
	if exists == 0 {
		return subscription.ErrNotFound
	}

	sub.UpdatedAt = now()
	m := toSubscriptionModel(sub)
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("courier/redis: update subscription: %w", err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	sub, err := s.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, entityKey(prefixSubscription, subID.String()))
	pipe.ZRem(ctx, zSubTenant+sub.TenantID, subID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: delete subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, tenantID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.ZRange(ctx, zSubTenant+tenantID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, 0, len(ids))
	for _, subID := range ids {
		var m subscriptionModel
		if err := s.getEntity(ctx, entityKey(prefixSubscription, subID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Active != nil && m.IsActive != *opts.Active {
			continue
		}
		sub, err := fromSubscriptionModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) Resolve(ctx context.Context, tenantID, eventType string) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.ZRange(ctx, zSubTenant+tenantID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: resolve: %w", err)
	}

	var result []*subscription.Subscription
	for _, subID := range ids {
		var m subscriptionModel
		if err := s.getEntity(ctx, entityKey(prefixSubscription, subID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if !m.IsActive || !catalog.MatchAny(m.Events, eventType) {
			continue
		}
		sub, err := fromSubscriptionModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

func (s *Store) SetActive(ctx context.Context, subID id.ID, active bool) error {
	sub, err := s.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	sub.IsActive = active
	return s.UpdateSubscription(ctx, sub)
}
