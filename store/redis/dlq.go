package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
)

// dlqModel is the JSON representation stored in Redis.
type dlqModel struct {
	ID             string          `json:"id"`
	DeliveryID     string          `json:"delivery_id"`
	EventID        string          `json:"event_id"`
	SubscriptionID string          `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	TenantID       string          `json:"tenant_id"`
	URL            string          `json:"url"`
	Payload        json.RawMessage `json:"payload"`
	Error          string          `json:"error"`
	AttemptCount   int             `json:"attempt_count"`
	LastStatusCode int             `json:"last_status_code,omitempty"`
	ReplayedAt     *time.Time      `json:"replayed_at,omitempty"`
	FailedAt       time.Time       `json:"failed_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDLQModel(e *dlq.Entry) (*dlqModel, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal DLQ payload: %w", err)
	}
	return &dlqModel{
		ID:             e.ID.String(),
		DeliveryID:     e.DeliveryID.String(),
		EventID:        e.EventID.String(),
		SubscriptionID: e.SubscriptionID.String(),
		EventType:      e.EventType,
		TenantID:       e.TenantID,
		URL:            e.URL,
		Payload:        payload,
		Error:          e.Error,
		AttemptCount:   e.AttemptCount,
		LastStatusCode: e.LastStatusCode,
		ReplayedAt:     e.ReplayedAt,
		FailedAt:       e.FailedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}, nil
}

func fromDLQModel(m *dlqModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	delID, err := id.ParseDeliveryID(m.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.DeliveryID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		DeliveryID:     delID,
		EventID:        evtID,
		SubscriptionID: subID,
		EventType:      m.EventType,
		TenantID:       m.TenantID,
		URL:            m.URL,
		Payload:        m.Payload,
		Error:          m.Error,
		AttemptCount:   m.AttemptCount,
		LastStatusCode: m.LastStatusCode,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m, err := toDLQModel(entry)
	if err != nil {
		return fmt.Errorf("courier/redis: push DLQ: %w", err)
	}
	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: push DLQ: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zDLQAll, goredis.Z{
		Score:  scoreFromTime(m.FailedAt),
		Member: m.ID,
	}).Err(); err != nil {
		return fmt.Errorf("courier/redis: push DLQ index: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.rdb.ZRange(ctx, zDLQAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list DLQ: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order by failure time
		var m dlqModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.TenantID != "" && m.TenantID != opts.TenantID {
			continue
		}
		if opts.SubscriptionID != nil && m.SubscriptionID != opts.SubscriptionID.String() {
			continue
		}
		if opts.From != nil && m.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && m.FailedAt.After(*opts.To) {
			continue
		}
		e, err := fromDLQModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, dlq.ErrNotFound
		}
		return nil, fmt.Errorf("courier/redis: get DLQ: %w", err)
	}
	return fromDLQModel(&m)
}

func (s *Store) MarkReplayed(ctx context.Context, dlqID id.ID, at time.Time) error {
	key := entityKey(prefixDLQ, dlqID.String())
	var m dlqModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return dlq.ErrNotFound
		}
		return fmt.Errorf("courier/redis: mark replayed: %w", err)
	}
	m.ReplayedAt = &at
	m.UpdatedAt = at
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("courier/redis: mark replayed: %w", err)
	}
	return nil
}

func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	maxScore := fmt.Sprintf("%f", scoreFromTime(before))
	ids, err := s.rdb.ZRangeByScore(ctx, zDLQAll, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: purge DLQ: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.rdb.Pipeline()
	for _, dlqID := range ids {
		pipe.Del(ctx, entityKey(prefixDLQ, dlqID))
		pipe.ZRem(ctx, zDLQAll, dlqID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("courier/redis: purge DLQ: %w", err)
	}
	return int64(len(ids)), nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: count DLQ: %w", err)
	}
	return count, nil
}
