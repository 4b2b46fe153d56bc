package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	EventID        string     `json:"event_id"`
	TenantID       string     `json:"tenant_id"`
	EventType      string     `json:"event_type"`
	State          string     `json:"state"`
	AttemptCount   int        `json:"attempt_count"`
	MaxAttempts    int        `json:"max_attempts"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	LastStatusCode int        `json:"last_status_code"`
	LastResponse   string     `json:"last_response"`
	LastError      string     `json:"last_error"`
	LastLatencyMs  int        `json:"last_latency_ms"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		SubscriptionID: d.SubscriptionID.String(),
		EventID:        d.EventID.String(),
		TenantID:       d.TenantID,
		EventType:      d.EventType,
		State:          string(d.State),
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		NextRetryAt:    d.NextRetryAt,
		LastStatusCode: d.LastStatusCode,
		LastResponse:   d.LastResponse,
		LastError:      d.LastError,
		LastLatencyMs:  d.LastLatencyMs,
		DeliveredAt:    d.DeliveredAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		SubscriptionID: subID,
		EventID:        evtID,
		TenantID:       m.TenantID,
		EventType:      m.EventType,
		State:          delivery.State(m.State),
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		NextRetryAt:    m.NextRetryAt,
		LastStatusCode: m.LastStatusCode,
		LastResponse:   m.LastResponse,
		LastError:      m.LastError,
		LastLatencyMs:  m.LastLatencyMs,
		DeliveredAt:    m.DeliveredAt,
	}, nil
}

// dueScore is the queue score for a delivery: NextRetryAt when a retry is
// scheduled, otherwise creation time (due immediately).
func dueScore(m *deliveryModel) float64 {
	if m.NextRetryAt != nil {
		return scoreFromTime(*m.NextRetryAt)
	}
	return scoreFromTime(m.CreatedAt)
}

// claimTTL is the queue visibility timeout: a claim whose deadline passed is
// assumed orphaned by a crashed worker and moves back to the due set.
const claimTTL = 5 * time.Minute

// dequeueScript atomically claims due deliveries. A claimed member moves from
// the due set to the claimed set, scored by its claim deadline; moving it
// inside the script makes the claim exclusive, and expired claims are swept
// back to the due set first so crashed workers cannot strand deliveries.
// KEYS[1] = courier:z:del:due
// KEYS[2] = courier:z:del:claimed
// ARGV[1] = current unix timestamp (score threshold)
// ARGV[2] = limit
// ARGV[3] = claim deadline score
var dequeueScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for i, id in ipairs(expired) do
    redis.call('ZREM', KEYS[2], id)
    redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('ZADD', KEYS[2], ARGV[3], id)
end
return ids
`)

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	return s.EnqueueBatch(ctx, []*delivery.Delivery{d})
}

func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, d := range ds {
		m := toDeliveryModel(d)
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("courier/redis: enqueue marshal: %w", err)
		}
		pipe.Set(ctx, entityKey(prefixDelivery, m.ID), raw, 0)
		pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m), Member: m.ID})
		pipe.ZAdd(ctx, zDeliverySub+m.SubscriptionID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
		pipe.ZAdd(ctx, zDeliveryEvt+m.EventID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: enqueue batch: %w", err)
	}
	return nil
}

func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	t := now()
	nowScore := fmt.Sprintf("%f", scoreFromTime(t))
	deadlineScore := fmt.Sprintf("%f", scoreFromTime(t.Add(claimTTL)))
	claimed, err := dequeueScript.Run(ctx, s.rdb,
		[]string{zDeliveryDue, zDeliveryHeld}, nowScore, limit, deadlineScore).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("courier/redis: dequeue script: %w", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(claimed))
	for _, delID := range claimed {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("courier/redis: dequeue get: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	key := entityKey(prefixDelivery, d.ID.String())
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: update delivery: %w", err)
	}
	if exists == 0 {
		return delivery.ErrNotFound
	}

	d.UpdatedAt = now()
	m := toDeliveryModel(d)
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("courier/redis: update delivery marshal: %w", err)
	}

	// Release the claim; non-terminal states go back on the queue at their
	// due time, terminal states stay off it.
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, 0)
	pipe.ZRem(ctx, zDeliveryHeld, m.ID)
	if !d.State.Terminal() {
		pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m), Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: update delivery: %w", err)
	}
	return nil
}

// Requeue persists an operator reset. A live entry in the claimed set means
// a worker attempt is in progress, so the reset is rejected rather than
// racing it.
func (s *Store) Requeue(ctx context.Context, d *delivery.Delivery) error {
	key := entityKey(prefixDelivery, d.ID.String())
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: requeue delivery: %w", err)
	}
	if exists == 0 {
		return delivery.ErrNotFound
	}

	deadline, err := s.rdb.ZScore(ctx, zDeliveryHeld, d.ID.String()).Result()
	if err != nil && !isRedisNil(err) {
		return fmt.Errorf("courier/redis: requeue delivery: %w", err)
	}
	if err == nil && deadline > scoreFromTime(now()) {
		return delivery.ErrInFlight
	}

	d.UpdatedAt = now()
	m := toDeliveryModel(d)
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("courier/redis: requeue delivery marshal: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, 0)
	pipe.ZRem(ctx, zDeliveryHeld, m.ID)
	pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: requeue delivery: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("courier/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliverySub+subID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list by subscription: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.State != nil && delivery.State(m.State) != *opts.State {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEvt+evtID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list by event: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	pipe := s.rdb.Pipeline()
	due := pipe.ZCard(ctx, zDeliveryDue)
	held := pipe.ZCard(ctx, zDeliveryHeld)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("courier/redis: count pending: %w", err)
	}
	return due.Val() + held.Val(), nil
}
