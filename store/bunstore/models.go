package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/umrahops/courier/catalog"
	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/subscription"
)

// --- Event type models ---

type eventTypeModel struct {
	bun.BaseModel `bun:"table:courier_event_types"`

	ID            string            `bun:"id,pk"`
	Name          string            `bun:"name,unique"`
	Description   string            `bun:"description"`
	GroupName     string            `bun:"group_name"`
	Schema        json.RawMessage   `bun:"schema,type:jsonb"`
	SchemaVersion string            `bun:"schema_version"`
	Version       string            `bun:"version"`
	Example       json.RawMessage   `bun:"example,type:jsonb"`
	IsDeprecated  bool              `bun:"is_deprecated"`
	DeprecatedAt  *time.Time        `bun:"deprecated_at"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt     time.Time         `bun:"created_at,notnull"`
	UpdatedAt     time.Time         `bun:"updated_at,notnull"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:            et.ID.String(),
		Name:          et.Definition.Name,
		Description:   et.Definition.Description,
		GroupName:     et.Definition.Group,
		Schema:        et.Definition.Schema,
		SchemaVersion: et.Definition.SchemaVersion,
		Version:       et.Definition.Version,
		Example:       et.Definition.Example,
		IsDeprecated:  et.IsDeprecated,
		DeprecatedAt:  et.DeprecatedAt,
		Metadata:      et.Metadata,
		CreatedAt:     et.CreatedAt,
		UpdatedAt:     et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: etID,
		Definition: catalog.Definition{
			Name:          m.Name,
			Description:   m.Description,
			Group:         m.GroupName,
			Schema:        m.Schema,
			SchemaVersion: m.SchemaVersion,
			Version:       m.Version,
			Example:       m.Example,
		},
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
		Metadata:     m.Metadata,
	}, nil
}

// --- Subscription models ---

type subscriptionModel struct {
	bun.BaseModel `bun:"table:courier_subscriptions"`

	ID          string            `bun:"id,pk"`
	TenantID    string            `bun:"tenant_id,notnull"`
	APIKeyID    string            `bun:"api_key_id"`
	URL         string            `bun:"url,notnull"`
	Description string            `bun:"description"`
	Secret      string            `bun:"secret,notnull"`
	Events      []string          `bun:"events,type:jsonb"`
	Headers     map[string]string `bun:"headers,type:jsonb"`
	IsActive    bool              `bun:"is_active"`
	RateLimit   int               `bun:"rate_limit"`
	Metadata    map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt   time.Time         `bun:"created_at,notnull"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull"`
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

// --- Event models ---

type eventModel struct {
	bun.BaseModel `bun:"table:courier_events"`

	ID             string          `bun:"id,pk"`
	Type           string          `bun:"type,notnull"`
	TenantID       string          `bun:"tenant_id,notnull"`
	Data           json.RawMessage `bun:"data,type:jsonb"`
	APIKeyID       string          `bun:"api_key_id"`
	IdempotencyKey string          `bun:"idempotency_key"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull"`
}

func toEventModel(evt *event.Event) (*eventModel, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return &eventModel{
		ID:             evt.ID.String(),
		Type:           evt.Type,
		TenantID:       evt.TenantID,
		Data:           data,
		APIKeyID:       evt.APIKeyID,
		IdempotencyKey: evt.IdempotencyKey,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.UpdatedAt,
	}, nil
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	var data any
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             evtID,
		Type:           m.Type,
		TenantID:       m.TenantID,
		Data:           data,
		APIKeyID:       m.APIKeyID,
		IdempotencyKey: m.IdempotencyKey,
	}, nil
}

// --- Delivery models ---

// claimed_at implements the dequeue claim with a visibility timeout: a row
// claimed longer than the timeout ago is assumed orphaned by a crashed worker
// and becomes claimable again.
type deliveryModel struct {
	bun.BaseModel `bun:"table:courier_deliveries"`

	ID             string     `bun:"id,pk"`
	SubscriptionID string     `bun:"subscription_id,notnull"`
	EventID        string     `bun:"event_id,notnull"`
	TenantID       string     `bun:"tenant_id,notnull"`
	EventType      string     `bun:"event_type"`
	State          string     `bun:"state,notnull"`
	AttemptCount   int        `bun:"attempt_count"`
	MaxAttempts    int        `bun:"max_attempts"`
	NextRetryAt    *time.Time `bun:"next_retry_at"`
	LastStatusCode int        `bun:"last_status_code"`
	LastResponse   string     `bun:"last_response"`
	LastError      string     `bun:"last_error"`
	LastLatencyMs  int        `bun:"last_latency_ms"`
	DeliveredAt    *time.Time `bun:"delivered_at"`
	ClaimedAt      *time.Time `bun:"claimed_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
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

// --- DLQ models ---

type dlqEntryModel struct {
	bun.BaseModel `bun:"table:courier_dlq"`

	ID             string          `bun:"id,pk"`
	DeliveryID     string          `bun:"delivery_id,notnull"`
	EventID        string          `bun:"event_id,notnull"`
	SubscriptionID string          `bun:"subscription_id,notnull"`
	EventType      string          `bun:"event_type"`
	TenantID       string          `bun:"tenant_id,notnull"`
	URL            string          `bun:"url"`
	Payload        json.RawMessage `bun:"payload,type:jsonb"`
	Error          string          `bun:"error"`
	AttemptCount   int             `bun:"attempt_count"`
	LastStatusCode int             `bun:"last_status_code"`
	ReplayedAt     *time.Time      `bun:"replayed_at"`
	FailedAt       time.Time       `bun:"failed_at,notnull"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull"`
}

func toDLQEntryModel(e *dlq.Entry) (*dlqEntryModel, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal DLQ payload: %w", err)
	}
	return &dlqEntryModel{
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

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
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
