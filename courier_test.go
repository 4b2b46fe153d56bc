package courier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/umrahops/courier"
	"github.com/umrahops/courier/catalog"
	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/store/memory"
	"github.com/umrahops/courier/subscription"
)

func ctx() context.Context { return context.Background() }

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func setup(t *testing.T, opts ...courier.Option) (*courier.Courier, *memory.Store) {
	t.Helper()
	s := memory.New()
	c, err := courier.New(append([]courier.Option{courier.WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c, s
}

func registerType(t *testing.T, c *courier.Courier, name string) {
	t.Helper()
	if _, err := c.Catalog().RegisterType(ctx(), catalog.Definition{Name: name}); err != nil {
		t.Fatal(err)
	}
}

func subscribe(t *testing.T, c *courier.Courier, tenantID string, tags []string) *subscription.Subscription {
	t.Helper()
	sub, err := c.Subscriptions().Subscribe(ctx(), subscription.Input{
		TenantID: tenantID,
		URL:      "https://example.com/webhook",
		Events:   tags,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

// seedSubscription inserts a subscription directly, sidestepping the HTTPS
// rule so deliveries can target a local httptest server.
func seedSubscription(t *testing.T, s *memory.Store, tenantID, url string, tags []string) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Entity:   entity.New(),
		ID:       id.NewSubscriptionID(),
		TenantID: tenantID,
		URL:      url,
		Secret:   "whsec_e2e_secret_1234567890abcdef1234567890abcdef12",
		Events:   tags,
		IsActive: true,
	}
	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestDispatchFanout(t *testing.T) {
	c, s := setup(t)

	registerType(t, c, "payment.confirmed")
	subscribe(t, c, "agency-1", []string{"payment.*"})
	subscribe(t, c, "agency-1", []string{"*"})
	subscribe(t, c, "agency-1", []string{"booking.created"}) // no match

	delIDs, err := c.Dispatch(ctx(), "agency-1", "payment.confirmed", map[string]any{"amount": 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(delIDs) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(delIDs))
	}

	pending, _ := s.CountPending(ctx())
	if pending != 2 {
		t.Fatalf("expected 2 pending deliveries, got %d", pending)
	}

	for _, delID := range delIDs {
		d, err := s.GetDelivery(ctx(), delID)
		if err != nil {
			t.Fatal(err)
		}
		if d.State != delivery.StatePending {
			t.Errorf("expected pending, got %s", d.State)
		}
		if d.AttemptCount != 0 {
			t.Errorf("expected 0 attempts, got %d", d.AttemptCount)
		}
		if d.EventType != "payment.confirmed" {
			t.Errorf("expected denormalized event type, got %q", d.EventType)
		}
	}
}

func TestDispatchUnknownEventTypeAccepted(t *testing.T) {
	c, s := setup(t)

	subscribe(t, c, "agency-1", []string{"*"})

	// Not registered in the catalog: accepted without validation.
	delIDs, err := c.Dispatch(ctx(), "agency-1", "totally.unknown", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("expected unknown type to dispatch, got %v", err)
	}
	if len(delIDs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(delIDs))
	}

	pending, _ := s.CountPending(ctx())
	if pending != 1 {
		t.Fatalf("expected 1 pending delivery, got %d", pending)
	}
}

func TestDispatchDeprecatedEventType(t *testing.T) {
	c, _ := setup(t)

	registerType(t, c, "old.event")
	if err := c.Catalog().DeleteType(ctx(), "old.event"); err != nil {
		t.Fatal(err)
	}

	_, err := c.Dispatch(ctx(), "agency-1", "old.event", map[string]any{})
	if !errors.Is(err, courier.ErrEventTypeDeprecated) {
		t.Fatalf("expected ErrEventTypeDeprecated, got %v", err)
	}
}

func TestDispatchSchemaValidation(t *testing.T) {
	c, _ := setup(t)

	if _, err := c.Catalog().RegisterType(ctx(), catalog.Definition{
		Name: "payment.confirmed",
		Schema: mustJSON(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"amount": map[string]any{"type": "number"},
			},
			"required": []any{"amount"},
		}),
	}); err != nil {
		t.Fatal(err)
	}
	subscribe(t, c, "agency-1", []string{"*"})

	// Missing required field.
	_, err := c.Dispatch(ctx(), "agency-1", "payment.confirmed", map[string]any{"other": "value"})
	if !errors.Is(err, courier.ErrPayloadValidationFailed) {
		t.Fatalf("expected ErrPayloadValidationFailed, got %v", err)
	}

	// Valid payload.
	if _, err := c.Dispatch(ctx(), "agency-1", "payment.confirmed", map[string]any{"amount": 42.5}); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchIdempotencyKeyNoOp(t *testing.T) {
	c, s := setup(t)

	subscribe(t, c, "agency-1", []string{"*"})

	first, err := c.Dispatch(ctx(), "agency-1", "payment.confirmed", map[string]any{"v": 1},
		courier.WithIdempotencyKey("idem-1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(first))
	}

	// Same key again: no-op success, no new deliveries.
	second, err := c.Dispatch(ctx(), "agency-1", "payment.confirmed", map[string]any{"v": 2},
		courier.WithIdempotencyKey("idem-1"))
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no new deliveries, got %d", len(second))
	}

	pending, _ := s.CountPending(ctx())
	if pending != 1 {
		t.Fatalf("expected still 1 pending, got %d", pending)
	}
}

func TestDispatchNoMatchingSubscriptions(t *testing.T) {
	c, s := setup(t)

	delIDs, err := c.Dispatch(ctx(), "agency-1", "payment.confirmed", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if len(delIDs) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(delIDs))
	}

	// The event is still persisted for the audit trail.
	events, err := s.ListEventsByTenant(ctx(), "agency-1", event.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
}

func TestDispatchTenantIsolation(t *testing.T) {
	c, s := setup(t)

	subscribe(t, c, "agency-1", []string{"*"})
	subscribe(t, c, "agency-2", []string{"*"})

	delIDs, err := c.Dispatch(ctx(), "agency-1", "payment.confirmed", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if len(delIDs) != 1 {
		t.Fatalf("expected 1 delivery (tenant isolation), got %d", len(delIDs))
	}

	d, err := s.GetDelivery(ctx(), delIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if d.TenantID != "agency-1" {
		t.Errorf("delivery leaked across tenants: %s", d.TenantID)
	}
}

func TestSendTestBypassesMatching(t *testing.T) {
	c, s := setup(t)

	// Subscription only listens to booking events; the test ping goes anyway.
	sub := subscribe(t, c, "agency-1", []string{"booking.*"})

	delID, err := c.SendTest(ctx(), sub.ID, "agency-1")
	if err != nil {
		t.Fatal(err)
	}

	d, err := s.GetDelivery(ctx(), delID)
	if err != nil {
		t.Fatal(err)
	}
	if d.EventType != "test.ping" {
		t.Errorf("expected test.ping, got %q", d.EventType)
	}
	if d.SubscriptionID.String() != sub.ID.String() {
		t.Errorf("wrong subscription targeted: %s", d.SubscriptionID)
	}
}

func TestEndToEndExhaustionAndOperatorRetry(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, s := setup(t,
		courier.WithConcurrency(2),
		courier.WithPollInterval(20*time.Millisecond),
		courier.WithBatchSize(10),
		courier.WithMaxAttempts(3),
		courier.WithRetrySchedule([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond}),
	)

	seedSubscription(t, s, "agency-1", srv.URL, []string{"payment.*"})

	c.Start(ctx())
	defer c.Stop(ctx())

	delIDs, err := c.Dispatch(ctx(), "agency-1", "payment.confirmed", map[string]any{"booking_id": "bk_1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(delIDs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(delIDs))
	}
	delID := delIDs[0]

	// Phase 1: receiver keeps failing until the retry budget runs out.
	waitFor(t, 5*time.Second, func() bool {
		d, err := s.GetDelivery(ctx(), delID)
		return err == nil && d.State == delivery.StateExhausted
	})

	d, err := s.GetDelivery(ctx(), delID)
	if err != nil {
		t.Fatal(err)
	}
	if d.AttemptCount != 3 {
		t.Errorf("expected 3 attempts, got %d", d.AttemptCount)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 HTTP attempts, got %d", got)
	}

	entries, err := c.DLQ().List(ctx(), dlq.ListOpts{TenantID: "agency-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}
	if entries[0].DeliveryID.String() != delID.String() {
		t.Errorf("DLQ entry references wrong delivery: %s", entries[0].DeliveryID)
	}

	// Phase 2: the receiver recovers and an operator retries.
	failing.Store(false)
	if _, err := c.Deliveries().Retry(ctx(), delID, "agency-1"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		d, err := s.GetDelivery(ctx(), delID)
		return err == nil && d.State == delivery.StateDelivered
	})

	d, err = s.GetDelivery(ctx(), delID)
	if err != nil {
		t.Fatal(err)
	}
	if d.AttemptCount != 1 {
		t.Errorf("expected reset budget with 1 attempt, got %d", d.AttemptCount)
	}
	if d.DeliveredAt == nil {
		t.Error("expected DeliveredAt after successful retry")
	}
}

func TestNewRequiresStore(t *testing.T) {
	_, err := courier.New()
	if !errors.Is(err, courier.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
