package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/store"
	"github.com/umrahops/courier/store/memory"
	"github.com/umrahops/courier/subscription"
)

func ctx() context.Context { return context.Background() }

func newDelivery(state delivery.State) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		SubscriptionID: id.NewSubscriptionID(),
		EventID:        id.NewEventID(),
		TenantID:       "agency-1",
		EventType:      "payment.confirmed",
		State:          state,
		MaxAttempts:    3,
	}
}

func TestDequeueClaimsExactlyOnce(t *testing.T) {
	s := memory.New()

	d := newDelivery(delivery.StatePending)
	if err := s.Enqueue(ctx(), d); err != nil {
		t.Fatal(err)
	}

	first, err := s.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 claimed delivery, got %d", len(first))
	}

	// A second dequeue must not hand out the same row while it is claimed.
	second, err := s.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no deliveries on second dequeue, got %d", len(second))
	}
}

func TestDequeueReclaimsExpiredClaims(t *testing.T) {
	s := memory.New(memory.WithClaimTTL(10 * time.Millisecond))

	d := newDelivery(delivery.StatePending)
	if err := s.Enqueue(ctx(), d); err != nil {
		t.Fatal(err)
	}

	if got, err := s.Dequeue(ctx(), 10); err != nil || len(got) != 1 {
		t.Fatalf("expected 1 claimed delivery, got %d (err %v)", len(got), err)
	}

	// The claim is exclusive while live.
	if got, err := s.Dequeue(ctx(), 10); err != nil || len(got) != 0 {
		t.Fatalf("expected live claim to hold, got %d rows (err %v)", len(got), err)
	}

	// After the TTL the claim counts as orphaned and the row is claimable again.
	time.Sleep(25 * time.Millisecond)
	got, err := s.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != d.ID.String() {
		t.Fatalf("expected expired claim reclaimed, got %d rows", len(got))
	}
}

func TestRequeueRejectsClaimedDelivery(t *testing.T) {
	s := memory.New()

	d := newDelivery(delivery.StatePending)
	if err := s.Enqueue(ctx(), d); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.Dequeue(ctx(), 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected 1 claimed delivery, got %d (err %v)", len(claimed), err)
	}

	// An operator reset must not touch a row a worker is attempting.
	reset := *claimed[0]
	reset.State = delivery.StatePending
	reset.AttemptCount = 0
	if err := s.Requeue(ctx(), &reset); !errors.Is(err, delivery.ErrInFlight) {
		t.Fatalf("expected ErrInFlight while claimed, got %v", err)
	}

	// Once the worker releases the claim the reset goes through and the row
	// is immediately claimable.
	done := *claimed[0]
	done.State = delivery.StateExhausted
	done.AttemptCount = 3
	if err := s.UpdateDelivery(ctx(), &done); err != nil {
		t.Fatal(err)
	}
	if err := s.Requeue(ctx(), &reset); err != nil {
		t.Fatal(err)
	}

	got, err := s.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != d.ID.String() {
		t.Fatalf("expected requeued delivery claimable, got %d rows", len(got))
	}
}

func TestRequeueNotFound(t *testing.T) {
	s := memory.New()

	err := s.Requeue(ctx(), newDelivery(delivery.StatePending))
	if !errors.Is(err, delivery.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDequeueReturnsCopies(t *testing.T) {
	s := memory.New()

	d := newDelivery(delivery.StatePending)
	if err := s.Enqueue(ctx(), d); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.Dequeue(ctx(), 1)
	if err != nil {
		t.Fatal(err)
	}
	claimed[0].AttemptCount = 99

	stored, err := s.GetDelivery(ctx(), d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.AttemptCount != 0 {
		t.Error("mutating a dequeued copy must not touch the stored row")
	}
}

func TestDequeueDueTimeGating(t *testing.T) {
	s := memory.New()

	due := newDelivery(delivery.StateFailed)
	past := time.Now().UTC().Add(-time.Minute)
	due.NextRetryAt = &past

	notDue := newDelivery(delivery.StateFailed)
	future := time.Now().UTC().Add(time.Hour)
	notDue.NextRetryAt = &future

	if err := s.EnqueueBatch(ctx(), []*delivery.Delivery{due, notDue}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the due delivery, got %d", len(got))
	}
	if got[0].ID.String() != due.ID.String() {
		t.Errorf("dequeued the wrong delivery: %s", got[0].ID)
	}
}

func TestDequeueSkipsTerminalStates(t *testing.T) {
	s := memory.New()

	if err := s.EnqueueBatch(ctx(), []*delivery.Delivery{
		newDelivery(delivery.StateDelivered),
		newDelivery(delivery.StateExhausted),
		newDelivery(delivery.StatePending),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the pending delivery, got %d", len(got))
	}
	if got[0].State != delivery.StatePending {
		t.Errorf("expected pending, got %s", got[0].State)
	}
}

func TestDequeueOrdersByDueTime(t *testing.T) {
	s := memory.New()

	older := newDelivery(delivery.StateFailed)
	olderDue := time.Now().UTC().Add(-2 * time.Hour)
	older.NextRetryAt = &olderDue

	newer := newDelivery(delivery.StateFailed)
	newerDue := time.Now().UTC().Add(-time.Minute)
	newer.NextRetryAt = &newerDue

	if err := s.EnqueueBatch(ctx(), []*delivery.Delivery{newer, older}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Dequeue(ctx(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != older.ID.String() {
		t.Error("expected the longest-overdue delivery to be claimed first")
	}
}

func TestUpdateDeliveryReleasesClaim(t *testing.T) {
	s := memory.New()

	d := newDelivery(delivery.StatePending)
	if err := s.Enqueue(ctx(), d); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.Dequeue(ctx(), 1)
	if err != nil {
		t.Fatal(err)
	}

	// Persist a failed attempt due immediately.
	claimed[0].State = delivery.StateFailed
	claimed[0].AttemptCount = 1
	past := time.Now().UTC().Add(-time.Second)
	claimed[0].NextRetryAt = &past
	if err := s.UpdateDelivery(ctx(), claimed[0]); err != nil {
		t.Fatal(err)
	}

	// The row is claimable again.
	again, err := s.Dequeue(ctx(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 1 {
		t.Fatal("expected delivery to be claimable after update")
	}
	if again[0].AttemptCount != 1 {
		t.Errorf("expected persisted attempt count 1, got %d", again[0].AttemptCount)
	}
}

func TestUpdateDeliveryTerminalNeverRequeued(t *testing.T) {
	s := memory.New()

	d := newDelivery(delivery.StatePending)
	if err := s.Enqueue(ctx(), d); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.Dequeue(ctx(), 1)
	if err != nil {
		t.Fatal(err)
	}
	claimed[0].State = delivery.StateDelivered
	if err := s.UpdateDelivery(ctx(), claimed[0]); err != nil {
		t.Fatal(err)
	}

	got, err := s.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected terminal delivery excluded from queue, got %d", len(got))
	}
}

func TestUpdateDeliveryNotFound(t *testing.T) {
	s := memory.New()

	err := s.UpdateDelivery(ctx(), newDelivery(delivery.StatePending))
	if !errors.Is(err, delivery.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountPending(t *testing.T) {
	s := memory.New()

	if err := s.EnqueueBatch(ctx(), []*delivery.Delivery{
		newDelivery(delivery.StatePending),
		newDelivery(delivery.StateFailed),
		newDelivery(delivery.StateDelivered),
		newDelivery(delivery.StateExhausted),
	}); err != nil {
		t.Fatal(err)
	}

	count, err := s.CountPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	// Pending and failed both await an attempt.
	if count != 2 {
		t.Fatalf("expected 2 pending, got %d", count)
	}
}

func TestCreateEventIdempotencyKey(t *testing.T) {
	s := memory.New()

	first := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		Type:           "payment.confirmed",
		TenantID:       "agency-1",
		IdempotencyKey: "idem-1",
	}
	if err := s.CreateEvent(ctx(), first); err != nil {
		t.Fatal(err)
	}

	dup := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		Type:           "payment.confirmed",
		TenantID:       "agency-1",
		IdempotencyKey: "idem-1",
	}
	if err := s.CreateEvent(ctx(), dup); !errors.Is(err, event.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	// Events without a key never collide.
	for range 2 {
		evt := &event.Event{Entity: entity.New(), ID: id.NewEventID(), Type: "x", TenantID: "agency-1"}
		if err := s.CreateEvent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolveMatchesActiveSubscriptions(t *testing.T) {
	s := memory.New()

	mk := func(tenant string, active bool, events ...string) *subscription.Subscription {
		sub := &subscription.Subscription{
			Entity:   entity.New(),
			ID:       id.NewSubscriptionID(),
			TenantID: tenant,
			URL:      "https://example.com/hooks",
			Events:   events,
			IsActive: active,
		}
		if err := s.CreateSubscription(ctx(), sub); err != nil {
			t.Fatal(err)
		}
		return sub
	}

	mk("agency-1", true, "payment.*")
	mk("agency-1", true, "*")
	mk("agency-1", false, "payment.confirmed") // inactive
	mk("agency-1", true, "booking.created")    // no match
	mk("agency-2", true, "payment.confirmed") // other tenant

	matched, err := s.Resolve(ctx(), "agency-1", "payment.confirmed")
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
}

func TestDLQLifecycle(t *testing.T) {
	s := memory.New()

	entry := &dlq.Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		DeliveryID:     id.NewDeliveryID(),
		EventID:        id.NewEventID(),
		SubscriptionID: id.NewSubscriptionID(),
		EventType:      "payment.confirmed",
		TenantID:       "agency-1",
		URL:            "https://example.com/hooks",
		AttemptCount:   3,
		FailedAt:       time.Now().UTC(),
	}
	if err := s.Push(ctx(), entry); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDLQ(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplayedAt != nil {
		t.Error("expected fresh entry unreplayed")
	}

	now := time.Now().UTC()
	if err := s.MarkReplayed(ctx(), entry.ID, now); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetDLQ(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplayedAt == nil || !got.ReplayedAt.Equal(now) {
		t.Errorf("expected ReplayedAt %v, got %v", now, got.ReplayedAt)
	}

	count, err := s.CountDLQ(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", count)
	}
}

func TestPurgeDLQ(t *testing.T) {
	s := memory.New()

	old := &dlq.Entry{
		Entity:   entity.New(),
		ID:       id.NewDLQID(),
		TenantID: "agency-1",
		FailedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	recent := &dlq.Entry{
		Entity:   entity.New(),
		ID:       id.NewDLQID(),
		TenantID: "agency-1",
		FailedAt: time.Now().UTC(),
	}
	if err := s.Push(ctx(), old); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(ctx(), recent); err != nil {
		t.Fatal(err)
	}

	purged, err := s.PurgeDLQ(ctx(), time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}

	if _, err := s.GetDLQ(ctx(), old.ID); !errors.Is(err, dlq.ErrNotFound) {
		t.Fatalf("expected old entry gone, got %v", err)
	}
	if _, err := s.GetDLQ(ctx(), recent.ID); err != nil {
		t.Fatalf("expected recent entry kept, got %v", err)
	}
}

func TestListDLQFilters(t *testing.T) {
	s := memory.New()

	subID := id.NewSubscriptionID()
	mk := func(tenant string, sub id.ID) {
		e := &dlq.Entry{
			Entity:         entity.New(),
			ID:             id.NewDLQID(),
			SubscriptionID: sub,
			TenantID:       tenant,
			FailedAt:       time.Now().UTC(),
		}
		if err := s.Push(ctx(), e); err != nil {
			t.Fatal(err)
		}
	}

	mk("agency-1", subID)
	mk("agency-1", id.NewSubscriptionID())
	mk("agency-2", id.NewSubscriptionID())

	byTenant, err := s.ListDLQ(ctx(), dlq.ListOpts{TenantID: "agency-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTenant) != 2 {
		t.Fatalf("expected 2 entries for agency-1, got %d", len(byTenant))
	}

	bySub, err := s.ListDLQ(ctx(), dlq.ListOpts{TenantID: "agency-1", SubscriptionID: &subID})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySub) != 1 {
		t.Fatalf("expected 1 entry for subscription filter, got %d", len(bySub))
	}
}

func TestPingAfterClose(t *testing.T) {
	s := memory.New()

	if err := s.Ping(ctx()); err != nil {
		t.Fatalf("expected healthy store, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}
