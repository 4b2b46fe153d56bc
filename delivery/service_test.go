package delivery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/store/memory"
)

func seedDelivery(t *testing.T, store *memory.Store, state delivery.State, attempts int) *delivery.Delivery {
	t.Helper()
	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		SubscriptionID: id.NewSubscriptionID(),
		EventID:        id.NewEventID(),
		TenantID:       "agency-1",
		EventType:      "payment.confirmed",
		State:          state,
		AttemptCount:   attempts,
		MaxAttempts:    3,
	}
	if err := store.Enqueue(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestServiceRetryResetsExhaustedDelivery(t *testing.T) {
	store := memory.New()
	svc := delivery.NewService(store, nil)
	ctx := context.Background()

	d := seedDelivery(t, store, delivery.StateExhausted, 3)
	d.LastStatusCode = 500
	if err := store.UpdateDelivery(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Retry(ctx, d.ID, "agency-1")
	if err != nil {
		t.Fatal(err)
	}

	if got.State != delivery.StatePending {
		t.Errorf("expected pending, got %s", got.State)
	}
	if got.AttemptCount != 0 {
		t.Errorf("expected attempt count reset to 0, got %d", got.AttemptCount)
	}
	if got.NextRetryAt != nil {
		t.Error("expected NextRetryAt cleared")
	}

	// The reset is persisted, not just returned.
	stored, err := store.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != delivery.StatePending || stored.AttemptCount != 0 {
		t.Errorf("reset not persisted: state=%s attempts=%d", stored.State, stored.AttemptCount)
	}
}

func TestServiceRetryAlreadyDelivered(t *testing.T) {
	store := memory.New()
	svc := delivery.NewService(store, nil)

	d := seedDelivery(t, store, delivery.StateDelivered, 1)

	_, err := svc.Retry(context.Background(), d.ID, "agency-1")
	if !errors.Is(err, delivery.ErrAlreadyDelivered) {
		t.Fatalf("expected ErrAlreadyDelivered, got %v", err)
	}
}

func TestServiceRetryFailedDelivery(t *testing.T) {
	// Retrying a delivery in the failed state (retry scheduled but not yet
	// due) is allowed and makes it immediately due.
	store := memory.New()
	svc := delivery.NewService(store, nil)
	ctx := context.Background()

	d := seedDelivery(t, store, delivery.StateFailed, 2)
	next := time.Now().UTC().Add(30 * time.Minute)
	d.NextRetryAt = &next
	if err := store.UpdateDelivery(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Retry(ctx, d.ID, "agency-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != delivery.StatePending || got.NextRetryAt != nil {
		t.Errorf("expected immediately-due pending delivery, got state=%s next=%v", got.State, got.NextRetryAt)
	}

	// Immediately claimable.
	batch, err := store.Dequeue(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].ID.String() != d.ID.String() {
		t.Fatalf("expected the reset delivery to be dequeued, got %d rows", len(batch))
	}
}

func TestServiceRetryRejectsInFlightDelivery(t *testing.T) {
	// A delivery claimed by a worker cannot be reset mid-attempt; the
	// operator retries once the attempt lands and the claim is released.
	store := memory.New()
	svc := delivery.NewService(store, nil)
	ctx := context.Background()

	d := seedDelivery(t, store, delivery.StatePending, 0)

	claimed, err := store.Dequeue(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected 1 claimed delivery, got %d (err %v)", len(claimed), err)
	}

	if _, err := svc.Retry(ctx, d.ID, "agency-1"); !errors.Is(err, delivery.ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}

	// The worker finishes; the attempt failed and a retry is scheduled.
	worker := claimed[0]
	worker.State = delivery.StateFailed
	worker.AttemptCount = 1
	next := time.Now().UTC().Add(time.Minute)
	worker.NextRetryAt = &next
	if err := store.UpdateDelivery(ctx, worker); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Retry(ctx, d.ID, "agency-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != delivery.StatePending || got.AttemptCount != 0 {
		t.Errorf("expected reset after release, got state=%s attempts=%d", got.State, got.AttemptCount)
	}
}

func TestServiceTenantScoping(t *testing.T) {
	store := memory.New()
	svc := delivery.NewService(store, nil)
	ctx := context.Background()

	d := seedDelivery(t, store, delivery.StateExhausted, 3)

	if _, err := svc.Get(ctx, d.ID, "other-agency"); !errors.Is(err, delivery.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign tenant, got %v", err)
	}
	if _, err := svc.Retry(ctx, d.ID, "other-agency"); !errors.Is(err, delivery.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign tenant retry, got %v", err)
	}
}

func TestServiceListBySubscriptionCapsLimit(t *testing.T) {
	store := memory.New()
	svc := delivery.NewService(store, nil)
	ctx := context.Background()

	subID := id.NewSubscriptionID()
	for i := 0; i < delivery.DefaultLogLimit+20; i++ {
		d := &delivery.Delivery{
			Entity:         entity.New(),
			ID:             id.NewDeliveryID(),
			SubscriptionID: subID,
			EventID:        id.NewEventID(),
			TenantID:       "agency-1",
			State:          delivery.StateDelivered,
			MaxAttempts:    3,
		}
		if err := store.Enqueue(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	// A zero limit and an oversized limit both clamp to the cap.
	for _, limit := range []int{0, 1000} {
		got, err := svc.ListBySubscription(ctx, subID, delivery.ListOpts{Limit: limit})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != delivery.DefaultLogLimit {
			t.Errorf("limit %d: expected %d rows, got %d", limit, delivery.DefaultLogLimit, len(got))
		}
	}
}
