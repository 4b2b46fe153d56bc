package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/umrahops/courier/ratelimit"
)

func TestAllowUnlimited(t *testing.T) {
	l := ratelimit.New()

	// Zero rate limit means no pacing at all.
	for range 100 {
		if !l.Allow("sub-1", 0) {
			t.Fatal("expected unlimited subscription to always be allowed")
		}
	}
}

func TestAllowExhaustsBucket(t *testing.T) {
	l := ratelimit.New()

	// Bucket starts full at the burst size (= rate limit).
	if !l.Allow("sub-1", 2) {
		t.Fatal("expected first request allowed")
	}
	if !l.Allow("sub-1", 2) {
		t.Fatal("expected second request allowed")
	}
	if l.Allow("sub-1", 2) {
		t.Fatal("expected third request denied, bucket empty")
	}
}

func TestAllowIsolatedPerSubscription(t *testing.T) {
	l := ratelimit.New()

	if !l.Allow("sub-1", 1) {
		t.Fatal("expected sub-1 allowed")
	}
	if l.Allow("sub-1", 1) {
		t.Fatal("expected sub-1 exhausted")
	}
	// sub-2 has its own bucket.
	if !l.Allow("sub-2", 1) {
		t.Fatal("expected sub-2 allowed with fresh bucket")
	}
}

func TestBucketRefills(t *testing.T) {
	l := ratelimit.New()

	// Drain a high-rate bucket, then wait long enough for at least one token.
	for l.Allow("sub-1", 50) {
	}
	time.Sleep(50 * time.Millisecond)

	if !l.Allow("sub-1", 50) {
		t.Fatal("expected bucket to refill over time")
	}
}

func TestWaitUnlimitedReturnsImmediately(t *testing.T) {
	l := ratelimit.New()

	start := time.Now()
	if err := l.Wait(context.Background(), "sub-1", 0); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("expected Wait with zero rate limit to return immediately")
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	l := ratelimit.New()

	// Drain the bucket so Wait has to block.
	for l.Allow("sub-1", 1) {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "sub-1", 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestWaitEventuallyAllows(t *testing.T) {
	l := ratelimit.New()

	for l.Allow("sub-1", 20) {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.Wait(ctx, "sub-1", 20); err != nil {
		t.Fatalf("expected Wait to succeed after refill, got %v", err)
	}
}

func TestReset(t *testing.T) {
	l := ratelimit.New()

	for l.Allow("sub-1", 1) {
	}
	if l.Allow("sub-1", 1) {
		t.Fatal("expected exhausted before reset")
	}

	l.Reset("sub-1")

	if !l.Allow("sub-1", 1) {
		t.Fatal("expected fresh bucket after reset")
	}
}
