// Package courier provides the outbound webhook delivery engine for the
// Umrah operations platform.
//
// Courier is a library — not a service. Domain modules (payments, jamaah
// management, packages, contracts) emit business events as opaque
// (tenant, event type, payload) tuples; Courier fans them out to
// tenant-registered HTTPS endpoints with HMAC-signed payloads, bounded
// retries, and a per-attempt delivery audit trail.
//
// Key features:
//   - Tenant-scoped subscriptions with HTTPS-only endpoint validation
//   - Deterministic canonical-JSON HMAC-SHA256 payload signing
//   - At-least-once delivery with a fixed 1/5/30 minute backoff schedule
//   - Dead letter entries and operator-initiated retry for exhausted deliveries
//   - Composable store pattern with multiple backends (Bun/Postgres, SQLite, Redis, Memory)
//   - Optional event type catalog with JSON Schema payload validation
//   - Per-subscription outbound rate limiting
//
// Quick start:
//
//	c, err := courier.New(
//	    courier.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c.Start(ctx)
//
//	sub, _ := c.Subscriptions().Subscribe(ctx, subscription.Input{
//	    TenantID: "agency_123",
//	    APIKeyID: "key_456",
//	    URL:      "https://example.com/hooks",
//	    Events:   []string{"payment.confirmed"},
//	})
//
//	c.Dispatch(ctx, "agency_123", "payment.confirmed", map[string]any{
//	    "booking_id": "bkg_01h...",
//	    "amount":     25000000,
//	})
package courier
