package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/entity"
	"github.com/umrahops/courier/signature"
	"github.com/umrahops/courier/subscription"
)

func testFixtures(url string) (*subscription.Subscription, *event.Event, *delivery.Delivery) {
	sub := &subscription.Subscription{
		Entity:   entity.New(),
		ID:       id.NewSubscriptionID(),
		TenantID: "agency-1",
		URL:      url,
		Secret:   "whsec_sendersecret1234567890abcdef1234567890abcdef",
		Events:   []string{"payment.confirmed"},
		IsActive: true,
	}
	evt := &event.Event{
		Entity:   entity.New(),
		ID:       id.NewEventID(),
		Type:     "payment.confirmed",
		TenantID: "agency-1",
		Data:     map[string]any{"booking_id": "bk_1", "amount": 15000000},
	}
	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		SubscriptionID: sub.ID,
		EventID:        evt.ID,
		TenantID:       "agency-1",
		EventType:      evt.Type,
		State:          delivery.StatePending,
		MaxAttempts:    3,
	}
	return sub, evt, d
}

func TestSenderWireFormat(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub, evt, d := testFixtures(srv.URL)
	sender := delivery.NewSender(5 * time.Second)

	before := time.Now().UnixMilli()
	result := sender.Send(context.Background(), sub, evt, d)
	after := time.Now().UnixMilli()

	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (error: %s)", result.StatusCode, result.Error)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if gotHeaders.Get("X-Webhook-Event") != "payment.confirmed" {
		t.Errorf("X-Webhook-Event = %q", gotHeaders.Get("X-Webhook-Event"))
	}
	if gotHeaders.Get("X-Webhook-Delivery-ID") != d.ID.String() {
		t.Errorf("X-Webhook-Delivery-ID = %q, want %q", gotHeaders.Get("X-Webhook-Delivery-ID"), d.ID)
	}

	// Timestamp header is epoch milliseconds near the send time.
	ts, err := strconv.ParseInt(gotHeaders.Get("X-Webhook-Timestamp"), 10, 64)
	if err != nil {
		t.Fatalf("X-Webhook-Timestamp not an integer: %v", err)
	}
	if ts < before || ts > after {
		t.Errorf("timestamp %d outside send window [%d, %d]", ts, before, after)
	}

	// Body is the fixed envelope.
	var env struct {
		Event     string         `json:"event"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(gotBody, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Event != "payment.confirmed" {
		t.Errorf("envelope event = %q", env.Event)
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Errorf("envelope timestamp not RFC3339: %v", err)
	}
	if env.Data["booking_id"] != "bk_1" {
		t.Errorf("envelope data = %v", env.Data)
	}

	// Signature covers the event payload and verifies with the shared secret.
	sig := gotHeaders.Get("X-Webhook-Signature")
	if !signature.Verify(evt.Data, sig, sub.Secret) {
		t.Errorf("signature does not verify: %q", sig)
	}
}

func TestSenderCustomHeaders(t *testing.T) {
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub, evt, d := testFixtures(srv.URL)
	sub.Headers = map[string]string{"X-Custom-Token": "secret-token-123"}

	sender := delivery.NewSender(5 * time.Second)
	result := sender.Send(context.Background(), sub, evt, d)

	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}
	if gotHeaders.Get("X-Custom-Token") != "secret-token-123" {
		t.Errorf("custom header not forwarded: %q", gotHeaders.Get("X-Custom-Token"))
	}
}

func TestSenderCapsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, strings.Repeat("x", 4096)) //nolint:errcheck
	}))
	defer srv.Close()

	sub, evt, d := testFixtures(srv.URL)
	sender := delivery.NewSender(5 * time.Second)
	result := sender.Send(context.Background(), sub, evt, d)

	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
	if len(result.Response) != 1024 {
		t.Errorf("expected response capped at 1024 bytes, got %d", len(result.Response))
	}
}

func TestSenderConnectionError(t *testing.T) {
	// Closed server → connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	sub, evt, d := testFixtures(srv.URL)
	sender := delivery.NewSender(time.Second)
	result := sender.Send(context.Background(), sub, evt, d)

	if result.StatusCode != 0 {
		t.Errorf("expected status 0 for connection error, got %d", result.StatusCode)
	}
	if result.Error == "" {
		t.Error("expected error message for connection failure")
	}
}

func TestSenderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub, evt, d := testFixtures(srv.URL)
	sender := delivery.NewSender(50 * time.Millisecond)
	result := sender.Send(context.Background(), sub, evt, d)

	if result.StatusCode != 0 {
		t.Errorf("expected status 0 for timeout, got %d", result.StatusCode)
	}
	if result.Error == "" {
		t.Error("expected error message for timeout")
	}
}
