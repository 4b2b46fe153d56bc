package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/signature"
	"github.com/umrahops/courier/subscription"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// Envelope is the receiver-visible JSON body of every delivery.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given HTTP timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send delivers an event to a subscription endpoint and returns the result.
// The signature covers the canonical form of the event payload alone, so
// receivers verify against the raw "data" value with the shared secret.
func (s *Sender) Send(ctx context.Context, sub *subscription.Subscription, evt *event.Event, d *Delivery) Result {
	now := time.Now().UTC()
	env := Envelope{
		Event:     evt.Type,
		Timestamp: now.Format(time.RFC3339),
		Data:      evt.Data,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal envelope: %v", err)}
	}

	sig, err := signature.Sign(evt.Data, sub.Secret)
	if err != nil {
		return Result{Error: fmt.Sprintf("sign payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	// Fixed receiver-visible contract.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Courier/1.0")
	req.Header.Set("X-Webhook-Signature", sig)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	req.Header.Set("X-Webhook-Event", evt.Type)
	req.Header.Set("X-Webhook-Delivery-ID", d.ID.String())

	// Custom subscription headers.
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is a tenant-configured webhook destination; SSRF is by design.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
}
