package catalog_test

import (
	"testing"

	"github.com/umrahops/courier/catalog"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		tag       string
		eventType string
		want      bool
	}{
		// Exact matches.
		{"payment.confirmed", "payment.confirmed", true},
		{"payment.confirmed", "payment.failed", false},
		{"payment.confirmed", "booking.confirmed", false},

		// Global wildcard.
		{"*", "payment.confirmed", true},
		{"*", "anything.at.all", true},

		// Single-segment wildcard.
		{"payment.*", "payment.confirmed", true},
		{"payment.*", "payment.failed", true},
		{"payment.*", "booking.created", false},
		{"*.created", "booking.created", true},
		{"*.created", "booking.cancelled", false},

		// Wildcards never span segments.
		{"payment.*", "payment.refund.issued", false},
		{"payment.*.issued", "payment.refund.issued", true},

		// Segment count must line up.
		{"payment", "payment.confirmed", false},
		{"payment.confirmed.extra", "payment.confirmed", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag+"→"+tt.eventType, func(t *testing.T) {
			if got := catalog.Match(tt.tag, tt.eventType); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.tag, tt.eventType, got, tt.want)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	tags := []string{"payment.confirmed", "booking.*"}

	if !catalog.MatchAny(tags, "booking.cancelled") {
		t.Error("expected booking.* to match booking.cancelled")
	}
	if !catalog.MatchAny(tags, "payment.confirmed") {
		t.Error("expected exact tag to match")
	}
	if catalog.MatchAny(tags, "visa.approved") {
		t.Error("expected no match for visa.approved")
	}
	if catalog.MatchAny(nil, "payment.confirmed") {
		t.Error("expected empty tag set to match nothing")
	}
}
