package catalog

import "strings"

// Match checks if an event type name matches a subscription tag.
//
// Supported tags:
//
//	"payment.confirmed" → exact match
//	"payment.*"         → matches payment.confirmed, payment.failed, etc. (single segment wildcard)
//	"*"                 → matches everything
func Match(tag, eventType string) bool {
	if tag == "*" {
		return true
	}

	if tag == eventType {
		return true
	}

	tagParts := strings.Split(tag, ".")
	eventParts := strings.Split(eventType, ".")

	if len(tagParts) != len(eventParts) {
		return false
	}

	for i, tp := range tagParts {
		if tp == "*" {
			continue
		}
		if tp != eventParts[i] {
			return false
		}
	}

	return true
}

// MatchAny reports whether the event type matches any tag in the set.
func MatchAny(tags []string, eventType string) bool {
	for _, tag := range tags {
		if Match(tag, eventType) {
			return true
		}
	}
	return false
}
