package delivery

import "time"

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the receiver acknowledged with a 2xx.
	Delivered Decision = iota

	// Retry means the delivery should be retried later.
	Retry

	// Exhausted means the retry budget ran out; the delivery is terminal
	// until an operator retries it.
	Exhausted
)

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
}

// Retrier is the pure retry policy: it decides what happens after an
// attempt and how long to wait, with no knowledge of queues or clocks.
type Retrier struct {
	schedule    []time.Duration
	maxAttempts int
}

// NewRetrier creates a retrier with the given backoff schedule and
// attempt ceiling.
func NewRetrier(schedule []time.Duration, maxAttempts int) *Retrier {
	return &Retrier{schedule: schedule, maxAttempts: maxAttempts}
}

// NextDelay returns the wait before the next attempt given how many
// attempts have already been made, and whether the budget is exhausted.
// The delay for retry n is schedule[n-1], capped at the last entry.
func (r *Retrier) NextDelay(attemptCount int) (time.Duration, bool) {
	if attemptCount >= r.maxAttempts {
		return 0, true
	}

	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return r.schedule[idx], false
}

// Decide maps an attempt result onto the next transition. Any outcome other
// than a 2xx — non-2xx status, connection failure, timeout — takes the
// retry path until the budget runs out.
func (r *Retrier) Decide(res Result, d *Delivery) Decision {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return Delivered
	}

	if _, exhausted := r.NextDelay(d.AttemptCount); exhausted {
		return Exhausted
	}
	return Retry
}
