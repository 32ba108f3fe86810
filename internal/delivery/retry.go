// Package delivery implements at-least-once message delivery: per-message
// ACK tracking with retry/backoff, per-peer circuit breakers, and a
// dead-letter queue (spec.md §4.F).
package delivery

import (
	"math/rand"
	"time"
)

// RetryPolicy controls backoff scheduling for one message type (spec.md §6
// retryPolicy.*). Guaranteed-reliability messages override MaxAttempts
// upward (spec.md §4.F).
type RetryPolicy struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy mirrors the reference defaults.
var DefaultRetryPolicy = RetryPolicy{
	Base:        1 * time.Second,
	Max:         30 * time.Second,
	Multiplier:  1.5,
	Jitter:      500 * time.Millisecond,
	MaxAttempts: 3,
}

// GuaranteedRetryPolicy is used for messages whose reliability requirement
// is "guaranteed": the same backoff shape but a much higher attempt budget.
var GuaranteedRetryPolicy = RetryPolicy{
	Base:        1 * time.Second,
	Max:         30 * time.Second,
	Multiplier:  1.5,
	Jitter:      500 * time.Millisecond,
	MaxAttempts: 20,
}

// NextDelay returns the backoff duration before attempt number attempt
// (1-indexed), with uniform jitter in [0, Jitter).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.Base)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	d := time.Duration(delay)
	if d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// AckTracker follows one outbound reliable message until delivery is
// confirmed, the retry budget is exhausted, or the caller cancels (spec.md §3).
type AckTracker struct {
	MessageID        string
	TargetNodeID     string
	DeliveryRequired bool
	SentAt           time.Time
	DeadlineAt       time.Time
	Attempt          int
	NextRetryAt      time.Time
	Policy           RetryPolicy
	Cancelled        bool
}

// NewAckTracker starts tracking a message sent at sentAt under policy.
func NewAckTracker(messageID, targetNodeID string, deliveryRequired bool, sentAt time.Time, policy RetryPolicy) *AckTracker {
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy
	}
	return &AckTracker{
		MessageID:        messageID,
		TargetNodeID:     targetNodeID,
		DeliveryRequired: deliveryRequired,
		SentAt:           sentAt,
		DeadlineAt:       sentAt.Add(policy.Max),
		Attempt:          1,
		NextRetryAt:      sentAt.Add(policy.NextDelay(1)),
		Policy:           policy,
	}
}

// DueForRetry reports whether now has passed NextRetryAt and the retry
// budget is not exhausted.
func (t *AckTracker) DueForRetry(now time.Time) bool {
	return !t.Cancelled && now.After(t.NextRetryAt) && t.Attempt < t.Policy.MaxAttempts
}

// Exhausted reports whether the retry budget has been spent.
func (t *AckTracker) Exhausted() bool {
	return t.Attempt >= t.Policy.MaxAttempts
}

// RecordRetry advances the tracker after dispatching another attempt.
func (t *AckTracker) RecordRetry(now time.Time) {
	t.Attempt++
	t.NextRetryAt = now.Add(t.Policy.NextDelay(t.Attempt))
}

// Cancel stops further retries for this tracker (spec.md §4.F "Cancel").
func (t *AckTracker) Cancel() { t.Cancelled = true }
