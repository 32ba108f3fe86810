package delivery

import (
	"testing"
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

func TestManagerDeliveredClosesTrackerAndFiresEvent(t *testing.T) {
	m := NewManager(10, 3, time.Minute)
	now := time.Now()
	if err := m.Send("msg-1", "peer-1", true, DefaultRetryPolicy, now); err != nil {
		t.Fatalf("send: %v", err)
	}
	var delivered meshtransport.DeliveredEvent
	m.OnDelivered = func(e meshtransport.DeliveredEvent) { delivered = e }
	m.ConfirmDelivery("msg-1", now)
	if _, ok := m.trackers["msg-1"]; ok {
		t.Fatalf("expected tracker removed after delivery confirmation")
	}
	if delivered.MessageID != "msg-1" {
		t.Fatalf("expected OnDelivered to fire with msg-1, got %+v", delivered)
	}
}

func TestManagerRetryMonotonicity(t *testing.T) {
	m := NewManager(10, 3, time.Minute)
	policy := RetryPolicy{Base: time.Second, Max: 30 * time.Second, Multiplier: 1.5, Jitter: 0, MaxAttempts: 5}
	now := time.Now()
	if err := m.Send("msg-1", "peer-1", true, policy, now); err != nil {
		t.Fatalf("send: %v", err)
	}
	tracker := m.trackers["msg-1"]
	var lastDelay time.Duration
	for i := 0; i < 3; i++ {
		delay := policy.NextDelay(tracker.Attempt)
		if i > 0 && delay < lastDelay {
			t.Fatalf("retry delay decreased: %v < %v", delay, lastDelay)
		}
		lastDelay = delay
		tracker.RecordRetry(now)
	}
}

func TestManagerSweepExhaustedMovesToDeadLetterQueue(t *testing.T) {
	m := NewManager(10, 3, time.Minute)
	policy := RetryPolicy{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1, Jitter: 0, MaxAttempts: 1}
	now := time.Now()
	if err := m.Send("msg-1", "peer-1", true, policy, now); err != nil {
		t.Fatalf("send: %v", err)
	}
	var failed meshtransport.FailedEvent
	m.OnFailed = func(e meshtransport.FailedEvent) { failed = e }
	m.SweepExhausted(now.Add(time.Hour))
	if len(m.DeadLetters()) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(m.DeadLetters()))
	}
	if failed.MessageID != "msg-1" {
		t.Fatalf("expected OnFailed to fire with msg-1, got %+v", failed)
	}
}

func TestManagerRequeueFromDeadLetterQueue(t *testing.T) {
	m := NewManager(10, 3, time.Minute)
	policy := RetryPolicy{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1, Jitter: 0, MaxAttempts: 1}
	now := time.Now()
	m.Send("msg-1", "peer-1", true, policy, now)
	m.SweepExhausted(now.Add(time.Hour))

	dl, ok := m.Requeue("msg-1")
	if !ok || dl.MessageID != "msg-1" {
		t.Fatalf("expected to requeue msg-1, got %+v ok=%v", dl, ok)
	}
	if len(m.DeadLetters()) != 0 {
		t.Fatalf("expected DLQ empty after requeue")
	}
}

func TestManagerCircuitBreakerIntegration(t *testing.T) {
	m := NewManager(10, 2, time.Minute)
	now := time.Now()
	policy := RetryPolicy{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1, Jitter: 0, MaxAttempts: 1}

	for i := 0; i < 2; i++ {
		if err := m.Send("msg", "peer-1", true, policy, now); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		m.SweepExhausted(now.Add(time.Hour))
	}
	if err := m.Send("msg-2", "peer-1", true, policy, now); err == nil {
		t.Fatalf("expected circuit breaker to reject send after 2 consecutive failures")
	}
}
