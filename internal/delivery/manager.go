package delivery

import (
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

// DeadLetter is a message that exhausted its retry budget, held for
// inspection and manual requeue (spec.md §4.F).
type DeadLetter struct {
	MessageID string
	NodeID    string
	Attempts  int
	FailedAt  time.Time
	Reason    error
}

// Manager owns the set of in-flight AckTrackers, one CircuitBreaker per
// peer, and the dead-letter queue (spec.md §4.F). It is mutated only by the
// orchestrator's loop (spec.md §5).
type Manager struct {
	trackers map[string]*AckTracker
	breakers map[string]*CircuitBreaker

	dlq              []DeadLetter
	deadLetterThreshold int

	breakerThreshold int
	breakerCoolDown  time.Duration

	OnDelivered func(meshtransport.DeliveredEvent)
	OnRetry     func(meshtransport.RetryEvent)
	OnFailed    func(meshtransport.FailedEvent)
	OnCircuitStateChanged func(meshtransport.CircuitStateChangedEvent)
}

// NewManager returns an empty delivery manager. deadLetterThreshold bounds
// the DLQ's retained entries (oldest dropped first past the bound);
// breakerThreshold/breakerCoolDown configure new per-peer breakers.
func NewManager(deadLetterThreshold, breakerThreshold int, breakerCoolDown time.Duration) *Manager {
	if deadLetterThreshold <= 0 {
		deadLetterThreshold = 1000
	}
	return &Manager{
		trackers:            make(map[string]*AckTracker),
		breakers:            make(map[string]*CircuitBreaker),
		deadLetterThreshold: deadLetterThreshold,
		breakerThreshold:    breakerThreshold,
		breakerCoolDown:     breakerCoolDown,
	}
}

func (m *Manager) breakerFor(peerID string) *CircuitBreaker {
	b, ok := m.breakers[peerID]
	if !ok {
		b = NewCircuitBreaker(m.breakerThreshold, m.breakerCoolDown)
		b.OnStateChanged = m.OnCircuitStateChanged
		m.breakers[peerID] = b
	}
	return b
}

// Send checks the peer's circuit breaker and, if it allows the attempt,
// begins tracking messageID for ACK confirmation. policy selects the retry
// schedule; pass GuaranteedRetryPolicy for guaranteed-reliability messages.
func (m *Manager) Send(messageID, peerID string, deliveryRequired bool, policy RetryPolicy, now time.Time) error {
	if err := m.breakerFor(peerID).Allow(peerID, now); err != nil {
		return err
	}
	m.trackers[messageID] = NewAckTracker(messageID, peerID, deliveryRequired, now, policy)
	return nil
}

// ConfirmDelivery marks messageID delivered: the breaker records success,
// the tracker is dropped, and OnDelivered fires.
func (m *Manager) ConfirmDelivery(messageID string, now time.Time) {
	t, ok := m.trackers[messageID]
	if !ok {
		return
	}
	delete(m.trackers, messageID)
	m.breakerFor(t.TargetNodeID).RecordSuccess(t.TargetNodeID, now)
	if m.OnDelivered != nil {
		m.OnDelivered(meshtransport.DeliveredEvent{
			MessageID: messageID,
			NodeID:    t.TargetNodeID,
			At:        now,
			Attempts:  t.Attempt,
		})
	}
}

// PendingRetries scans all trackers for ones due for another attempt,
// recording the retry and firing OnRetry for each, and returns their
// messageIDs for the caller to actually re-transmit.
func (m *Manager) PendingRetries(now time.Time) []string {
	var due []string
	for id, t := range m.trackers {
		if !t.DueForRetry(now) {
			continue
		}
		t.RecordRetry(now)
		due = append(due, id)
		if m.OnRetry != nil {
			m.OnRetry(meshtransport.RetryEvent{
				MessageID: id,
				NodeID:    t.TargetNodeID,
				Attempt:   t.Attempt,
				NextDelay: t.NextRetryAt.Sub(now),
			})
		}
	}
	return due
}

// SweepExhausted moves every tracker that has spent its retry budget, or
// whose ACK deadline has passed, to the dead-letter queue, recording a
// circuit-breaker failure for each and firing OnFailed.
func (m *Manager) SweepExhausted(now time.Time) {
	for id, t := range m.trackers {
		if t.Cancelled {
			delete(m.trackers, id)
			continue
		}
		timedOut := now.After(t.DeadlineAt)
		if !t.Exhausted() && !timedOut {
			continue
		}
		delete(m.trackers, id)
		m.breakerFor(t.TargetNodeID).RecordFailure(t.TargetNodeID, now)

		reason := meshtransport.New(meshtransport.MaxRetriesExceeded, "delivery.SweepExhausted", nil)
		if timedOut && !t.Exhausted() {
			reason = meshtransport.New(meshtransport.AckTimeout, "delivery.SweepExhausted", nil)
		}
		m.addDeadLetter(DeadLetter{MessageID: id, NodeID: t.TargetNodeID, Attempts: t.Attempt, FailedAt: now, Reason: reason})
		if m.OnFailed != nil {
			m.OnFailed(meshtransport.FailedEvent{MessageID: id, NodeID: t.TargetNodeID, Attempts: t.Attempt, Reason: reason})
		}
	}
}

func (m *Manager) addDeadLetter(d DeadLetter) {
	m.dlq = append(m.dlq, d)
	if len(m.dlq) > m.deadLetterThreshold {
		m.dlq = m.dlq[len(m.dlq)-m.deadLetterThreshold:]
	}
}

// Cancel stops tracking messageID without moving it to the DLQ.
func (m *Manager) Cancel(messageID string) {
	if t, ok := m.trackers[messageID]; ok {
		t.Cancel()
		delete(m.trackers, messageID)
	}
}

// DeadLetters returns the current dead-letter queue contents.
func (m *Manager) DeadLetters() []DeadLetter {
	return append([]DeadLetter(nil), m.dlq...)
}

// Requeue removes messageID from the DLQ and returns it for the caller to
// resubmit via Send, reporting whether it was found.
func (m *Manager) Requeue(messageID string) (DeadLetter, bool) {
	for i, d := range m.dlq {
		if d.MessageID == messageID {
			m.dlq = append(m.dlq[:i], m.dlq[i+1:]...)
			return d, true
		}
	}
	return DeadLetter{}, false
}

// PeerState returns the circuit-breaker state for peerID, if one has been
// created for it.
func (m *Manager) PeerState(peerID string) (CircuitState, bool) {
	b, ok := m.breakers[peerID]
	if !ok {
		return CircuitClosed, false
	}
	return b.State(), true
}
