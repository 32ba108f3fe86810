package delivery

import (
	"sync"
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

// CircuitState is one of Closed/Open/HalfOpen (spec.md §3 CircuitBreakerState).
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast against a peer after N consecutive failures,
// probing once after a cool-down (spec.md §4.F). Safe for concurrent use:
// the orchestrator's loop is the only mutator in the reference design, but
// the mutex guard matches the ban-score style primitive the rest of this
// stack follows for shared per-peer state.
type CircuitBreaker struct {
	mu                 sync.Mutex
	threshold          int
	coolDown           time.Duration
	state              CircuitState
	consecutiveFailures int
	openedAt           time.Time
	halfOpenProbeInFlight bool

	OnStateChanged func(meshtransport.CircuitStateChangedEvent)
}

// NewCircuitBreaker returns a closed breaker that opens after threshold
// consecutive failures and probes again after coolDown.
func NewCircuitBreaker(threshold int, coolDown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, coolDown: coolDown, state: CircuitClosed}
}

// Allow reports whether a send to this peer may proceed right now. When the
// breaker is Open past its cool-down, Allow transitions it to HalfOpen and
// grants exactly one probe.
func (b *CircuitBreaker) Allow(peerID string, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if now.Sub(b.openedAt) < b.coolDown {
			return meshtransport.New(meshtransport.CircuitBreakerOpen, "delivery.CircuitBreaker.Allow", nil)
		}
		b.transition(peerID, CircuitHalfOpen, now)
		b.halfOpenProbeInFlight = true
		return nil
	case CircuitHalfOpen:
		if b.halfOpenProbeInFlight {
			return meshtransport.New(meshtransport.CircuitBreakerOpen, "delivery.CircuitBreaker.Allow", nil)
		}
		b.halfOpenProbeInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker (from Closed or after a successful
// HalfOpen probe) and resets the failure counter.
func (b *CircuitBreaker) RecordSuccess(peerID string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.halfOpenProbeInFlight = false
	if b.state != CircuitClosed {
		b.transition(peerID, CircuitClosed, now)
	}
}

// RecordFailure increments the consecutive-failure counter, opening the
// breaker once it reaches threshold. A failed HalfOpen probe reopens
// immediately regardless of threshold.
func (b *CircuitBreaker) RecordFailure(peerID string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.halfOpenProbeInFlight = false
		b.transition(peerID, CircuitOpen, now)
		return
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.threshold {
		b.transition(peerID, CircuitOpen, now)
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) transition(peerID string, to CircuitState, now time.Time) {
	from := b.state
	b.state = to
	if to == CircuitOpen {
		b.openedAt = now
	}
	if from != to && b.OnStateChanged != nil {
		b.OnStateChanged(meshtransport.CircuitStateChangedEvent{
			PeerID: peerID,
			From:   from.String(),
			To:     to.String(),
			At:     now,
		})
	}
}
