package meshtransport

import "time"

// MessagePriority mirrors spec.md §3's PrioritizedMessage.priority domain.
// Lower values are higher priority.
type MessagePriority int

const (
	PriorityCritical MessagePriority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p MessagePriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// MessageType tags a payload for codec selection, fragment sizing, and
// routing priority ordering (spec.md §4.B, §4.C, §4.G).
type MessageType int

const (
	MsgTypeUTXOTransaction MessageType = iota
	MsgTypeBlock
	MsgTypeMerkleProof
	MsgTypeMeshControl // route discovery/reply/error, hello, ack/nack
)

func (t MessageType) String() string {
	switch t {
	case MsgTypeUTXOTransaction:
		return "utxo_transaction"
	case MsgTypeBlock:
		return "block"
	case MsgTypeMerkleProof:
		return "merkle_proof"
	case MsgTypeMeshControl:
		return "mesh_control"
	default:
		return "unknown"
	}
}

// DeliveredEvent fires once a reliable message is confirmed received.
type DeliveredEvent struct {
	MessageID string
	NodeID    string
	At        time.Time
	Attempts  int
}

// RetryEvent fires before a retransmission attempt is dispatched.
type RetryEvent struct {
	MessageID string
	NodeID    string
	Attempt   int
	NextDelay time.Duration
}

// FailedEvent fires when a message exhausts its retry budget and moves to
// the dead-letter queue.
type FailedEvent struct {
	MessageID string
	NodeID    string
	Attempts  int
	Reason    error
}

// DutyCycleWarningEvent fires when a band's utilization crosses warnThreshold.
type DutyCycleWarningEvent struct {
	Band        string
	Utilization float64
	Threshold   float64
	At          time.Time
}

// DutyCycleViolationEvent fires when a forced transmission would exceed (or
// did exceed, under emergency override) the regulatory limit.
type DutyCycleViolationEvent struct {
	Band        string
	Utilization float64
	Limit       float64
	Forced      bool
	At          time.Time
}

// CircuitStateChangedEvent fires on Closed/Open/HalfOpen transitions.
type CircuitStateChangedEvent struct {
	PeerID string
	From   string
	To     string
	At     time.Time
}

// RouteChangedEvent fires when a route table entry is inserted, replaced, or
// removed.
type RouteChangedEvent struct {
	Destination string
	NextHop     string
	HopCount    int
	Removed     bool
	At          time.Time
}

// SessionEvent fires on reassembly session lifecycle transitions.
type SessionEvent struct {
	MessageID string
	State     string
	At        time.Time
}
