// Package priority implements the fee-weighted, emergency-preemptive
// message queue that feeds the duty-cycle scheduler (spec.md §4.D).
package priority

import (
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

// Message is the queue's envelope around a payload awaiting transmission
// (spec.md §3 PrioritizedMessage).
type Message struct {
	Payload             []byte
	Priority            meshtransport.MessagePriority
	EmergencyFlag       bool
	Fee                 uint64
	EstimatedSizeBytes  int
	InputCount          int
	OutputCount         int
	CreatedAt           time.Time
	TTL                 time.Duration
	RetryCount          int
	MaxRetries          int
	QueueID             string
	CompressionApplied  bool
	MsgType             meshtransport.MessageType
	BlockHeight         uint64
}

// FeePerByte returns Fee / EstimatedSizeBytes, or 0 when size is unknown.
func (m *Message) FeePerByte() float64 {
	if m.EstimatedSizeBytes <= 0 {
		return 0
	}
	return float64(m.Fee) / float64(m.EstimatedSizeBytes)
}

// Expired reports whether the message's TTL has elapsed as of now.
func (m *Message) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.Sub(m.CreatedAt) > m.TTL
}

const ageBoostCapSeconds = 100

// Score implements spec.md §3's HeapNode formula:
//
//	priority*1000 − (emergency?10000:0) − min(ageMs/1000,100) − feePerByte*10 − (blockHeight*0.01)
//
// Lower scores are dequeued first.
func (m *Message) Score(now time.Time) float64 {
	score := float64(m.Priority) * 1000
	if m.EmergencyFlag {
		score -= 10000
	}
	ageSeconds := now.Sub(m.CreatedAt).Seconds()
	if ageSeconds > ageBoostCapSeconds {
		ageSeconds = ageBoostCapSeconds
	}
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	score -= ageSeconds
	score -= m.FeePerByte() * 10
	score -= float64(m.BlockHeight) * 0.01
	return score
}
