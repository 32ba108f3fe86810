package fragment

import (
	"encoding/hex"
	"math"
	"math/rand"
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

// SessionState is one of the reassembly session lifecycle states (spec.md §3).
type SessionState int

const (
	StateReceiving SessionState = iota
	StateWaitingRetransmission
	StateComplete
	StateFailed
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateReceiving:
		return "receiving"
	case StateWaitingRetransmission:
		return "waiting_retransmission"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	defaultSessionTimeout            = 5 * time.Minute
	defaultMaxSessions               = 100
	defaultMaxRetransmissionAttempts = 3
	retransmitBase                   = 1 * time.Second
	retransmitMax                    = 30 * time.Second
	retransmitJitterPct              = 0.20
	compressedBitmapThreshold        = 10
)

// Session is one in-flight inbound message, keyed by hex messageId (spec.md §3).
type Session struct {
	MessageID      [16]byte
	Origin         string
	TotalFragments uint16
	bitmap         []bool
	payloads       map[uint16][]byte
	CreatedAt      time.Time
	LastActivity   time.Time
	TimeoutAt      time.Time
	RetryCount     int
	State          SessionState
	Priority       meshtransport.MessagePriority
	MsgType        meshtransport.MessageType

	perSeqAttempts       map[uint16]int
	nextRetransmissionAt time.Time
}

// Key returns the arena map key for this session.
func (s *Session) Key() string { return hex.EncodeToString(s.MessageID[:]) }

// Missing returns the ordered sequence numbers not yet received.
func (s *Session) Missing() []uint16 {
	var out []uint16
	for i, got := range s.bitmap {
		if !got {
			out = append(out, uint16(i))
		}
	}
	return out
}

// Bit reports whether fragment i has been accepted (spec.md §8 "Bitmap
// correctness").
func (s *Session) Bit(i uint16) bool {
	if int(i) >= len(s.bitmap) {
		return false
	}
	return s.bitmap[i]
}

func newSession(f *Fragment, now time.Time, origin string, priority meshtransport.MessagePriority, msgType meshtransport.MessageType) *Session {
	return &Session{
		MessageID:      f.MessageID,
		Origin:         origin,
		TotalFragments: f.TotalFragments,
		bitmap:         make([]bool, f.TotalFragments),
		payloads:       make(map[uint16][]byte, f.TotalFragments),
		CreatedAt:      now,
		LastActivity:   now,
		TimeoutAt:      now.Add(sessionTimeout(priority, f.TotalFragments)),
		State:          StateReceiving,
		Priority:       priority,
		MsgType:        msgType,
		perSeqAttempts: make(map[uint16]int),
	}
}

// sessionTimeout dynamically widens the default for higher-priority, larger
// messages (spec.md §4.C "Acknowledgments" / expiry note).
func sessionTimeout(priority meshtransport.MessagePriority, totalFragments uint16) time.Duration {
	t := defaultSessionTimeout
	if priority <= meshtransport.PriorityHigh {
		t += 2 * time.Minute
	}
	if totalFragments > 10 {
		t += time.Duration(totalFragments) * time.Second
	}
	return t
}

func (s *Session) reassemble() []byte {
	out := make([]byte, 0, int(s.TotalFragments)*180)
	for i := uint16(0); i < s.TotalFragments; i++ {
		out = append(out, s.payloads[i]...)
	}
	return out
}

func (s *Session) complete() bool {
	for _, got := range s.bitmap {
		if !got {
			return false
		}
	}
	return true
}

// RetransmissionRequest carries the missing-fragment list (or a compressed
// bitmap when more than compressedBitmapThreshold entries are missing) back
// to the sender (spec.md §6).
type RetransmissionRequest struct {
	MessageID        [16]byte
	MissingFragments []uint16
	CompressedBitmap []byte
	RequestID        [16]byte
	Timestamp        time.Time
	NodeID           string
}

// BuildRetransmissionRequest computes the pending retransmission request for
// a session, if one is due. It does not mutate session state; callers
// schedule the next backoff window via AdvanceRetransmission.
func BuildRetransmissionRequest(s *Session, now time.Time, nodeID string) (*RetransmissionRequest, bool) {
	missing := s.Missing()
	if len(missing) == 0 {
		return nil, false
	}
	if now.Before(s.nextRetransmissionAt) {
		return nil, false
	}
	req := &RetransmissionRequest{
		MessageID: s.MessageID,
		Timestamp: now,
		NodeID:    nodeID,
	}
	if len(missing) > compressedBitmapThreshold {
		req.CompressedBitmap = packBitmap(s.bitmap)
	} else {
		req.MissingFragments = missing
	}
	return req, true
}

func packBitmap(bitmap []bool) []byte {
	out := make([]byte, (len(bitmap)+7)/8)
	for i, got := range bitmap {
		if got {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// AdvanceRetransmission records that a retransmission request was just sent,
// schedules the next backoff window, bumps RetryCount, and transitions the
// session to WaitingRetransmission. Once maxRetransmissionAttempts is
// exceeded the session transitions to Failed (spec.md §4.C).
func AdvanceRetransmission(s *Session, now time.Time, maxAttempts int) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxRetransmissionAttempts
	}
	s.RetryCount++
	if s.RetryCount > maxAttempts {
		s.State = StateFailed
		return
	}
	s.State = StateWaitingRetransmission
	s.nextRetransmissionAt = now.Add(backoffDelay(s.RetryCount - 1))
}

// backoffDelay implements spec.md §4.C's backoff formula:
// delay = min(base * 2^retryCount, maxBackoff) + U(0, jitterPct*delay).
func backoffDelay(retryCount int) time.Duration {
	mult := math.Pow(2, float64(retryCount))
	delay := time.Duration(float64(retransmitBase) * mult)
	if delay > retransmitMax {
		delay = retransmitMax
	}
	jitter := time.Duration(rand.Float64() * retransmitJitterPct * float64(delay))
	return delay + jitter
}

// NotifyNack makes the session's next retransmission request due
// immediately, bypassing the backoff schedule (spec.md §4.C
// "Acknowledgments"). Which sequences are requested is still derived from
// the session's bitmap.
func NotifyNack(s *Session, now time.Time) {
	s.nextRetransmissionAt = now
}

// Accept processes one validated inbound fragment against its session,
// returning the reassembled payload and true when the message is complete.
// Duplicate fragments return meshtransport.DuplicateFragment without
// mutating state further.
func Accept(s *Session, f *Fragment, now time.Time) ([]byte, bool, error) {
	if s.Bit(f.SequenceNumber) {
		return nil, false, meshtransport.New(meshtransport.DuplicateFragment, "fragment.Accept", nil)
	}
	s.payloads[f.SequenceNumber] = f.Payload
	s.bitmap[f.SequenceNumber] = true
	s.LastActivity = now
	if s.State == StateWaitingRetransmission {
		s.State = StateReceiving
	}
	if s.complete() {
		s.State = StateComplete
		return s.reassemble(), true, nil
	}
	return nil, false, nil
}

// Expired reports whether the time since the session's LastActivity exceeds
// its timeout (the span from CreatedAt to TimeoutAt).
func Expired(s *Session, now time.Time) bool {
	return now.Sub(s.LastActivity) > s.TimeoutAt.Sub(s.CreatedAt)
}
