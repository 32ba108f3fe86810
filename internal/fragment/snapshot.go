package fragment

import (
	"sort"
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

// SessionSnapshot is the exported, persistable view of a Session (spec.md
// §6 "Persisted state": reassembly sessions). Session itself keeps its
// bitmap/payload map unexported so callers can't bypass Accept's
// invariants; Snapshot/Restore are the only sanctioned crossing points.
type SessionSnapshot struct {
	MessageID      [16]byte
	Origin         string
	TotalFragments uint16
	Received       []uint16 // sequence numbers with a stored payload
	Payloads       map[uint16][]byte
	CreatedAt      time.Time
	LastActivity   time.Time
	TimeoutAt      time.Time
	RetryCount     int
	State          SessionState
	Priority       meshtransport.MessagePriority
	MsgType        meshtransport.MessageType
}

// Snapshot captures s's persistable state.
func (s *Session) Snapshot() SessionSnapshot {
	received := make([]uint16, 0, len(s.payloads))
	payloads := make(map[uint16][]byte, len(s.payloads))
	for seq, p := range s.payloads {
		received = append(received, seq)
		payloads[seq] = append([]byte(nil), p...)
	}
	return SessionSnapshot{
		MessageID:      s.MessageID,
		Origin:         s.Origin,
		TotalFragments: s.TotalFragments,
		Received:       received,
		Payloads:       payloads,
		CreatedAt:      s.CreatedAt,
		LastActivity:   s.LastActivity,
		TimeoutAt:      s.TimeoutAt,
		RetryCount:     s.RetryCount,
		State:          s.State,
		Priority:       s.Priority,
		MsgType:        s.MsgType,
	}
}

// RestoreSession rebuilds a Session from a snapshot, e.g. after the node
// restarts with persisted arena state.
func RestoreSession(snap SessionSnapshot) *Session {
	bitmap := make([]bool, snap.TotalFragments)
	payloads := make(map[uint16][]byte, len(snap.Payloads))
	for _, seq := range snap.Received {
		if int(seq) < len(bitmap) {
			bitmap[seq] = true
		}
		payloads[seq] = append([]byte(nil), snap.Payloads[seq]...)
	}
	return &Session{
		MessageID:      snap.MessageID,
		Origin:         snap.Origin,
		TotalFragments: snap.TotalFragments,
		bitmap:         bitmap,
		payloads:       payloads,
		CreatedAt:      snap.CreatedAt,
		LastActivity:   snap.LastActivity,
		TimeoutAt:      snap.TimeoutAt,
		RetryCount:     snap.RetryCount,
		State:          snap.State,
		Priority:       snap.Priority,
		MsgType:        snap.MsgType,
		perSeqAttempts: make(map[uint16]int),
	}
}

// Snapshot returns a SessionSnapshot for every live session in the arena,
// keyed by the same hex message-id key used internally.
func (a *Arena) Snapshot() map[string]SessionSnapshot {
	out := make(map[string]SessionSnapshot, len(a.sessions))
	for key, s := range a.sessions {
		out[key] = s.Snapshot()
	}
	return out
}

// Restore replaces the arena's session set with the given snapshots,
// rebuilding the LRU order from LastActivity (oldest first).
func (a *Arena) Restore(snaps map[string]SessionSnapshot) {
	a.sessions = make(map[string]*Session, len(snaps))
	a.lru = a.lru[:0]
	for key, snap := range snaps {
		a.sessions[key] = RestoreSession(snap)
		a.lru = append(a.lru, key)
	}
	sort.Slice(a.lru, func(i, j int) bool {
		return a.sessions[a.lru[i]].LastActivity.Before(a.sessions[a.lru[j]].LastActivity)
	})
}
