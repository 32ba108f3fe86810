package fragment

import (
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

// OriginQuota bounds how much of the arena a single origin node may consume
// (spec.md §4.C "Resource protection").
type OriginQuota struct {
	FragmentsPerMinute int
	MaxActiveSessions  int
	MaxBytesHeld       int
}

// DefaultOriginQuota mirrors the defaults implied by the fragment caps and
// the default session count: generous enough for one large message in
// flight per origin without allowing a single misbehaving peer to exhaust
// the arena.
var DefaultOriginQuota = OriginQuota{
	FragmentsPerMinute: 600,
	MaxActiveSessions:  4,
	MaxBytesHeld:       64 * 1024,
}

type originUsage struct {
	fragmentTimestamps []time.Time
	activeSessions     map[string]struct{}
	bytesHeld          int
}

// Arena owns the set of in-flight reassembly sessions. It is not safe for
// concurrent use; the orchestrator's single loop serializes access
// (spec.md §5).
type Arena struct {
	sessions map[string]*Session
	lru      []string // least-recently-active first
	capacity int
	quota    OriginQuota

	origins map[string]*originUsage
}

// NewArena returns an empty arena bounded to capacity sessions (default 100
// when capacity <= 0) and quota (DefaultOriginQuota when zero-valued).
func NewArena(capacity int, quota OriginQuota) *Arena {
	if capacity <= 0 {
		capacity = defaultMaxSessions
	}
	if quota == (OriginQuota{}) {
		quota = DefaultOriginQuota
	}
	return &Arena{
		sessions: make(map[string]*Session),
		capacity: capacity,
		quota:    quota,
		origins:  make(map[string]*originUsage),
	}
}

func (a *Arena) usage(origin string) *originUsage {
	u, ok := a.origins[origin]
	if !ok {
		u = &originUsage{activeSessions: make(map[string]struct{})}
		a.origins[origin] = u
	}
	return u
}

// checkQuota enforces the per-origin fragments-per-minute, active-session,
// and bytes-held limits, pruning stale timestamps first.
func (a *Arena) checkQuota(origin string, now time.Time, incomingBytes int, sessionKey string) error {
	u := a.usage(origin)

	cutoff := now.Add(-time.Minute)
	kept := u.fragmentTimestamps[:0]
	for _, ts := range u.fragmentTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	u.fragmentTimestamps = kept

	if len(u.fragmentTimestamps) >= a.quota.FragmentsPerMinute {
		return meshtransport.New(meshtransport.RateLimited, "fragment.Arena.Accept", nil)
	}
	if _, exists := u.activeSessions[sessionKey]; !exists && len(u.activeSessions) >= a.quota.MaxActiveSessions {
		return meshtransport.New(meshtransport.RateLimited, "fragment.Arena.Accept", nil)
	}
	if u.bytesHeld+incomingBytes > a.quota.MaxBytesHeld {
		return meshtransport.New(meshtransport.RateLimited, "fragment.Arena.Accept", nil)
	}
	return nil
}

func (a *Arena) recordUsage(origin string, now time.Time, incomingBytes int, sessionKey string) {
	u := a.usage(origin)
	u.fragmentTimestamps = append(u.fragmentTimestamps, now)
	u.activeSessions[sessionKey] = struct{}{}
	u.bytesHeld += incomingBytes
}

func (a *Arena) releaseUsage(origin, sessionKey string, bytesHeld int) {
	u, ok := a.origins[origin]
	if !ok {
		return
	}
	delete(u.activeSessions, sessionKey)
	u.bytesHeld -= bytesHeld
	if u.bytesHeld < 0 {
		u.bytesHeld = 0
	}
}

func (a *Arena) touch(key string) {
	for i, k := range a.lru {
		if k == key {
			a.lru = append(a.lru[:i], a.lru[i+1:]...)
			break
		}
	}
	a.lru = append(a.lru, key)
}

// evictOldest drops the session with the oldest lastActivity, returning its
// key, to make room under a full arena (spec.md §4.C "Reassembly").
func (a *Arena) evictOldest() (string, bool) {
	if len(a.lru) == 0 {
		return "", false
	}
	key := a.lru[0]
	a.lru = a.lru[1:]
	s, ok := a.sessions[key]
	if ok {
		delete(a.sessions, key)
		a.releaseUsage(s.Origin, key, sessionBytesHeld(s))
	}
	return key, ok
}

func sessionBytesHeld(s *Session) int {
	total := 0
	for _, p := range s.payloads {
		total += len(p)
	}
	return total
}

// AcceptResult is the outcome of feeding one validated fragment to the arena.
type AcceptResult struct {
	Complete   bool
	Payload    []byte
	Session    *Session
	EvictedKey string
	Evicted    bool
}

// Accept validates structure (via fragment.Validate, done by the caller
// before this call), looks up or creates the session for f.MessageID,
// applies per-origin quotas, and feeds the fragment into the session state
// machine. On completion the session is removed from the arena.
func (a *Arena) Accept(f *Fragment, origin string, priority meshtransport.MessagePriority, msgType meshtransport.MessageType, now time.Time) (AcceptResult, error) {
	key := sessionKeyOf(f.MessageID)

	existing, ok := a.sessions[key]
	if !ok {
		if err := a.checkQuota(origin, now, len(f.Payload), key); err != nil {
			return AcceptResult{}, err
		}
		var result AcceptResult
		if len(a.sessions) >= a.capacity {
			evictedKey, evicted := a.evictOldest()
			result.EvictedKey = evictedKey
			result.Evicted = evicted
		}
		existing = newSession(f, now, origin, priority, msgType)
		a.sessions[key] = existing
		a.recordUsage(origin, now, len(f.Payload), key)
		a.touch(key)

		payload, complete, err := Accept(existing, f, now)
		result.Complete = complete
		result.Payload = payload
		result.Session = existing
		if complete {
			a.remove(key)
		}
		return result, err
	}

	if err := a.checkQuota(origin, now, len(f.Payload), key); err != nil {
		return AcceptResult{}, err
	}
	a.recordUsage(origin, now, len(f.Payload), key)
	a.touch(key)

	payload, complete, err := Accept(existing, f, now)
	result := AcceptResult{Complete: complete, Payload: payload, Session: existing}
	if complete {
		a.remove(key)
	}
	return result, err
}

func (a *Arena) remove(key string) {
	s, ok := a.sessions[key]
	if !ok {
		return
	}
	delete(a.sessions, key)
	for i, k := range a.lru {
		if k == key {
			a.lru = append(a.lru[:i], a.lru[i+1:]...)
			break
		}
	}
	a.releaseUsage(s.Origin, key, sessionBytesHeld(s))
}

// SweepExpired transitions any session past its timeout to Expired and
// removes it from the arena, returning the removed sessions.
func (a *Arena) SweepExpired(now time.Time) []*Session {
	var expired []*Session
	for key, s := range a.sessions {
		if Expired(s, now) {
			s.State = StateExpired
			expired = append(expired, s)
			a.remove(key)
		}
	}
	return expired
}

// Get returns the session for messageId, if present.
func (a *Arena) Get(messageID [16]byte) (*Session, bool) {
	s, ok := a.sessions[sessionKeyOf(messageID)]
	return s, ok
}

// Len reports the number of in-flight sessions.
func (a *Arena) Len() int { return len(a.sessions) }

// Sessions returns every live session, for callers that need to walk the
// arena looking for retransmission work (spec.md §3 "Missing-fragment
// detection & retransmission") rather than look one up by id.
func (a *Arena) Sessions() []*Session {
	out := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	return out
}

func sessionKeyOf(id [16]byte) string {
	s := &Session{MessageID: id}
	return s.Key()
}
