package routing

import (
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

const (
	defaultRouteExpiryTime      = 5 * time.Minute
	defaultHoldDownTime         = 60 * time.Second
	defaultMaxRoutingTableSize  = 500
)

// Entry is one route table row (spec.md §3 "Route" / BlockchainRouteEntry).
// For a given (Destination, NextHop) only the entry with the highest
// Sequence is retained.
type Entry struct {
	Destination         string
	NextHop             string
	HopCount            int
	Sequence            uint64
	NodeType            NodeType
	UTXOSetCompleteness float64
	BlockchainHeight    uint64
	LinkQuality         float64
	LastUTXOSync        time.Time
	IsActive            bool
	InstalledAt         time.Time
	LastRefresh         time.Time
}

func (e Entry) expired(now time.Time, expiry time.Duration) bool {
	return now.Sub(e.LastRefresh) > expiry
}

// less implements the tie-break order from spec.md §4.G "Route selection":
// full outranks light, then (hopCount ASC, linkQuality DESC,
// utxoSetCompleteness DESC, lastUTXOSync DESC).
func (e Entry) less(o Entry) bool {
	if e.NodeType != o.NodeType {
		return e.NodeType > o.NodeType // full(2) > mining(1) > light(0)
	}
	if e.HopCount != o.HopCount {
		return e.HopCount < o.HopCount
	}
	if e.LinkQuality != o.LinkQuality {
		return e.LinkQuality > o.LinkQuality
	}
	if e.UTXOSetCompleteness != o.UTXOSetCompleteness {
		return e.UTXOSetCompleteness > o.UTXOSetCompleteness
	}
	return e.LastUTXOSync.After(o.LastUTXOSync)
}

type holdDown struct {
	until    time.Time
	sequence uint64
}

// Table holds every known route to every destination, keyed first by
// destination then by next hop, plus the hold-down set for recently
// broken destinations (spec.md §4.G "Route errors").
type Table struct {
	routes     map[string]map[string]Entry // destination -> nextHop -> Entry
	holdDowns  map[string]holdDown         // destination -> hold-down
	expiry     time.Duration
	holdDown   time.Duration
	maxEntries int

	OnChanged func(meshtransport.RouteChangedEvent)
}

// NewTable returns an empty table. Zero expiry/holdDown/maxEntries fall
// back to the spec defaults (5 min / 60 s / 500).
func NewTable(expiry, holdDown time.Duration, maxEntries int) *Table {
	if expiry <= 0 {
		expiry = defaultRouteExpiryTime
	}
	if holdDown <= 0 {
		holdDown = defaultHoldDownTime
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxRoutingTableSize
	}
	return &Table{
		routes:     make(map[string]map[string]Entry),
		holdDowns:  make(map[string]holdDown),
		expiry:     expiry,
		holdDown:   holdDown,
		maxEntries: maxEntries,
	}
}

// inHoldDown reports whether dest is under hold-down at now, unless seq is
// strictly newer than the sequence that triggered it.
func (t *Table) inHoldDown(dest string, seq uint64, now time.Time) bool {
	hd, ok := t.holdDowns[dest]
	if !ok {
		return false
	}
	if now.After(hd.until) {
		delete(t.holdDowns, dest)
		return false
	}
	return seq <= hd.sequence
}

// Offer inserts or replaces the (destination, nextHop) entry if e.Sequence
// is not strictly lower than the sequence of the entry already held for
// that same (destination, nextHop) pair; entries via other next hops are
// not compared (sequence-number freshness, spec.md §8 "Sequence freshness"),
// and the destination is not under an overriding hold-down. Returns false
// if the offer was rejected.
func (t *Table) Offer(e Entry, now time.Time) bool {
	if t.inHoldDown(e.Destination, e.Sequence, now) {
		return false
	}
	byHop, ok := t.routes[e.Destination]
	if !ok {
		byHop = make(map[string]Entry)
		t.routes[e.Destination] = byHop
	}
	if existing, ok := byHop[e.NextHop]; ok && e.Sequence < existing.Sequence {
		return false
	}
	if e.InstalledAt.IsZero() {
		e.InstalledAt = now
	}
	e.LastRefresh = now
	e.IsActive = true
	byHop[e.NextHop] = e
	t.enforceCapacity(now)
	if t.OnChanged != nil {
		t.OnChanged(meshtransport.RouteChangedEvent{
			Destination: e.Destination, NextHop: e.NextHop, HopCount: e.HopCount, Removed: false, At: now,
		})
	}
	return true
}

// Best returns the highest-preference active, non-expired route to dest.
func (t *Table) Best(dest string, now time.Time) (Entry, bool) {
	byHop, ok := t.routes[dest]
	if !ok {
		return Entry{}, false
	}
	var best Entry
	found := false
	for _, e := range byHop {
		if !e.IsActive || e.expired(now, t.expiry) {
			continue
		}
		if !found || e.less(best) {
			best = e
			found = true
		}
	}
	return best, found
}

// RemoveLink removes every (destination, nextHop=to) route whose next hop
// is the broken link's far end, applying a hold-down for each affected
// destination (spec.md §4.G "Route errors"). Returns the list of
// destinations that became unreachable through this link.
func (t *Table) RemoveLink(to string, sequence uint64, now time.Time) []string {
	var affected []string
	for dest, byHop := range t.routes {
		if _, ok := byHop[to]; !ok {
			continue
		}
		delete(byHop, to)
		affected = append(affected, dest)
		t.holdDowns[dest] = holdDown{until: now.Add(t.holdDown), sequence: sequence}
		if len(byHop) == 0 {
			delete(t.routes, dest)
		}
		if t.OnChanged != nil {
			t.OnChanged(meshtransport.RouteChangedEvent{Destination: dest, NextHop: to, Removed: true, At: now})
		}
	}
	return affected
}

// SweepExpired deletes every route whose LastRefresh is older than
// expiry, without refresh, removing empty destination buckets.
func (t *Table) SweepExpired(now time.Time) {
	for dest, byHop := range t.routes {
		for hop, e := range byHop {
			if e.expired(now, t.expiry) {
				delete(byHop, hop)
				if t.OnChanged != nil {
					t.OnChanged(meshtransport.RouteChangedEvent{Destination: dest, NextHop: hop, Removed: true, At: now})
				}
			}
		}
		if len(byHop) == 0 {
			delete(t.routes, dest)
		}
	}
}

// enforceCapacity evicts the globally-oldest-refreshed route once the total
// entry count exceeds maxEntries.
func (t *Table) enforceCapacity(now time.Time) {
	total := 0
	for _, byHop := range t.routes {
		total += len(byHop)
	}
	for total > t.maxEntries {
		var oldestDest, oldestHop string
		var oldestAt time.Time
		first := true
		for dest, byHop := range t.routes {
			for hop, e := range byHop {
				if first || e.LastRefresh.Before(oldestAt) {
					oldestDest, oldestHop, oldestAt = dest, hop, e.LastRefresh
					first = false
				}
			}
		}
		if first {
			return
		}
		delete(t.routes[oldestDest], oldestHop)
		if len(t.routes[oldestDest]) == 0 {
			delete(t.routes, oldestDest)
		}
		total--
	}
}

// Size returns the total number of (destination, nextHop) entries held.
func (t *Table) Size() int {
	total := 0
	for _, byHop := range t.routes {
		total += len(byHop)
	}
	return total
}

// Destinations lists every destination with at least one route.
func (t *Table) Destinations() []string {
	out := make([]string, 0, len(t.routes))
	for dest := range t.routes {
		out = append(out, dest)
	}
	return out
}

// AllEntries returns every (destination, nextHop) entry currently held,
// active or not, for persistence (spec.md §6 "Persisted state: routing
// table snapshot").
func (t *Table) AllEntries() []Entry {
	var out []Entry
	for _, byHop := range t.routes {
		for _, e := range byHop {
			out = append(out, e)
		}
	}
	return out
}
