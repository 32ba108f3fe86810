package routing

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultFloodCacheSize = 500

type floodKey struct {
	originator string
	sequence   uint64
}

// FloodCache suppresses duplicate forwards of the same (originator,
// sequence) flood during route discovery (spec.md §4.G "Flood management").
// Backed by an LRU so a bursty discovery storm evicts its own oldest
// entries rather than growing unbounded.
type FloodCache struct {
	cache *lru.Cache[floodKey, time.Time]
}

// NewFloodCache returns a cache bounded to size entries (default 500).
func NewFloodCache(size int) *FloodCache {
	if size <= 0 {
		size = defaultFloodCacheSize
	}
	c, _ := lru.New[floodKey, time.Time](size)
	return &FloodCache{cache: c}
}

// ShouldForwardFlood reports whether (originator, sequence) has not yet
// been seen and, if so, atomically commits the cache entry in the same
// call — the first successful call wins and every later call for the same
// key returns false. This corrects the source's separated
// shouldForwardFlood/markFloodProcessed contract (spec.md §9), which
// allowed repeated forwards when the mark call was skipped.
func (f *FloodCache) ShouldForwardFlood(originator string, sequence uint64, now time.Time) bool {
	key := floodKey{originator, sequence}
	if _, seen := f.cache.Get(key); seen {
		return false
	}
	f.cache.Add(key, now)
	return true
}

// Len returns the number of entries currently cached.
func (f *FloodCache) Len() int { return f.cache.Len() }
