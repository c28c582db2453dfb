package bufferpool

import "sync/atomic"

// Stats holds atomic counters for the cache's lifetime events. No
// mutex is required: every field is updated with atomic ops.
type Stats struct {
	hits       atomic.Uint64
	misses     atomic.Uint64
	inserts    atomic.Uint64
	evictions  atomic.Uint64
	promotions atomic.Uint64
	demotions  atomic.Uint64
	writebacks atomic.Uint64
	flushes    atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats, safe to pass around and
// compare in tests.
type Snapshot struct {
	Hits       uint64
	Misses     uint64
	Inserts    uint64
	Evictions  uint64
	Promotions uint64
	Demotions  uint64
	Writebacks uint64
	Flushes    uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Inserts:    s.inserts.Load(),
		Evictions:  s.evictions.Load(),
		Promotions: s.promotions.Load(),
		Demotions:  s.demotions.Load(),
		Writebacks: s.writebacks.Load(),
		Flushes:    s.flushes.Load(),
	}
}
