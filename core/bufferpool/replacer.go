package bufferpool

import "github.com/gojodb/pagecache/core/pageframe"

// findVictim scans a tier from its LRU end toward the MRU end and
// returns the first entry with no outstanding pin. It reports
// ok=false if every entry is pinned — the soft-bound case where the
// caller may exceed nominal capacity.
func findVictim(t *tier) (pageframe.PageID, bool) {
	for _, id := range t.lruIDs() {
		e, ok := t.get(id)
		if !ok {
			continue // raced with a concurrent removal under the same lock; skip
		}
		if e.frame.PinCount() == 0 {
			return id, true
		}
	}
	return 0, false
}

// findDemotionCandidate scans the hot tier for the unpinned entry
// with the minimum heat, provided that heat is strictly below
// threshold. It has no LRU-order requirement — the whole tier is
// scanned for the coldest entry.
func findDemotionCandidate(t *tier, threshold float64) (pageframe.PageID, bool) {
	var (
		bestID   pageframe.PageID
		bestHeat float64
		found    bool
	)
	for _, id := range t.lruIDs() {
		e, ok := t.get(id)
		if !ok || e.frame.PinCount() != 0 {
			continue
		}
		if e.heat >= threshold {
			continue
		}
		if !found || e.heat < bestHeat {
			bestHeat = e.heat
			bestID = id
			found = true
		}
	}
	return bestID, found
}
