package bufferpool

import (
	"container/list"

	"github.com/gojodb/pagecache/core/pageframe"
)

// tier is an MRU-ordered sequence of entries plus a map for O(1)
// lookup. The front of seq is most-recently-used; the back is
// least-recently-used.
//
// A tier is guarded by exactly one of the pool's two tier mutexes; it
// has no locking of its own, so "insert under tier lock" and "lookup
// under tier lock" stay clearly separated from each other — neither
// ever calls the other while already holding the caller's lock.
type tier struct {
	name     string
	capacity int
	seq      *list.List // Value = pageframe.PageID
	index    map[pageframe.PageID]*entry
}

func newTier(name string, capacity int) *tier {
	return &tier{
		name:     name,
		capacity: capacity,
		seq:      list.New(),
		index:    make(map[pageframe.PageID]*entry, capacity),
	}
}

func (t *tier) len() int { return len(t.index) }

func (t *tier) atCapacity() bool { return len(t.index) >= t.capacity }

func (t *tier) get(id pageframe.PageID) (*entry, bool) {
	e, ok := t.index[id]
	return e, ok
}

// insertFront adds e to the front of the sequence under id.
func (t *tier) insertFront(id pageframe.PageID, e *entry) {
	e.elem = t.seq.PushFront(id)
	t.index[id] = e
}

// moveToFront re-marks e as most-recently-used.
func (t *tier) moveToFront(e *entry) {
	t.seq.MoveToFront(e.elem)
}

// remove detaches id from both the sequence and the map, returning
// its entry. It does not touch the entry's frame.
func (t *tier) remove(id pageframe.PageID) (*entry, bool) {
	e, ok := t.index[id]
	if !ok {
		return nil, false
	}
	t.seq.Remove(e.elem)
	e.elem = nil
	delete(t.index, id)
	return e, true
}

// lruIDs returns page ids from least- to most-recently-used, for
// eviction scans. It snapshots the ids up front rather than iterating
// the list live, so a scan can mutate the tier (via remove) without
// invalidating its own cursor.
func (t *tier) lruIDs() []pageframe.PageID {
	ids := make([]pageframe.PageID, 0, t.seq.Len())
	for e := t.seq.Back(); e != nil; e = e.Prev() {
		ids = append(ids, e.Value.(pageframe.PageID))
	}
	return ids
}
