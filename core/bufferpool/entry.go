package bufferpool

import (
	"container/list"
	"math"

	"github.com/gojodb/pagecache/core/pageframe"
)

// entry wraps a Frame with heat metadata: a last-access timestamp
// (milliseconds since the owning pool was constructed), an access
// count, and the derived heat score.
//
// An entry is owned by exactly one tier at a time; elem points back
// at its position in that tier's *list.List so the tier can reorder
// or remove it in O(1).
type entry struct {
	frame *pageframe.Frame

	lastAccessMs int64
	accessCount  uint64
	heat         float64

	elem *list.Element // this entry's node in its owning tier's list
}

func newEntry(frame *pageframe.Frame, nowMs int64) *entry {
	return &entry{
		frame:        frame,
		lastAccessMs: nowMs,
		accessCount:  1,
		heat:         1.0,
	}
}

// recordAccess updates access_count, last_access and heat using
// heat = access_count / ln(Δt + 2), Δt clamped to at least 1ms so the
// "+2" headroom is never defeated by a caller that also zeroes Δt.
func (e *entry) recordAccess(nowMs int64) {
	deltaMs := nowMs - e.lastAccessMs
	if deltaMs < 1 {
		deltaMs = 1
	}
	e.accessCount++
	e.heat = float64(e.accessCount) / math.Log(float64(deltaMs)+2)
	e.lastAccessMs = nowMs
}
