// Package bufferpool implements the two-tier (hot/cold), heat-scored
// page cache engine: admission, promotion, demotion, eviction, pin
// tracking, and write-back over a heapfile.HeapFile.
package bufferpool

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gojodb/pagecache/core/cache"
	"github.com/gojodb/pagecache/core/heapfile"
	"github.com/gojodb/pagecache/core/pageerr"
	"github.com/gojodb/pagecache/core/pageframe"
)

var _ cache.Cache = (*BufferPool)(nil)

// Lock order, never taken in reverse:
//
//  1. hotMu
//  2. coldMu
//  3. a Frame's own lock
//
// heapfile's internal file_mutex (owned by HeapFile, not this type) is
// a leaf lock: heap-file I/O is issued while tier mutexes and a frame's
// lock may already be held, and HeapFile never takes another lock while
// holding file_mutex.
//
// Pin-count mutations (frame.Pin()/Unpin() plus the pinTable entry)
// always happen with both hotMu and coldMu held, regardless of which
// tier currently holds the id, matching how the source this engine is
// grounded on synchronizes pin_page/unpin_page against the eviction
// scan. Every eviction and demotion scan already holds at least the
// tier mutex it is scanning for the whole decision (pick a victim,
// write it back, remove it), so a pin can never land on an id after
// eviction has already committed to evicting it: the pin either
// completes first (and the scan then sees a nonzero pin count) or
// blocks until the scan releases its tier mutex (and then finds the
// id already gone).
//
// PinPage and UnpinPage never acquire or release a Frame's
// upgradeable hold. PinPage touches only hotMu/coldMu and the pin
// table; UnpinPage additionally, when dirty is true, upgrades the
// caller's own upgradeable hold to unique to set the dirty flag and
// downgrades it again, before it takes any tier mutex.
// This is deliberate, not an oversight: a caller routinely holds a
// frame's upgradeable lock (handed back by NewPage/FetchPage) across
// its own calls to PinPage/UnpinPage, which would otherwise be
// exactly the reverse of this file's declared order (frame lock
// already held, then wanting a tier mutex). Since PinPage/UnpinPage
// never wait for a Frame's lock while holding a tier mutex, that reversal never closes
// into a cycle: nothing here ever holds a tier mutex while also
// wanting the very frame lock some other goroutine is sitting on. The
// few places that do hand a tier mutex and a Frame's lock to the same
// goroutine (tryHit, writeBackIfDirtyLocked, FlushAllPages) always
// take the tier mutex first and release it before blocking on the
// frame's lock, or only ever target frames already known unpinned.
// Releasing a frame's own lock, once a caller is done with it, is the
// caller's job via frame.UUnlock() -- matching the source this engine
// is grounded on, where the lock is an RAII object scoped to the
// caller's own stack frame and pin_page/unpin_page never construct or
// destroy it.
type BufferPool struct {
	cfg Config

	hf *heapfile.HeapFile

	hotMu  sync.Mutex
	hot    *tier
	coldMu sync.Mutex
	cold   *tier

	pinTable map[pageframe.PageID]int32

	// loadGroup coalesces concurrent misses on the same id into a
	// single disk read and admission, so racing fetchers of an
	// absent page never install two entries for it. Nothing in the
	// source this engine is grounded on handles this race;
	// golang.org/x/sync/singleflight is the standard idiom for
	// exactly this key-scoped do-once-and-share pattern.
	loadGroup singleflight.Group

	rngMu sync.Mutex
	rng   *rand.Rand

	stats     *Stats
	otel      *otelStats
	startTime time.Time

	instanceID uuid.UUID
	logger     *zap.Logger

	closeMu sync.Mutex
	closed  bool
}

// Open creates or opens a BufferPool backed by the heap file named in
// cfg.Filename.
func Open(cfg Config, logger *zap.Logger) (*BufferPool, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("%w: Filename is required", pageerr.ErrIO)
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	instanceID := uuid.New()
	log := logger.With(zap.String("pool_id", instanceID.String()))

	hf, err := heapfile.Open(cfg.Filename, cfg.Create, cfg.PageSize, log)
	if err != nil {
		return nil, err
	}

	bp := &BufferPool{
		cfg:        cfg,
		hf:         hf,
		hot:        newTier("hot", cfg.HotCacheSize),
		cold:       newTier("cold", cfg.ColdCacheSize),
		pinTable:   make(map[pageframe.PageID]int32),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:      &Stats{},
		startTime:  time.Now(),
		instanceID: instanceID,
		logger:     log,
	}
	bp.otel = newOtelStats(bp)

	log.Info("buffer pool opened",
		zap.Int("hot_cache_size", cfg.HotCacheSize),
		zap.Int("cold_cache_size", cfg.ColdCacheSize),
		zap.Float64("promotion_threshold", cfg.PromotionThreshold),
		zap.Float64("admission_probability", *cfg.AdmissionProbability))
	return bp, nil
}

func (bp *BufferPool) nowMs() int64 {
	return time.Since(bp.startTime).Milliseconds()
}

func (bp *BufferPool) admitHot() bool {
	bp.rngMu.Lock()
	defer bp.rngMu.Unlock()
	return bp.rng.Float64() < *bp.cfg.AdmissionProbability
}

func (bp *BufferPool) shouldForceMiss() bool {
	if bp.cfg.ForceMissProbability <= 0 {
		return false
	}
	bp.rngMu.Lock()
	defer bp.rngMu.Unlock()
	return bp.rng.Float64() < bp.cfg.ForceMissProbability
}

// Stats returns a snapshot of the engine's lifetime counters.
func (bp *BufferPool) Stats() Snapshot { return bp.stats.Snapshot() }

// Size returns the total number of resident entries across both
// tiers.
func (bp *BufferPool) Size() int {
	bp.hotMu.Lock()
	defer bp.hotMu.Unlock()
	bp.coldMu.Lock()
	defer bp.coldMu.Unlock()
	return bp.hot.len() + bp.cold.len()
}

// PageSize returns the configured page size.
func (bp *BufferPool) PageSize() int { return bp.cfg.PageSize }

func (bp *BufferPool) capacity() int { return bp.cfg.HotCacheSize + bp.cfg.ColdCacheSize }

// --- pin table -------------------------------------------------------

// incPinLocked increments both the frame's own counter and the pin
// table entry. The caller must already hold both hotMu and coldMu, so
// this can never observably interleave with a tier's eviction scan
// (which holds at least one of the two for its entire victim-selection
// decision).
func (bp *BufferPool) incPinLocked(id pageframe.PageID, frame *pageframe.Frame) int32 {
	frame.Pin()
	bp.pinTable[id]++
	return bp.pinTable[id]
}

// decPinLocked decrements both counters and returns the resulting
// count. The caller must already hold both hotMu and coldMu.
// Returning the post-decrement value while still holding both locks
// (rather than after releasing them, as the source this engine is
// grounded on does) closes a TOCTOU window on the post-decrement
// check, fixed rather than preserved — see DESIGN.md.
func (bp *BufferPool) decPinLocked(id pageframe.PageID, frame *pageframe.Frame) int32 {
	frame.Unpin()
	if bp.pinTable[id] > 0 {
		bp.pinTable[id]--
	}
	return bp.pinTable[id]
}

// PinnedCount reports the pin table's view of id's pin count. It is
// exposed for tests validating that the pin table and each frame's
// own counter never disagree.
func (bp *BufferPool) PinnedCount(id pageframe.PageID) int32 {
	bp.hotMu.Lock()
	defer bp.hotMu.Unlock()
	bp.coldMu.Lock()
	defer bp.coldMu.Unlock()
	return bp.pinTable[id]
}

// --- room-making, eviction, promotion, demotion ----------------------
//
// Functions suffixed Locked assume their caller already holds the
// mutex(es) named in their comment; they never acquire a tier mutex
// themselves. This split — enforced throughout the file — avoids ever
// calling a lock-acquiring "lookup" helper while already holding the
// lock a lock-free "Locked" helper expects.

// evictFromColdLocked assumes coldMu is held. It never touches hot.
func (bp *BufferPool) evictFromColdLocked() (bool, error) {
	victim, ok := findVictim(bp.cold)
	if !ok {
		return false, nil
	}
	e, _ := bp.cold.remove(victim)
	if err := bp.writeBackIfDirtyLocked(e); err != nil {
		// Put the entry back; it must not be dropped while dirty.
		bp.cold.insertFront(victim, e)
		return false, err
	}
	bp.forgetPinLocked(victim)
	bp.stats.evictions.Add(1)
	bp.logger.Debug("evicted from cold", zap.Uint32("page_id", uint32(victim)))
	return true, nil
}

// evictFromHotLocked assumes both hotMu and coldMu are held, since a
// low-heat victim is demoted into cold rather than discarded.
func (bp *BufferPool) evictFromHotLocked() (bool, error) {
	victim, ok := findVictim(bp.hot)
	if !ok {
		return false, nil
	}
	e, _ := bp.hot.remove(victim)
	if e.heat < bp.cfg.PromotionThreshold {
		bp.placeIntoColdLocked(victim, e)
		bp.stats.demotions.Add(1)
		bp.logger.Debug("demoted from hot during eviction", zap.Uint32("page_id", uint32(victim)))
		return true, nil
	}
	if err := bp.writeBackIfDirtyLocked(e); err != nil {
		bp.hot.insertFront(victim, e)
		return false, err
	}
	bp.forgetPinLocked(victim)
	bp.stats.evictions.Add(1)
	bp.logger.Debug("evicted from hot", zap.Uint32("page_id", uint32(victim)))
	return true, nil
}

// placeIntoColdLocked assumes coldMu is held (and, transitively,
// whatever else the caller already holds). It makes room in cold if
// necessary before inserting e at the front.
func (bp *BufferPool) placeIntoColdLocked(id pageframe.PageID, e *entry) {
	if bp.cold.atCapacity() {
		// Best effort: if cold has no unpinned victim, insertion still
		// proceeds — capacity here is an admission target, not a hard
		// limit.
		_, _ = bp.evictFromColdLocked()
	}
	bp.cold.insertFront(id, e)
}

// maybeDemoteLocked assumes both hotMu and coldMu are held. It scans
// hot for the coldest unpinned sub-threshold entry and, if found,
// moves it to cold.
func (bp *BufferPool) maybeDemoteLocked() bool {
	victim, ok := findDemotionCandidate(bp.hot, bp.cfg.PromotionThreshold)
	if !ok {
		return false
	}
	e, _ := bp.hot.remove(victim)
	bp.placeIntoColdLocked(victim, e)
	bp.stats.demotions.Add(1)
	bp.logger.Debug("demoted via maybe_demote", zap.Uint32("page_id", uint32(victim)))
	return true
}

// makeRoomHotLocked assumes both hotMu and coldMu are held. It tries
// maybe_demote first, then falls back to evict_from_hot.
func (bp *BufferPool) makeRoomHotLocked() error {
	if !bp.hot.atCapacity() {
		return nil
	}
	if bp.maybeDemoteLocked() {
		return nil
	}
	if bp.hot.atCapacity() {
		_, err := bp.evictFromHotLocked()
		return err
	}
	return nil
}

// forgetPinLocked removes a fully-evicted id from the pin table.
// Eviction only ever selects unpinned victims, so this is always a
// removal of a zero-valued (or absent) entry; it exists so the pin
// table never accumulates stale ids for pages no longer resident
// anywhere. The caller must hold whichever tier mutex guarded the
// scan that chose id as a victim (coldMu for evictFromColdLocked,
// both for evictFromHotLocked, the mutex of the tier being
// invalidated for invalidateResident) — sufficient
// because incPinLocked/decPinLocked always take both mutexes, so they
// can never race a removal that holds even one of them.
func (bp *BufferPool) forgetPinLocked(id pageframe.PageID) {
	delete(bp.pinTable, id)
}

// writeBackIfDirtyLocked flushes e's frame to the heap file if dirty.
// The frame is not pinned (its tier only offers up unpinned victims),
// so no client can be concurrently mutating it; the frame's own lock
// is still taken to satisfy the heap file's locking contract and to
// exclude a racing direct Fetch of the same id before it is removed
// from the pin table.
func (bp *BufferPool) writeBackIfDirtyLocked(e *entry) error {
	e.frame.ULock()
	defer e.frame.UUnlock()
	if !e.frame.IsDirty() {
		return nil
	}
	if err := bp.hf.Write(e.frame.ID(), e.frame.Bytes()); err != nil {
		bp.logger.Error("write-back failed", zap.Uint32("page_id", uint32(e.frame.ID())), zap.Error(err))
		return err
	}
	e.frame.SetDirty(false)
	bp.stats.writebacks.Add(1)
	return nil
}

// evictPagesUnderPressure is the best-effort bulk path triggered once
// size() reaches HotCacheSize+ColdCacheSize. Cold is drained first (up
// to n/2, restarting the LRU scan after each eviction because
// findVictim re-derives its cursor from the tier on every call), then
// hot absorbs the remainder. N is halved for cold's quota literally,
// preserved as-is rather than corrected — see DESIGN.md.
func (bp *BufferPool) evictPagesUnderPressure(n int) {
	coldQuota := n / 2
	coldEvicted := 0
	bp.coldMu.Lock()
	for coldEvicted < coldQuota {
		ok, err := bp.evictFromColdLocked()
		if err != nil {
			bp.logger.Warn("pressure eviction: cold write-back failed", zap.Error(err))
			break
		}
		if !ok {
			break
		}
		coldEvicted++
	}
	bp.coldMu.Unlock()

	hotQuota := n - coldEvicted
	bp.hotMu.Lock()
	bp.coldMu.Lock()
	for i := 0; i < hotQuota; i++ {
		ok, err := bp.evictFromHotLocked()
		if err != nil {
			bp.logger.Warn("pressure eviction: hot write-back failed", zap.Error(err))
			break
		}
		if !ok {
			break
		}
	}
	bp.coldMu.Unlock()
	bp.hotMu.Unlock()
}

// --- public cache contract --------------------------------------------

// NewPage allocates a fresh page, admits it into a tier per policy,
// pins it, and returns it with an upgradeable lock held. The caller
// releases that lock itself, via frame.UUnlock(), once done with the
// frame; UnpinPage only manages the pin count, never the lock.
func (bp *BufferPool) NewPage() (*pageframe.Frame, error) {
	if bp.isClosed() {
		return nil, pageerr.ErrClosed
	}
	if bp.Size() >= bp.capacity() {
		bp.evictPagesUnderPressure(bp.cfg.PressureEvictionBatch)
	}

	id, err := bp.hf.Allocate()
	if err != nil {
		return nil, err
	}

	frame := pageframe.New(bp.cfg.PageSize)
	frame.Lock()
	frame.Reset(id)
	frame.Unlock()

	e := newEntry(frame, bp.nowMs())
	admitHot := bp.admitHot()
	bp.hotMu.Lock()
	bp.coldMu.Lock()
	if admitHot {
		if err := bp.makeRoomHotLocked(); err != nil {
			bp.coldMu.Unlock()
			bp.hotMu.Unlock()
			return nil, err
		}
		bp.hot.insertFront(id, e)
	} else {
		bp.placeIntoColdLocked(id, e)
	}
	bp.incPinLocked(id, frame)
	bp.coldMu.Unlock()
	bp.hotMu.Unlock()

	bp.stats.inserts.Add(1)
	frame.ULock()
	bp.logger.Debug("new page", zap.Uint32("page_id", uint32(id)))
	return frame, nil
}

// FetchPage returns the page for id, pinned, with an upgradeable lock
// held. If id is not resident, it is read from the heap file. As with
// NewPage, the caller releases that lock itself via frame.UUnlock().
//
// Concurrent fetches of the same absent id coalesce onto a single
// loader via loadGroup: exactly one caller counts a miss and performs
// the disk read and admission, the rest wait for it and then attach
// their own pin to the now-resident frame (counted as a hit, since
// that is what their retried lookup finds).
func (bp *BufferPool) FetchPage(id pageframe.PageID) (*pageframe.Frame, error) {
	if bp.isClosed() {
		return nil, pageerr.ErrClosed
	}

	if bp.shouldForceMiss() {
		bp.invalidateResident(id)
	}

	if frame, hit, err := bp.tryHit(id); err != nil {
		return nil, err
	} else if hit {
		return frame, nil
	}

	amLeader := false
	key := strconv.FormatUint(uint64(id), 10)
	v, err, _ := bp.loadGroup.Do(key, func() (interface{}, error) {
		amLeader = true
		bp.stats.misses.Add(1)
		return bp.loadFromDiskAndAdmit(id)
	})
	if err != nil {
		return nil, err
	}
	frame := v.(*pageframe.Frame)
	if amLeader {
		return frame, nil
	}

	// A follower: the frame is resident (the leader pinned it before
	// releasing the tier lock). Pin it under the tier mutexes first,
	// in the declared lock order, then take the frame's upgradeable
	// lock, never the reverse. The leader's caller may already have
	// dropped its pin to zero by the time we get here (UnpinPage
	// never releases ULock; that caller's UUnlock is separate), which makes the id a
	// legal eviction victim; taking frame.ULock() before the tier
	// mutexes would let us block on it while holding nothing, and an
	// evictFrom*Locked call that had already taken the tier mutex and
	// picked this id would then block on the same frame lock while
	// holding it, deadlocked against us.
	bp.hotMu.Lock()
	bp.coldMu.Lock()
	bp.incPinLocked(id, frame)
	bp.coldMu.Unlock()
	bp.hotMu.Unlock()
	frame.ULock()
	// Counted as a hit rather than a miss: the id was not resident at
	// this caller's own lookup, only by the time the leader finished.
	// Bends spec's strict "resident at lookup time" definition of a
	// hit; see DESIGN.md's fetch-miss coalescing note.
	bp.stats.hits.Add(1)
	return frame, nil
}

// tryHit looks id up in hot, then cold, reordering and updating heat
// on a hit, promoting a sufficiently hot cold entry. It returns
// hit=false with no side effects if id is resident in neither tier.
//
// Every return path releases both tier mutexes before calling
// frame.ULock(): the pin (which does need to happen under the same
// continuous hold that did the lookup, closing the eviction-race
// window incPinLocked's contract relies on) is taken first, but the
// lock acquisition that might block waiting for some other goroutine
// to finish with this same frame happens only after hotMu/coldMu are
// free. Doing it the other way (as a bare RWMutex-based lookup
// naturally invites) would mean blocking on a frame's lock while
// holding a tier mutex that frame's own current holder might need for
// its own PinPage/UnpinPage call, an AB-BA deadlock under concurrent
// fetches of the same resident id.
func (bp *BufferPool) tryHit(id pageframe.PageID) (frame *pageframe.Frame, hit bool, err error) {
	bp.hotMu.Lock()
	bp.coldMu.Lock()

	if e, ok := bp.hot.get(id); ok {
		bp.hot.moveToFront(e)
		e.recordAccess(bp.nowMs())
		bp.stats.hits.Add(1)
		bp.incPinLocked(id, e.frame)
		frame = e.frame
		bp.coldMu.Unlock()
		bp.hotMu.Unlock()
		frame.ULock()
		return frame, true, nil
	}

	if e, ok := bp.cold.get(id); ok {
		bp.cold.moveToFront(e)
		e.recordAccess(bp.nowMs())
		bp.stats.hits.Add(1)
		if e.heat > bp.cfg.PromotionThreshold {
			bp.cold.remove(id)
			if err := bp.makeRoomHotLocked(); err != nil {
				bp.cold.insertFront(id, e) // undo: keep the entry resident
				bp.coldMu.Unlock()
				bp.hotMu.Unlock()
				return nil, false, err
			}
			bp.hot.insertFront(id, e)
			bp.stats.promotions.Add(1)
			bp.logger.Debug("promoted", zap.Uint32("page_id", uint32(id)), zap.Float64("heat", e.heat))
		}
		bp.incPinLocked(id, e.frame)
		frame = e.frame
		bp.coldMu.Unlock()
		bp.hotMu.Unlock()
		frame.ULock()
		return frame, true, nil
	}

	bp.coldMu.Unlock()
	bp.hotMu.Unlock()
	return nil, false, nil
}

// loadFromDiskAndAdmit reads id from the heap file and admits it into
// a tier, pinned, per policy. Called at most once per id at a time,
// serialized by FetchPage's loadGroup.
func (bp *BufferPool) loadFromDiskAndAdmit(id pageframe.PageID) (*pageframe.Frame, error) {
	if bp.Size() >= bp.capacity() {
		bp.evictPagesUnderPressure(bp.cfg.PressureEvictionBatch)
	}

	frame := pageframe.New(bp.cfg.PageSize)
	frame.Lock()
	frame.Reset(id)
	if err := bp.hf.Read(id, frame.Bytes()); err != nil {
		frame.Unlock()
		bp.logger.Error("fetch miss: read failed", zap.Uint32("page_id", uint32(id)), zap.Error(err))
		return nil, err
	}
	frame.Unlock()

	e := newEntry(frame, bp.nowMs())
	admitHot := bp.admitHot()
	bp.hotMu.Lock()
	bp.coldMu.Lock()
	if admitHot {
		if err := bp.makeRoomHotLocked(); err != nil {
			bp.coldMu.Unlock()
			bp.hotMu.Unlock()
			return nil, err
		}
		bp.hot.insertFront(id, e)
	} else {
		bp.placeIntoColdLocked(id, e)
	}
	bp.incPinLocked(id, frame)
	bp.coldMu.Unlock()
	bp.hotMu.Unlock()

	frame.ULock()
	bp.logger.Debug("fetched from disk", zap.Uint32("page_id", uint32(id)))
	return frame, nil
}

// invalidateResident removes id from whichever tier holds it,
// writing it back first if dirty, so a subsequent read is a genuine
// disk read. It is a no-op if id is pinned (can't safely evict a page
// a caller might be using) or not resident. Used only by the
// FORCE_MISS_PROB debug hook.
func (bp *BufferPool) invalidateResident(id pageframe.PageID) {
	bp.hotMu.Lock()
	if e, ok := bp.hot.get(id); ok && e.frame.PinCount() == 0 {
		bp.hot.remove(id)
		if err := bp.writeBackIfDirtyLocked(e); err == nil {
			bp.forgetPinLocked(id)
		} else {
			bp.hot.insertFront(id, e)
		}
	}
	bp.hotMu.Unlock()

	bp.coldMu.Lock()
	if e, ok := bp.cold.get(id); ok && e.frame.PinCount() == 0 {
		bp.cold.remove(id)
		if err := bp.writeBackIfDirtyLocked(e); err == nil {
			bp.forgetPinLocked(id)
		} else {
			bp.cold.insertFront(id, e)
		}
	}
	bp.coldMu.Unlock()
}

// PinPage increments frame's pin count. On the 0->1 transition, the
// containing tier's entry is moved to the front (MRU). Like UnpinPage,
// it never touches frame's lock; the caller may or may not currently
// hold it.
func (bp *BufferPool) PinPage(frame *pageframe.Frame) {
	id := frame.ID()
	bp.hotMu.Lock()
	bp.coldMu.Lock()
	if bp.incPinLocked(id, frame) == 1 {
		if e, ok := bp.hot.get(id); ok {
			bp.hot.moveToFront(e)
		} else if e, ok := bp.cold.get(id); ok {
			bp.cold.moveToFront(e)
		}
	}
	bp.coldMu.Unlock()
	bp.hotMu.Unlock()
}

// UnpinPage decrements one pin on frame and ORs dirty into its dirty
// flag. If the pin count reaches zero on a dirty page, it is flushed
// immediately (write-through-on-unpin): no dirty unpinned page is
// ever left for eviction to discover.
//
// UnpinPage never acquires or releases frame's upgradeable hold; when
// dirty is true it only upgrades the caller's held upgradeable lock to
// unique to set the dirty flag, then downgrades it, before taking any
// tier mutex. Pin bookkeeping and lock ownership are independent, exactly as pin_page/unpin_page are in
// the source this engine is grounded on (there, the lock is an RAII
// object owned by the caller's stack frame, never constructed or
// destroyed by either function). A caller done with the frame calls
// frame.UUnlock() itself, once, whenever its own hold ends; calling
// UnpinPage any number of times in between (to balance extra PinPage
// calls) never conflicts with that, and never requires this call to
// block on a tier mutex while some other goroutine is blocked on this
// same frame's lock.
func (bp *BufferPool) UnpinPage(frame *pageframe.Frame, dirty bool) error {
	id := frame.ID()
	if dirty {
		frame.Upgrade()
		frame.SetDirty(true)
		frame.Downgrade()
	}
	isDirty := frame.IsDirty()

	bp.hotMu.Lock()
	bp.coldMu.Lock()
	remaining := bp.decPinLocked(id, frame)
	bp.coldMu.Unlock()
	bp.hotMu.Unlock()

	if remaining > 0 || !isDirty {
		return nil
	}
	return bp.flushFrameLocked(frame)
}

// flushFrameLocked assumes the caller holds at least the frame's
// upgradeable lock. It is the shared body behind both the public
// FlushPage and UnpinPage's write-through.
func (bp *BufferPool) flushFrameLocked(frame *pageframe.Frame) error {
	if !frame.IsDirty() {
		return nil
	}
	if err := bp.hf.Write(frame.ID(), frame.Bytes()); err != nil {
		bp.logger.Error("flush failed", zap.Uint32("page_id", uint32(frame.ID())), zap.Error(err))
		return err
	}
	frame.SetDirty(false)
	bp.stats.flushes.Add(1)
	bp.stats.writebacks.Add(1)
	return nil
}

// FlushPage writes frame to the heap file if dirty and clears its
// dirty flag. The caller must hold at least frame's upgradeable lock.
func (bp *BufferPool) FlushPage(frame *pageframe.Frame) error {
	return bp.flushFrameLocked(frame)
}

// FlushAllPages flushes every dirty unpinned frame in both tiers.
// Frames with a nonzero pin count are skipped and stay dirty. It is
// called from Close and may be called explicitly for a durability
// checkpoint.
func (bp *BufferPool) FlushAllPages() error {
	var firstErr error
	flushTier := func(t *tier, mu *sync.Mutex) {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range t.lruIDs() {
			e, ok := t.get(id)
			if !ok {
				continue
			}
			if e.frame.PinCount() > 0 {
				// A pinned frame's lock may be held by a live caller; skip
				// it rather than block on it while holding this tier
				// mutex. Its dirty bytes still reach disk, either via
				// write-through when the last pin drops or a later flush
				// once it is unpinned.
				continue
			}
			e.frame.ULock()
			err := bp.flushFrameLocked(e.frame)
			e.frame.UUnlock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	flushTier(bp.hot, &bp.hotMu)
	flushTier(bp.cold, &bp.coldMu)

	if err := bp.hf.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (bp *BufferPool) isClosed() bool {
	bp.closeMu.Lock()
	defer bp.closeMu.Unlock()
	return bp.closed
}

// Close runs FlushAllPages (so dirty pinned pages are not flushed) and
// closes the backing heap file.
func (bp *BufferPool) Close() error {
	bp.closeMu.Lock()
	if bp.closed {
		bp.closeMu.Unlock()
		return nil
	}
	bp.closed = true
	bp.closeMu.Unlock()

	flushErr := bp.FlushAllPages()
	closeErr := bp.hf.Close()
	bp.logger.Info("buffer pool closed", zap.Uint64("hits", bp.stats.hits.Load()), zap.Uint64("misses", bp.stats.misses.Load()))
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
