package bufferpool

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gojodb/pagecache/core/pageframe"
)

func setupPool(t *testing.T, cfg Config) *BufferPool {
	t.Helper()
	if cfg.Filename == "" {
		cfg.Filename = filepath.Join(t.TempDir(), "pool.heap")
	}
	cfg.Create = true
	bp, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bp.Close() })
	return bp
}

func (bp *BufferPool) isResident(id pageframe.PageID) (tierName string, ok bool) {
	bp.hotMu.Lock()
	if _, found := bp.hot.get(id); found {
		bp.hotMu.Unlock()
		return "hot", true
	}
	bp.hotMu.Unlock()

	bp.coldMu.Lock()
	defer bp.coldMu.Unlock()
	if _, found := bp.cold.get(id); found {
		return "cold", true
	}
	return "", false
}

// --- hot and cold tiers are disjoint ------------------------------

func TestInvariant_TiersAreDisjoint(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 4, ColdCacheSize: 4, AdmissionProbability: Float64(0.5)})

	var ids []pageframe.PageID
	for i := 0; i < 10; i++ {
		f, err := bp.NewPage()
		require.NoError(t, err)
		ids = append(ids, f.ID())
		require.NoError(t, bp.UnpinPage(f, false))
		f.UUnlock()
	}

	bp.hotMu.Lock()
	bp.coldMu.Lock()
	for _, id := range ids {
		_, inHot := bp.hot.get(id)
		_, inCold := bp.cold.get(id)
		require.False(t, inHot && inCold, "page %d resident in both tiers", id)
	}
	bp.coldMu.Unlock()
	bp.hotMu.Unlock()
}

// --- pin table matches the frame's own pin count ------------------

func TestInvariant_PinTableMatchesFrame(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 4, ColdCacheSize: 4})

	f, err := bp.NewPage()
	require.NoError(t, err)
	require.Equal(t, f.PinCount(), bp.PinnedCount(f.ID()))

	bp.PinPage(f)
	require.Equal(t, f.PinCount(), bp.PinnedCount(f.ID()))
	require.Equal(t, int32(2), f.PinCount())

	// UnpinPage only ever manages the pin count, never the frame's
	// lock, so each call here decrements independently of how many
	// times the lock itself has been acquired.
	require.NoError(t, bp.UnpinPage(f, false))
	require.Equal(t, f.PinCount(), bp.PinnedCount(f.ID()))
	require.Equal(t, int32(1), f.PinCount())

	require.NoError(t, bp.UnpinPage(f, false))
	require.Equal(t, int32(0), f.PinCount())
	f.RLock()
	require.Equal(t, f.PinCount(), bp.PinnedCount(f.ID()))
	f.RUnlock()

	// NewPage's ULock was never released by UnpinPage; release it now.
	f.UUnlock()
}

// --- flush_all_pages clears every dirty bit -----------------------

func TestInvariant_FlushAllClearsDirtyBits(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 4, ColdCacheSize: 4})

	for i := 0; i < 5; i++ {
		f, err := bp.NewPage()
		require.NoError(t, err)
		copy(f.Bytes(), "payload")
		require.NoError(t, bp.UnpinPage(f, true))
		f.UUnlock()
	}

	require.NoError(t, bp.FlushAllPages())

	bp.hotMu.Lock()
	for _, id := range bp.hot.lruIDs() {
		e, _ := bp.hot.get(id)
		require.False(t, e.frame.IsDirty())
	}
	bp.hotMu.Unlock()

	bp.coldMu.Lock()
	for _, id := range bp.cold.lruIDs() {
		e, _ := bp.cold.get(id)
		require.False(t, e.frame.IsDirty())
	}
	bp.coldMu.Unlock()
}

// --- a dirty write survives a flush + close + reopen -----------

func TestInvariant_RoundTripSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.heap")
	bp := setupPool(t, Config{Filename: path, HotCacheSize: 4, ColdCacheSize: 4})

	f, err := bp.NewPage()
	require.NoError(t, err)
	id := f.ID()
	copy(f.Bytes(), "hello")
	require.NoError(t, bp.UnpinPage(f, true))
	f.UUnlock()
	require.NoError(t, bp.FlushAllPages())
	require.NoError(t, bp.Close())

	bp2, err := Open(Config{Filename: path, Create: false, HotCacheSize: 4, ColdCacheSize: 4}, zap.NewNop())
	require.NoError(t, err)
	defer bp2.Close()

	f2, err := bp2.FetchPage(id)
	require.NoError(t, err)
	require.Equal(t, byte('h'), f2.Bytes()[0])
	require.Equal(t, byte('o'), f2.Bytes()[4])
	require.NoError(t, bp2.UnpinPage(f2, false))
	f2.UUnlock()
}

// --- a pinned page is never evicted --------------------------

func TestInvariant_PinnedPageNeverEvicted(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 1, ColdCacheSize: 1, AdmissionProbability: Float64(0)})

	pinned, err := bp.NewPage()
	require.NoError(t, err)
	pinnedID := pinned.ID()
	// Deliberately do not unpin: pinned must survive further NewPage
	// calls despite the tiny capacity — capacity is a soft bound.

	for i := 0; i < 8; i++ {
		f, err := bp.NewPage()
		require.NoError(t, err)
		require.NoError(t, bp.UnpinPage(f, false))
		f.UUnlock()
	}

	_, ok := bp.isResident(pinnedID)
	require.True(t, ok, "pinned page %d was evicted", pinnedID)
	require.Equal(t, int32(1), bp.PinnedCount(pinnedID))

	// Release the pin and the upgradeable lock NewPage handed back, so
	// t.Cleanup's Close/FlushAllPages sees the page unpinned.
	require.NoError(t, bp.UnpinPage(pinned, false))
	pinned.UUnlock()
}

// --- allocate returns strictly increasing ids, even across restart

func TestInvariant_AllocateMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monotonic.heap")
	bp := setupPool(t, Config{Filename: path, HotCacheSize: 4, ColdCacheSize: 4})

	var last pageframe.PageID
	for i := 0; i < 5; i++ {
		f, err := bp.NewPage()
		require.NoError(t, err)
		require.Greater(t, f.ID(), last)
		last = f.ID()
		require.NoError(t, bp.UnpinPage(f, false))
		f.UUnlock()
	}
	require.NoError(t, bp.Close())

	bp2, err := Open(Config{Filename: path, Create: false, HotCacheSize: 4, ColdCacheSize: 4}, zap.NewNop())
	require.NoError(t, err)
	defer bp2.Close()

	f, err := bp2.NewPage()
	require.NoError(t, err)
	require.Greater(t, f.ID(), last)
	require.NoError(t, bp2.UnpinPage(f, false))
	f.UUnlock()
}

// --- hits + misses equals the number of fetch_page calls ----------

func TestInvariant_StatsHitsPlusMissesEqualsFetches(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 4, ColdCacheSize: 4})

	f, err := bp.NewPage()
	require.NoError(t, err)
	id := f.ID()
	require.NoError(t, bp.UnpinPage(f, false))
	f.UUnlock()

	const fetches = 6
	for i := 0; i < fetches; i++ {
		f2, err := bp.FetchPage(id)
		require.NoError(t, err)
		require.NoError(t, bp.UnpinPage(f2, false))
		f2.UUnlock()
	}

	snap := bp.Stats()
	require.Equal(t, uint64(fetches), snap.Hits+snap.Misses)
}

// --- eviction from cold, MRU-first ordering ----------------------------
//
// Five inserts against a 2-hot/4-cold pool with hot admission disabled
// should evict exactly the oldest entry once cold is full, leaving the
// four most recent in MRU-first order.
func TestScenario_EvictionFromColdMRUFirst(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 2, ColdCacheSize: 4, AdmissionProbability: Float64(0)})

	ids := make(map[string]pageframe.PageID)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		f, err := bp.NewPage()
		require.NoError(t, err)
		ids[name] = f.ID()
		require.NoError(t, bp.UnpinPage(f, false))
		f.UUnlock()
	}

	_, ok := bp.isResident(ids["A"])
	require.False(t, ok, "A should have been evicted")

	bp.coldMu.Lock()
	mru := bp.cold.lruIDs()
	bp.coldMu.Unlock()
	// lruIDs returns LRU-first; reverse it to compare MRU-first.
	got := make([]pageframe.PageID, len(mru))
	for i, id := range mru {
		got[len(mru)-1-i] = id
	}
	require.Equal(t, []pageframe.PageID{ids["E"], ids["D"], ids["C"], ids["B"]}, got)

	require.GreaterOrEqual(t, bp.Stats().Evictions, uint64(1))
}

// --- repeated hits promote a cold entry to hot ---------------------

func TestScenario_RepeatedHitsPromoteToHot(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 4, ColdCacheSize: 4, AdmissionProbability: Float64(0), PromotionThreshold: 1.2})

	f, err := bp.NewPage()
	require.NoError(t, err)
	id := f.ID()
	require.NoError(t, bp.UnpinPage(f, false))
	f.UUnlock()

	tierName, ok := bp.isResident(id)
	require.True(t, ok)
	require.Equal(t, "cold", tierName)

	// Fetch repeatedly; the heat formula guarantees eventual promotion
	// once access_count outpaces ln(Δt+2) growth, regardless of exact
	// scheduling delay between calls.
	promoted := false
	for i := 0; i < 20 && !promoted; i++ {
		f2, err := bp.FetchPage(id)
		require.NoError(t, err)
		require.NoError(t, bp.UnpinPage(f2, false))
		f2.UUnlock()
		tierName, _ = bp.isResident(id)
		promoted = tierName == "hot"
	}

	require.True(t, promoted, "entry never promoted to hot")
	require.GreaterOrEqual(t, bp.Stats().Promotions, uint64(1))
}

// --- a dirty page is flushed on unpin, then demoted out of hot ----

func TestScenario_DirtyWriteThenDemotion(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 1, ColdCacheSize: 1, AdmissionProbability: Float64(1.0)})

	a, err := bp.NewPage()
	require.NoError(t, err)
	copy(a.Bytes(), "a")
	require.NoError(t, bp.UnpinPage(a, true)) // write-through-on-unpin flushes immediately
	a.UUnlock()

	require.GreaterOrEqual(t, bp.Stats().Flushes, uint64(1))

	b, err := bp.NewPage()
	require.NoError(t, err)
	require.NoError(t, bp.UnpinPage(b, false))
	b.UUnlock()

	require.GreaterOrEqual(t, bp.Stats().Demotions, uint64(1))
	tierName, ok := bp.isResident(a.ID())
	require.True(t, ok)
	require.Equal(t, "cold", tierName)
}

// --- pinned-page-never-evicted is covered by TestInvariant_PinnedPageNeverEvicted above ------

// --- restart durability is covered by TestInvariant_RoundTripSurvivesRestart above ----

// --- concurrent fetches of one id coalesce, no duplicate entries --

func TestScenario_ConcurrentFetchesCoalesce(t *testing.T) {
	bp := setupPool(t, Config{HotCacheSize: 8, ColdCacheSize: 8})

	f, err := bp.NewPage()
	require.NoError(t, err)
	id := f.ID()
	require.NoError(t, bp.UnpinPage(f, false))
	f.UUnlock()
	bp.invalidateResident(id) // force the next round of fetches to race a genuine miss

	const goroutines = 8
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			frame, err := bp.FetchPage(id)
			require.NoError(t, err)
			require.NoError(t, bp.UnpinPage(frame, false))
			frame.UUnlock()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(0), bp.PinnedCount(id))

	bp.hotMu.Lock()
	_, inHot := bp.hot.get(id)
	bp.hotMu.Unlock()
	bp.coldMu.Lock()
	_, inCold := bp.cold.get(id)
	bp.coldMu.Unlock()
	require.False(t, inHot && inCold)
	require.True(t, inHot || inCold)
}
