// Package pageframe defines the in-memory representation of a disk
// page: a fixed-size byte buffer, its dirty/pin metadata, and the
// upgradeable reader/writer lock that guards it.
package pageframe

import (
	"sync/atomic"

	"github.com/gojodb/pagecache/core/heapfile"
)

// PageID identifies the page a Frame currently holds.
type PageID = heapfile.PageID

// Frame is a fixed-size buffer holding one page's contents plus
// metadata. Invariants:
//
//   - F1: once constructed with an id, the id never changes for the
//     lifetime of that logical page occupying the frame; Reset only
//     happens when the frame is not visible to any pinned caller.
//   - F2: pinCount never goes negative (Unpin saturates at zero).
//   - F3: dirty flips false->true only while the caller holds the
//     frame's lock in unique mode; true->false only as part of a
//     completed write-back.
type Frame struct {
	lock upgradeLock

	id       PageID
	bytes    []byte
	dirty    bool
	pinCount int32
}

// New allocates a zero-filled frame of the given size, initially
// unassigned (id must be set by the caller before the frame is
// published to any tier).
func New(size int) *Frame {
	return &Frame{bytes: make([]byte, size)}
}

// Reset clears a frame's identity and contents so it can be reused
// for a different page id. The caller must hold the frame's unique
// lock and must not call Reset while pinCount > 0.
func (f *Frame) Reset(id PageID) {
	f.id = id
	f.dirty = false
	atomic.StoreInt32(&f.pinCount, 0)
	for i := range f.bytes {
		f.bytes[i] = 0
	}
}

// ID returns the page id currently held by this frame.
func (f *Frame) ID() PageID { return f.id }

// Bytes returns the frame's backing buffer. Callers must hold at
// least a shared lock to read it, or a unique lock to mutate it.
func (f *Frame) Bytes() []byte { return f.bytes }

// IsDirty reports whether the frame has unwritten mutations.
func (f *Frame) IsDirty() bool { return f.dirty }

// SetDirty sets the dirty flag. Setting it to true requires the
// frame's unique lock; the engine clears it while holding the
// upgradeable lock, as part of a completed write-back.
func (f *Frame) SetDirty(dirty bool) { f.dirty = dirty }

// Pin increments the pin count, preventing eviction while held.
func (f *Frame) Pin() int32 { return atomic.AddInt32(&f.pinCount, 1) }

// Unpin decrements the pin count, saturating at zero.
func (f *Frame) Unpin() int32 {
	for {
		cur := atomic.LoadInt32(&f.pinCount)
		if cur <= 0 {
			return 0
		}
		if atomic.CompareAndSwapInt32(&f.pinCount, cur, cur-1) {
			return cur - 1
		}
	}
}

// PinCount returns the current pin count.
func (f *Frame) PinCount() int32 { return atomic.LoadInt32(&f.pinCount) }

// RLock/RUnlock acquire and release a shared (read) hold.
func (f *Frame) RLock()   { f.lock.RLock() }
func (f *Frame) RUnlock() { f.lock.RUnlock() }

// ULock/UUnlock acquire and release the upgradeable hold. Public
// cache operations hand back a frame with ULock already held; callers
// read freely, call Upgrade before mutating bytes, and Downgrade
// (optional) or simply UUnlock when done.
func (f *Frame) ULock()   { f.lock.ULock() }
func (f *Frame) UUnlock() { f.lock.UUnlock() }

// Upgrade converts a held upgradeable lock into a unique lock.
func (f *Frame) Upgrade() { f.lock.Upgrade() }

// Downgrade converts a held unique lock back into an upgradeable
// lock.
func (f *Frame) Downgrade() { f.lock.Downgrade() }

// Lock/Unlock acquire and release a unique lock directly, without an
// intervening upgradeable hold. Used internally by the engine for
// heap-file reads into a frame not yet visible to any client.
func (f *Frame) Lock()   { f.lock.Lock() }
func (f *Frame) Unlock() { f.lock.Unlock() }
