package pageframe

import "sync"

// upgradeLock is a reader/writer lock with a third, "upgradeable"
// mode: at most one holder, compatible with concurrent shared
// readers, and able to atomically upgrade to a unique (exclusive)
// hold without an intervening window where another writer could slip
// in. It is built from two stdlib primitives because nothing in the
// example pack offers this three-mode lock as a library; sync.RWMutex
// alone cannot express "upgradeable" (a second RLock-then-Lock caller
// can deadlock against the first).
//
//   - Shared:      many concurrent holders.
//   - Upgradeable: exactly one holder, compatible with Shared holders.
//   - Unique:      exclusive; excludes Shared and Upgradeable alike.
type upgradeLock struct {
	rw      sync.RWMutex // Shared readers / Unique writer.
	upgrade sync.Mutex   // Serializes Upgradeable holders.
}

// RLock acquires a shared hold.
func (l *upgradeLock) RLock() { l.rw.RLock() }

// RUnlock releases a shared hold.
func (l *upgradeLock) RUnlock() { l.rw.RUnlock() }

// ULock acquires the upgradeable hold. It does not exclude concurrent
// shared readers.
func (l *upgradeLock) ULock() { l.upgrade.Lock() }

// UUnlock releases the upgradeable hold.
func (l *upgradeLock) UUnlock() { l.upgrade.Unlock() }

// Upgrade converts a held upgradeable lock into a unique lock. The
// caller must already hold the upgradeable lock via ULock. Because
// ULock guarantees this caller is the only upgradeable holder, no
// other goroutine can race it to upgrade; Upgrade only has to wait out
// existing shared readers.
func (l *upgradeLock) Upgrade() { l.rw.Lock() }

// Downgrade converts a held unique lock back into an upgradeable
// lock. The caller must still hold the upgradeable lock via ULock.
func (l *upgradeLock) Downgrade() { l.rw.Unlock() }

// Lock acquires a unique hold directly, without going through the
// upgradeable mode. Used internally by the frame for operations that
// need exclusivity but never need to be observed mid-hold by a
// shared reader.
func (l *upgradeLock) Lock() {
	l.upgrade.Lock()
	l.rw.Lock()
}

// Unlock releases a unique hold acquired via Lock.
func (l *upgradeLock) Unlock() {
	l.rw.Unlock()
	l.upgrade.Unlock()
}
