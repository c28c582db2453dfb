// Package cache defines the abstract contract higher-level components
// (a B+-tree, or any other consumer of fixed-size pages) program
// against. bufferpool.BufferPool implements it; the interface exists
// so those consumers depend on the contract, not the concrete engine.
package cache

import "github.com/gojodb/pagecache/core/pageframe"

// Cache is the page-cache engine's public surface.
type Cache interface {
	// NewPage allocates a new page, pins it, and returns it with an
	// upgradeable lock held. The caller releases that lock itself,
	// via frame.UUnlock(), whenever its own hold on the frame ends;
	// UnpinPage does not do this for it.
	NewPage() (*pageframe.Frame, error)
	// FetchPage returns the page for id, pinned, with an upgradeable
	// lock held. See NewPage for who releases that lock.
	FetchPage(id pageframe.PageID) (*pageframe.Frame, error)
	// PinPage increments frame's pin count. It never touches frame's
	// lock.
	PinPage(frame *pageframe.Frame)
	// UnpinPage decrements one pin on frame, marking it dirty if
	// dirty is true, flushing it if the pin count reaches zero on a
	// dirty page. It never acquires or releases frame's upgradeable
	// hold; marking dirty upgrades the caller's held lock to unique
	// and downgrades it again.
	UnpinPage(frame *pageframe.Frame, dirty bool) error
	// FlushPage writes frame to stable storage if dirty. The caller
	// must hold at least frame's upgradeable lock.
	FlushPage(frame *pageframe.Frame) error
	// FlushAllPages writes every dirty resident unpinned page to
	// stable storage; pinned pages are skipped.
	FlushAllPages() error
	// Size returns the number of resident pages.
	Size() int
	// PageSize returns the configured page size.
	PageSize() int
	// Close runs FlushAllPages and releases underlying resources.
	Close() error
}
