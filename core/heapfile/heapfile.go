// Package heapfile implements fixed-size page I/O over a single backing
// file, with a small header page recording the file's magic number and
// page count. It is the sole component in this module that touches the
// filesystem; the buffer pool never opens a file descriptor itself.
package heapfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/gojodb/pagecache/core/pageerr"
)

// Magic identifies a valid heap file. It is stored little-endian in
// the first four bytes of page 0.
const Magic uint32 = 0xDEADBEEF

// headerPageID is reserved for the file header and is never handed
// out by Allocate.
const headerPageID PageID = 0

// PageID identifies a page within a heap file. 0 is reserved for the
// header; valid ids are contiguous from 1 upward as allocated.
type PageID uint32

// HeapFile provides fixed-size page I/O over a single backing file.
//
// All operations are safe for concurrent use; file_mutex (fileMu)
// serializes header updates and the I/O this type issues. fileMu is a
// leaf lock: no other lock is taken while it is held, and the buffer
// pool calls into HeapFile while already holding tier mutexes and a
// frame's lock.
type HeapFile struct {
	fileMu sync.Mutex

	file          *os.File
	pageSize      int
	fileSizePages uint32 // includes the header page
	logger        *zap.Logger
}

// Open opens an existing heap file, or creates a new one when create
// is true. pageSize must match the size the file was created with;
// the caller is responsible for keeping that contract.
func Open(path string, create bool, pageSize int, logger *zap.Logger) (*HeapFile, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	hf := &HeapFile{pageSize: pageSize, logger: logger}

	if create {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
		if err != nil {
			return nil, fmt.Errorf("%w: creating heap file %s: %v", pageerr.ErrIO, path, err)
		}
		hf.file = f
		hf.fileSizePages = 1
		if err := hf.writeHeaderLocked(); err != nil {
			_ = f.Close()
			return nil, err
		}
		logger.Info("heap file created", zap.String("path", path), zap.Int("page_size", pageSize))
		return hf, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", pageerr.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", pageerr.ErrIO, path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening heap file %s: %v", pageerr.ErrIO, path, err)
	}
	hf.file = f
	if err := hf.readHeaderLocked(); err != nil {
		_ = f.Close()
		return nil, err
	}
	logger.Info("heap file opened", zap.String("path", path), zap.Uint32("file_size_pages", hf.fileSizePages))
	return hf, nil
}

func (hf *HeapFile) writeHeaderLocked() error {
	buf := make([]byte, hf.pageSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], hf.fileSizePages)
	if _, err := hf.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", pageerr.ErrIO, err)
	}
	return nil
}

func (hf *HeapFile) readHeaderLocked() error {
	buf := make([]byte, hf.pageSize)
	if _, err := io.ReadFull(hf.file, buf); err != nil {
		return fmt.Errorf("%w: reading header: %v", pageerr.ErrIO, err)
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return fmt.Errorf("%w: expected 0x%x, got 0x%x", pageerr.ErrCorruptHeader, Magic, magic)
	}
	hf.fileSizePages = binary.LittleEndian.Uint32(buf[4:8])
	return nil
}

// Allocate atomically increments the file's page count, zero-extends
// the backing file to cover the new page, and returns its id. A page
// that is never written still reads back as all zeros.
func (hf *HeapFile) Allocate() (PageID, error) {
	hf.fileMu.Lock()
	defer hf.fileMu.Unlock()

	id := PageID(hf.fileSizePages)
	offset := int64(id) * int64(hf.pageSize)
	if _, err := hf.file.WriteAt(make([]byte, hf.pageSize), offset); err != nil {
		return headerPageID, fmt.Errorf("%w: extending file for page %d: %v", pageerr.ErrIO, id, err)
	}
	hf.fileSizePages++
	if err := hf.writeHeaderLocked(); err != nil {
		hf.fileSizePages--
		return headerPageID, err
	}
	hf.logger.Debug("page allocated", zap.Uint32("page_id", uint32(id)))
	return id, nil
}

// Read reads exactly PageSize bytes for id into dst. dst must have
// length PageSize.
func (hf *HeapFile) Read(id PageID, dst []byte) error {
	hf.fileMu.Lock()
	defer hf.fileMu.Unlock()

	if uint32(id) >= hf.fileSizePages || id == headerPageID {
		return fmt.Errorf("%w: page %d", pageerr.ErrInvalidPageID, id)
	}
	if len(dst) != hf.pageSize {
		return fmt.Errorf("%w: buffer size %d != page size %d", pageerr.ErrIO, len(dst), hf.pageSize)
	}
	offset := int64(id) * int64(hf.pageSize)
	n, err := hf.file.ReadAt(dst, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading page %d: %v", pageerr.ErrIO, id, err)
	}
	if n != hf.pageSize {
		return fmt.Errorf("%w: short read for page %d: got %d bytes", pageerr.ErrIO, id, n)
	}
	return nil
}

// Write writes exactly PageSize bytes for id from src.
func (hf *HeapFile) Write(id PageID, src []byte) error {
	hf.fileMu.Lock()
	defer hf.fileMu.Unlock()

	if id == headerPageID {
		return fmt.Errorf("%w: page 0 is reserved for the header", pageerr.ErrInvalidPageID)
	}
	if len(src) != hf.pageSize {
		return fmt.Errorf("%w: buffer size %d != page size %d", pageerr.ErrIO, len(src), hf.pageSize)
	}
	offset := int64(id) * int64(hf.pageSize)
	if _, err := hf.file.WriteAt(src, offset); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", pageerr.ErrIO, id, err)
	}
	return nil
}

// Sync flushes buffered writes to stable storage.
func (hf *HeapFile) Sync() error {
	hf.fileMu.Lock()
	defer hf.fileMu.Unlock()
	if err := hf.file.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", pageerr.ErrIO, err)
	}
	return nil
}

// Close persists the header and releases the file descriptor.
func (hf *HeapFile) Close() error {
	hf.fileMu.Lock()
	defer hf.fileMu.Unlock()
	if hf.file == nil {
		return nil
	}
	if err := hf.writeHeaderLocked(); err != nil {
		return err
	}
	if err := hf.file.Sync(); err != nil {
		hf.logger.Warn("sync failed on close", zap.Error(err))
	}
	err := hf.file.Close()
	hf.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing heap file: %v", pageerr.ErrIO, err)
	}
	return nil
}

// PageCount returns the current file_size_pages, including the header.
func (hf *HeapFile) PageCount() uint32 {
	hf.fileMu.Lock()
	defer hf.fileMu.Unlock()
	return hf.fileSizePages
}

// PageSize returns the configured page size.
func (hf *HeapFile) PageSize() int {
	return hf.pageSize
}
