package heapfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gojodb/pagecache/core/pageerr"
)

func setupHeapFile(t *testing.T) (*HeapFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pages.heap")
	hf, err := Open(path, true, 256, zap.NewNop())
	require.NoError(t, err)
	return hf, path
}

func TestOpen_CreateWritesHeader(t *testing.T) {
	hf, path := setupHeapFile(t)
	defer hf.Close()

	require.Equal(t, uint32(1), hf.PageCount())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, 256)
}

func TestOpen_MissingFileFails(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.heap"), false, 256, zap.NewNop())
	require.ErrorIs(t, err, pageerr.ErrFileNotFound)
}

func TestOpen_CorruptHeaderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.heap")
	require.NoError(t, os.WriteFile(path, make([]byte, 256), 0o666))

	_, err := Open(path, false, 256, zap.NewNop())
	require.Error(t, err)
}

func TestAllocate_MonotonicAcrossCalls(t *testing.T) {
	hf, _ := setupHeapFile(t)
	defer hf.Close()

	var ids []PageID
	for i := 0; i < 5; i++ {
		id, err := hf.Allocate()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		require.Greater(t, ids[i], ids[i-1])
	}
	require.Equal(t, PageID(1), ids[0])
}

func TestAllocate_MonotonicAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.heap")
	hf, err := Open(path, true, 256, zap.NewNop())
	require.NoError(t, err)

	last, err := hf.Allocate()
	require.NoError(t, err)
	require.NoError(t, hf.Close())

	hf2, err := Open(path, false, 256, zap.NewNop())
	require.NoError(t, err)
	defer hf2.Close()

	next, err := hf2.Allocate()
	require.NoError(t, err)
	require.Greater(t, next, last)
}

func TestReadWrite_RoundTrip(t *testing.T) {
	hf, _ := setupHeapFile(t)
	defer hf.Close()

	id, err := hf.Allocate()
	require.NoError(t, err)

	want := make([]byte, hf.PageSize())
	copy(want, "hello, page")
	require.NoError(t, hf.Write(id, want))

	got := make([]byte, hf.PageSize())
	require.NoError(t, hf.Read(id, got))
	require.Equal(t, want, got)
}

func TestReadWrite_RestartDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.heap")
	hf, err := Open(path, true, 256, zap.NewNop())
	require.NoError(t, err)

	id, err := hf.Allocate()
	require.NoError(t, err)
	want := make([]byte, hf.PageSize())
	copy(want, "hello")
	require.NoError(t, hf.Write(id, want))
	require.NoError(t, hf.Sync())
	require.NoError(t, hf.Close())

	hf2, err := Open(path, false, 256, zap.NewNop())
	require.NoError(t, err)
	defer hf2.Close()

	got := make([]byte, hf2.PageSize())
	require.NoError(t, hf2.Read(id, got))
	require.Equal(t, want, got)
}

func TestRead_InvalidPageIDRejected(t *testing.T) {
	hf, _ := setupHeapFile(t)
	defer hf.Close()

	buf := make([]byte, hf.PageSize())
	err := hf.Read(PageID(99), buf)
	require.Error(t, err)
}

func TestWrite_HeaderPageRejected(t *testing.T) {
	hf, _ := setupHeapFile(t)
	defer hf.Close()

	buf := make([]byte, hf.PageSize())
	err := hf.Write(headerPageID, buf)
	require.Error(t, err)
}
