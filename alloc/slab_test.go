package alloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, blockSize, blocksPerPage uint64) *BlockAllocator {
	a, err := NewBlockAllocator(Config{
		BlockSize:     blockSize,
		BlocksPerPage: blocksPerPage,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestConfigValidation(t *testing.T) {
	requireT := require.New(t)

	_, err := NewBlockAllocator(Config{BlocksPerPage: 1})
	requireT.Error(err)
	_, err = NewBlockAllocator(Config{BlockSize: 1})
	requireT.Error(err)
	_, err = NewBlockAllocator(Config{BlockSize: 1 << 40, BlocksPerPage: 1 << 40})
	requireT.Error(err)
}

func TestPagesAllocatedOnDemand(t *testing.T) {
	const (
		blockSize     = 24
		blocksPerPage = 10
		blocks        = 25
	)

	requireT := require.New(t)
	a := newTestAllocator(t, blockSize, blocksPerPage)
	requireT.Equal(Stats{}, a.Stats())

	seen := map[unsafe.Pointer]struct{}{}
	for i := range blocks {
		ptr, err := a.Alloc()
		requireT.NoError(err)
		requireT.NotContains(seen, ptr)
		seen[ptr] = struct{}{}

		b := a.Bytes(ptr)
		requireT.Len(b, blockSize)
		for j := range b {
			b[j] = byte(i)
		}
	}

	requireT.Equal(Stats{
		Pages:      3,
		UsedBlocks: blocks,
		FreeBlocks: 3*blocksPerPage - blocks,
	}, a.Stats())

	for ptr := range seen {
		a.Free(ptr)
	}
	requireT.Equal(Stats{
		Pages:      3,
		EmptyPages: 3,
		FreeBlocks: 3 * blocksPerPage,
	}, a.Stats())
}

func TestBlocksDoNotOverlap(t *testing.T) {
	const blockSize = 16

	requireT := require.New(t)
	a := newTestAllocator(t, blockSize, 8)

	ptrs := make([]unsafe.Pointer, 0, 8)
	for i := range 8 {
		ptr, err := a.Alloc()
		requireT.NoError(err)
		for j, b := range a.Bytes(ptr) {
			requireT.Zero(b, j)
		}
		clear(a.Bytes(ptr))
		a.Bytes(ptr)[0] = byte(i + 1)
		ptrs = append(ptrs, ptr)
	}
	for i, ptr := range ptrs {
		requireT.Equal(byte(i+1), a.Bytes(ptr)[0])
	}
}

func TestLowestFreeBlockIsReused(t *testing.T) {
	requireT := require.New(t)
	a := newTestAllocator(t, 8, 4)

	ptrs := make([]unsafe.Pointer, 0, 4)
	for range 4 {
		ptr, err := a.Alloc()
		requireT.NoError(err)
		ptrs = append(ptrs, ptr)
	}

	a.Free(ptrs[3])
	a.Free(ptrs[1])

	ptr, err := a.Alloc()
	requireT.NoError(err)
	requireT.Equal(ptrs[1], ptr)

	ptr, err = a.Alloc()
	requireT.NoError(err)
	requireT.Equal(ptrs[3], ptr)
	requireT.Equal(1, a.Stats().Pages)
}

func TestLowestPageIsUsedFirst(t *testing.T) {
	const blocksPerPage = 2

	requireT := require.New(t)
	a := newTestAllocator(t, 32, blocksPerPage)

	ptrs := make([]unsafe.Pointer, 0, 3*blocksPerPage)
	for range 3 * blocksPerPage {
		ptr, err := a.Alloc()
		requireT.NoError(err)
		ptrs = append(ptrs, ptr)
	}
	requireT.Equal(3, a.Stats().Pages)

	// Pages 2 and 0 get a free block, allocation must come from page 0.
	a.Free(ptrs[5])
	a.Free(ptrs[0])

	ptr, err := a.Alloc()
	requireT.NoError(err)
	requireT.Equal(ptrs[0], ptr)

	ptr, err = a.Alloc()
	requireT.NoError(err)
	requireT.Equal(ptrs[5], ptr)

	_, err = a.Alloc()
	requireT.NoError(err)
	requireT.Equal(4, a.Stats().Pages)
}

func TestOwnershipTableGrows(t *testing.T) {
	const pages = 200

	requireT := require.New(t)
	a := newTestAllocator(t, 40, 1)

	ptrs := make([]unsafe.Pointer, 0, pages)
	for range pages {
		ptr, err := a.Alloc()
		requireT.NoError(err)
		ptrs = append(ptrs, ptr)
	}
	requireT.GreaterOrEqual(len(a.table.slots), 4*pages)

	for i, ptr := range ptrs {
		pageIndex, ok := a.table.find(uintptr(ptr), a.pages)
		requireT.True(ok, i)
		requireT.Equal(i, pageIndex)
	}
	for _, ptr := range ptrs {
		a.Free(ptr)
	}
	requireT.Equal(pages, a.Stats().EmptyPages)
}

func TestBlocksInsideLargePage(t *testing.T) {
	const blocksPerPage = 1000

	requireT := require.New(t)
	a := newTestAllocator(t, 100, blocksPerPage)

	ptrs := make([]unsafe.Pointer, 0, blocksPerPage)
	for range blocksPerPage {
		ptr, err := a.Alloc()
		requireT.NoError(err)
		ptrs = append(ptrs, ptr)
	}
	requireT.Equal(1, a.Stats().Pages)

	// Last block of the page usually lies in the region following the one of the first block,
	// it must be resolved through the secondary chain.
	for _, ptr := range ptrs {
		a.Free(ptr)
	}
	requireT.Equal(uint64(0), a.Stats().UsedBlocks)
}

func TestFreeInvalidPointerPanics(t *testing.T) {
	requireT := require.New(t)
	a := newTestAllocator(t, 16, 4)

	ptr, err := a.Alloc()
	requireT.NoError(err)

	var local uint64
	requireT.Panics(func() {
		a.Free(unsafe.Pointer(&local))
	})
	requireT.Panics(func() {
		a.Free(unsafe.Add(ptr, 1))
	})

	a.Free(ptr)
	requireT.Panics(func() {
		a.Free(ptr)
	})
}
