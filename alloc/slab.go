package alloc

import (
	"math/bits"
	"unsafe"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/outofforest/heapcore/types"
)

const (
	blockAlignment = 64
	noPage         = -1
)

// Config stores configuration of block allocator.
type Config struct {
	BlockSize     uint64
	BlocksPerPage uint64
	UseHugePages  bool
}

// Stats reports the state of block allocator.
type Stats struct {
	Pages      int
	EmptyPages int
	UsedBlocks uint64
	FreeBlocks uint64
}

type page struct {
	region    region
	base      uintptr
	last      uintptr
	free      []uint64
	freeCount uint64
	next      int
	linked    bool
}

func (p *page) contains(addr uintptr) bool {
	return addr >= p.base && addr <= p.last
}

// NewBlockAllocator creates allocator of fixed-size blocks. No page is allocated until the first block is requested.
func NewBlockAllocator(config Config) (*BlockAllocator, error) {
	if config.BlockSize == 0 {
		return nil, errors.New("block size must be positive")
	}
	if config.BlocksPerPage == 0 {
		return nil, errors.New("number of blocks per page must be positive")
	}

	pageSize := config.BlockSize * config.BlocksPerPage
	if pageSize/config.BlocksPerPage != config.BlockSize {
		return nil, errors.Errorf("page of %d blocks of %d bytes is too large", config.BlocksPerPage, config.BlockSize)
	}

	return &BlockAllocator{
		config:   config,
		pageSize: pageSize,
		table:    newOwnershipTable(uint(bits.Len64(pageSize-1)), minTableSize),
		freeHead: noPage,
	}, nil
}

// BlockAllocator hands out blocks of fixed size carved from pages. Free blocks of a page are tracked by a bitmask,
// pages having free blocks are chained in ascending order, so allocation always takes the lowest page first.
type BlockAllocator struct {
	config   Config
	pageSize uint64
	pages    []*page
	table    ownershipTable
	freeHead int
	used     uint64
}

// Alloc returns address of a free block.
func (a *BlockAllocator) Alloc() (unsafe.Pointer, error) {
	if a.freeHead == noPage {
		if err := a.addPage(); err != nil {
			return nil, err
		}
	}

	p := a.pages[a.freeHead]
	slot := p.take()
	if p.freeCount == 0 {
		a.freeHead = p.next
		p.next = noPage
		p.linked = false
	}
	a.used++

	return unsafe.Add(p.region.ptr, slot*a.config.BlockSize), nil
}

// Free returns the block to its page. Unknown pointers and double frees are fatal.
func (a *BlockAllocator) Free(ptr unsafe.Pointer) {
	addr := uintptr(ptr)
	pageIndex, ok := a.table.find(addr, a.pages)
	if !ok {
		panic(errors.Errorf("unknown pointer %#x", addr))
	}

	p := a.pages[pageIndex]
	offset := uint64(addr - p.base)
	if offset%a.config.BlockSize != 0 {
		panic(errors.Errorf("pointer %#x does not point to the beginning of a block", addr))
	}

	slot := offset / a.config.BlockSize
	word, bit := slot/types.UInt64Bits, slot%types.UInt64Bits
	if p.free[word]&(1<<bit) != 0 {
		panic(errors.Errorf("double free of block %#x", addr))
	}
	p.free[word] |= 1 << bit
	p.freeCount++
	a.used--

	if !p.linked {
		a.link(pageIndex)
	}
}

// Bytes returns the block as a byte slice.
func (a *BlockAllocator) Bytes(ptr unsafe.Pointer) []byte {
	return photon.SliceFromPointer[byte](ptr, int(a.config.BlockSize))
}

// BlockSize returns size of the block.
func (a *BlockAllocator) BlockSize() uint64 {
	return a.config.BlockSize
}

// Stats returns statistics of the allocator.
func (a *BlockAllocator) Stats() Stats {
	s := Stats{
		Pages:      len(a.pages),
		UsedBlocks: a.used,
		FreeBlocks: uint64(len(a.pages))*a.config.BlocksPerPage - a.used,
	}
	for _, p := range a.pages {
		if p.freeCount == a.config.BlocksPerPage {
			s.EmptyPages++
		}
	}
	return s
}

// Close unmaps all the pages. Blocks must not be used afterwards.
func (a *BlockAllocator) Close() {
	for _, p := range a.pages {
		p.region.unmap()
	}
	a.pages = nil
	a.table = newOwnershipTable(a.table.magnitude, minTableSize)
	a.freeHead = noPage
	a.used = 0
}

func (a *BlockAllocator) addPage() error {
	r, err := mapRegion(a.pageSize, blockAlignment, a.config.UseHugePages)
	if err != nil {
		return errors.Wrap(err, "allocating page failed")
	}

	base := uintptr(r.ptr)
	p := &page{
		region:    r,
		base:      base,
		last:      base + uintptr(a.pageSize) - 1,
		free:      make([]uint64, (a.config.BlocksPerPage+types.UInt64Bits-1)/types.UInt64Bits),
		freeCount: a.config.BlocksPerPage,
		next:      noPage,
	}
	for i := range p.free {
		p.free[i] = ^uint64(0)
	}
	if tail := a.config.BlocksPerPage % types.UInt64Bits; tail != 0 {
		p.free[len(p.free)-1] = 1<<tail - 1
	}

	a.pages = append(a.pages, p)
	pageIndex := len(a.pages) - 1
	if a.table.fits(len(a.pages)) {
		a.table.insert(pageIndex, p)
	} else {
		a.table.grow(len(a.pages), a.pages)
	}
	a.link(pageIndex)

	return nil
}

// link inserts page into the chain of pages having free blocks, keeping the chain sorted by index.
func (a *BlockAllocator) link(pageIndex int) {
	p := a.pages[pageIndex]
	p.linked = true

	if a.freeHead == noPage || a.freeHead > pageIndex {
		p.next = a.freeHead
		a.freeHead = pageIndex
		return
	}

	prev := a.pages[a.freeHead]
	for prev.next != noPage && prev.next < pageIndex {
		prev = a.pages[prev.next]
	}
	p.next = prev.next
	prev.next = pageIndex
}

func (p *page) take() uint64 {
	for i, w := range p.free {
		if w == 0 {
			continue
		}
		bit := uint64(bits.TrailingZeros64(w))
		p.free[i] &^= 1 << bit
		p.freeCount--
		return uint64(i)*types.UInt64Bits + bit
	}
	panic(errors.New("page has no free block"))
}
