package alloc

import (
	"github.com/cespare/xxhash"
	"github.com/outofforest/photon"
)

const (
	emptySlot             = 0
	secondaryPerturbation = 0x9e3779b97f4a7c15
	minTableSize          = 16
)

// ownershipTable resolves addresses to pages owning them.
// Address space is split into regions of 2^magnitude bytes, not smaller than a page, so every page overlaps
// at most two neighbouring regions. Page is stored under the primary hash of the region holding its first byte
// and under the secondary hash of the region holding its last byte. Slots keep page index + 1, open addressing
// with linear probing is used. Pages are never removed, so no tombstones are needed.
type ownershipTable struct {
	slots     []uint32
	magnitude uint
}

func newOwnershipTable(magnitude uint, size int) ownershipTable {
	return ownershipTable{
		slots:     make([]uint32, size),
		magnitude: magnitude,
	}
}

func regionHash(region uintptr, perturbation uint64) uint64 {
	r := uint64(region) ^ perturbation
	return xxhash.Sum64(photon.NewFromValue(&r).B)
}

// fits tells if entries of n pages keep the load factor at or below one half.
func (t *ownershipTable) fits(n int) bool {
	return 4*n <= len(t.slots)
}

func (t *ownershipTable) insert(pageIndex int, p *page) {
	t.put(pageIndex, regionHash(p.base>>t.magnitude, 0))
	t.put(pageIndex, regionHash(p.last>>t.magnitude, secondaryPerturbation))
}

func (t *ownershipTable) put(pageIndex int, hash uint64) {
	mask := uint64(len(t.slots) - 1)
	for i := hash & mask; ; i = (i + 1) & mask {
		if t.slots[i] == emptySlot {
			t.slots[i] = uint32(pageIndex + 1)
			return
		}
	}
}

// find returns index of the page owning the address. Primary chain of the address region is probed first,
// then the secondary one.
func (t *ownershipTable) find(addr uintptr, pages []*page) (int, bool) {
	region := addr >> t.magnitude
	mask := uint64(len(t.slots) - 1)
	for _, hash := range [2]uint64{regionHash(region, 0), regionHash(region, secondaryPerturbation)} {
		for i := hash & mask; t.slots[i] != emptySlot; i = (i + 1) & mask {
			pageIndex := int(t.slots[i] - 1)
			if pages[pageIndex].contains(addr) {
				return pageIndex, true
			}
		}
	}
	return 0, false
}

// grow rebuilds the table so it fits n pages.
func (t *ownershipTable) grow(n int, pages []*page) {
	size := len(t.slots)
	for 4*n > size {
		size <<= 1
	}
	*t = newOwnershipTable(t.magnitude, size)
	for i, p := range pages {
		t.insert(i, p)
	}
}
