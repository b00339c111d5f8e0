package alloc

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Huge page sizes supported by the kernel.
var hugePageSizes = []uintptr{2 * 1024 * 1024, 1024 * 1024 * 1024}

// region is the anonymous memory mapping backing a page.
type region struct {
	ptr      unsafe.Pointer
	mapped   unsafe.Pointer
	size     uintptr
	hugePage bool
}

// mapRegion maps anonymous memory of the size, aligned to the alignment.
func mapRegion(size, alignment uint64, useHugePages bool) (region, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if useHugePages {
		// Size must be a multiple of the huge page size, otherwise munmap fails.
		flags |= unix.MAP_HUGETLB
	}

	a := uintptr(alignment)
	total := uintptr(size) + a
	p, err := unix.MmapPtr(-1, 0, nil, total, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return region{}, errors.Wrapf(err, "mapping %d bytes failed", total)
	}

	shift := (uintptr(p)+a-1)/a*a - uintptr(p)
	return region{
		ptr:      unsafe.Add(p, shift),
		mapped:   p,
		size:     total,
		hugePage: useHugePages,
	}, nil
}

// unmap releases the region. Length passed to munmap is rounded up to the page size used by the mapping.
// Huge page size can't be queried, so both possible sizes are tried.
func (r region) unmap() {
	if r.hugePage {
		for _, pageSize := range hugePageSizes {
			if munmap(r.mapped, r.size, pageSize) == nil {
				return
			}
		}
	}
	_ = munmap(r.mapped, r.size, uintptr(os.Getpagesize()))
}

func munmap(ptr unsafe.Pointer, size, pageSize uintptr) error {
	return unix.MunmapPtr(ptr, (size+pageSize-1)/pageSize*pageSize)
}
