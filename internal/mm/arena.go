package mm

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// Arena is the kernel's flat physical-memory pool, sized by the boot
// configuration's memsize parameter (standing in for the device-tree
// memory node a real port would parse, spec.md section 6). It is backed
// by a real anonymous mmap rather than a plain Go slice so that frames
// handed out to address spaces live outside the Go heap and GC, the same
// way physical RAM sits outside a kernel's own allocator metadata.
type Arena struct {
	mu    sync.Mutex
	bytes []byte
	free  []PhysAddr // free frame base addresses, in no particular order
}

// NewArena reserves size bytes (rounded up to a page) of anonymous memory
// and carves it into free frames.
func NewArena(size uint64) (*Arena, error) {
	size = uint64(pageAlignUp(VirtAddr(size)))

	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.NoSpace, err, "mmap arena of %d bytes", size)
	}

	a := &Arena{bytes: b}
	for off := uint64(0); off < size; off += PageSize {
		a.free = append(a.free, PhysAddr(off))
	}
	return a, nil
}

// Close unmaps the arena's backing memory. Tests call this to avoid
// leaking host mappings across table-driven subtests.
func (a *Arena) Close() error {
	return unix.Munmap(a.bytes)
}

// AllocPage removes one frame from the free list and zeroes it.
func (a *Arena) AllocPage() (PhysAddr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		return 0, kernerr.New(kernerr.NoSpace, "arena exhausted")
	}

	n := len(a.free) - 1
	p := a.free[n]
	a.free = a.free[:n]

	page := a.bytes[p : p+PageSize]
	for i := range page {
		page[i] = 0
	}

	return p, nil
}

// FreePage returns a frame to the free list.
func (a *Arena) FreePage(p PhysAddr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, p)
}

// Page returns the byte slice backing frame p.
func (a *Arena) Page(p PhysAddr) []byte {
	return a.bytes[p : p+PageSize]
}

// FreeFrames reports the number of unallocated frames, for tests and a
// future memory-pressure syscall.
func (a *Arena) FreeFrames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}
