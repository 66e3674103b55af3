package mm

import (
	"sort"
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// Prot is a region's access permission bitmask.
type Prot int

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

// regionKind distinguishes the heap (grown by Sbrk) from general anonymous
// mappings (grown by MapAnon), since only one heap region may exist.
type regionKind int

const (
	regionHeap regionKind = iota
	regionAnon
)

// Region is a contiguous, page-backed range of virtual memory. Regions
// never overlap within an AddressSpace — the same ordered-range-map
// discipline internal/abi uses for zones, kept sorted by Start so lookup
// and insertion are a binary search; overlap checks scan every region.
type Region struct {
	Start VirtAddr
	Len   uint64
	Prot  Prot
	kind  regionKind
	pages map[VirtAddr]PhysAddr // page-aligned VirtAddr -> frame
}

func (r *Region) end() VirtAddr { return r.Start + VirtAddr(r.Len) }

func (r *Region) contains(a VirtAddr) bool {
	return a >= r.Start && a < r.end()
}

// AddressSpace is one task's virtual memory: an arena to allocate frames
// from and an ordered list of mapped regions.
type AddressSpace struct {
	arena *Arena

	mu      sync.Mutex
	regions []*Region
	brk     VirtAddr // current end of the heap region, if any
}

// NewAddressSpace creates an empty address space over the given arena. The
// heap region is not created until the first Sbrk growth, matching a fresh
// process with no allocations yet.
func NewAddressSpace(arena *Arena) *AddressSpace {
	return &AddressSpace{arena: arena}
}

// findRegion returns the region containing a, or nil.
func (as *AddressSpace) findRegion(a VirtAddr) *Region {
	i := sort.Search(len(as.regions), func(i int) bool {
		return as.regions[i].Start > a
	})
	if i == 0 {
		return nil
	}
	r := as.regions[i-1]
	if r.contains(a) {
		return r
	}
	return nil
}

// overlaps reports whether [start, start+len) overlaps any existing region.
func (as *AddressSpace) overlaps(start VirtAddr, length uint64) bool {
	end := start + VirtAddr(length)
	for _, r := range as.regions {
		if start < r.end() && end > r.Start {
			return true
		}
	}
	return false
}

func (as *AddressSpace) insert(r *Region) {
	i := sort.Search(len(as.regions), func(i int) bool {
		return as.regions[i].Start >= r.Start
	})
	as.regions = append(as.regions, nil)
	copy(as.regions[i+1:], as.regions[i:])
	as.regions[i] = r
}

func (as *AddressSpace) remove(r *Region) {
	for i, x := range as.regions {
		if x == r {
			as.regions = append(as.regions[:i], as.regions[i+1:]...)
			return
		}
	}
}

// pageFor returns the physical frame backing the page containing a,
// allocating and zero-filling it lazily on first touch.
func (as *AddressSpace) pageFor(r *Region, a VirtAddr) (PhysAddr, error) {
	base := pageAlignDown(a)
	if p, ok := r.pages[base]; ok {
		return p, nil
	}
	p, err := as.arena.AllocPage()
	if err != nil {
		return 0, err
	}
	r.pages[base] = p
	return p, nil
}

// CopyIn copies len(dst) bytes from user virtual address addr into dst.
func (as *AddressSpace) CopyIn(dst []byte, addr VirtAddr) error {
	return as.copy(dst, addr, false)
}

// CopyOut copies len(src) bytes from src into user virtual address addr.
func (as *AddressSpace) CopyOut(addr VirtAddr, src []byte) error {
	return as.copy(src, addr, true)
}

// copy walks buf one page at a time, reading from or writing into the
// region backing addr. out selects direction: true copies buf into user
// memory, false copies user memory into buf.
func (as *AddressSpace) copy(buf []byte, addr VirtAddr, out bool) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	off := 0
	for off < len(buf) {
		cur := addr + VirtAddr(off)
		r := as.findRegion(cur)
		if r == nil {
			return kernerr.New(kernerr.Fault, "unmapped address %#x", cur)
		}
		if out && r.Prot&ProtWrite == 0 {
			return kernerr.New(kernerr.Fault, "write to non-writable region at %#x", cur)
		}

		p, err := as.pageFor(r, cur)
		if err != nil {
			return err
		}

		pageOff := int(cur - pageAlignDown(cur))
		n := PageSize - pageOff
		if n > len(buf)-off {
			n = len(buf) - off
		}

		page := as.arena.Page(p)
		if out {
			copy(page[pageOff:pageOff+n], buf[off:off+n])
		} else {
			copy(buf[off:off+n], page[pageOff:pageOff+n])
		}
		off += n
	}
	return nil
}

// Sbrk grows (delta > 0) or shrinks (delta < 0) the heap region by delta
// bytes and returns the heap's new end address, which the native ABI
// passes through unchanged. POSIX sbrk instead returns the previous break.
func (as *AddressSpace) Sbrk(delta int64) (VirtAddr, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	var heap *Region
	for _, r := range as.regions {
		if r.kind == regionHeap {
			heap = r
			break
		}
	}

	if heap == nil {
		if delta < 0 {
			return 0, kernerr.New(kernerr.InvalidArgument, "shrink before any heap allocation")
		}
		start := VirtAddr(0x10000)
		heap = &Region{Start: start, Prot: ProtRead | ProtWrite, kind: regionHeap, pages: map[VirtAddr]PhysAddr{}}
		as.brk = start
		as.insert(heap)
	}

	newBrk := as.brk + VirtAddr(delta)
	if delta < 0 && newBrk < heap.Start {
		return 0, kernerr.New(kernerr.InvalidArgument, "sbrk shrink past heap start")
	}

	heap.Len = uint64(newBrk - heap.Start)
	as.brk = newBrk
	return as.brk, nil
}

// MapAnon creates a new anonymous region of at least length bytes (rounded
// up to a page) and returns its start address.
func (as *AddressSpace) MapAnon(length uint64, prot Prot) (VirtAddr, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	if length == 0 {
		return 0, kernerr.New(kernerr.InvalidArgument, "zero-length mapping")
	}
	length = uint64(pageAlignUp(VirtAddr(length)))

	start := VirtAddr(0x40000000)
	for as.overlaps(start, length) {
		start += VirtAddr(length)
	}

	as.insert(&Region{Start: start, Len: length, Prot: prot, kind: regionAnon, pages: map[VirtAddr]PhysAddr{}})
	return start, nil
}

// Unmap removes the anonymous region starting exactly at addr, returning
// its frames to the arena.
func (as *AddressSpace) Unmap(addr VirtAddr) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	for _, r := range as.regions {
		if r.Start == addr {
			if r.kind == regionHeap {
				return kernerr.New(kernerr.InvalidArgument, "cannot unmap the heap region")
			}
			for _, p := range r.pages {
				as.arena.FreePage(p)
			}
			as.remove(r)
			return nil
		}
	}
	return kernerr.New(kernerr.NotFound, "no mapping at %#x", addr)
}

// Fork duplicates this address space eagerly: every mapped page is copied
// into a fresh frame in the child, since this manager does not implement
// copy-on-write (spec.md section 5, "duplicates address space pages with
// copy-on-write if supported else eagerly").
func (as *AddressSpace) Fork() (*AddressSpace, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	child := NewAddressSpace(as.arena)
	child.brk = as.brk

	for _, r := range as.regions {
		nr := &Region{Start: r.Start, Len: r.Len, Prot: r.Prot, kind: r.kind, pages: map[VirtAddr]PhysAddr{}}
		for va, pa := range r.pages {
			np, err := as.arena.AllocPage()
			if err != nil {
				return nil, err
			}
			copy(as.arena.Page(np), as.arena.Page(pa))
			nr.pages[va] = np
		}
		child.regions = append(child.regions, nr)
	}
	return child, nil
}

// Destroy returns every frame owned by this address space to the arena.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()

	for _, r := range as.regions {
		for _, p := range r.pages {
			as.arena.FreePage(p)
		}
	}
	as.regions = nil
}
