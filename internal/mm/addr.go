package mm

// VirtAddr is a virtual address inside a task's address space.
type VirtAddr uint64

// PhysAddr is a physical address inside the page arena.
type PhysAddr uint64

// PageSize is the RISC-V Sv39 base page size this manager works in.
const PageSize = 4096

func pageAlignDown(a VirtAddr) VirtAddr { return a &^ (PageSize - 1) }

func pageAlignUp(a VirtAddr) VirtAddr {
	return (a + PageSize - 1) &^ (PageSize - 1)
}

func pageCount(n uint64) uint64 { return (n + PageSize - 1) / PageSize }
