// Package abi is the kernel's ABI registry and per-task zone map: the
// mechanism by which a syscall trap at a given program counter is routed to
// whichever ABI translation (the native Scarlet ABI, the xv6-riscv64
// compatibility layer, or any other registered ABI) owns that address
// range.
package abi

import (
	"sort"
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// Instance is a fresh, independent ABI translation context: it is free to
// keep per-process state across syscalls (the native and xv6 modules keep
// none) and is owned by whichever task or zone instantiated it.
//
// ctx is deliberately typed any rather than *task.Task: internal/task
// stores Instance values (a task's default ABI and each zone's ABI), so
// Instance cannot name the task package's concrete type without creating
// an import cycle. Concrete ABI packages (internal/abi/native,
// internal/abi/xv6) import internal/task directly and type-assert ctx to
// *task.Task.
type Instance interface {
	// HandleSyscall services one trap, reading arguments from tf and
	// writing its result back via tf.SetReturn/SetReturnErrno.
	HandleSyscall(ctx any, tf *arch.TrapFrame) error

	// CloneBoxed produces a state-independent copy of this instance, the
	// primitive fork uses to give a child its own ABI state.
	CloneBoxed() Instance
}

// DetectFunc inspects an executable's header bytes (e.g. the ELF
// identification block) and reports whether it recognizes the binary as
// one of its ABI.
type DetectFunc func(header []byte) bool

// Factory produces a fresh, independent Instance.
type Factory func() Instance

type registration struct {
	factory Factory
	detect  DetectFunc
}

// Registry is the process-wide name -> ABI mapping. The zero value is not
// ready to use; call NewRegistry.
type Registry struct {
	mu    sync.Mutex
	abis  map[string]registration
	order []string // registration order, for deterministic Detect scans
}

// NewRegistry creates an empty ABI registry.
func NewRegistry() *Registry {
	return &Registry{abis: map[string]registration{}}
}

// Register adds name to the registry. A second registration under the
// same name fails with AlreadyExists.
func (r *Registry) Register(name string, factory Factory, detect DetectFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.abis[name]; ok {
		return kernerr.New(kernerr.AlreadyExists, "ABI %q already registered", name)
	}
	r.abis[name] = registration{factory: factory, detect: detect}
	r.order = append(r.order, name)
	return nil
}

// Instantiate returns a fresh Instance of the named ABI, or false if name
// is unknown.
func (r *Registry) Instantiate(name string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.abis[name]
	if !ok {
		return nil, false
	}
	return reg.factory(), true
}

// Detect inspects header against every registered ABI's detector, in
// registration order, and returns the name of the first match.
func (r *Registry) Detect(header []byte) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		reg := r.abis[name]
		if reg.detect != nil && reg.detect(header) {
			return name, true
		}
	}
	return "", false
}

// Zone is one entry in a ZoneMap: a half-open address range bound to an
// ABI instance.
type Zone struct {
	Start uint64
	Len   uint64
	ABI   Instance
}

func (z *Zone) end() uint64 { return z.Start + z.Len }

func (z *Zone) contains(a uint64) bool { return a >= z.Start && a < z.end() }

// ZoneMap is a task's ordered-by-start collection of ABI zones. Zones
// never overlap; lookup of an address returns the zone with the greatest
// Start <= the address whose range contains it, in O(log n).
type ZoneMap struct {
	mu    sync.Mutex
	zones []*Zone
}

// NewZoneMap creates an empty zone map.
func NewZoneMap() *ZoneMap { return &ZoneMap{} }

// Register inserts a new zone [start, start+length) bound to instance.
// Fails with InvalidArgument if length is zero or start+length overflows,
// and with AlreadyExists if the range overlaps an existing zone.
func (m *ZoneMap) Register(start, length uint64, instance Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if length == 0 {
		return kernerr.New(kernerr.InvalidArgument, "zone length must be nonzero")
	}
	end := start + length
	if end < start {
		return kernerr.New(kernerr.InvalidArgument, "zone [%#x, +%#x) overflows address space", start, length)
	}
	for _, z := range m.zones {
		if start < z.end() && end > z.Start {
			return kernerr.New(kernerr.AlreadyExists, "zone [%#x, %#x) overlaps existing zone [%#x, %#x)", start, end, z.Start, z.end())
		}
	}

	i := sort.Search(len(m.zones), func(i int) bool { return m.zones[i].Start >= start })
	z := &Zone{Start: start, Len: length, ABI: instance}
	m.zones = append(m.zones, nil)
	copy(m.zones[i+1:], m.zones[i:])
	m.zones[i] = z
	return nil
}

// Unregister removes the zone keyed exactly by start. Fails with NotFound
// if no zone starts there.
func (m *ZoneMap) Unregister(start uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, z := range m.zones {
		if z.Start == start {
			m.zones = append(m.zones[:i], m.zones[i+1:]...)
			return nil
		}
	}
	return kernerr.New(kernerr.NotFound, "no ABI zone registered at %#x", start)
}

// Resolve implements the section 4.1 lookup algorithm: the zone with the
// greatest Start <= pc whose range contains pc, else defaultABI.
func (m *ZoneMap) Resolve(pc uint64, defaultABI Instance) Instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.zones), func(i int) bool { return m.zones[i].Start > pc })
	if i == 0 {
		return defaultABI
	}
	z := m.zones[i-1]
	if z.contains(pc) {
		return z.ABI
	}
	return defaultABI
}

// Clone returns an independent copy of the zone map, with every zone's
// ABI instance cloned via CloneBoxed — the primitive fork uses to give a
// child task its own zone state (spec.md section 4.1: "cloned with its
// ABI on fork").
func (m *ZoneMap) Clone() *ZoneMap {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := NewZoneMap()
	out.zones = make([]*Zone, len(m.zones))
	for i, z := range m.zones {
		out.zones[i] = &Zone{Start: z.Start, Len: z.Len, ABI: z.ABI.CloneBoxed()}
	}
	return out
}

// Zones returns a snapshot of the registered zones, in Start order.
func (m *ZoneMap) Zones() []Zone {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Zone, len(m.zones))
	for i, z := range m.zones {
		out[i] = *z
	}
	return out
}
