package task

import (
	"testing"

	"github.com/petitstrawberry/Scarlet/internal/abi"
	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/mm"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
	"github.com/petitstrawberry/Scarlet/internal/vfsdriver/tmpfs"
)

type stubABI struct{ tag string }

func (s *stubABI) HandleSyscall(ctx any, tf *arch.TrapFrame) error { return nil }
func (s *stubABI) CloneBoxed() abi.Instance                        { return &stubABI{tag: s.tag} }

func newTestTable(t *testing.T) (*Table, *mm.Arena) {
	t.Helper()
	arena, err := mm.NewArena(1 << 20)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	t.Cleanup(func() { arena.Close() })
	return NewTable(), arena
}

func spawnInit(t *testing.T, tb *Table, arena *mm.Arena) *Task {
	t.Helper()
	fs := tmpfs.New()
	ns := vfs.NewNamespace(fs)
	as := mm.NewAddressSpace(arena)
	return tb.Spawn(0, as, NewFileTable(), ns, ns.Root(), &stubABI{tag: "init"})
}

func TestSpawnAssignsSequentialIDsStartingAtOne(t *testing.T) {
	tb, arena := newTestTable(t)
	init := spawnInit(t, tb, arena)
	if init.ID != 1 {
		t.Fatalf("first Spawn got ID %d, want 1", init.ID)
	}
	second := tb.Spawn(1, mm.NewAddressSpace(arena), NewFileTable(), init.Namespace, init.Cwd, &stubABI{})
	if second.ID != 2 {
		t.Fatalf("second Spawn got ID %d, want 2", second.ID)
	}
}

func TestForkDuplicatesAddressSpaceIndependently(t *testing.T) {
	tb, arena := newTestTable(t)
	parent := spawnInit(t, tb, arena)

	addr, err := parent.AddressSpace.Sbrk(4096)
	if err != nil {
		t.Fatalf("Sbrk: %v", err)
	}
	if err := parent.AddressSpace.CopyOut(addr-4096, []byte("parent")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}

	child, err := parent.Fork()
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if child.ParentID != parent.ID {
		t.Fatalf("child.ParentID = %d, want %d", child.ParentID, parent.ID)
	}

	if err := parent.AddressSpace.CopyOut(addr-4096, []byte("changed")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	buf := make([]byte, 6)
	if err := child.AddressSpace.CopyIn(buf, addr-4096); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if string(buf) != "parent" {
		t.Fatalf("child sees %q after parent write, want %q (address spaces should be independent)", buf, "parent")
	}
}

func TestForkClonesABIIndependently(t *testing.T) {
	tb, arena := newTestTable(t)
	parent := spawnInit(t, tb, arena)

	child, err := parent.Fork()
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if child.DefaultABI == parent.DefaultABI {
		t.Fatalf("Fork did not clone the default ABI instance")
	}
}

func TestExitAndWaitReapsZombieChild(t *testing.T) {
	tb, arena := newTestTable(t)
	parent := spawnInit(t, tb, arena)
	child, err := parent.Fork()
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	go child.Exit(7)

	id, status, err := parent.Wait(0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if id != child.ID || status != 7 {
		t.Fatalf("Wait = (%d, %d), want (%d, 7)", id, status, child.ID)
	}

	if _, err := tb.Get(child.ID); err == nil {
		t.Fatalf("reaped child still present in table")
	}
}

func TestShutdownExitsEveryTaskConcurrently(t *testing.T) {
	tb, arena := newTestTable(t)
	init := spawnInit(t, tb, arena)
	child, err := init.Fork()
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	if err := tb.Shutdown(9); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	init.mu.Lock()
	initState := init.State
	init.mu.Unlock()
	if initState != TaskZombie {
		t.Fatalf("init.State = %v, want TaskZombie", initState)
	}

	child.mu.Lock()
	childState := child.State
	child.mu.Unlock()
	if childState != TaskZombie {
		t.Fatalf("child.State = %v, want TaskZombie", childState)
	}
}

func TestSpawnAssignsDistinctUUIDs(t *testing.T) {
	tb, arena := newTestTable(t)
	init := spawnInit(t, tb, arena)
	second := tb.Spawn(1, mm.NewAddressSpace(arena), NewFileTable(), init.Namespace, init.Cwd, &stubABI{})

	if init.UUID == second.UUID {
		t.Fatalf("two spawned tasks share a UUID: %v", init.UUID)
	}
}

func TestWaitWithNoChildrenFails(t *testing.T) {
	tb, arena := newTestTable(t)
	parent := spawnInit(t, tb, arena)

	if _, _, err := parent.Wait(0); err == nil {
		t.Fatalf("Wait with no children: want error, got nil")
	}
}

func TestOrphanReparentedToTaskOne(t *testing.T) {
	tb, arena := newTestTable(t)
	init := spawnInit(t, tb, arena)
	parent, err := init.Fork()
	if err != nil {
		t.Fatalf("Fork parent: %v", err)
	}
	child, err := parent.Fork()
	if err != nil {
		t.Fatalf("Fork child: %v", err)
	}

	parent.Exit(0)
	// parent is now a zombie; init must reap it to drain the orphan first,
	// mirroring how a real init loop continuously waits.
	if _, _, err := init.Wait(parent.ID); err != nil {
		t.Fatalf("init Wait(parent): %v", err)
	}

	got, err := tb.Get(child.ID)
	if err != nil {
		t.Fatalf("Get(child): %v", err)
	}
	if got.Getppid() != init.ID {
		t.Fatalf("orphan's parent = %d, want task 1 (%d)", got.Getppid(), init.ID)
	}
}
