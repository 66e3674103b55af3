package task

import (
	"sync"

	"github.com/google/uuid"

	"github.com/petitstrawberry/Scarlet/internal/abi"
	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/mm"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

// Task is one schedulable unit: an address space, an open-file table, a
// namespace handle and cwd, a default ABI and per-zone ABI map, and the
// trap frame the syscall dispatcher reads and writes. A per-task mutex
// guards every mutable field, the same shape as minimega's BaseVM.lock.
type Task struct {
	mu sync.Mutex

	ID       int
	UUID     uuid.UUID
	ParentID int
	State    State

	ExitStatus int

	AddressSpace *mm.AddressSpace
	Files        *FileTable
	Namespace    *vfs.Namespace
	Cwd          *vfs.Entry
	DefaultABI   abi.Instance
	Zones        *abi.ZoneMap
	TrapFrame    *arch.TrapFrame
	Env          map[string]string

	table    *Table
	children map[int]bool
}

// Setenv sets an environment variable.
func (t *Task) Setenv(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Env[key] = value
}

// Getenv returns an environment variable and whether it was set.
func (t *Task) Getenv(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.Env[key]
	return v, ok
}

// Getpid returns the task's own ID.
func (t *Task) Getpid() int { return t.ID }

// Getppid returns the task's parent's ID.
func (t *Task) Getppid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ParentID
}

// ResolveABI implements the section 4.1 dispatch lookup: a zone covering
// pc if one is registered, else the task's default ABI.
func (t *Task) ResolveABI(pc uint64) abi.Instance {
	t.mu.Lock()
	def := t.DefaultABI
	zones := t.Zones
	t.mu.Unlock()
	return zones.Resolve(pc, def)
}

// Fork creates a child task: the address space is duplicated (eagerly,
// per internal/mm's Fork), the file table is duplicated with every open
// file's reference count incremented, the namespace handle is shared, the
// default ABI and every zone's ABI are independently cloned, and cwd is
// preserved (spec.md section 4.3).
func (t *Task) Fork() (*Task, error) {
	t.mu.Lock()
	as := t.AddressSpace
	files := t.Files
	ns := t.Namespace
	cwd := t.Cwd
	defaultABI := t.DefaultABI
	zones := t.Zones
	t.mu.Unlock()

	childAS, err := as.Fork()
	if err != nil {
		return nil, err
	}

	child := t.table.Spawn(t.ID, childAS, files.Clone(), ns, cwd, defaultABI.CloneBoxed())
	child.Zones = zones.Clone()

	t.mu.Lock()
	for k, v := range t.Env {
		child.Env[k] = v
	}
	t.mu.Unlock()
	return child, nil
}

// Exec replaces the task's program image in place: it resolves path
// through the task's namespace, reads just enough of the binary to
// detect its ABI, installs a fresh address space, and clears every ABI
// zone. The open-file table survives modulo close-on-exec descriptors.
func (t *Task) Exec(path string, registry *abi.Registry, arena *mm.Arena) error {
	t.mu.Lock()
	ns := t.Namespace
	cwd := t.Cwd
	t.mu.Unlock()

	entry, err := vfs.Walk(ns, cwd, path)
	if err != nil {
		return err
	}
	f, err := entry.Open(vfs.OpenFlags{Read: true})
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, elfIdentSize)
	n, _ := f.Read(header)
	header = header[:n]

	name, ok := registry.Detect(header)
	if !ok {
		return kernerr.New(kernerr.UnknownAbi, "exec %q: no ABI recognizes this binary", path)
	}
	newDefault, ok := registry.Instantiate(name)
	if !ok {
		return kernerr.New(kernerr.UnknownAbi, "exec %q: ABI %q has no factory", path, name)
	}

	newAS := mm.NewAddressSpace(arena)

	t.mu.Lock()
	t.AddressSpace.Destroy()
	t.AddressSpace = newAS
	t.DefaultABI = newDefault
	t.Zones = abi.NewZoneMap()
	t.TrapFrame = &arch.TrapFrame{}
	t.mu.Unlock()

	t.Files.ApplyExec()
	return nil
}

// Exit marks the task a zombie with status, reparents its children to
// task 1, and wakes anyone blocked in Wait.
func (t *Task) Exit(status int) {
	t.mu.Lock()
	t.State = TaskZombie
	t.ExitStatus = status
	t.mu.Unlock()

	t.Files.CloseAll()
	t.AddressSpace.Destroy()
	t.table.reparentOrphans(t)

	t.table.mu.Lock()
	t.table.cond.Broadcast()
	t.table.mu.Unlock()
}

// Wait blocks until a child matching pid (or any child, if pid is 0)
// becomes a zombie, then reaps it: removes it from the process table and
// returns its ID and exit status. Fails with NotFound if the task has no
// such child at all.
func (t *Task) Wait(pid int) (int, int, error) {
	for {
		t.mu.Lock()
		childIDs := make([]int, 0, len(t.children))
		for id := range t.children {
			if pid == 0 || id == pid {
				childIDs = append(childIDs, id)
			}
		}
		t.mu.Unlock()

		if len(childIDs) == 0 {
			return 0, 0, kernerr.New(kernerr.NotFound, "no matching child to wait for")
		}

		t.table.mu.Lock()
		for _, id := range childIDs {
			c, ok := t.table.tasks[id]
			if !ok {
				continue
			}
			c.mu.Lock()
			isZombie := c.State == TaskZombie
			status := c.ExitStatus
			c.mu.Unlock()
			if isZombie {
				t.table.mu.Unlock()

				t.mu.Lock()
				delete(t.children, id)
				t.mu.Unlock()
				t.table.remove(id)
				return id, status, nil
			}
		}
		t.table.cond.Wait()
		t.table.mu.Unlock()
	}
}
