// Package task is the kernel's process model: the Task struct, its
// lifecycle state machine, and the process table that tracks parent/child
// relationships and reaps zombies — grounded on minimega's VMs/BaseVM
// pair (cmd/minimega/vms.go, vm.go), generalized from VM lifecycle to
// Unix-style process lifecycle.
package task

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/petitstrawberry/Scarlet/internal/abi"
	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/mm"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

// Table is the process-wide task map: every live task, keyed by ID, plus
// the sequential ID allocator and the exit/wait rendezvous. Orphaned
// children are re-parented to task 1, grounded on minimega's VMs map
// (cmd/minimega/vms.go) with its find-by-id lookup generalized to the
// process-tree bookkeeping a process table needs that a flat VM registry
// does not.
type Table struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tasks    map[int]*Task
	nextID   int
}

// NewTable creates an empty process table. IDs start at 1 so the first
// Spawn call produces task 1, the init task orphans are re-parented to.
func NewTable() *Table {
	tb := &Table{tasks: map[int]*Task{}, nextID: 1}
	tb.cond = sync.NewCond(&tb.mu)
	return tb
}

// Spawn creates a new task from already-constructed resources and records
// it as a child of parentID if that task exists. Boot uses it to create
// task 1; Fork uses it to create every child.
func (tb *Table) Spawn(parentID int, as *mm.AddressSpace, files *FileTable, ns *vfs.Namespace, cwd *vfs.Entry, defaultABI abi.Instance) *Task {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	id := tb.nextID
	tb.nextID++

	t := &Task{
		ID:           id,
		UUID:         uuid.New(),
		ParentID:     parentID,
		State:        TaskRunnable,
		AddressSpace: as,
		Files:        files,
		Namespace:    ns,
		Cwd:          cwd,
		DefaultABI:   defaultABI,
		Zones:        abi.NewZoneMap(),
		TrapFrame:    &arch.TrapFrame{},
		Env:          map[string]string{},
		table:        tb,
		children:     map[int]bool{},
	}
	tb.tasks[id] = t
	if p, ok := tb.tasks[parentID]; ok {
		p.mu.Lock()
		p.children[id] = true
		p.mu.Unlock()
	}
	return t
}

// Get looks up a task by ID.
func (tb *Table) Get(id int) (*Task, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	t, ok := tb.tasks[id]
	if !ok {
		return nil, kernerr.New(kernerr.NotFound, "no task with id %d", id)
	}
	return t, nil
}

// reparentOrphans moves every child of dead to task 1, the re-parenting
// rule spec.md section 4.3 requires ("Orphans are re-parented to task
// 1"). Caller must not hold dead.mu.
func (tb *Table) reparentOrphans(dead *Task) {
	dead.mu.Lock()
	childIDs := make([]int, 0, len(dead.children))
	for id := range dead.children {
		childIDs = append(childIDs, id)
	}
	dead.mu.Unlock()

	tb.mu.Lock()
	init, hasInit := tb.tasks[1]
	tb.mu.Unlock()

	for _, id := range childIDs {
		tb.mu.Lock()
		c, ok := tb.tasks[id]
		tb.mu.Unlock()
		if !ok {
			continue
		}
		c.mu.Lock()
		c.ParentID = 1
		c.mu.Unlock()
		if hasInit {
			init.mu.Lock()
			init.children[id] = true
			init.mu.Unlock()
		}
	}
}

// remove deletes a reaped task from the table.
func (tb *Table) remove(id int) {
	tb.mu.Lock()
	delete(tb.tasks, id)
	tb.mu.Unlock()
}

// Shutdown exits every remaining task concurrently and waits for all of
// them to finish tearing down their address spaces and file tables, for
// kernel shutdown. Unlike Wait, which reaps one child of one parent at a
// time, this fans out across the whole table at once.
func (tb *Table) Shutdown(status int) error {
	tb.mu.Lock()
	tasks := make([]*Task, 0, len(tb.tasks))
	for _, t := range tb.tasks {
		tasks = append(tasks, t)
	}
	tb.mu.Unlock()

	var g errgroup.Group
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			t.Exit(status)
			return nil
		})
	}
	return g.Wait()
}
