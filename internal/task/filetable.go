package task

import (
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

// fileTableEntry pairs an open file with the close-on-exec bit, which the
// File itself does not track (it is a property of the descriptor slot,
// not of the underlying open file — two descriptors dup'd from the same
// File can disagree on it).
type fileTableEntry struct {
	file      *vfs.File
	closeExec bool
}

// FileTable is a task's open-file descriptor table: a small-integer fd
// space over *vfs.File handles.
type FileTable struct {
	mu      sync.Mutex
	entries map[int]*fileTableEntry
	next    int
}

// NewFileTable creates an empty descriptor table.
func NewFileTable() *FileTable {
	return &FileTable{entries: map[int]*fileTableEntry{}}
}

// Install assigns the lowest unused fd to f and returns it.
func (t *FileTable) Install(f *vfs.File, closeExec bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := 0
	for {
		if _, used := t.entries[fd]; !used {
			break
		}
		fd++
	}
	t.entries[fd] = &fileTableEntry{file: f, closeExec: closeExec}
	t.next = fd + 1
	return fd
}

// Get returns the File installed at fd.
func (t *FileTable) Get(fd int) (*vfs.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[fd]
	if !ok {
		return nil, kernerr.New(kernerr.NotFound, "no open file at descriptor %d", fd)
	}
	return e.file, nil
}

// Close closes and removes fd.
func (t *FileTable) Close(fd int) error {
	t.mu.Lock()
	e, ok := t.entries[fd]
	if ok {
		delete(t.entries, fd)
	}
	t.mu.Unlock()

	if !ok {
		return kernerr.New(kernerr.NotFound, "no open file at descriptor %d", fd)
	}
	return e.file.Close()
}

// Dup installs a new descriptor sharing fd's underlying File.
func (t *FileTable) Dup(fd int) (int, error) {
	t.mu.Lock()
	e, ok := t.entries[fd]
	t.mu.Unlock()
	if !ok {
		return 0, kernerr.New(kernerr.NotFound, "no open file at descriptor %d", fd)
	}
	return t.Install(e.file.Dup(), false), nil
}

// CloseAll closes every open descriptor, for task exit.
func (t *FileTable) CloseAll() {
	t.mu.Lock()
	entries := t.entries
	t.entries = map[int]*fileTableEntry{}
	t.mu.Unlock()

	for _, e := range entries {
		e.file.Close()
	}
}

// Clone duplicates every descriptor for fork, skipping (and closing, per
// close-on-exec semantics carried across fork too) none — fork preserves
// the whole table; only exec applies the close-on-exec filter.
func (t *FileTable) Clone() *FileTable {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := NewFileTable()
	for fd, e := range t.entries {
		out.entries[fd] = &fileTableEntry{file: e.file.Dup(), closeExec: e.closeExec}
		if fd >= out.next {
			out.next = fd + 1
		}
	}
	return out
}

// ApplyExec closes every close-on-exec descriptor, the filtering exec
// applies to the inherited file table (spec.md section 4.3).
func (t *FileTable) ApplyExec() {
	t.mu.Lock()
	var toClose []*vfs.File
	for fd, e := range t.entries {
		if e.closeExec {
			toClose = append(toClose, e.file)
			delete(t.entries, fd)
		}
	}
	t.mu.Unlock()

	for _, f := range toClose {
		f.Close()
	}
}
