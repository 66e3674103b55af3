package vfs

import (
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// File is a per-task open-file descriptor's state: a strong reference to
// whatever Stream the owning driver returned, plus the access-mode flags
// it was opened with. Concurrent access through the same File is
// serialized here; concurrent access to the same node through distinct
// Files is left to the driver (spec.md section 4.2.4).
type File struct {
	mu     sync.Mutex
	stream Stream
	flags  OpenFlags
	entry  *Entry
	closed bool
}

// OpenFile wraps a driver-returned Stream with the bookkeeping every open
// file needs. entry identifies what was opened, for Metadata, and is held
// until Close.
func OpenFile(entry *Entry, stream Stream, flags OpenFlags) *File {
	entry.hold()
	return &File{stream: stream, flags: flags, entry: entry}
}

// Read reads into p, failing with PermissionDenied if the file was not
// opened for reading.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, kernerr.New(kernerr.InvalidArgument, "read on closed file")
	}
	if !f.flags.Read {
		return 0, kernerr.New(kernerr.PermissionDenied, "file not opened for reading")
	}
	return f.stream.Read(p)
}

// Write writes p, failing with ReadOnly if the file was not opened for
// writing.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, kernerr.New(kernerr.InvalidArgument, "write on closed file")
	}
	if !f.flags.Write && !f.flags.Append {
		return 0, kernerr.New(kernerr.ReadOnly, "file not opened for writing")
	}
	return f.stream.Write(p)
}

// Seek repositions the file, failing with NotSupported on a non-seekable
// stream (a pipe or character device).
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, kernerr.New(kernerr.InvalidArgument, "seek on closed file")
	}
	return f.stream.Seek(offset, whence)
}

// Metadata reports the underlying node's current stat information.
func (f *File) Metadata() (Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.entry.EffectiveFS().Metadata(f.entry.EffectiveNode())
}

// Close releases the underlying stream and the File's hold on its Entry.
// Closing an already-closed File is a no-op, matching the RAII semantics
// spec.md section 3 describes for open files ("destroyed when the last
// descriptor referring to it closes").
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.entry.release()
	return f.stream.Close()
}

// Dup creates a second File sharing this one's stream and entry hold. Both
// descriptors must be closed independently; the entry's reference count
// reflects that.
func (f *File) Dup() *File {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entry.hold()
	return &File{stream: f.stream, flags: f.flags, entry: f.entry}
}
