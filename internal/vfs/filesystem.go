package vfs

import "io"

// DirEntry is one result of FileSystem.Readdir: a name paired with a kind
// hint so callers can avoid a Metadata round-trip for common cases.
type DirEntry struct {
	Name string
	Kind Kind
}

// OpenFlags describes the access mode an Open call requests.
type OpenFlags struct {
	Read      bool
	Write     bool
	Append    bool
	Create    bool
	Exclusive bool
	Truncate  bool
	CloseExec bool
}

// Stream is the per-open-file vtable a FileSystem's Open returns. Non-
// seekable streams (pipes, char devices) return NotSupported from Seek.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
	Seek(offset int64, whence int) (int64, error)
}

// FileSystemOperations is the contract every driver (tmpfs, cpiofs, devfs,
// and namespace-level bind/overlay composition) implements. Every method
// takes the node(s) it operates on explicitly rather than hanging state off
// a request context, matching the driver-owns-its-nodes shape of a 9P-style
// (Tattach/Twalk/Topen/Tcreate) or vfs2-style filesystem interface.
type FileSystemOperations interface {
	// Root returns this filesystem instance's root node.
	Root() Node

	// Lookup resolves one path component under dir. Returns a kernerr with
	// Kind NotFound if name does not exist in dir.
	Lookup(dir Node, name string) (Node, error)

	// Readdir lists dir's immediate children.
	Readdir(dir Node) ([]DirEntry, error)

	// Create makes a new node of the given kind under dir.
	Create(dir Node, name string, kind Kind, perm uint32) (Node, error)

	// Remove unlinks name from dir.
	Remove(dir Node, name string) error

	// Rename moves oldName under oldDir to newName under newDir.
	Rename(oldDir Node, oldName string, newDir Node, newName string) error

	// Open returns a Stream over n honoring flags.
	Open(n Node, flags OpenFlags) (Stream, error)

	// Metadata reports n's current stat information.
	Metadata(n Node) (Metadata, error)

	// ReadOnly reports whether mutating operations on this instance always
	// fail with ReadOnly.
	ReadOnly() bool
}

// FileSystem is the shorter name callers outside this package use. It is a
// type alias, so it is the same type as FileSystemOperations; the bind and
// overlay compositions (bindfs.go, overlayfs.go) implement every method.
type FileSystem = FileSystemOperations
