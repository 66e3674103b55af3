package vfs

import (
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// MountFlags controls a mount's behavior.
type MountFlags struct {
	ReadOnly bool
	Remount  bool
}

// Mount is one mount-tree node: the filesystem instance mounted at a
// resolved absolute path, and the entry it covers (replaces, for
// path-walks that pass through path).
type Mount struct {
	Path    string
	FS      FileSystem
	Flags   MountFlags
	covered *Entry // the directory entry this mount hides while active
}

// Namespace is a per-task (shareable) mount tree: one root mount plus a set
// of mounts keyed by path, matching spec.md section 3's "VFS namespace"
// data model entry.
type Namespace struct {
	mu     sync.Mutex
	root   *Entry
	mounts map[string]*Mount
}

// NewNamespace creates a namespace whose root is rootFS's root node.
func NewNamespace(rootFS FileSystem) *Namespace {
	root := newEntry(nil, "", rootFS.Root(), rootFS)
	ns := &Namespace{
		root:   root,
		mounts: map[string]*Mount{},
	}
	ns.mounts["/"] = &Mount{Path: "/", FS: rootFS}
	return ns
}

// Root returns the namespace's root entry.
func (ns *Namespace) Root() *Entry { return ns.root }

// Mount establishes fs at path, which must resolve to an existing
// directory that is not already a mount point (unless flags.Remount is
// set, in which case it must be one).
func (ns *Namespace) Mount(path string, fs FileSystem, flags MountFlags) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	dir, err := ns.walkLocked(ns.root, path)
	if err != nil {
		return err
	}
	eff, effFS := ns.effectiveNode(dir), ns.effectiveFS(dir)
	if md, err := effFS.Metadata(eff); err != nil {
		return err
	} else if md.Kind != KindDir {
		return kernerr.New(kernerr.NotDirectory, "mount target %q is not a directory", path)
	}

	_, isMount := ns.mounts[path]
	if flags.Remount && !isMount {
		return kernerr.New(kernerr.NotFound, "remount target %q is not a mount point", path)
	}
	if !flags.Remount && isMount {
		return kernerr.New(kernerr.AlreadyExists, "mount point %q already in use", path)
	}

	m := &Mount{Path: path, FS: fs, Flags: flags, covered: dir}
	ns.mounts[path] = m

	dir.mu.Lock()
	dir.mount = m
	dir.mu.Unlock()

	return nil
}

// Unmount removes the mount at path. Unless force is set, it fails with
// Busy while the covered entry is held or has any cached child entry: an
// open file below the mount, another mount below it, or any earlier walk
// below it keeps it busy. A task's cwd takes no hold, so a cwd at the
// mount point itself does not make the mount busy.
func (ns *Namespace) Unmount(path string, force bool) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	m, ok := ns.mounts[path]
	if !ok {
		return kernerr.New(kernerr.NotFound, "no mount at %q", path)
	}
	if path == "/" {
		return kernerr.New(kernerr.InvalidArgument, "cannot unmount namespace root")
	}

	if !force && m.covered != nil {
		m.covered.mu.Lock()
		busy := m.covered.refs > 0 || len(m.covered.children) > 0
		m.covered.mu.Unlock()
		if busy {
			return kernerr.New(kernerr.Busy, "mount %q has open references", path)
		}
	}

	if m.covered != nil {
		m.covered.mu.Lock()
		m.covered.mount = nil
		m.covered.mu.Unlock()
	}

	delete(ns.mounts, path)
	return nil
}

// mountAt returns the mount registered exactly at path, if any.
func (ns *Namespace) mountAt(path string) (*Mount, bool) {
	m, ok := ns.mounts[path]
	return m, ok
}

// BindMount mounts a thin view of srcEntry's node at destPath. Cross-
// namespace binds are permitted: srcEntry may belong to a different
// Namespace and the two share the underlying node identity.
func (ns *Namespace) BindMount(srcEntry *Entry, destPath string, flags MountFlags) error {
	bound := &bindFS{target: srcEntry.Node(), readOnly: flags.ReadOnly}
	return ns.Mount(destPath, bound, flags)
}

// OverlayMount mounts an overlay filesystem composing lookups upper-first
// then each lower layer in order, with copy-up semantics on first write.
func (ns *Namespace) OverlayMount(destPath string, lowerFirst []FileSystem, upper FileSystem) error {
	ov := newOverlayFS(lowerFirst, upper)
	return ns.Mount(destPath, ov, MountFlags{})
}
