// Package tmpfs is an in-memory read/write filesystem driver: the node
// tree lives entirely in Go heap memory, with no backing store, the way a
// Linux tmpfs mount has no disk behind it either. Path-cleaning and
// directory-listing follow the local-filesystem-manipulation technique
// iomeshage's local file serving uses, adapted from real on-disk files to
// pure in-memory nodes.
package tmpfs

import (
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

type node struct {
	fs   *FS
	kind vfs.Kind
	perm uint32

	mu       sync.Mutex
	data     []byte
	children map[string]*node
	target   string // symlink target, valid when kind == KindSymlink
}

func (n *node) FS() vfs.FileSystem { return n.fs }

// FS is one tmpfs instance: a single in-memory node tree.
type FS struct {
	root *node

	// renameMu serializes Rename across the whole instance. Renames can
	// touch two directories at once, and tmpfs has no natural total order
	// over *node to take fine-grained locks safely, so this trades a
	// little concurrency for a deadlock-free implementation.
	renameMu sync.Mutex
}

// New creates an empty tmpfs instance with a single root directory.
func New() *FS {
	fs := &FS{}
	fs.root = &node{fs: fs, kind: vfs.KindDir, perm: 0755, children: map[string]*node{}}
	return fs
}

func (f *FS) Root() vfs.Node { return f.root }

func asNode(n vfs.Node) *node { return n.(*node) }

func (f *FS) Lookup(dir vfs.Node, name string) (vfs.Node, error) {
	d := asNode(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.kind != vfs.KindDir {
		return nil, kernerr.New(kernerr.NotDirectory, "lookup on non-directory")
	}
	c, ok := d.children[name]
	if !ok {
		return nil, kernerr.New(kernerr.NotFound, "no such entry: %v", name)
	}
	return c, nil
}

func (f *FS) Readdir(dir vfs.Node) ([]vfs.DirEntry, error) {
	d := asNode(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.kind != vfs.KindDir {
		return nil, kernerr.New(kernerr.NotDirectory, "readdir on non-directory")
	}

	res := make([]vfs.DirEntry, 0, len(d.children))
	for name, c := range d.children {
		res = append(res, vfs.DirEntry{Name: name, Kind: c.kind})
	}
	return res, nil
}

func (f *FS) Create(dir vfs.Node, name string, kind vfs.Kind, perm uint32) (vfs.Node, error) {
	d := asNode(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.kind != vfs.KindDir {
		return nil, kernerr.New(kernerr.NotDirectory, "create under non-directory")
	}
	if _, ok := d.children[name]; ok {
		return nil, kernerr.New(kernerr.AlreadyExists, "entry already exists: %v", name)
	}

	c := &node{fs: f, kind: kind, perm: perm}
	if kind == vfs.KindDir {
		c.children = map[string]*node{}
	}
	d.children[name] = c
	return c, nil
}

func (f *FS) Remove(dir vfs.Node, name string) error {
	d := asNode(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.kind != vfs.KindDir {
		return kernerr.New(kernerr.NotDirectory, "remove under non-directory")
	}
	c, ok := d.children[name]
	if !ok {
		return kernerr.New(kernerr.NotFound, "no such entry: %v", name)
	}
	if c.kind == vfs.KindDir && len(c.children) > 0 {
		return kernerr.New(kernerr.InvalidArgument, "directory not empty: %v", name)
	}
	delete(d.children, name)
	return nil
}

func (f *FS) Rename(oldDir vfs.Node, oldName string, newDir vfs.Node, newName string) error {
	f.renameMu.Lock()
	defer f.renameMu.Unlock()

	od, nd := asNode(oldDir), asNode(newDir)

	if od.kind != vfs.KindDir || nd.kind != vfs.KindDir {
		return kernerr.New(kernerr.NotDirectory, "rename requires directory endpoints")
	}
	c, ok := od.children[oldName]
	if !ok {
		return kernerr.New(kernerr.NotFound, "no such entry: %v", oldName)
	}
	if _, ok := nd.children[newName]; ok {
		return kernerr.New(kernerr.AlreadyExists, "entry already exists: %v", newName)
	}

	delete(od.children, oldName)
	nd.children[newName] = c
	return nil
}

func (f *FS) Open(n vfs.Node, flags vfs.OpenFlags) (vfs.Stream, error) {
	nd := asNode(n)

	nd.mu.Lock()
	if nd.kind == vfs.KindDir {
		nd.mu.Unlock()
		return nil, kernerr.New(kernerr.IsDirectory, "cannot open a directory as a stream")
	}
	if flags.Truncate {
		nd.data = nil
	}
	nd.mu.Unlock()

	pos := int64(0)
	if flags.Append {
		nd.mu.Lock()
		pos = int64(len(nd.data))
		nd.mu.Unlock()
	}

	return &fileStream{n: nd, pos: pos, flags: flags}, nil
}

func (f *FS) Metadata(n vfs.Node) (vfs.Metadata, error) {
	nd := asNode(n)
	nd.mu.Lock()
	defer nd.mu.Unlock()

	return vfs.Metadata{Kind: nd.kind, Size: int64(len(nd.data)), Perm: nd.perm}, nil
}

func (f *FS) ReadOnly() bool { return false }

// ReadLink implements vfs.SymlinkFS.
func (f *FS) ReadLink(n vfs.Node) (string, error) {
	nd := asNode(n)
	nd.mu.Lock()
	defer nd.mu.Unlock()

	if nd.kind != vfs.KindSymlink {
		return "", kernerr.New(kernerr.InvalidArgument, "not a symlink")
	}
	return nd.target, nil
}

// Symlink creates a symlink node under dir pointing at target. Not part of
// FileSystemOperations (the spec's driver contract has no dedicated
// symlink-creation verb beyond Create with a kind hint), so callers that
// want a tmpfs symlink use this directly.
func (f *FS) Symlink(dir vfs.Node, name, target string) (vfs.Node, error) {
	n, err := f.Create(dir, name, vfs.KindSymlink, 0777)
	if err != nil {
		return nil, err
	}
	nd := asNode(n)
	nd.mu.Lock()
	nd.target = target
	nd.mu.Unlock()
	return n, nil
}
