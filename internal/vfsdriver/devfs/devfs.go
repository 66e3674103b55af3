// Package devfs synthesizes a flat, read-only directory of nodes — one per
// entry in an internal/device.Registry — rather than storing anything of
// its own. Opening a node proxies reads and writes straight through to the
// registered device.
package devfs

import (
	"github.com/petitstrawberry/Scarlet/internal/device"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

// FS is a devfs instance bound to a single device registry. Its directory
// listing always reflects the registry's current contents; nothing is
// cached beyond what vfs.Entry itself caches.
type FS struct {
	registry *device.Registry
}

// New binds a devfs instance to reg.
func New(reg *device.Registry) *FS {
	return &FS{registry: reg}
}

type rootNode struct{ fs *FS }

func (n *rootNode) FS() vfs.FileSystem { return n.fs }

type deviceNode struct {
	fs   *FS
	name string
	kind device.Kind
}

func (n *deviceNode) FS() vfs.FileSystem { return n.fs }

// Root returns devfs's single synthesized directory.
func (f *FS) Root() vfs.Node { return &rootNode{fs: f} }

func (f *FS) Lookup(dir vfs.Node, name string) (vfs.Node, error) {
	if _, ok := dir.(*rootNode); !ok {
		return nil, kernerr.New(kernerr.NotDirectory, "devfs has no subdirectories")
	}
	kind, ok := f.registry.Names()[name]
	if !ok {
		return nil, kernerr.New(kernerr.NotFound, "no device named %q", name)
	}
	return &deviceNode{fs: f, name: name, kind: kind}, nil
}

func (f *FS) Readdir(dir vfs.Node) ([]vfs.DirEntry, error) {
	if _, ok := dir.(*rootNode); !ok {
		return nil, kernerr.New(kernerr.NotDirectory, "devfs has no subdirectories")
	}
	names := f.registry.Names()
	entries := make([]vfs.DirEntry, 0, len(names))
	for name, kind := range names {
		entries = append(entries, vfs.DirEntry{Name: name, Kind: vfsKind(kind)})
	}
	return entries, nil
}

func vfsKind(k device.Kind) vfs.Kind {
	if k == device.KindBlock {
		return vfs.KindBlockDevice
	}
	return vfs.KindCharDevice
}

func (f *FS) Create(dir vfs.Node, name string, kind vfs.Kind, perm uint32) (vfs.Node, error) {
	return nil, kernerr.New(kernerr.ReadOnly, "devfs entries are registered, not created")
}

func (f *FS) Remove(dir vfs.Node, name string) error {
	return kernerr.New(kernerr.ReadOnly, "devfs entries are registered, not removed")
}

func (f *FS) Rename(oldDir vfs.Node, oldName string, newDir vfs.Node, newName string) error {
	return kernerr.New(kernerr.ReadOnly, "devfs does not support rename")
}

func (f *FS) Open(n vfs.Node, flags vfs.OpenFlags) (vfs.Stream, error) {
	dn, ok := n.(*deviceNode)
	if !ok {
		return nil, kernerr.New(kernerr.InvalidArgument, "cannot open devfs directory")
	}
	switch dn.kind {
	case device.KindChar:
		cd, err := f.registry.LookupChar(dn.name)
		if err != nil {
			return nil, err
		}
		return newCharStream(cd), nil
	case device.KindBlock:
		bd, err := f.registry.LookupBlock(dn.name)
		if err != nil {
			return nil, err
		}
		return newBlockStream(bd), nil
	default:
		return nil, kernerr.New(kernerr.InvalidArgument, "unknown device kind")
	}
}

func (f *FS) Metadata(n vfs.Node) (vfs.Metadata, error) {
	switch v := n.(type) {
	case *rootNode:
		return vfs.Metadata{Kind: vfs.KindDir, Perm: 0755}, nil
	case *deviceNode:
		md := vfs.Metadata{Kind: vfsKind(v.kind), Perm: 0644, Device: v.name}
		if v.kind == device.KindBlock {
			if bd, err := f.registry.LookupBlock(v.name); err == nil {
				md.Size = bd.Size()
			}
		}
		return md, nil
	default:
		return vfs.Metadata{}, kernerr.New(kernerr.InvalidArgument, "node not from devfs")
	}
}

func (f *FS) ReadOnly() bool { return false }
