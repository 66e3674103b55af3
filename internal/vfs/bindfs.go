package vfs

import "github.com/petitstrawberry/Scarlet/internal/kernerr"

// bindFS is a thin filesystem view that delegates every operation to the
// node it was bound to, optionally wrapping writes with ReadOnly. It backs
// Namespace.BindMount: "a thin filesystem view that delegates all
// operations to that node" (spec.md section 4.2.3).
type bindFS struct {
	target   Node
	readOnly bool
}

func (b *bindFS) Root() Node { return b.target }

func (b *bindFS) Lookup(dir Node, name string) (Node, error) {
	return dir.FS().Lookup(dir, name)
}

func (b *bindFS) Readdir(dir Node) ([]DirEntry, error) {
	return dir.FS().Readdir(dir)
}

func (b *bindFS) Create(dir Node, name string, kind Kind, perm uint32) (Node, error) {
	if b.readOnly {
		return nil, kernerr.New(kernerr.ReadOnly, "bind mount is read-only")
	}
	return dir.FS().Create(dir, name, kind, perm)
}

func (b *bindFS) Remove(dir Node, name string) error {
	if b.readOnly {
		return kernerr.New(kernerr.ReadOnly, "bind mount is read-only")
	}
	return dir.FS().Remove(dir, name)
}

func (b *bindFS) Rename(oldDir Node, oldName string, newDir Node, newName string) error {
	if b.readOnly {
		return kernerr.New(kernerr.ReadOnly, "bind mount is read-only")
	}
	return oldDir.FS().Rename(oldDir, oldName, newDir, newName)
}

func (b *bindFS) Open(n Node, flags OpenFlags) (Stream, error) {
	if b.readOnly && (flags.Write || flags.Append || flags.Truncate || flags.Create) {
		return nil, kernerr.New(kernerr.ReadOnly, "bind mount is read-only")
	}
	return n.FS().Open(n, flags)
}

func (b *bindFS) Metadata(n Node) (Metadata, error) {
	return n.FS().Metadata(n)
}

func (b *bindFS) ReadOnly() bool { return b.readOnly }
