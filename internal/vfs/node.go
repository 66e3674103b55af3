// Package vfs is the kernel's virtual filesystem: the name-cache/node
// split (VfsEntry vs VfsNode), the FileSystem driver contract, path-walk,
// and the mount tree.
package vfs

// Kind is a VfsNode's file type.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	KindCharDevice
	KindBlockDevice
	KindFifo
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindCharDevice:
		return "char-device"
	case KindBlockDevice:
		return "block-device"
	case KindFifo:
		return "fifo"
	default:
		return "unknown"
	}
}

// Metadata is the stat-like information a FileSystem reports for a Node.
type Metadata struct {
	Kind   Kind
	Size   int64
	Perm   uint32
	Device string // device registry name, set only for char/block nodes
}

// Node is the ground-truth file object a FileSystem driver hands back from
// Lookup/Create/Root. Its identity is stable for the node's lifetime within
// its owning filesystem instance, independent of any name that resolves to
// it — exactly the guarantee VfsEntry's cache relies on to be safely
// discardable and rebuilt.
type Node interface {
	// FS returns the filesystem instance that owns this node.
	FS() FileSystem
}
