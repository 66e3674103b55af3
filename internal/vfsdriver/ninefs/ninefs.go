// Package ninefs is a placeholder remote-mount driver: it satisfies
// vfs.FileSystem so a namespace can name a 9P-style remote mount point,
// but every operation fails with UnsupportedProtocol since no network
// transport exists in this kernel simulator. It documents where a real
// 9P client (Tattach/Twalk/Topen/Tcreate, per github.com/Harvey-OS/ninep)
// would plug into the VFS driver contract if Scarlet ever grew a network
// stack; internal/vfs's own Root/Lookup/Open naming is already shaped to
// match 9P's message names for exactly this reason.
package ninefs

import (
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

// FS is an unattached 9P mount: Addr names the would-be server, never
// dialed.
type FS struct {
	Addr string
	root node
}

type node struct{ fs *FS }

func (n node) FS() vfs.FileSystem { return n.fs }

// New returns a FS that will refuse every operation. addr is retained only
// for diagnostics (e.g. log messages naming the unreachable server).
func New(addr string) *FS {
	fs := &FS{Addr: addr}
	fs.root = node{fs: fs}
	return fs
}

func unsupported(op string) error {
	return kernerr.New(kernerr.UnsupportedProtocol, "ninefs: %s: no 9P transport in this build", op)
}

func (fs *FS) Root() vfs.Node { return fs.root }

func (fs *FS) Lookup(vfs.Node, string) (vfs.Node, error) { return nil, unsupported("Twalk") }

func (fs *FS) Readdir(vfs.Node) ([]vfs.DirEntry, error) { return nil, unsupported("Treaddir") }

func (fs *FS) Create(vfs.Node, string, vfs.Kind, uint32) (vfs.Node, error) {
	return nil, unsupported("Tcreate")
}

func (fs *FS) Remove(vfs.Node, string) error { return unsupported("Tremove") }

func (fs *FS) Rename(vfs.Node, string, vfs.Node, string) error { return unsupported("Twstat") }

func (fs *FS) Open(vfs.Node, vfs.OpenFlags) (vfs.Stream, error) { return nil, unsupported("Topen") }

func (fs *FS) Metadata(vfs.Node) (vfs.Metadata, error) { return vfs.Metadata{}, unsupported("Tstat") }

func (fs *FS) ReadOnly() bool { return true }
