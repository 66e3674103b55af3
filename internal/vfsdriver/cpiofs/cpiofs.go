// Package cpiofs implements a read-only FileSystemOperations driver over a
// CPIO "newc" archive, the format an initramfs image ships in. The whole
// archive is decoded once, at New, into an in-memory node tree; there is no
// on-demand block I/O because the simulator has no real disk underneath it.
package cpiofs

import (
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

const (
	magic      = "070701"
	headerSize = 110
	trailer    = "TRAILER!!!"
)

// modeFmt bits, from cpio's on-disk st_mode encoding (POSIX file type field).
const (
	modeFmtMask = 0170000
	modeFmtDir  = 0040000
	modeFmtReg  = 0100000
	modeFmtLnk  = 0120000
)

type node struct {
	kind     vfs.Kind
	perm     uint32
	data     []byte
	target   string // symlink target
	children map[string]*node
}

// FS is the decoded archive: a fixed, read-only node tree.
type FS struct {
	root *node
}

// New decodes a CPIO newc archive read from r into a read-only filesystem.
func New(r io.Reader) (*FS, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.Fault, err, "reading cpio archive")
	}

	root := &node{kind: vfs.KindDir, perm: 0755, children: map[string]*node{}}
	off := 0
	for {
		if off+headerSize > len(raw) {
			return nil, kernerr.New(kernerr.InvalidArgument, "cpio archive truncated at offset %d", off)
		}
		hdr := raw[off : off+headerSize]
		if string(hdr[:6]) != magic {
			return nil, kernerr.New(kernerr.InvalidArgument, "cpio entry at offset %d has bad magic %q", off, hdr[:6])
		}

		field := func(i int) (uint32, error) {
			s := string(hdr[6+i*8 : 6+i*8+8])
			v, err := strconv.ParseUint(s, 16, 32)
			if err != nil {
				return 0, kernerr.Wrap(kernerr.InvalidArgument, err, "cpio header field %q", s)
			}
			return uint32(v), nil
		}

		mode, err := field(1)
		if err != nil {
			return nil, err
		}
		filesize, err := field(6)
		if err != nil {
			return nil, err
		}
		namesize, err := field(11)
		if err != nil {
			return nil, err
		}

		nameStart := off + headerSize
		nameEnd := nameStart + int(namesize)
		if nameEnd > len(raw) {
			return nil, kernerr.New(kernerr.InvalidArgument, "cpio entry name runs past end of archive")
		}
		name := strings.TrimRight(string(raw[nameStart:nameEnd-1]), "\x00")

		dataStart := align4(nameEnd)
		dataEnd := dataStart + int(filesize)
		if dataEnd > len(raw) {
			return nil, kernerr.New(kernerr.InvalidArgument, "cpio entry %q data runs past end of archive", name)
		}
		data := raw[dataStart:dataEnd]
		off = align4(dataEnd)

		if name == trailer {
			break
		}

		if err := insert(root, name, mode, data); err != nil {
			return nil, err
		}
	}

	return &FS{root: root}, nil
}

func align4(n int) int {
	if r := n % 4; r != 0 {
		return n + (4 - r)
	}
	return n
}

func insert(root *node, name string, mode uint32, data []byte) error {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || name == "." {
		return nil
	}
	parts := strings.Split(name, "/")

	cur := root
	for _, p := range parts[:len(parts)-1] {
		child, ok := cur.children[p]
		if !ok {
			child = &node{kind: vfs.KindDir, perm: 0755, children: map[string]*node{}}
			cur.children[p] = child
		}
		cur = child
	}

	leaf := parts[len(parts)-1]
	perm := mode & 0777

	switch mode & modeFmtMask {
	case modeFmtDir:
		cur.children[leaf] = &node{kind: vfs.KindDir, perm: perm, children: map[string]*node{}}
	case modeFmtLnk:
		cur.children[leaf] = &node{kind: vfs.KindSymlink, perm: perm, target: string(data)}
	case modeFmtReg:
		cur.children[leaf] = &node{kind: vfs.KindFile, perm: perm, data: data}
	default:
		return kernerr.New(kernerr.NotSupported, "cpio entry %q has unsupported mode %o", name, mode)
	}
	return nil
}

func asNode(n vfs.Node) (*node, error) {
	cn, ok := n.(*cpioNode)
	if !ok {
		return nil, kernerr.New(kernerr.InvalidArgument, "node not from cpiofs")
	}
	return cn.n, nil
}

// cpioNode is the vfs.Node handle exposed for entries in the decoded tree.
type cpioNode struct {
	fs *FS
	n  *node
}

func (c *cpioNode) FS() vfs.FileSystem { return c.fs }

// Root returns the archive's root directory node.
func (f *FS) Root() vfs.Node { return &cpioNode{fs: f, n: f.root} }

func (f *FS) Lookup(dir vfs.Node, name string) (vfs.Node, error) {
	d, err := asNode(dir)
	if err != nil {
		return nil, err
	}
	if d.kind != vfs.KindDir {
		return nil, kernerr.New(kernerr.NotDirectory, "lookup on non-directory")
	}
	c, ok := d.children[name]
	if !ok {
		return nil, kernerr.New(kernerr.NotFound, "%q not found", name)
	}
	return &cpioNode{fs: f, n: c}, nil
}

func (f *FS) Readdir(dir vfs.Node) ([]vfs.DirEntry, error) {
	d, err := asNode(dir)
	if err != nil {
		return nil, err
	}
	if d.kind != vfs.KindDir {
		return nil, kernerr.New(kernerr.NotDirectory, "readdir on non-directory")
	}
	entries := make([]vfs.DirEntry, 0, len(d.children))
	for name, c := range d.children {
		entries = append(entries, vfs.DirEntry{Name: name, Kind: c.kind})
	}
	return entries, nil
}

func (f *FS) Create(dir vfs.Node, name string, kind vfs.Kind, perm uint32) (vfs.Node, error) {
	return nil, kernerr.New(kernerr.ReadOnly, "cpiofs is read-only")
}

func (f *FS) Remove(dir vfs.Node, name string) error {
	return kernerr.New(kernerr.ReadOnly, "cpiofs is read-only")
}

func (f *FS) Rename(oldDir vfs.Node, oldName string, newDir vfs.Node, newName string) error {
	return kernerr.New(kernerr.ReadOnly, "cpiofs is read-only")
}

func (f *FS) Open(n vfs.Node, flags vfs.OpenFlags) (vfs.Stream, error) {
	cn, err := asNode(n)
	if err != nil {
		return nil, err
	}
	if flags.Write || flags.Append || flags.Create || flags.Truncate {
		return nil, kernerr.New(kernerr.ReadOnly, "cpiofs is read-only")
	}
	if cn.kind != vfs.KindFile {
		return nil, kernerr.New(kernerr.InvalidArgument, "open non-regular cpio node")
	}
	return newReadStream(cn.data), nil
}

func (f *FS) Metadata(n vfs.Node) (vfs.Metadata, error) {
	cn, err := asNode(n)
	if err != nil {
		return vfs.Metadata{}, err
	}
	return vfs.Metadata{Kind: cn.kind, Size: int64(len(cn.data)), Perm: cn.perm}, nil
}

func (f *FS) ReadOnly() bool { return true }

// ReadLink implements vfs.SymlinkFS.
func (f *FS) ReadLink(n vfs.Node) (string, error) {
	cn, err := asNode(n)
	if err != nil {
		return "", err
	}
	if cn.kind != vfs.KindSymlink {
		return "", kernerr.New(kernerr.InvalidArgument, "not a symlink")
	}
	return cn.target, nil
}

