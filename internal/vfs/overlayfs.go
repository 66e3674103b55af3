package vfs

import (
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// overlayFS composes lookups upper-first, then each lower layer from the
// one closest to upper down to the bottommost, mirroring how a stack of
// lowerdirs shadows each other in a conventional overlay filesystem. Its
// nodes identify a location by path from the overlay root rather than by
// a single underlying node, since a given overlay path may exist
// simultaneously in several layers; which layer backs an operation is
// resolved fresh each time, so a copy-up to upper is immediately visible
// to the next lookup without any separate cache invalidation step.
type overlayFS struct {
	lowers []FileSystem // caller's lowerFirst argument, unmodified
	upper  FileSystem   // nil means this overlay has no writable layer
}

func newOverlayFS(lowerFirst []FileSystem, upper FileSystem) *overlayFS {
	return &overlayFS{lowers: lowerFirst, upper: upper}
}

// layers returns the search order: upper, then lowers from highest
// priority (closest to upper) to lowest.
func (o *overlayFS) layers() []FileSystem {
	var ls []FileSystem
	if o.upper != nil {
		ls = append(ls, o.upper)
	}
	for i := len(o.lowers) - 1; i >= 0; i-- {
		ls = append(ls, o.lowers[i])
	}
	return ls
}

type overlayNode struct {
	ofs  *overlayFS
	path []string
}

func (n *overlayNode) FS() FileSystem { return n.ofs }

func (o *overlayFS) Root() Node { return &overlayNode{ofs: o} }

// resolve finds the first layer (in priority order) at which path fully
// resolves, returning that layer's FileSystem and Node.
func (o *overlayFS) resolve(path []string) (FileSystem, Node, error) {
	var lastErr error = kernerr.New(kernerr.NotFound, "path not present in any overlay layer")

	for _, fs := range o.layers() {
		n := fs.Root()
		ok := true
		for _, comp := range path {
			child, err := fs.Lookup(n, comp)
			if err != nil {
				lastErr = err
				ok = false
				break
			}
			n = child
		}
		if ok {
			return fs, n, nil
		}
	}
	return nil, nil, lastErr
}

func (o *overlayFS) asPath(n Node) []string {
	return n.(*overlayNode).path
}

func (o *overlayFS) Lookup(dir Node, name string) (Node, error) {
	childPath := append(append([]string{}, o.asPath(dir)...), name)
	if _, _, err := o.resolve(childPath); err != nil {
		return nil, err
	}
	return &overlayNode{ofs: o, path: childPath}, nil
}

func (o *overlayFS) Readdir(dir Node) ([]DirEntry, error) {
	path := o.asPath(dir)

	seen := map[string]DirEntry{}
	var order []string
	found := false

	for _, fs := range o.layers() {
		n := fs.Root()
		ok := true
		for _, comp := range path {
			child, err := fs.Lookup(n, comp)
			if err != nil {
				ok = false
				break
			}
			n = child
		}
		if !ok {
			continue
		}
		md, err := fs.Metadata(n)
		if err != nil || md.Kind != KindDir {
			continue
		}
		found = true

		entries, err := fs.Readdir(n)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if _, ok := seen[e.Name]; !ok {
				seen[e.Name] = e
				order = append(order, e.Name)
			}
		}
	}

	if !found {
		return nil, kernerr.New(kernerr.NotFound, "overlay directory not present in any layer")
	}

	res := make([]DirEntry, 0, len(order))
	for _, name := range order {
		res = append(res, seen[name])
	}
	return res, nil
}

// ensureUpperDir walks path within upper, creating any missing intermediate
// directories so a copy-up always has somewhere to land, mirroring the
// directory shape that already exists in a lower layer.
func (o *overlayFS) ensureUpperDir(path []string) (Node, error) {
	if o.upper == nil {
		return nil, kernerr.New(kernerr.ReadOnly, "overlay has no upper layer")
	}

	n := o.upper.Root()
	for _, comp := range path {
		child, err := o.upper.Lookup(n, comp)
		if err != nil {
			child, err = o.upper.Create(n, comp, KindDir, 0755)
			if err != nil {
				return nil, err
			}
		}
		n = child
	}
	return n, nil
}

func (o *overlayFS) Create(dir Node, name string, kind Kind, perm uint32) (Node, error) {
	if o.upper == nil {
		return nil, kernerr.New(kernerr.ReadOnly, "overlay has no upper layer")
	}

	upperDir, err := o.ensureUpperDir(o.asPath(dir))
	if err != nil {
		return nil, err
	}
	if _, err := o.upper.Create(upperDir, name, kind, perm); err != nil {
		return nil, err
	}

	return &overlayNode{ofs: o, path: append(append([]string{}, o.asPath(dir)...), name)}, nil
}

func (o *overlayFS) Remove(dir Node, name string) error {
	if o.upper == nil {
		return kernerr.New(kernerr.ReadOnly, "overlay has no upper layer")
	}

	upperDir, err := o.resolveExistingUpperDir(o.asPath(dir))
	if err != nil {
		return kernerr.New(kernerr.ReadOnly, "removing a lower-only entry is not supported by this overlay")
	}
	return o.upper.Remove(upperDir, name)
}

func (o *overlayFS) resolveExistingUpperDir(path []string) (Node, error) {
	if o.upper == nil {
		return nil, kernerr.New(kernerr.ReadOnly, "overlay has no upper layer")
	}
	n := o.upper.Root()
	for _, comp := range path {
		child, err := o.upper.Lookup(n, comp)
		if err != nil {
			return nil, err
		}
		n = child
	}
	return n, nil
}

func (o *overlayFS) Rename(oldDir Node, oldName string, newDir Node, newName string) error {
	if o.upper == nil {
		return kernerr.New(kernerr.ReadOnly, "overlay has no upper layer")
	}

	oldUpperDir, err := o.resolveExistingUpperDir(o.asPath(oldDir))
	if err != nil {
		return kernerr.New(kernerr.ReadOnly, "renaming a lower-only entry is not supported by this overlay")
	}
	newUpperDir, err := o.ensureUpperDir(o.asPath(newDir))
	if err != nil {
		return err
	}
	return o.upper.Rename(oldUpperDir, oldName, newUpperDir, newName)
}

// copyUp copies a lower file's content into a freshly created upper file at
// the same path, the overlay's write-amplification moment: every
// modification after this point resolves against upper instead.
func (o *overlayFS) copyUp(path []string, lowerFS FileSystem, lowerNode Node) (Node, error) {
	if o.upper == nil {
		return nil, kernerr.New(kernerr.ReadOnly, "overlay has no upper layer")
	}

	dirPath, name := path[:len(path)-1], path[len(path)-1]
	upperDir, err := o.ensureUpperDir(dirPath)
	if err != nil {
		return nil, err
	}

	md, err := lowerFS.Metadata(lowerNode)
	if err != nil {
		return nil, err
	}

	upperNode, err := o.upper.Create(upperDir, name, md.Kind, md.Perm)
	if err != nil {
		return nil, err
	}

	if md.Kind == KindFile {
		src, err := lowerFS.Open(lowerNode, OpenFlags{Read: true})
		if err != nil {
			return nil, err
		}
		defer src.Close()

		dst, err := o.upper.Open(upperNode, OpenFlags{Write: true, Truncate: true})
		if err != nil {
			return nil, err
		}
		defer dst.Close()

		buf := make([]byte, 4096)
		for {
			n, rerr := src.Read(buf)
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					return nil, werr
				}
			}
			if rerr != nil {
				break
			}
		}
	}

	return upperNode, nil
}

func (o *overlayFS) Open(n Node, flags OpenFlags) (Stream, error) {
	path := o.asPath(n)
	fs, node, err := o.resolve(path)
	if err != nil {
		return nil, err
	}

	needsWrite := flags.Write || flags.Append || flags.Truncate || flags.Create
	if needsWrite && fs != o.upper {
		node, err = o.copyUp(path, fs, node)
		if err != nil {
			return nil, err
		}
		fs = o.upper
	}

	return fs.Open(node, flags)
}

func (o *overlayFS) Metadata(n Node) (Metadata, error) {
	fs, node, err := o.resolve(o.asPath(n))
	if err != nil {
		return Metadata{}, err
	}
	return fs.Metadata(node)
}

func (o *overlayFS) ReadOnly() bool { return o.upper == nil }
