package vfs

import (
	"path"
	"strings"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// maxSymlinkChain bounds symlink resolution during a single walk, per
// spec.md section 4.2.2.
const maxSymlinkChain = 40

// SymlinkFS is implemented by drivers that support symlink nodes; Walk
// type-asserts for it when it needs to resolve one in non-terminal
// position.
type SymlinkFS interface {
	ReadLink(n Node) (string, error)
}

// Walk resolves path against start (the task's cwd entry for a relative
// path, ignored for an absolute one) within ns, returning the terminal
// entry.
func Walk(ns *Namespace, start *Entry, p string) (*Entry, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.walkLocked(start, p)
}

func (ns *Namespace) walkLocked(start *Entry, p string) (*Entry, error) {
	return ns.walkChain(start, p, 0)
}

// walkChain is walkLocked's implementation, threading the symlink-hop
// count through each recursive resolution rather than resetting it per
// call — a fresh chain variable per invocation would let each hop "spend"
// its own budget of maxSymlinkChain, defeating the cap entirely.
func (ns *Namespace) walkChain(start *Entry, p string, chain int) (*Entry, error) {
	trailingSlash := strings.HasSuffix(p, "/") && p != "/"

	var cur *Entry
	var curAbs string
	if strings.HasPrefix(p, "/") {
		cur, curAbs = ns.root, "/"
	} else {
		cur, curAbs = start, entryAbsPath(ns, start)
	}

	comps := strings.Split(p, "/")

	for i := 0; i < len(comps); i++ {
		name := comps[i]
		last := i == len(comps)-1

		switch name {
		case "", ".":
			continue
		case "..":
			cur, curAbs = ns.ascend(cur, curAbs)
			continue
		}

		eff, effFS := ns.effectiveNode(cur), ns.effectiveFS(cur)
		md, err := effFS.Metadata(eff)
		if err != nil {
			return nil, err
		}
		if md.Kind != KindDir {
			return nil, kernerr.New(kernerr.NotDirectory, "%q is not a directory", curAbs)
		}

		child, childAbs, err := ns.descend(cur, eff, effFS, curAbs, name)
		if err != nil {
			return nil, err
		}

		// Resolve a symlink encountered before the terminal component.
		if !last {
			cEff, cFS := ns.effectiveNode(child), ns.effectiveFS(child)
			cmd, err := cFS.Metadata(cEff)
			if err != nil {
				return nil, err
			}
			if cmd.Kind == KindSymlink {
				chain++
				if chain > maxSymlinkChain {
					return nil, kernerr.New(kernerr.LoopDetected, "symlink chain exceeds %d", maxSymlinkChain)
				}
				sfs, ok := cFS.(SymlinkFS)
				if !ok {
					return nil, kernerr.New(kernerr.InvalidArgument, "%q is a symlink but driver cannot read it", childAbs)
				}
				target, err := sfs.ReadLink(cEff)
				if err != nil {
					return nil, err
				}
				rest := strings.Join(comps[i+1:], "/")
				var resolved string
				if strings.HasPrefix(target, "/") {
					resolved = target
				} else {
					resolved = path.Join(path.Dir(curAbs+"/x"), target)
				}
				if rest != "" {
					resolved = resolved + "/" + rest
				}
				return ns.walkChain(cur, resolved, chain)
			}
		}

		cur, curAbs = child, childAbs
	}

	if trailingSlash {
		eff, effFS := ns.effectiveNode(cur), ns.effectiveFS(cur)
		md, err := effFS.Metadata(eff)
		if err != nil {
			return nil, err
		}
		if md.Kind != KindDir {
			return nil, kernerr.New(kernerr.NotDirectory, "%q is not a directory", curAbs)
		}
	}

	return cur, nil
}

// ascend implements ".." including the mount-point escape rule: going up
// across a mount point returns to the mount's covered directory rather
// than the mounted filesystem's own (parentless) root.
func (ns *Namespace) ascend(cur *Entry, curAbs string) (*Entry, string) {
	if curAbs == "/" {
		return cur, curAbs
	}

	if m, ok := ns.mounts[curAbs]; ok && m.covered != nil {
		cur = m.covered
	}

	parent := cur.Parent()
	parentAbs := path.Dir(curAbs)
	return parent, parentAbs
}

// descend resolves one path component under dir (whose effective node and
// filesystem are eff/effFS), consulting and then populating the entry
// cache. New entries record effFS as their own fs, so a bind or overlay
// mount's composition governs lookups anywhere in its subtree, not just at
// the mount root.
func (ns *Namespace) descend(dir *Entry, eff Node, effFS FileSystem, dirAbs, name string) (*Entry, string, error) {
	dir.mu.Lock()
	child, ok := dir.childLocked(name)
	dir.mu.Unlock()

	if !ok {
		n, err := effFS.Lookup(eff, name)
		if err != nil {
			return nil, "", err
		}
		child = dir.spliceChild(name, n, effFS)
	}

	childAbs := path.Join(dirAbs, name)

	if m, ok := ns.mounts[childAbs]; ok {
		child.mu.Lock()
		child.mount = m
		child.mu.Unlock()
	}

	return child, childAbs, nil
}

// effectiveNode returns the node a descent through e should use: the
// mounted filesystem's root if e is covered by a mount, else e's own node.
func (ns *Namespace) effectiveNode(e *Entry) Node { return e.EffectiveNode() }

// effectiveFS returns the FileSystem a descent through e should use: the
// mounted filesystem if e is covered by a mount, else the fs that produced
// e (which already accounts for any bind/overlay composition above e).
func (ns *Namespace) effectiveFS(e *Entry) FileSystem { return e.EffectiveFS() }

// entryAbsPath reconstructs an entry's absolute path by walking parent
// links. Used only to seed a relative walk's starting path; callers that
// already track an absolute path avoid this.
func entryAbsPath(ns *Namespace, e *Entry) string {
	if e == ns.root {
		return "/"
	}
	var parts []string
	for e != nil && e != ns.root {
		parts = append([]string{e.name}, parts...)
		p := e.Parent()
		if p == e {
			break
		}
		e = p
	}
	return "/" + strings.Join(parts, "/")
}
