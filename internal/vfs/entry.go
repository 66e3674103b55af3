package vfs

import "sync"

// Entry is a cached (parent, name) -> node binding: a VfsEntry. The spec
// this is drawn from describes parent and child back-references as weak so
// the cache is reclaimable by the garbage collector without ever leaking;
// Go's runtime has no cheap weak-pointer primitive available at this
// module's language version, so Entry instead tracks an explicit reference
// count and release prunes an unreferenced, childless entry from its
// parent — the same externally-visible guarantee (cache entries do not pin
// memory forever) reached by a different mechanism. See DESIGN.md.
type Entry struct {
	name string
	node Node

	// fs is the FileSystem whose Lookup produced this entry — the
	// "active" filesystem instance a bind or overlay mount composes, as
	// distinct from node.FS(), which reports the concrete driver that
	// literally owns the underlying object. Operations that continue a
	// walk below this entry go through fs, not node.FS(), so a bind or
	// overlay mount's composition (read-only wrapping, layer ordering)
	// applies to the whole subtree and not just the mount's root.
	fs FileSystem

	mu       sync.Mutex
	parent   *Entry
	children map[string]*Entry
	refs     int

	// mount, if non-nil, is the mount covering this entry: path-walk
	// descends into mount.FS.Root() instead of e.node when set.
	mount *Mount
}

func newEntry(parent *Entry, name string, node Node, fs FileSystem) *Entry {
	return &Entry{
		parent:   parent,
		name:     name,
		node:     node,
		fs:       fs,
		children: map[string]*Entry{},
	}
}

// Name returns the entry's name within its parent. The root entry's name
// is "".
func (e *Entry) Name() string { return e.name }

// Node returns the entry's resolved node, without accounting for a mount
// covering it. Most callers want EffectiveNode instead.
func (e *Entry) Node() Node { return e.node }

// EffectiveNode returns the node operations through e should use: the
// mounted filesystem's root if a mount covers e, else e's own node.
func (e *Entry) EffectiveNode() Node {
	e.mu.Lock()
	m, n := e.mount, e.node
	e.mu.Unlock()
	if m != nil {
		return m.FS.Root()
	}
	return n
}

// EffectiveFS returns the FileSystem operations through e should use: the
// mounted filesystem if a mount covers e, else the fs that produced e
// (already accounting for any bind/overlay composition above e).
func (e *Entry) EffectiveFS() FileSystem {
	e.mu.Lock()
	m, fs := e.mount, e.fs
	e.mu.Unlock()
	if m != nil {
		return m.FS
	}
	return fs
}

// Open opens e through its effective filesystem and wraps the result in a
// File, the entry-aware counterpart to calling FS().Open(Node(), ...)
// directly — which would bypass a bind or overlay mount's composition.
func (e *Entry) Open(flags OpenFlags) (*File, error) {
	s, err := e.EffectiveFS().Open(e.EffectiveNode(), flags)
	if err != nil {
		return nil, err
	}
	return OpenFile(e, s, flags), nil
}

// Parent returns the entry's parent, or itself if it is a namespace root
// (spec.md section 4.2.2: "the namespace root's parent is itself").
func (e *Entry) Parent() *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parent == nil {
		return e
	}
	return e.parent
}

// hold increments the entry's reference count. OpenFile and File.Dup take
// a hold and File.Close releases it; a task's cwd and a mount take none.
func (e *Entry) hold() {
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
}

// release decrements the reference count and, if it reaches zero and the
// entry has no cached children, detaches it from its parent so the cache
// can reclaim it.
func (e *Entry) release() {
	e.mu.Lock()
	e.refs--
	refs, children, parent, name := e.refs, len(e.children), e.parent, e.name
	e.mu.Unlock()

	if refs <= 0 && children == 0 && parent != nil {
		parent.forgetChild(name)
	}
}

func (e *Entry) forgetChild(name string) {
	e.mu.Lock()
	delete(e.children, name)
	e.mu.Unlock()
}

// childLocked looks up a cached child by name. Caller must hold e.mu.
func (e *Entry) childLocked(name string) (*Entry, bool) {
	c, ok := e.children[name]
	return c, ok
}

// spliceChild caches a newly-resolved child entry under name, returning
// the existing one if a concurrent walk already raced in a cached entry.
func (e *Entry) spliceChild(name string, node Node, fs FileSystem) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.children[name]; ok {
		return c
	}
	c := newEntry(e, name, node, fs)
	e.children[name] = c
	return c
}
