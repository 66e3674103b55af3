// Package device is the kernel's device registry: a name-keyed collection
// of character and block devices that DevFS (internal/vfsdriver/devfs)
// synthesizes directory entries from.
package device

import (
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/klog"
)

// CharDevice is a byte-stream device: a console, a null device, a serial
// port in a real port.
type CharDevice interface {
	Name() string
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// BlockDevice is a sector-addressable device: RAM-backed storage standing
// in for a virtio-mmio block device in a real port.
type BlockDevice interface {
	Name() string
	SectorSize() int
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
}

// Kind classifies a registered device the way DevFS reports it.
type Kind int

const (
	KindChar Kind = iota
	KindBlock
)

// Registry is a name-keyed collection of devices. The zero value is not
// ready to use; call NewRegistry.
type Registry struct {
	mu sync.Mutex

	chars  map[string]CharDevice
	blocks map[string]BlockDevice
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		chars:  map[string]CharDevice{},
		blocks: map[string]BlockDevice{},
	}
}

// RegisterChar adds a character device under its own Name(). Fails if a
// device is already registered under that name.
func (r *Registry) RegisterChar(d CharDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := d.Name()
	if _, ok := r.chars[name]; ok {
		return kernerr.New(kernerr.AlreadyExists, "char device %q already registered", name)
	}
	r.chars[name] = d
	klog.Info("registered char device: %v", name)
	return nil
}

// RegisterBlock adds a block device under its own Name().
func (r *Registry) RegisterBlock(d BlockDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := d.Name()
	if _, ok := r.blocks[name]; ok {
		return kernerr.New(kernerr.AlreadyExists, "block device %q already registered", name)
	}
	r.blocks[name] = d
	klog.Info("registered block device: %v", name)
	return nil
}

// LookupChar returns the named character device.
func (r *Registry) LookupChar(name string) (CharDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.chars[name]
	if !ok {
		return nil, kernerr.New(kernerr.NotFound, "char device %q not registered", name)
	}
	return d, nil
}

// LookupBlock returns the named block device.
func (r *Registry) LookupBlock(name string) (BlockDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.blocks[name]
	if !ok {
		return nil, kernerr.New(kernerr.NotFound, "block device %q not registered", name)
	}
	return d, nil
}

// Names returns every registered device name paired with its Kind, for
// DevFS's directory listing.
func (r *Registry) Names() map[string]Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make(map[string]Kind, len(r.chars)+len(r.blocks))
	for name := range r.chars {
		res[name] = KindChar
	}
	for name := range r.blocks {
		res[name] = KindBlock
	}
	return res
}

// Unregister removes a device of either kind by name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chars[name]; ok {
		delete(r.chars, name)
		return nil
	}
	if _, ok := r.blocks[name]; ok {
		delete(r.blocks, name)
		return nil
	}
	return kernerr.New(kernerr.NotFound, "device %q not registered", name)
}
