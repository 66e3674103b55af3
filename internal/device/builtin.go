package device

import (
	"io"
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// MemDevice is a RAM-backed block device, standing in for a virtio-mmio
// disk in a real port. It backs DevFS block-device nodes in tests without
// requiring an actual disk image.
type MemDevice struct {
	name string
	size int

	mu   sync.Mutex
	data []byte
}

// NewMemDevice creates a zero-filled block device of the given name and
// size in bytes.
func NewMemDevice(name string, size int) *MemDevice {
	return &MemDevice{name: name, size: size, data: make([]byte, size)}
}

func (d *MemDevice) Name() string   { return d.name }
func (d *MemDevice) SectorSize() int { return 512 }
func (d *MemDevice) Size() int64    { return int64(d.size) }

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if off < 0 || off >= int64(d.size) {
		return 0, kernerr.New(kernerr.InvalidArgument, "read past end of device %q", d.name)
	}
	n := copy(p, d.data[off:])
	return n, nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if off < 0 || off >= int64(d.size) {
		return 0, kernerr.New(kernerr.InvalidArgument, "write past end of device %q", d.name)
	}
	n := copy(d.data[off:], p)
	return n, nil
}

// NullDevice discards writes and returns EOF on read, the character-device
// equivalent of /dev/null.
type NullDevice struct{}

func (NullDevice) Name() string            { return "null" }
func (NullDevice) Read(p []byte) (int, error) { return 0, io.EOF }
func (NullDevice) Write(p []byte) (int, error) { return len(p), nil }

// ConsoleDevice is an in-memory stand-in for the UART the device tree
// would otherwise point the kernel at (spec.md section 6). Writes append
// to an internal buffer a test can inspect; reads are not yet wired to any
// input source.
type ConsoleDevice struct {
	mu  sync.Mutex
	buf []byte
}

// NewConsoleDevice creates an empty console device.
func NewConsoleDevice() *ConsoleDevice { return &ConsoleDevice{} }

func (c *ConsoleDevice) Name() string { return "console" }

func (c *ConsoleDevice) Read(p []byte) (int, error) {
	return 0, kernerr.New(kernerr.NotSupported, "console has no input source")
}

func (c *ConsoleDevice) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// Buffered returns everything written to the console so far.
func (c *ConsoleDevice) Buffered() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}
