package devfs

import (
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/device"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// charStream proxies a Stream's Read/Write straight onto a CharDevice;
// character devices have no concept of position, so Seek always fails.
type charStream struct {
	d device.CharDevice
}

func newCharStream(d device.CharDevice) *charStream { return &charStream{d: d} }

func (s *charStream) Read(p []byte) (int, error)  { return s.d.Read(p) }
func (s *charStream) Write(p []byte) (int, error) { return s.d.Write(p) }
func (s *charStream) Close() error                { return nil }
func (s *charStream) Seek(offset int64, whence int) (int64, error) {
	return 0, kernerr.New(kernerr.NotSupported, "character device is not seekable")
}

// blockStream adapts a BlockDevice's offset-addressed ReadAt/WriteAt to the
// sequential Stream interface, tracking a cursor the way a file descriptor
// over a regular file would.
type blockStream struct {
	mu  sync.Mutex
	d   device.BlockDevice
	pos int64
}

func newBlockStream(d device.BlockDevice) *blockStream { return &blockStream{d: d} }

func (s *blockStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.d.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *blockStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.d.WriteAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *blockStream) Close() error { return nil }

func (s *blockStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = s.pos
	case 2:
		base = s.d.Size()
	default:
		return 0, kernerr.New(kernerr.InvalidArgument, "bad whence %d", whence)
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, kernerr.New(kernerr.InvalidArgument, "negative seek position")
	}
	s.pos = newPos
	return s.pos, nil
}
