package tmpfs

import (
	"io"
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

// fileStream is one open handle's view onto a regular file's node. Several
// concurrent fileStreams may share the same node; each tracks its own
// position, while reads/writes to the node's byte slice are serialized by
// the node's own mutex (spec.md section 4.2.4: handle serializes itself,
// driver serializes across handles).
type fileStream struct {
	n     *node
	flags vfs.OpenFlags

	mu  sync.Mutex
	pos int64
}

func (s *fileStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.n.mu.Lock()
	defer s.n.mu.Unlock()

	if s.pos >= int64(len(s.n.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.n.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *fileStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.n.mu.Lock()
	defer s.n.mu.Unlock()

	end := s.pos + int64(len(p))
	if end > int64(len(s.n.data)) {
		grown := make([]byte, end)
		copy(grown, s.n.data)
		s.n.data = grown
	}
	copy(s.n.data[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *fileStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.n.mu.Lock()
	size := int64(len(s.n.data))
	s.n.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = size + offset
	default:
		return 0, kernerr.New(kernerr.InvalidArgument, "invalid whence: %v", whence)
	}
	if newPos < 0 {
		return 0, kernerr.New(kernerr.InvalidArgument, "negative seek result")
	}

	s.pos = newPos
	return s.pos, nil
}

func (s *fileStream) Close() error { return nil }
