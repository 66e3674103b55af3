package cpiofs

import (
	"io"
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// readStream is the Stream returned by Open: a read-only view over an
// archive member's decoded bytes.
type readStream struct {
	mu  sync.Mutex
	buf []byte
	pos int64
}

func newReadStream(buf []byte) *readStream {
	return &readStream{buf: buf}
}

func (s *readStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *readStream) Write(p []byte) (int, error) {
	return 0, kernerr.New(kernerr.ReadOnly, "cpiofs is read-only")
}

func (s *readStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = s.pos
	case 2:
		base = int64(len(s.buf))
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

func (s *readStream) Close() error { return nil }
