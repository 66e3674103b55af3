package vfs

import (
	"sync"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
)

// pipeCapacity bounds the in-kernel byte queue a Pipe holds, even though
// callers see what looks like an unbounded stream (spec.md section 3:
// "unbounded-from-the-caller-perspective bounded in-kernel byte queue").
const pipeCapacity = 65536

// Pipe is a unidirectional byte queue with two endpoints. Read and Write
// are exposed directly rather than through a Stream, since a pipe has no
// backing node or driver — NewPipeEnds wraps each side in a Stream that
// fails Seek with NotSupported, per spec.md section 4.2.4.
type Pipe struct {
	mu         sync.Mutex
	notEmpty   *sync.Cond
	notFull    *sync.Cond
	buf        []byte
	readClosed bool
	writeClosed bool
}

// NewPipe creates an empty pipe.
func NewPipe() *Pipe {
	p := &Pipe{}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// Read blocks until data is available or the write end is closed, in
// which case it returns (0, io.EOF)-equivalent via a nil error and n==0.
func (p *Pipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.buf) == 0 && !p.writeClosed {
		if p.readClosed {
			return 0, kernerr.New(kernerr.InvalidArgument, "read on closed pipe read end")
		}
		p.notEmpty.Wait()
	}

	if len(p.buf) == 0 {
		return 0, nil // write end closed, no more data: end of stream
	}

	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	p.notFull.Signal()
	return n, nil
}

// Write blocks until room is available. Writing to a pipe whose read end
// is closed fails with BrokenPipe (spec.md section 3).
func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readClosed {
		return 0, kernerr.New(kernerr.BrokenPipe, "write to pipe with closed read end")
	}

	total := 0
	for total < len(b) {
		for len(p.buf) >= pipeCapacity && !p.readClosed {
			p.notFull.Wait()
		}
		if p.readClosed {
			return total, kernerr.New(kernerr.BrokenPipe, "write to pipe with closed read end")
		}

		n := pipeCapacity - len(p.buf)
		if n > len(b)-total {
			n = len(b) - total
		}
		p.buf = append(p.buf, b[total:total+n]...)
		total += n
		p.notEmpty.Signal()
	}
	return total, nil
}

// CloseRead marks the read end closed, unblocking any writer.
func (p *Pipe) CloseRead() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readClosed = true
	p.notFull.Broadcast()
	return nil
}

// CloseWrite marks the write end closed, unblocking any reader so it can
// observe end-of-stream.
func (p *Pipe) CloseWrite() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeClosed = true
	p.notEmpty.Broadcast()
	return nil
}

type pipeReadStream struct{ p *Pipe }

func (s *pipeReadStream) Read(b []byte) (int, error)  { return s.p.Read(b) }
func (s *pipeReadStream) Write(b []byte) (int, error) {
	return 0, kernerr.New(kernerr.NotSupported, "pipe read end does not support write")
}
func (s *pipeReadStream) Seek(int64, int) (int64, error) {
	return 0, kernerr.New(kernerr.NotSupported, "pipe does not support seek")
}
func (s *pipeReadStream) Close() error { return s.p.CloseRead() }

type pipeWriteStream struct{ p *Pipe }

func (s *pipeWriteStream) Read(b []byte) (int, error) {
	return 0, kernerr.New(kernerr.NotSupported, "pipe write end does not support read")
}
func (s *pipeWriteStream) Write(b []byte) (int, error) { return s.p.Write(b) }
func (s *pipeWriteStream) Seek(int64, int) (int64, error) {
	return 0, kernerr.New(kernerr.NotSupported, "pipe does not support seek")
}
func (s *pipeWriteStream) Close() error { return s.p.CloseWrite() }

// NewPipeEnds returns the read and write Streams for a fresh pipe.
func NewPipeEnds() (Stream, Stream) {
	p := NewPipe()
	return &pipeReadStream{p}, &pipeWriteStream{p}
}
