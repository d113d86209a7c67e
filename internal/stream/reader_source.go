package stream

import (
	"context"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/1ureka/pullpipe/internal/util"
)

// DefaultChunkSize is the target payload size of packets cut by ReaderSource.
const DefaultChunkSize = 7 * 1024

// Monitor observes a ReaderSource. Methods are called synchronously from
// ReadPacket and Close and must not block.
type Monitor interface {
	BytesMoved(index uint64, n int)
	Failure(index uint64, err error)
	Closed(success bool)
}

// statsMonitor feeds the process-wide counters.
type statsMonitor struct{}

func (statsMonitor) BytesMoved(_ uint64, n int) { util.Stats.AddSent(n) }
func (statsMonitor) Failure(uint64, error)      {}
func (statsMonitor) Closed(bool)                {}

// ReaderSource serves an io.Reader as a PacketSource: packet i holds the
// next chunk of up to ChunkSize bytes. It is the producer half of a transfer
// and is what a sender exports to a remote receiver.
type ReaderSource struct {
	r         io.Reader
	closer    io.Closer
	chunkSize int
	monitor   Monitor
	gzip      bool
	pipe      *io.PipeReader // compressed view of r, when gzip is set

	mu      sync.Mutex
	next    uint64 // index expected by the next ReadPacket
	eof     bool
	closed  bool
	success bool
	done    chan struct{}
}

// SourceOption configures a ReaderSource.
type SourceOption func(*ReaderSource)

// WithChunkSize overrides DefaultChunkSize. Values < 1 are ignored.
func WithChunkSize(n int) SourceOption {
	return func(s *ReaderSource) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithMonitor replaces the default stats monitor.
func WithMonitor(m Monitor) SourceOption {
	return func(s *ReaderSource) { s.monitor = m }
}

// WithCompression serves a gzip stream of the reader's bytes instead of the
// bytes themselves. The receiver must be told through the OPEN flags.
func WithCompression() SourceOption {
	return func(s *ReaderSource) { s.gzip = true }
}

// NewReaderSource wraps r. If r is also an io.Closer it is closed by the
// completion handshake.
func NewReaderSource(r io.Reader, opts ...SourceOption) *ReaderSource {
	s := &ReaderSource{
		r:         r,
		chunkSize: DefaultChunkSize,
		monitor:   statsMonitor{},
		done:      make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gzip {
		s.pipe = compress(r)
		s.r = s.pipe
	}
	return s
}

// compress pumps r through a gzip writer. The goroutine ends when r is
// drained or the returned reader is closed.
func compress(r io.Reader) *io.PipeReader {
	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		_, err := io.Copy(zw, r)
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()
	return pr
}

// Compressed reports whether packets carry a gzip stream.
func (s *ReaderSource) Compressed() bool { return s.gzip }

// ReadPacket returns the next chunk. index must equal the number of packets
// already served; anything else is rejected with ErrIndexOutOfOrder without
// consuming data. After the reader is exhausted every further call returns
// io.EOF.
func (s *ReaderSource) ReadPacket(_ context.Context, index uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.eof {
		return nil, io.EOF
	}
	if index != s.next {
		err := errors.Wrapf(ErrIndexOutOfOrder, "got %d, want %d", index, s.next)
		s.monitor.Failure(index, err)
		return nil, err
	}

	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == io.EOF:
		s.eof = true
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		// short final chunk; the next call reports EOF
		s.eof = true
	case err != nil:
		s.monitor.Failure(index, err)
		return nil, errors.Wrapf(err, "read chunk %d", index)
	}

	s.next++
	s.monitor.BytesMoved(index, n)
	return buf[:n], nil
}

// Close records the receiver's verdict and closes the underlying reader.
// Only the first call has an effect.
func (s *ReaderSource) Close(_ context.Context, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.success = success
	close(s.done)
	s.monitor.Closed(success)

	if s.pipe != nil {
		s.pipe.Close()
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Done is closed once the completion handshake has been received.
func (s *ReaderSource) Done() <-chan struct{} {
	return s.done
}

// Succeeded reports the flag of the completion handshake.
func (s *ReaderSource) Succeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.success
}

// Served returns how many packets have been handed out.
func (s *ReaderSource) Served() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
