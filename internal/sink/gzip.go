package sink

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/1ureka/pullpipe/internal/stream"
)

// Decompressing wraps d so that the bytes written to its sinks are treated
// as one gzip stream and stored decompressed. A malformed stream fails the
// Write or Flush that exposes it.
func Decompressing(d Destination) Destination {
	return gunzipDestination{d}
}

type gunzipDestination struct {
	Destination
}

func (d gunzipDestination) Open() (stream.Sink, error) {
	out, err := d.Destination.Open()
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	s := &gunzipSink{out: out, pw: pw, done: make(chan struct{})}
	go s.inflate(pr)
	return s, nil
}

// gunzipSink feeds writes through a pipe to a goroutine that decompresses
// into out. out is only touched by that goroutine until it has exited.
type gunzipSink struct {
	out  stream.Sink
	pw   *io.PipeWriter
	done chan struct{}
	err  error // set by inflate before done is closed

	ended  bool
	closed bool
}

func (s *gunzipSink) inflate(pr *io.PipeReader) {
	defer close(s.done)

	zr, err := gzip.NewReader(pr)
	if err != nil {
		s.err = errors.Wrap(err, "gzip header")
		pr.CloseWithError(s.err)
		return
	}
	// Copy only returns once the writer side is closed or the input is bad.
	if _, err := io.Copy(s.out, zr); err != nil {
		s.err = errors.Wrap(err, "decompress")
		pr.CloseWithError(s.err)
	}
}

func (s *gunzipSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSinkClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	return s.pw.Write(p)
}

// wait ends the input and collects the result of inflate.
func (s *gunzipSink) wait(cause error) error {
	if !s.ended {
		s.ended = true
		s.pw.CloseWithError(cause)
		<-s.done
	}
	return s.err
}

func (s *gunzipSink) Flush() error {
	if s.closed {
		return ErrSinkClosed
	}
	if err := s.wait(nil); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *gunzipSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	// an unflushed stream is cut short; whatever was inflated stays in out
	_ = s.wait(io.ErrUnexpectedEOF)
	return s.out.Close()
}
