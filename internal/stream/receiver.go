package stream

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/1ureka/pullpipe/internal/util"
)

// State is the lifecycle of one transfer. Completed and Failed are terminal.
type State uint8

const (
	Active State = iota
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateOf maps the error returned by Transfer to the terminal state.
func StateOf(err error) State {
	if err != nil {
		return Failed
	}
	return Completed
}

// Receiver pulls whole streams from packet sources into sinks. A single
// Receiver may run any number of transfers concurrently; each call owns its
// own counters, sink and source.
type Receiver struct {
	// Tag labels log lines; zero is fine.
	Tag util.Tag
}

// transfer holds the mutable state of one Transfer call. Only the goroutine
// running the pull loop touches it.
type transfer struct {
	tag       util.Tag
	nextIndex uint64
	bytes     int64
}

// Transfer opens dst, then requests packets 0, 1, 2, … from src and writes
// each one in full to the sink before asking for the next. It returns the
// number of bytes written once src reports end-of-stream.
//
// On every exit the sink, if opened, is closed. The completion handshake is
// sent with success=true only after the sink was flushed and closed cleanly;
// it is sent with success=false on sink failures and skipped entirely when
// the source itself failed. Any error returned is a *TransferError.
func (r *Receiver) Transfer(ctx context.Context, src PacketSource, dst Destination) (int64, error) {
	t := &transfer{tag: r.Tag}
	util.Stats.AddStarted()

	n, err := t.run(ctx, src, dst)
	if err != nil {
		util.Stats.AddFailed()
		t.tag.Warn("transfer failed", "bytes", n, "packets", t.nextIndex, "error", err)
		return n, err
	}
	util.Stats.AddCompleted()
	t.tag.Info("transfer completed", "bytes", n, "packets", t.nextIndex)
	return n, nil
}

func (t *transfer) run(ctx context.Context, src PacketSource, dst Destination) (int64, error) {
	sink, err := dst.Open()
	if err != nil {
		t.handshake(ctx, src, false)
		return 0, t.fail(SinkUnavailable, errors.Wrap(err, "open sink"))
	}

	for {
		payload, err := src.ReadPacket(ctx, t.nextIndex)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// The source is presumed gone: keep what arrived, do not call it again.
			if cerr := finish(sink); cerr != nil {
				t.tag.Warn("finalizing partial sink failed", "error", cerr)
			}
			return t.bytes, t.fail(SourceUnreachable, errors.Wrapf(err, "read packet %d", t.nextIndex))
		}

		if err := writeFull(sink, payload); err != nil {
			if cerr := sink.Close(); cerr != nil {
				t.tag.Warn("closing failed sink", "error", cerr)
			}
			t.handshake(ctx, src, false)
			return t.bytes, t.fail(SinkWriteFailed, errors.Wrapf(err, "write packet %d", t.nextIndex))
		}

		t.bytes += int64(len(payload))
		t.nextIndex++
		util.Stats.AddRecv(len(payload))
		t.tag.Debug("packet written", "index", t.nextIndex-1, "size", len(payload))
	}

	if err := finish(sink); err != nil {
		t.handshake(ctx, src, false)
		return t.bytes, t.fail(SinkWriteFailed, err)
	}

	// Everything is persisted; a lost handshake does not undo that.
	t.handshake(ctx, src, true)
	return t.bytes, nil
}

func (t *transfer) fail(kind Kind, err error) error {
	return &TransferError{Kind: kind, Bytes: t.bytes, Packets: t.nextIndex, Err: err}
}

func (t *transfer) handshake(ctx context.Context, src PacketSource, success bool) {
	if err := src.Close(ctx, success); err != nil {
		t.tag.Warn("completion handshake failed", "success", success, "error", err)
	}
}

// writeFull writes payload in one call; a short write is a failure at this
// packet boundary.
func writeFull(sink Sink, payload []byte) error {
	n, err := sink.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return io.ErrShortWrite
	}
	return nil
}

// finish flushes and closes the sink, closing it even if the flush failed.
func finish(sink Sink) error {
	if err := sink.Flush(); err != nil {
		_ = sink.Close()
		return errors.Wrap(err, "flush sink")
	}
	if err := sink.Close(); err != nil {
		return errors.Wrap(err, "close sink")
	}
	return nil
}
