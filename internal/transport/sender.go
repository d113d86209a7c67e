package transport

import (
	"context"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pullpipe/internal/protocol"
	"github.com/1ureka/pullpipe/internal/util"
)

const (
	highWaterMark  = 1024 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 256 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 16          // outgoing packet channel capacity
)

// sender is a goroutine-based packet writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control.
type sender struct {
	inbox       chan *protocol.Packet
	drainSignal chan struct{}
	pending     atomic.Int32 // enqueued but not yet handed to the DataChannel
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled and
// calls fail when a DataChannel write errors.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}, fail func()) *sender {
	s := &sender{
		inbox:       make(chan *protocol.Packet, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal, fail)

	return s
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}, fail func()) {
	// Phase 1: wait for DC to be open.
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	// Phase 2: send packets with backpressure.
	for {
		select {
		case pkt := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			err := dc.Send(protocol.Encode(pkt))
			s.pending.Add(-1)
			if err != nil {
				util.LogError("failed to send %s packet (index=%d): %v", protocol.TypeName(pkt.Type), pkt.Index, err)
				fail()
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a packet for transmission. It blocks while the internal
// buffer is full.
func (s *sender) send(ctx, tctx context.Context, pkt *protocol.Packet) error {
	s.pending.Add(1)
	select {
	case s.inbox <- pkt:
		return nil
	case <-tctx.Done():
		s.pending.Add(-1)
		return ErrClosed
	case <-ctx.Done():
		s.pending.Add(-1)
		return ctx.Err()
	}
}
