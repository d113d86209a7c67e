package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pullpipe/internal/protocol"
	"github.com/1ureka/pullpipe/internal/util"
)

const (
	recvBufferSize = 16                    // inbound packets queued ahead of Recv
	drainTimeout   = 2 * time.Second       // how long Close waits for queued packets
	drainPoll      = 10 * time.Millisecond // drain check interval
)

// Transport wraps a single PeerConnection + DataChannel pair. It exposes
// the signaling steps (CreateOffer / CreateAnswer / …) used while the
// WebSocket is still up, and implements Conn once the DataChannel is open.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded but does not
// drive open/close decisions.
type Transport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}
	inbox      chan *protocol.Packet
	peer       string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

var _ Conn = (*Transport)(nil)

// NewTransport creates a Transport backed by a new PeerConnection and a
// pre-negotiated DataChannel. peer labels the remote side in logs (usually
// the signaling connection's address).
//
// The Transport is alive as long as the DataChannel is open and ctx has not
// been cancelled.
func NewTransport(ctx context.Context, peer string, iceServers []string) (*Transport, error) {
	pc, err := newPeerConnection(iceServers)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		inbox:      make(chan *protocol.Packet, recvBufferSize),
		peer:       peer,
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	// DC open gate.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(t.openSignal) })
	})

	// DC close → cancel transport context.
	dc.OnClose(func() {
		util.LogDebug("DataChannel to %s closed", peer)
		tCancel()
	})

	// Inbound messages are queued for Recv. Blocking here pushes back on
	// the SCTP association, which is what we want for a slow reader.
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		pkt, err := protocol.Decode(msg.Data)
		if err != nil {
			util.LogWarning("dropping malformed packet from %s: %v", peer, err)
			return
		}
		select {
		case t.inbox <- pkt:
		case <-tCtx.Done():
		}
	})

	// Record PC state; a failed or closed PC also ends the transport.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection to %s: %s", peer, state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			tCancel()
		}
	})

	// Start the sender goroutine.
	t.sender = newSender(tCtx, dc, t.openSignal, tCancel)

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open and
// the Transport is ready to send and receive.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the Transport is shut down
// (DataChannel closed or parent context cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close gives queued packets (typically the completion handshake) a short
// time to leave, then shuts down the DataChannel and PeerConnection.
func (t *Transport) Close() error {
	t.drain()
	t.cancel()
	return errors.Join(t.dc.Close(), t.pc.Close())
}

// drain waits until the sender has nothing queued and the DataChannel
// buffer is empty, the transport dies, or drainTimeout elapses.
func (t *Transport) drain() {
	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(drainPoll)
	defer tick.Stop()

	for t.sender.pending.Load() > 0 || t.dc.BufferedAmount() > 0 {
		select {
		case <-tick.C:
		case <-deadline.C:
			return
		case <-t.ctx.Done():
			return
		}
	}
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

func (t *Transport) RemoteAddr() string {
	return "webrtc:" + t.peer
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send enqueues pkt for the sender goroutine.
func (t *Transport) Send(ctx context.Context, pkt *protocol.Packet) error {
	return t.sender.send(ctx, t.ctx, pkt)
}

// Recv returns the next inbound packet. Packets already queued are still
// delivered after the DataChannel closes.
func (t *Transport) Recv(ctx context.Context) (*protocol.Packet, error) {
	select {
	case pkt := <-t.inbox:
		return pkt, nil
	default:
	}

	select {
	case pkt := <-t.inbox:
		return pkt, nil
	case <-t.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
