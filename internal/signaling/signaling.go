// Package signaling runs the WebSocket side of a transfer: the receiver's
// /ws endpoint and, when a sender asks for WebRTC, the SDP/ICE exchange
// that turns the WebSocket into a DataChannel.
package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pullpipe/internal/transport"
	"github.com/1ureka/pullpipe/internal/util"
)

// EstablishAsReceiver negotiates a DataChannel over ws from the receiving
// side, which sends the offer. ws is closed before returning either way.
func EstablishAsReceiver(ctx context.Context, ws *websocket.Conn, iceServers []string) (*transport.Transport, error) {
	return establish(ctx, ws, iceServers, true)
}

// EstablishAsSender negotiates a DataChannel over ws from the sending side,
// which waits for the offer and answers it. ws is closed before returning
// either way.
func EstablishAsSender(ctx context.Context, ws *websocket.Conn, iceServers []string) (*transport.Transport, error) {
	return establish(ctx, ws, iceServers, false)
}

// readyGrace bounds how long a side waits for its DataChannel after the
// signaling socket has gone away.
const readyGrace = 5 * time.Second

func establish(ctx context.Context, ws *websocket.Conn, iceServers []string, offer bool) (*transport.Transport, error) {
	defer ws.Close()
	peer := ws.RemoteAddr().String()

	tr, err := transport.NewTransport(ctx, peer, iceServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	s := &sender{tr: tr, conn: ws}
	r := &receiver{tr: tr, conn: ws, sender: s}

	tr.OnICECandidate(func(c *webrtc.ICECandidate) {
		// Best-effort: a lost candidate only narrows the ICE search.
		if err := s.sendCandidate(c); err != nil {
			util.LogDebug("failed to forward ICE candidate to %s: %v", peer, err)
		}
	})

	// watch exits when ws is closed by the deferred Close above.
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if offer {
		if err := s.sendOffer(); err != nil {
			tr.Close()
			return nil, fmt.Errorf("failed to send offer: %w", err)
		}
	}

	select {
	case <-tr.Ready():
		util.LogDebug("DataChannel with %s established, closing signaling socket", peer)
		return tr, nil

	case err := <-errCh:
		// The peer closes its socket as soon as its own side of the channel
		// opens, which may be slightly before ours does.
		grace := time.NewTimer(readyGrace)
		defer grace.Stop()
		select {
		case <-tr.Ready():
			return tr, nil
		case <-grace.C:
		case <-tr.Done():
		case <-ctx.Done():
		}
		tr.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)

	case <-tr.Done():
		tr.Close()
		return nil, fmt.Errorf("signaling failed: peer connection with %s closed", peer)

	case <-ctx.Done():
		tr.Close()
		return nil, ctx.Err()
	}
}
