package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pullpipe/internal/transport"
)

// receiver reads signaling messages from the WebSocket and applies them to
// the Transport.
type receiver struct {
	tr     *transport.Transport
	conn   *websocket.Conn
	sender *sender

	// Candidates can overtake the description they belong to, so they are
	// held until a remote description is set.
	haveRemote bool
	queued     []webrtc.ICECandidateInit
}

// watch runs until the WebSocket is closed or a message cannot be applied.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read signaling message: %w", err)
		}

		switch msg.Type {
		case msgTypeOffer:
			if err := r.setRemote(webrtc.SDPTypeOffer, msg.SDP); err != nil {
				return err
			}
			if err := r.sender.sendAnswer(); err != nil {
				return fmt.Errorf("failed to send answer: %w", err)
			}

		case msgTypeAnswer:
			if err := r.setRemote(webrtc.SDPTypeAnswer, msg.SDP); err != nil {
				return err
			}

		case msgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			if !r.haveRemote {
				r.queued = append(r.queued, init)
				continue
			}
			if err := r.tr.AddICECandidate(init); err != nil {
				return fmt.Errorf("failed to add ICE candidate: %w", err)
			}

		default:
			return fmt.Errorf("unexpected signaling message %q", msg.Type)
		}
	}
}

func (r *receiver) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := r.tr.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("failed to set remote %s: %w", typ, err)
	}
	r.haveRemote = true
	for _, c := range r.queued {
		if err := r.tr.AddICECandidate(c); err != nil {
			return fmt.Errorf("failed to add ICE candidate: %w", err)
		}
	}
	r.queued = nil
	return nil
}
