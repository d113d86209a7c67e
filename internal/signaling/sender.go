package signaling

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pullpipe/internal/transport"
)

// sender serializes outgoing signaling messages to the WebSocket.
type sender struct {
	tr   *transport.Transport
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *sender) sendOffer() error {
	offer, err := s.tr.CreateOffer()
	if err != nil {
		return err
	}
	if err := s.tr.SetLocalDescription(offer); err != nil {
		return err
	}
	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *sender) sendAnswer() error {
	answer, err := s.tr.CreateAnswer()
	if err != nil {
		return err
	}
	if err := s.tr.SetLocalDescription(answer); err != nil {
		return err
	}
	return s.send(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

// sendCandidate forwards a locally gathered ICE candidate. A nil candidate
// marks the end of gathering and is not sent.
func (s *sender) sendCandidate(c *webrtc.ICECandidate) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return err
	}
	return s.send(message{Type: msgTypeCandidate, Candidate: string(data)})
}
