package transport

import (
	"github.com/pion/webrtc/v4"
)

// newPeerConnection creates a PeerConnection using the given STUN/TURN URLs.
// An empty list restricts ICE to host candidates, which is enough on a LAN.
func newPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: iceServers},
		}
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated, ordered, reliable DataChannel.
// Negotiated mode (ID 0) lets both sides create the channel independently
// without relying on OnDataChannel. Ordering matters here: the pull protocol
// is strict request/response and the receiver checks every reply index.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("pullpipe", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
