// Package transport carries protocol packets between a receiver and a remote
// packet source, either directly over the signaling WebSocket or over a
// WebRTC DataChannel negotiated through it.
package transport

import (
	"context"
	"errors"

	"github.com/1ureka/pullpipe/internal/protocol"
)

// ErrClosed is returned by Send and Recv once the connection is shut down.
var ErrClosed = errors.New("transport closed")

// Conn is an ordered, reliable, message-oriented packet pipe to one peer.
// One goroutine may Send while another Recvs.
type Conn interface {
	// Send delivers one packet. Cancelling ctx abandons the connection.
	Send(ctx context.Context, pkt *protocol.Packet) error

	// Recv blocks until the next packet arrives. Cancelling ctx abandons
	// the connection.
	Recv(ctx context.Context) (*protocol.Packet, error)

	// RemoteAddr labels the peer for logs.
	RemoteAddr() string

	Close() error
}
