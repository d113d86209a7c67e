// Package stream implements the pull side of a chunked stream transfer: a
// Receiver asks a PacketSource for packets 0, 1, 2, … and writes each one to
// a Sink until the source reports end-of-stream.
package stream

import (
	"context"
	"io"
)

// PacketSource is a capability that yields a stream one numbered packet at a
// time. It is usually backed by a remote peer (see package remote) but may be
// a direct in-process handle such as ReaderSource.
type PacketSource interface {
	// ReadPacket returns the payload of packet index. A zero-length payload
	// is a valid packet. io.EOF is returned exactly once, when the stream
	// has no packet at index. Indices are requested strictly in order
	// starting at 0. Any other error means the source could not be reached
	// or failed producing the packet.
	ReadPacket(ctx context.Context, index uint64) ([]byte, error)

	// Close is the one-shot completion handshake. success is true only
	// after a clean end-of-stream.
	Close(ctx context.Context, success bool) error
}

// Sink is a local destination accepting sequential writes. It is owned by a
// single Transfer for the duration of the call.
type Sink interface {
	io.Writer

	// Flush makes everything written so far durable (or at least handed to
	// the OS).
	Flush() error

	// Close releases the sink. It must be safe to call after Flush and
	// must be called exactly once by the owner.
	Close() error
}

// Destination opens a Sink. Middleware constructs one per incoming stream
// (e.g. a uniquely named file) and hands it to Transfer, which decides when
// to open it.
type Destination interface {
	Open() (Sink, error)
}

// DestinationFunc adapts a plain function to a Destination.
type DestinationFunc func() (Sink, error)

func (f DestinationFunc) Open() (Sink, error) { return f() }
