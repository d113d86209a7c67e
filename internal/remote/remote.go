// Package remote runs the pull protocol over a transport.Conn. The receiving
// side wraps the connection in a Source, which satisfies
// stream.PacketSource; the sending side answers its requests with Serve.
//
// A session is:
//
//	sender   → OPEN(name, flags)
//	receiver → READ(0)    sender → DATA(0) | EOF(0) | FAULT(0)
//	receiver → READ(1)    ...
//	receiver → CLOSE(success)
package remote

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/1ureka/pullpipe/internal/protocol"
	"github.com/1ureka/pullpipe/internal/transport"
)

// DefaultName is used when a sender announces a stream without a name.
const DefaultName = "stream"

// RemoteFault is reported by Source.ReadPacket when the sender could not
// produce a packet. The receiver treats it like an unreachable source.
type RemoteFault struct {
	Index   uint64
	Message string
}

func (f *RemoteFault) Error() string {
	return fmt.Sprintf("remote fault at packet %d: %s", f.Index, f.Message)
}

// ErrProtocol marks a frame that does not fit the session state.
var ErrProtocol = errors.New("protocol violation")

// Offer announces a stream to the receiver on the other end of conn.
// compressed tells the receiver that the packets form a gzip stream.
func Offer(ctx context.Context, conn transport.Conn, name string, compressed bool) error {
	var flags uint64
	if compressed {
		flags |= protocol.FlagGzip
	}
	if err := conn.Send(ctx, protocol.NewOpen(name, flags)); err != nil {
		return errors.Wrap(err, "send OPEN")
	}
	return nil
}

// Accept waits for the sender's OPEN frame and returns a Source pulling from
// it. The returned Source does not own conn.
func Accept(ctx context.Context, conn transport.Conn) (*Source, error) {
	pkt, err := conn.Recv(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "wait for OPEN")
	}
	if pkt.Type != protocol.TypeOpen {
		return nil, errors.Wrapf(ErrProtocol, "expected OPEN, got %s", protocol.TypeName(pkt.Type))
	}

	name := string(pkt.Payload)
	if name == "" {
		name = DefaultName
	}
	return &Source{conn: conn, name: name, compressed: pkt.Compressed()}, nil
}
