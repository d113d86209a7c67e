package remote

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/1ureka/pullpipe/internal/protocol"
	"github.com/1ureka/pullpipe/internal/stream"
	"github.com/1ureka/pullpipe/internal/transport"
	"github.com/1ureka/pullpipe/internal/util"
)

// Serve answers READ requests on conn from src until the receiver sends its
// completion handshake, then closes src with the receiver's verdict and
// returns it.
//
// If the connection is lost or the receiver misbehaves, src is closed
// unsuccessfully and the error is returned.
func Serve(ctx context.Context, conn transport.Conn, src stream.PacketSource) (bool, error) {
	peer := conn.RemoteAddr()
	closeSrc := func(success bool) {
		if err := src.Close(context.WithoutCancel(ctx), success); err != nil {
			util.LogDebug("closing source for %s: %v", peer, err)
		}
	}

	for {
		pkt, err := conn.Recv(ctx)
		if err != nil {
			closeSrc(false)
			if errors.Is(err, transport.ErrClosed) {
				return false, errors.New("receiver hung up before completing the transfer")
			}
			return false, errors.Wrap(err, "connection lost")
		}

		switch pkt.Type {
		case protocol.TypeRead:
			if err := conn.Send(ctx, answer(ctx, src, pkt.Index)); err != nil {
				closeSrc(false)
				return false, errors.Wrapf(err, "reply to READ %d", pkt.Index)
			}

		case protocol.TypeClose:
			success := pkt.Success()
			closeSrc(success)
			util.LogDebug("receiver %s closed the transfer (success=%v)", peer, success)
			return success, nil

		default:
			closeSrc(false)
			return false, errors.Wrapf(ErrProtocol, "unexpected %s from receiver", protocol.TypeName(pkt.Type))
		}
	}
}

// answer produces the reply frame for READ(index).
func answer(ctx context.Context, src stream.PacketSource, index uint64) *protocol.Packet {
	payload, err := src.ReadPacket(ctx, index)
	switch {
	case err == nil:
		return &protocol.Packet{Type: protocol.TypeData, Index: index, Payload: payload}
	case errors.Is(err, io.EOF):
		return &protocol.Packet{Type: protocol.TypeEOF, Index: index}
	default:
		util.LogWarning("packet %d failed: %v", index, err)
		return &protocol.Packet{Type: protocol.TypeFault, Index: index, Payload: []byte(err.Error())}
	}
}
