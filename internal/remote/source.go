package remote

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/1ureka/pullpipe/internal/protocol"
	"github.com/1ureka/pullpipe/internal/stream"
	"github.com/1ureka/pullpipe/internal/transport"
)

// Source is a stream.PacketSource backed by a peer running Serve. Requests
// are strictly sequential: one READ is outstanding at a time.
type Source struct {
	conn       transport.Conn
	name       string
	compressed bool

	mu     sync.Mutex
	closed bool
}

var _ stream.PacketSource = (*Source)(nil)

// Name is the stream name the sender announced.
func (s *Source) Name() string { return s.name }

// Compressed reports whether the packets concatenate to a gzip stream.
func (s *Source) Compressed() bool { return s.compressed }

// Peer labels the sender for logs.
func (s *Source) Peer() string { return s.conn.RemoteAddr() }

// ReadPacket requests packet index and waits for the reply.
func (s *Source) ReadPacket(ctx context.Context, index uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, stream.ErrClosed
	}

	if err := s.conn.Send(ctx, &protocol.Packet{Type: protocol.TypeRead, Index: index}); err != nil {
		return nil, errors.Wrapf(err, "request packet %d", index)
	}

	reply, err := s.conn.Recv(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "await packet %d", index)
	}
	if reply.Index != index {
		return nil, errors.Wrapf(ErrProtocol, "asked for packet %d, got %s for %d",
			index, protocol.TypeName(reply.Type), reply.Index)
	}

	switch reply.Type {
	case protocol.TypeData:
		if reply.Payload == nil {
			return []byte{}, nil
		}
		return reply.Payload, nil
	case protocol.TypeEOF:
		return nil, io.EOF
	case protocol.TypeFault:
		return nil, &RemoteFault{Index: index, Message: string(reply.Payload)}
	default:
		return nil, errors.Wrapf(ErrProtocol, "unexpected %s reply to READ", protocol.TypeName(reply.Type))
	}
}

// Close sends the completion handshake. Only the first call sends anything.
func (s *Source) Close(ctx context.Context, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.conn.Send(ctx, protocol.NewClose(success)); err != nil {
		return errors.Wrap(err, "send CLOSE")
	}
	return nil
}
