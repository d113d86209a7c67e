package stream

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a transfer failed.
type Kind uint8

const (
	// SinkUnavailable: the destination could not be opened. No packet was
	// requested and no byte was transferred.
	SinkUnavailable Kind = iota + 1
	// SinkWriteFailed: a local write, flush or close failed. Bytes written
	// before the failing packet are preserved.
	SinkWriteFailed
	// SourceUnreachable: requesting a packet failed at the protocol layer.
	// The sink holds whatever arrived before the failure.
	SourceUnreachable
)

func (k Kind) String() string {
	switch k {
	case SinkUnavailable:
		return "sink unavailable"
	case SinkWriteFailed:
		return "sink write failed"
	case SourceUnreachable:
		return "source unreachable"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TransferError is the only error type returned by Receiver.Transfer.
type TransferError struct {
	Kind    Kind
	Bytes   int64  // bytes durably handed to the sink before the failure
	Packets uint64 // packets fully written before the failure
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s after %d packets (%d bytes): %v", e.Kind, e.Packets, e.Bytes, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// KindOf returns the Kind of a TransferError anywhere in err's chain, or 0.
func KindOf(err error) Kind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

var (
	// ErrIndexOutOfOrder is returned by sources when a packet index is
	// repeated, skipped or goes backwards.
	ErrIndexOutOfOrder = errors.New("packet index out of order")

	// ErrClosed is returned when a source is used after its handshake.
	ErrClosed = errors.New("packet source closed")
)
