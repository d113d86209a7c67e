// Package protocol defines the frame format exchanged between a stream
// receiver and the remote packet source it pulls from.
package protocol

// Frame type constants.
const (
	TypeOpen  uint8 = 0x01 // sender announces a stream; Payload is its name, Index its flags
	TypeRead  uint8 = 0x02 // receiver requests the packet at Index
	TypeData  uint8 = 0x03 // packet bytes for Index (may be empty)
	TypeEOF   uint8 = 0x04 // no packet at Index; the stream has ended
	TypeFault uint8 = 0x05 // the source failed producing Index; Payload is the message
	TypeClose uint8 = 0x06 // completion handshake; Payload[0] is the success flag
)

// OPEN flags, carried in the Index field.
const (
	FlagGzip uint64 = 1 << 0 // the packets concatenate to a gzip stream
)

// HeaderSize is the fixed header size: Type(1) + Index(8).
const HeaderSize = 9

// Packet is one frame on the wire.
type Packet struct {
	Type    uint8
	Index   uint64
	Payload []byte
}

// TypeName returns a short label for logs.
func TypeName(t uint8) string {
	switch t {
	case TypeOpen:
		return "OPEN"
	case TypeRead:
		return "READ"
	case TypeData:
		return "DATA"
	case TypeEOF:
		return "EOF"
	case TypeFault:
		return "FAULT"
	case TypeClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// NewOpen builds the frame announcing a stream.
func NewOpen(name string, flags uint64) *Packet {
	return &Packet{Type: TypeOpen, Index: flags, Payload: []byte(name)}
}

// Compressed reports whether an OPEN frame announces a gzip stream.
func (p *Packet) Compressed() bool {
	return p.Type == TypeOpen && p.Index&FlagGzip != 0
}

// NewClose builds the completion handshake frame.
func NewClose(success bool) *Packet {
	flag := byte(0)
	if success {
		flag = 1
	}
	return &Packet{Type: TypeClose, Payload: []byte{flag}}
}

// Success reports the flag carried by a CLOSE frame.
func (p *Packet) Success() bool {
	return p.Type == TypeClose && len(p.Payload) > 0 && p.Payload[0] == 1
}
