package protocol

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes a Packet into a byte slice for one transport message.
func Encode(pkt *Packet) []byte {
	buf := make([]byte, HeaderSize+len(pkt.Payload))
	buf[0] = pkt.Type
	binary.BigEndian.PutUint64(buf[1:HeaderSize], pkt.Index)
	copy(buf[HeaderSize:], pkt.Payload)
	return buf
}

// Decode deserializes one transport message into a Packet. The payload is
// copied, so the caller may reuse data.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: %d bytes (need at least %d)", len(data), HeaderSize)
	}
	if data[0] < TypeOpen || data[0] > TypeClose {
		return nil, fmt.Errorf("unknown packet type 0x%02x", data[0])
	}
	pkt := &Packet{
		Type:  data[0],
		Index: binary.BigEndian.Uint64(data[1:HeaderSize]),
	}
	if len(data) > HeaderSize {
		pkt.Payload = make([]byte, len(data)-HeaderSize)
		copy(pkt.Payload, data[HeaderSize:])
	} else if pkt.Type == TypeData {
		// zero-length DATA is still data, never mistaken for EOF
		pkt.Payload = []byte{}
	}
	return pkt, nil
}
