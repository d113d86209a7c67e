// Package util provides shared utility functions.
package util

import (
	"hash/fnv"
)

// TransferID computes a 4-byte hash from the peer address and the stream
// name. It only labels log lines for one transfer and does not need to be
// unique or reversible.
func TransferID(peer, name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(peer))
	h.Write([]byte{0})
	h.Write([]byte(name))
	return h.Sum32()
}
