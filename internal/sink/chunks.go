package sink

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/1ureka/pullpipe/internal/stream"
)

// Key layout shared by the key-value backends:
//
//	d/<id>/<seq:8 BE>  one record per sink write, in write order
//	m/<id>             total byte count, written when the sink is flushed
var (
	dataPrefix = []byte("d/")
	metaPrefix = []byte("m/")
)

// ErrSinkClosed is returned by writes after Close.
var ErrSinkClosed = errors.New("sink closed")

// kvBackend is the subset of a key-value database a ChunkStore needs.
type kvBackend interface {
	put(key, value []byte, sync bool) error
	// scan calls fn for every key with the given prefix in ascending
	// order. key and value are only valid during the call.
	scan(prefix []byte, fn func(key, value []byte) error) error
	close() error
}

// ChunkStore keeps every stream as an ordered run of records in one shared
// database. Concurrent transfers write disjoint key ranges.
type ChunkStore struct {
	kv   kvBackend
	path string
}

// Path returns the database directory.
func (s *ChunkStore) Path() string { return s.path }

func (s *ChunkStore) Destination(name string) Destination {
	return &chunkDestination{kv: s.kv, id: uniqueID(name)}
}

func (s *ChunkStore) ReadStream(id string, w io.Writer) (int64, error) {
	var total int64
	err := s.kv.scan(streamPrefix(id), func(_, value []byte) error {
		n, err := w.Write(value)
		total += int64(n)
		return err
	})
	return total, err
}

func (s *ChunkStore) Streams() ([]string, error) {
	var ids []string
	err := s.kv.scan(metaPrefix, func(key, _ []byte) error {
		ids = append(ids, string(key[len(metaPrefix):]))
		return nil
	})
	return ids, err
}

func (s *ChunkStore) Close() error { return s.kv.close() }

func streamPrefix(id string) []byte {
	p := make([]byte, 0, len(dataPrefix)+len(id)+1)
	p = append(p, dataPrefix...)
	p = append(p, id...)
	return append(p, '/')
}

func chunkKey(id string, seq uint64) []byte {
	p := streamPrefix(id)
	return binary.BigEndian.AppendUint64(p, seq)
}

func metaKey(id string) []byte {
	return append(append([]byte{}, metaPrefix...), id...)
}

type chunkDestination struct {
	kv kvBackend
	id string
}

func (d *chunkDestination) ID() string { return d.id }

func (d *chunkDestination) Open() (stream.Sink, error) {
	return &chunkSink{kv: d.kv, id: d.id}, nil
}

// chunkSink stores each Write as one record. Empty writes store nothing.
type chunkSink struct {
	kv     kvBackend
	id     string
	seq    uint64
	bytes  int64
	closed bool
}

func (s *chunkSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSinkClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.kv.put(chunkKey(s.id, s.seq), p, false); err != nil {
		return 0, errors.Wrapf(err, "put chunk %d", s.seq)
	}
	s.seq++
	s.bytes += int64(len(p))
	return len(p), nil
}

// Flush records the byte count with a synced write, which also makes the
// preceding unsynced chunk writes durable.
func (s *chunkSink) Flush() error {
	if s.closed {
		return ErrSinkClosed
	}
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(s.bytes))
	return s.kv.put(metaKey(s.id), v[:], true)
}

// Close leaves the shared database open.
func (s *chunkSink) Close() error {
	s.closed = true
	return nil
}
