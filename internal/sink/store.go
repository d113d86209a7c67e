// Package sink provides durable destinations for received streams: plain
// files, and chunk stores on LevelDB or Pebble.
package sink

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/1ureka/pullpipe/internal/config"
	"github.com/1ureka/pullpipe/internal/stream"
)

// Destination is a stream.Destination with a store-assigned unique id.
type Destination interface {
	stream.Destination

	// ID names the stored stream inside its store; pass it to ReadStream.
	ID() string
}

// Store hands out one Destination per incoming stream.
type Store interface {
	// Destination reserves a unique id for the stream announced as name.
	// Nothing is created until the Destination is opened.
	Destination(name string) Destination

	// ReadStream copies a stored stream to w in packet order.
	ReadStream(id string, w io.Writer) (int64, error)

	// Streams lists the ids of streams that were finalized.
	Streams() ([]string, error)

	Close() error
}

// Open creates the store selected by kind under dir.
func Open(kind config.SinkKind, dir string) (Store, error) {
	switch kind {
	case config.SinkFile:
		return NewFileStore(dir)
	case config.SinkLevelDB:
		return OpenLevelDB(filepath.Join(dir, "streams.ldb"))
	case config.SinkPebble:
		return OpenPebble(filepath.Join(dir, "streams.pebble"))
	default:
		return nil, fmt.Errorf("unknown sink kind %q", kind)
	}
}

// uniqueID turns an announced stream name into "<stem>_<uuid><ext>". Only
// the base name is kept and anything but [A-Za-z0-9._-] becomes '_', so the
// id is safe both as a file name and as a key segment.
func uniqueID(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "stream"
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)

	ext := filepath.Ext(base)
	// a leading dot would hide the stream from Streams
	stem := strings.TrimLeft(strings.TrimSuffix(base, ext), ".")
	if stem == "" {
		stem = "stream"
	}
	return stem + "_" + uuid.NewString() + ext
}
