// Package config holds the runtime configuration types.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Role represents which side of a transfer this process plays.
type Role string

const (
	RoleReceive Role = "receive"
	RoleSend    Role = "send"
)

// Transport selects how packets travel once the signaling WebSocket is up.
type Transport string

const (
	TransportWS     Transport = "ws"     // packets ride the signaling WebSocket itself
	TransportWebRTC Transport = "webrtc" // packets ride a DataChannel negotiated over the WebSocket
)

// SinkKind selects the durable destination for received streams.
type SinkKind string

const (
	SinkFile    SinkKind = "file"
	SinkLevelDB SinkKind = "leveldb"
	SinkPebble  SinkKind = "pebble"
)

// DefaultChunkSize matches the packet size used by senders unless overridden.
const DefaultChunkSize = 7 * 1024

// MaxChunkSize bounds a single packet so one message fits comfortably in a
// WebSocket frame or an SCTP message.
const MaxChunkSize = 256 * 1024

// Config stores all parameters gathered from CLI flags or interactive prompts.
type Config struct {
	Role      Role
	Transport Transport

	// Receiver side.
	ListenAddr  string   // address the signaling server binds, e.g. "127.0.0.1:7000"
	PIN         string   // required query parameter on /ws; empty disables the check
	Sink        SinkKind // destination backend
	OutDir      string   // directory for files or the database
	HistorySize int      // number of finished transfers kept for /transfers

	// Sender side.
	URL       string // receiver's WebSocket URL
	File      string // path of the file to send
	Name      string // stream name announced to the receiver; defaults to the file's base name
	ChunkSize int    // payload bytes per packet
	Progress  bool   // draw a progress bar while the receiver pulls
	Compress  bool   // send a gzip stream; the receiver stores it decompressed

	ICEServers []string
	Debug      bool
}

// Default returns a Config with every optional field filled in.
func Default() Config {
	return Config{
		Transport:   TransportWS,
		ListenAddr:  "127.0.0.1:7000",
		Sink:        SinkFile,
		OutDir:      "received",
		HistorySize: 128,
		ChunkSize:   DefaultChunkSize,
		ICEServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
	}
}

// Validate checks the fields relevant to the configured role.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportWS, TransportWebRTC:
	default:
		return fmt.Errorf("invalid transport %q: must be 'ws' or 'webrtc'", c.Transport)
	}

	switch c.Role {
	case RoleReceive:
		switch c.Sink {
		case SinkFile, SinkLevelDB, SinkPebble:
		default:
			return fmt.Errorf("invalid sink %q: must be 'file', 'leveldb' or 'pebble'", c.Sink)
		}
		if c.ListenAddr == "" {
			return fmt.Errorf("missing listen address")
		}
		if c.OutDir == "" {
			return fmt.Errorf("missing output directory")
		}
		if c.HistorySize < 1 {
			return fmt.Errorf("history size must be positive, got %d", c.HistorySize)
		}

	case RoleSend:
		if c.File == "" {
			return fmt.Errorf("missing file to send")
		}
		if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
			return fmt.Errorf("chunk size must be 1~%d, got %d", MaxChunkSize, c.ChunkSize)
		}
		u, err := NormalizeURL(c.URL, c.PIN)
		if err != nil {
			return err
		}
		c.URL = u

	default:
		return fmt.Errorf("invalid role %q: must be 'receive' or 'send'", c.Role)
	}
	return nil
}

// NormalizeURL validates a raw receiver address and turns it into the
// signaling endpoint, e.g. "host:7000" → "ws://host:7000/ws?pin=1234".
func NormalizeURL(raw, pin string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid receiver URL: %s", raw)
	}

	scheme := "ws"
	switch u.Scheme {
	case "wss", "https":
		scheme = "wss"
	}

	q := u.Query()
	if pin != "" {
		q.Set("pin", pin)
	}
	out := url.URL{Scheme: scheme, Host: u.Host, Path: "/ws", RawQuery: q.Encode()}
	return out.String(), nil
}
