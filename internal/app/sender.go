package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pterm/pterm"

	"github.com/1ureka/pullpipe/internal/config"
	"github.com/1ureka/pullpipe/internal/remote"
	"github.com/1ureka/pullpipe/internal/signaling"
	"github.com/1ureka/pullpipe/internal/stream"
	"github.com/1ureka/pullpipe/internal/transport"
	"github.com/1ureka/pullpipe/internal/util"
)

// ErrRejected is returned by Send when the receiver's completion handshake
// reports failure.
var ErrRejected = errors.New("receiver reported the transfer as failed")

// Summary describes a finished send.
type Summary struct {
	Name    string
	Bytes   int64 // read from the file
	Wire    int64 // served in packets; smaller than Bytes when compressed
	Packets uint64
}

// Send offers cfg.File to the receiver at cfg.URL and serves it until the
// receiver completes the handshake.
func Send(ctx context.Context, cfg config.Config) (Summary, error) {
	f, err := os.Open(cfg.File)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open %s: %w", cfg.File, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return Summary{}, fmt.Errorf("failed to stat %s: %w", cfg.File, err)
	}

	name := cfg.Name
	if name == "" {
		name = filepath.Base(cfg.File)
	}

	mon := &sendMonitor{}
	if cfg.Progress {
		mon.bar, _ = pterm.DefaultProgressbar.
			WithTotal(int(info.Size())).
			WithTitle(name).
			Start()
	}
	defer mon.stop()

	// src owns f from here on: the handshake or the deferred Close closes it.
	opts := []stream.SourceOption{stream.WithChunkSize(cfg.ChunkSize), stream.WithMonitor(mon)}
	if cfg.Compress {
		opts = append(opts, stream.WithCompression())
	}
	src := stream.NewReaderSource(&fileReader{f: f, mon: mon}, opts...)
	defer src.Close(context.WithoutCancel(ctx), false)

	wsURL, err := withTransport(cfg.URL, cfg.Transport)
	if err != nil {
		return Summary{}, err
	}
	ws, err := signaling.Dial(ctx, wsURL)
	if err != nil {
		return Summary{}, err
	}

	var conn transport.Conn
	switch cfg.Transport {
	case config.TransportWebRTC:
		tr, err := signaling.EstablishAsSender(ctx, ws, cfg.ICEServers)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to establish DataChannel: %w", err)
		}
		conn = tr
	default:
		conn = transport.NewWSConn(ws)
	}
	defer conn.Close()

	util.LogInfo("offering %s (%s) over %s, gzip=%v", name, util.FormatBytes(float64(info.Size())), cfg.Transport, cfg.Compress)
	if err := remote.Offer(ctx, conn, name, src.Compressed()); err != nil {
		return Summary{}, err
	}

	ok, err := remote.Serve(ctx, conn, src)
	sum := Summary{Name: name, Bytes: mon.read.Load(), Wire: mon.bytes.Load(), Packets: src.Served()}
	if err != nil {
		return sum, err
	}
	if !ok {
		return sum, ErrRejected
	}
	return sum, nil
}

// withTransport adds the transport choice to the signaling URL.
func withTransport(raw string, t config.Transport) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid receiver URL %q: %w", raw, err)
	}
	q := u.Query()
	q.Set("transport", string(t))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sendMonitor counts file and packet bytes and optionally drives a progress
// bar. The bar follows the file so it ends at 100% with or without gzip.
type sendMonitor struct {
	read  atomic.Int64
	bytes atomic.Int64
	bar   *pterm.ProgressbarPrinter
}

func (m *sendMonitor) BytesMoved(_ uint64, n int) {
	util.Stats.AddSent(n)
	m.bytes.Add(int64(n))
}

func (m *sendMonitor) fileRead(n int) {
	m.read.Add(int64(n))
	if m.bar != nil && n > 0 {
		m.bar.Add(n)
	}
}

func (m *sendMonitor) Failure(index uint64, err error) {
	util.LogDebug("packet %d failed: %v", index, err)
}

func (m *sendMonitor) Closed(success bool) {
	util.LogDebug("receiver handshake: success=%v", success)
}

func (m *sendMonitor) stop() {
	if m.bar != nil {
		_, _ = m.bar.Stop()
	}
}

// fileReader reports reads of the sent file to a sendMonitor. With gzip the
// reads happen on the compressor's goroutine.
type fileReader struct {
	f   *os.File
	mon *sendMonitor
}

func (r *fileReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	r.mon.fileRead(n)
	return n, err
}

func (r *fileReader) Close() error { return r.f.Close() }
